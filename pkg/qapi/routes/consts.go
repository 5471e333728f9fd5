package routes

type Tag string

const (
	TagGeneral Tag = "general"
	TagWebhook Tag = "webhook"
	TagJobs    Tag = "jobs"
)

func (t Tag) String() string { return string(t) }

func AllTags() []string {
	return []string{
		TagGeneral.String(),
		TagWebhook.String(),
		TagJobs.String(),
	}
}
