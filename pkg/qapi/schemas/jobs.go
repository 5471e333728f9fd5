package schemas

import (
	"path"
	"time"

	"github.com/quatton/qhook/pkg/qart"
	"github.com/quatton/qhook/pkg/qcron"
	"github.com/quatton/qhook/pkg/qjobs"
)

// EnqueueRequest queues a script as a background job.
type EnqueueRequest struct {
	ScriptRequest
	DelaySeconds int `json:"delaySeconds,omitempty" minimum:"0" doc:"Run the job after this many seconds instead of as soon as possible"`
}

type EnqueueResponse struct {
	JobID   string `json:"JobId" doc:"Job ID"`
	Message string `json:"Message" doc:"Human readable confirmation"`
}

// JobStatusResponse reports a job's state. The access key is never included.
type JobStatusResponse struct {
	JobID       string             `json:"JobId" doc:"Job ID"`
	Script      string             `json:"Script" doc:"Script file name"`
	Source      string             `json:"Source" doc:"What queued the job: api, cli or recurring:<id>"`
	State       string             `json:"State" doc:"Job state" enum:"Scheduled,Enqueued,Processing,Succeeded,Failed"`
	Status      string             `json:"Status" doc:"Human readable status"`
	CreatedAt   time.Time          `json:"CreatedAt" doc:"When the job was created"`
	ScheduledAt *time.Time         `json:"ScheduledAt,omitempty" doc:"When a delayed job becomes due"`
	StartedAt   *time.Time         `json:"StartedAt,omitempty" doc:"When a worker picked the job up"`
	FinishedAt  *time.Time         `json:"FinishedAt,omitempty" doc:"When the job finished"`
	Reasons     []string           `json:"Reasons,omitempty" doc:"Why the job was rejected before running"`
	Result      *ExecutionResponse `json:"Result,omitempty" doc:"Execution outcome"`
}

func NewJobStatusResponse(j *qjobs.Job) JobStatusResponse {
	resp := JobStatusResponse{
		JobID:       j.ID,
		Script:      j.Request.Script,
		Source:      j.Source,
		State:       string(j.State),
		Status:      j.State.Friendly(),
		CreatedAt:   j.CreatedAt,
		ScheduledAt: j.ScheduledAt,
		StartedAt:   j.StartedAt,
		FinishedAt:  j.FinishedAt,
		Reasons:     j.Reasons,
	}
	if j.Result != nil {
		r := NewExecutionResponse(j.Result)
		resp.Result = &r
	}
	return resp
}

type RecurringJob struct {
	ID       string     `json:"id" doc:"Recurring trigger ID (processName_mappingName)"`
	Schedule string     `json:"schedule" doc:"Cron expression" example:"*/5 * * * *"`
	NextRun  time.Time  `json:"nextRun" doc:"Next scheduled run"`
	LastRun  *time.Time `json:"lastRun,omitempty" doc:"Last run, when it has fired since startup"`
}

func NewRecurringJob(e qcron.Entry) RecurringJob {
	r := RecurringJob{ID: e.ID, Schedule: e.Schedule, NextRun: e.NextRun}
	if !e.LastRun.IsZero() {
		last := e.LastRun
		r.LastRun = &last
	}
	return r
}

// JobArtifact is a stored job output file.
type JobArtifact struct {
	Key         string `json:"key" doc:"Storage key"`
	Filename    string `json:"filename" doc:"File name"`
	Size        int64  `json:"size" doc:"Size in bytes"`
	ContentType string `json:"content_type,omitempty" doc:"MIME type"`
	URL         string `json:"url,omitempty" doc:"Download URL (presigned)"`
}

func NewJobArtifact(a *qart.Artifact) JobArtifact {
	return JobArtifact{Key: a.Key, Filename: path.Base(a.Key), Size: a.Size, ContentType: a.ContentType, URL: a.URL}
}
