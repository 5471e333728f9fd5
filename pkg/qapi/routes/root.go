package routes

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/quatton/qhook/pkg/qapi/services"
)

// RegisterAPI registers every route. svcs may be nil when only the OpenAPI
// document is needed.
func RegisterAPI(api huma.API, svcs *services.Services) {
	if svcs == nil {
		RegisterGeneral(api, nil)
		RegisterWebhook(api, nil)
		RegisterJobs(api, nil, nil, nil)
		return
	}
	RegisterGeneral(api, svcs.Ping)
	RegisterWebhook(api, svcs.Hook)
	RegisterJobs(api, svcs.Hook, svcs.Jobs, svcs.Cron)
}
