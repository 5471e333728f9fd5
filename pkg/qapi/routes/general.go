package routes

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/quatton/qhook/pkg/qapi"
)

var startedAt = time.Now()

type RootOutput struct {
	Body struct {
		Name    string `json:"name" example:"qhook" doc:"Service name"`
		Version string `json:"version" example:"1.0.0" doc:"API version"`
		Docs    string `json:"docs" example:"/docs" doc:"Path of the API documentation"`
	}
}

type HealthOutput struct {
	Body struct {
		Status string `json:"status" example:"ok" doc:"Health status"`
	}
}

type DetailedHealthOutput struct {
	Body struct {
		Status        string    `json:"status" example:"ok" doc:"Health status"`
		Timestamp     time.Time `json:"timestamp" doc:"Server time (UTC)"`
		Version       string    `json:"version" example:"1.0.0" doc:"API version"`
		Environment   string    `json:"environment" example:"production" doc:"Value of ENVIRONMENT"`
		OS            string    `json:"os" example:"linux/amd64" doc:"Operating system and architecture"`
		NumCPU        int       `json:"numCpu" doc:"Logical CPUs available to the process"`
		GoVersion     string    `json:"goVersion" example:"go1.24.0" doc:"Go runtime version"`
		Uptime        string    `json:"uptime" example:"3h12m5s" doc:"Time since the server started"`
		UptimeSeconds int64     `json:"uptimeSeconds" doc:"Uptime in whole seconds"`
	}
}

// RegisterGeneral registers /, /health and /health/detailed. ping checks the
// job backend and may be nil.
func RegisterGeneral(api huma.API, ping func(context.Context) error) {
	huma.Register(api, huma.Operation{
		OperationID: "root",
		Method:      http.MethodGet,
		Path:        "/",
		Summary:     "Service information",
		Tags:        []string{TagGeneral.String()},
	}, func(ctx context.Context, input *struct{}) (*RootOutput, error) {
		resp := &RootOutput{}
		resp.Body.Name = qapi.Title
		resp.Body.Version = qapi.Version
		resp.Body.Docs = "/docs"
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns ok when the service and its job backend are reachable",
		Tags:        []string{TagGeneral.String()},
	}, func(ctx context.Context, input *struct{}) (*HealthOutput, error) {
		if ping != nil {
			if err := ping(ctx); err != nil {
				return nil, huma.Error503ServiceUnavailable("job backend unavailable", err)
			}
		}
		resp := &HealthOutput{}
		resp.Body.Status = "ok"
		return resp, nil
	})
	huma.Register(api, huma.Operation{
		OperationID: "health-check-detailed",
		Method:      http.MethodGet,
		Path:        "/health/detailed",
		Summary:     "Detailed health check",
		Description: "Health status plus version, environment, platform and uptime",
		Tags:        []string{TagGeneral.String()},
	}, func(ctx context.Context, input *struct{}) (*DetailedHealthOutput, error) {
		if ping != nil {
			if err := ping(ctx); err != nil {
				return nil, huma.Error503ServiceUnavailable("job backend unavailable", err)
			}
		}
		uptime := time.Since(startedAt)
		resp := &DetailedHealthOutput{}
		resp.Body.Status = "ok"
		resp.Body.Timestamp = time.Now().UTC()
		resp.Body.Version = qapi.Version
		resp.Body.Environment = os.Getenv("ENVIRONMENT")
		if resp.Body.Environment == "" {
			resp.Body.Environment = "development"
		}
		resp.Body.OS = runtime.GOOS + "/" + runtime.GOARCH
		resp.Body.NumCPU = runtime.NumCPU()
		resp.Body.GoVersion = runtime.Version()
		resp.Body.Uptime = uptime.Round(time.Second).String()
		resp.Body.UptimeSeconds = int64(uptime / time.Second)
		return resp, nil
	})
}
