package routes

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/quatton/qhook/pkg/qapi/middleware"
	"github.com/quatton/qhook/pkg/qapi/schemas"
	"github.com/quatton/qhook/pkg/qart"
	"github.com/quatton/qhook/pkg/qcron"
	"github.com/quatton/qhook/pkg/qhook"
	"github.com/quatton/qhook/pkg/qjobs"
	"github.com/quatton/qhook/pkg/qscript"
)

type EnqueueInput struct {
	Body schemas.EnqueueRequest
}

type EnqueueOutput struct {
	Body schemas.EnqueueResponse
}

type JobIDInput struct {
	JobID string `path:"jobId" doc:"Job ID"`
}

type JobStatusOutput struct {
	Body schemas.JobStatusResponse
}

type ListRecurringOutput struct {
	Body struct {
		Recurring []schemas.RecurringJob `json:"recurring" doc:"Registered recurring jobs"`
	}
}

type ListArtifactsOutput struct {
	Body struct {
		Artifacts []schemas.JobArtifact `json:"artifacts" doc:"Stored job output"`
	}
}

func jobError(err error) error {
	switch {
	case errors.Is(err, qjobs.ErrNotFound):
		return huma.Error404NotFound("job not found")
	case errors.Is(err, qart.ErrNotConfigured):
		return huma.NewError(http.StatusNotImplemented, "artifact storage is not configured")
	default:
		return huma.Error500InternalServerError("job store error", err)
	}
}

func RegisterJobs(api huma.API, svc *qhook.Service, jobs *qjobs.Manager, sched *qcron.Scheduler) {
	huma.Register(api, huma.Operation{
		OperationID: "enqueue-job",
		Method:      http.MethodPost,
		Path:        "/jobs/v1/enqueue",
		Summary:     "Queue a script as a background job",
		Description: "Validates the request like the webhook does, then queues it and returns the job id without waiting for the script.",
		Tags:        []string{TagJobs.String()},
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *EnqueueInput) (*EnqueueOutput, error) {
		req := qscript.Request(input.Body.ScriptRequest)
		if err := svc.Admit(req, middleware.OriginFrom(ctx)); err != nil {
			return nil, rejection(err)
		}

		delay := time.Duration(input.Body.DelaySeconds) * time.Second
		id, err := jobs.Schedule(ctx, req, qjobs.SourceAPI, delay)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to enqueue job", err)
		}

		resp := &EnqueueOutput{}
		resp.Body.JobID = id
		resp.Body.Message = "Job enqueued"
		if delay > 0 {
			resp.Body.Message = fmt.Sprintf("Job scheduled to run in %s", delay)
		}
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "job-status",
		Method:      http.MethodGet,
		Path:        "/jobs/v1/status/{jobId}",
		Summary:     "Get a job's status",
		Tags:        []string{TagJobs.String()},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *JobIDInput) (*JobStatusOutput, error) {
		job, err := jobs.Status(ctx, input.JobID)
		if err != nil {
			return nil, jobError(err)
		}
		return &JobStatusOutput{Body: schemas.NewJobStatusResponse(job)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-recurring",
		Method:      http.MethodGet,
		Path:        "/jobs/v1/recurring",
		Summary:     "List recurring jobs",
		Description: "Lists the recurring triggers registered from the script configuration with their next run time.",
		Tags:        []string{TagJobs.String()},
	}, func(ctx context.Context, input *struct{}) (*ListRecurringOutput, error) {
		resp := &ListRecurringOutput{}
		resp.Body.Recurring = []schemas.RecurringJob{}
		if sched == nil {
			return resp, nil
		}
		for _, e := range sched.Entries() {
			resp.Body.Recurring = append(resp.Body.Recurring, schemas.NewRecurringJob(e))
		}
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-job-artifacts",
		Method:      http.MethodGet,
		Path:        "/jobs/v1/artifacts/{jobId}",
		Summary:     "List a job's stored output",
		Description: "Lists stdout and stderr uploaded after the job finished, with presigned download URLs.",
		Tags:        []string{TagJobs.String()},
		Errors:      []int{http.StatusNotFound, http.StatusNotImplemented},
	}, func(ctx context.Context, input *JobIDInput) (*ListArtifactsOutput, error) {
		list, err := jobs.Artifacts(ctx, input.JobID)
		if err != nil {
			return nil, jobError(err)
		}
		resp := &ListArtifactsOutput{}
		resp.Body.Artifacts = make([]schemas.JobArtifact, len(list))
		for i, a := range list {
			resp.Body.Artifacts[i] = schemas.NewJobArtifact(a)
		}
		return resp, nil
	})
}
