package routes

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/quatton/qhook/pkg/qapi/middleware"
	"github.com/quatton/qhook/pkg/qapi/schemas"
	"github.com/quatton/qhook/pkg/qerr"
	"github.com/quatton/qhook/pkg/qhook"
	"github.com/quatton/qhook/pkg/qscript"
)

type WebhookQueryInput struct {
	Script     string `query:"script" doc:"Script file name" example:"nightly.ps1"`
	Key        string `query:"key" doc:"Access key for the script"`
	Parameters string `query:"parameters" doc:"Arguments passed to the script"`
}

type WebhookBodyInput struct {
	Body schemas.ScriptRequest
}

type ExecutionOutput struct {
	Body schemas.ExecutionResponse
}

// rejection converts a Run or Admit error into the response error.
func rejection(err error) error {
	switch qerr.CodeOf(err) {
	case qerr.CodeValidation, qerr.CodeDispatch:
		return schemas.NewRejection(http.StatusBadRequest, qerr.Reasons(err)...)
	default:
		return huma.Error500InternalServerError("failed to process request", err)
	}
}

func RegisterWebhook(api huma.API, svc *qhook.Service) {
	execute := func(ctx context.Context, req qscript.Request) (*ExecutionOutput, error) {
		result, err := svc.Run(ctx, req, middleware.OriginFrom(ctx))
		if err != nil {
			return nil, rejection(err)
		}
		if result.Code == qerr.CodeAdmissionTimeout {
			return nil, schemas.NewRejection(http.StatusTooManyRequests, result.Message)
		}
		return &ExecutionOutput{Body: schemas.NewExecutionResponse(result)}, nil
	}

	errors := []int{http.StatusBadRequest, http.StatusTooManyRequests}

	huma.Register(api, huma.Operation{
		OperationID: "webhook-get",
		Method:      http.MethodGet,
		Path:        "/webhook/v1",
		Summary:     "Run a script (query parameters)",
		Description: "Validates the request, runs the script and returns its captured output. Rejections are returned as a JSON array of reasons.",
		Tags:        []string{TagWebhook.String()},
		Errors:      errors,
	}, func(ctx context.Context, input *WebhookQueryInput) (*ExecutionOutput, error) {
		return execute(ctx, qscript.Request{Script: input.Script, Key: input.Key, Parameters: input.Parameters})
	})

	huma.Register(api, huma.Operation{
		OperationID: "webhook-post",
		Method:      http.MethodPost,
		Path:        "/webhook/v1",
		Summary:     "Run a script (JSON body)",
		Description: "Same as the GET variant with the request in the body.",
		Tags:        []string{TagWebhook.String()},
		Errors:      errors,
	}, func(ctx context.Context, input *WebhookBodyInput) (*ExecutionOutput, error) {
		return execute(ctx, qscript.Request(input.Body))
	})
}
