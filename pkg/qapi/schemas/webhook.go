package schemas

import (
	"github.com/quatton/qhook/pkg/qrunner"
)

// ScriptRequest is the body of POST /webhook/v1 and /jobs/v1/enqueue.
type ScriptRequest struct {
	Script     string `json:"script" required:"false" doc:"Script file name, e.g. nightly.ps1" example:"nightly.ps1"`
	Key        string `json:"key,omitempty" doc:"Access key for the script"`
	Parameters string `json:"parameters,omitempty" doc:"Arguments passed to the script, split with shell-style quoting" example:"-Mode full"`
}

// ExecutionResponse reports the outcome of a synchronous execution.
type ExecutionResponse struct {
	ID         string `json:"Id" doc:"Execution ID"`
	ScriptName string `json:"ScriptName" doc:"Script file name"`
	Param      string `json:"Param,omitempty" doc:"Parameters the script ran with"`
	Message    string `json:"Message" doc:"Outcome summary"`
	Output     string `json:"Output" doc:"Captured standard output"`
	Error      string `json:"Error" doc:"Captured standard error"`
	Success    bool   `json:"Success" doc:"Whether the script exited with code 0"`
	ExitCode   int    `json:"ExitCode" doc:"Process exit code, -1 when the script did not run to completion"`
	Code       string `json:"Code,omitempty" doc:"Failure category" enum:"execution_failed,execution_timeout,admission_timeout,internal"`
	DurationMs int64  `json:"DurationMs" doc:"Wall-clock duration in milliseconds"`
}

func NewExecutionResponse(r *qrunner.Result) ExecutionResponse {
	return ExecutionResponse{
		ID:         r.ID,
		ScriptName: r.ScriptName,
		Param:      r.Parameters,
		Message:    r.Message,
		Output:     r.Output,
		Error:      r.Error,
		Success:    r.Success,
		ExitCode:   r.ExitCode,
		Code:       string(r.Code),
		DurationMs: r.Duration.Milliseconds(),
	}
}
