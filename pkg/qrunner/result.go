package qrunner

import (
	"time"

	"github.com/quatton/qhook/pkg/qerr"
)

// Result is the outcome of one script execution. Output and Error hold the
// captured stdout and stderr and are filled whatever the outcome.
type Result struct {
	ID         string        `json:"id"`
	ScriptName string        `json:"scriptName"`
	Parameters string        `json:"parameters,omitempty"`
	Success    bool          `json:"success"`
	Output     string        `json:"output"`
	Error      string        `json:"error"`
	Message    string        `json:"message"`
	ExitCode   int           `json:"exitCode"`
	Code       qerr.Code     `json:"code,omitempty"`
	StartedAt  time.Time     `json:"startedAt"`
	Duration   time.Duration `json:"duration"`
}

func (r *Result) fail(code qerr.Code, message string) {
	r.Success = false
	r.Code = code
	r.Message = message
	if r.ExitCode == 0 {
		r.ExitCode = -1
	}
}

// Err returns nil for a successful result, otherwise an error carrying the
// failure code and message.
func (r *Result) Err() error {
	if r == nil || r.Success {
		return nil
	}
	return qerr.Reject(r.Code, r.Message)
}
