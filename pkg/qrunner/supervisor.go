// Package qrunner runs resolved scripts as child processes under a
// per-script concurrency ceiling and a wall-clock timeout.
package qrunner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quatton/qhook/pkg/qdispatch"
	"github.com/quatton/qhook/pkg/qerr"
	"github.com/quatton/qhook/pkg/qlog"
)

const (
	DefaultMaxConcurrent    = 5
	DefaultAdmissionTimeout = 30 * time.Second
	DefaultExecutionTimeout = 5 * time.Minute
	DefaultWaitDelay        = 2 * time.Second
	DefaultMaxOutput        = 1 << 20
)

type Options struct {
	MaxConcurrent    int64
	AdmissionTimeout time.Duration
	ExecutionTimeout time.Duration
	// WaitDelay bounds how long output is drained after the process exits or
	// is killed.
	WaitDelay time.Duration
	// MaxOutput caps the bytes kept per stream.
	MaxOutput int
	Logger    *qlog.Logger
}

func (o *Options) setDefaults() {
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = DefaultMaxConcurrent
	}
	if o.AdmissionTimeout <= 0 {
		o.AdmissionTimeout = DefaultAdmissionTimeout
	}
	if o.ExecutionTimeout <= 0 {
		o.ExecutionTimeout = DefaultExecutionTimeout
	}
	if o.WaitDelay <= 0 {
		o.WaitDelay = DefaultWaitDelay
	}
	if o.MaxOutput <= 0 {
		o.MaxOutput = DefaultMaxOutput
	}
	if o.Logger == nil {
		o.Logger = qlog.NewDiscard()
	}
}

type Supervisor struct {
	opts      Options
	admission *Admission
	logger    *qlog.Logger
}

func New(opts Options) *Supervisor {
	opts.setDefaults()
	return &Supervisor{
		opts:      opts,
		admission: NewAdmission(opts.MaxConcurrent),
		logger:    opts.Logger.With("component", "supervisor"),
	}
}

// Admission exposes the per-script concurrency registry.
func (s *Supervisor) Admission() *Admission { return s.admission }

// Execute runs a resolved script with params and never returns nil. Every
// failure, including a panic, is reported in the result.
func (s *Supervisor) Execute(ctx context.Context, res *qdispatch.Resolution, params string) (result *Result) {
	result = &Result{
		ID:         newID(),
		Parameters: params,
		StartedAt:  time.Now(),
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("execution panicked", "id", result.ID, "panic", r)
			result.fail(qerr.CodeInternal, fmt.Sprintf("internal error: %v", r))
		}
		result.Duration = time.Since(result.StartedAt)
	}()

	if res == nil {
		result.fail(qerr.CodeInternal, "no resolved script to execute")
		return result
	}
	result.ScriptName = res.Name()

	// names match handlers case-insensitively, so they share one gate
	release, err := s.admission.Acquire(ctx, strings.ToLower(res.Name()), s.opts.AdmissionTimeout)
	if err != nil {
		if ctx.Err() != nil {
			result.fail(qerr.CodeExecutionFailed, "execution cancelled before it started")
		} else {
			result.fail(qerr.CodeAdmissionTimeout, fmt.Sprintf(
				"too many concurrent executions of %s (limit %d), gave up after %s",
				res.Name(), s.admission.Capacity(), s.opts.AdmissionTimeout))
		}
		s.logger.Warn("admission refused", "id", result.ID, "script", res.Name(), "reason", result.Message)
		return result
	}
	defer release()

	s.run(ctx, res, params, result)
	return result
}

func (s *Supervisor) run(ctx context.Context, res *qdispatch.Resolution, params string, result *Result) {
	name, fixed := interpreter(res.Handler().ProcessName, res.Path())
	extra, err := splitParams(params)
	if err != nil {
		result.fail(qerr.CodeExecutionFailed, err.Error())
		return
	}

	execCtx, cancel := context.WithTimeout(ctx, s.opts.ExecutionTimeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, name, append(fixed, extra...)...)
	cmd.Dir = filepath.Dir(res.Path())
	cmd.Env = append(os.Environ(),
		"QHOOK_EXECUTION_ID="+result.ID,
		"QHOOK_SCRIPT="+res.Name(),
	)

	// exec copies both pipes on their own goroutines while Wait runs
	stdout := &boundedBuffer{max: s.opts.MaxOutput}
	stderr := &boundedBuffer{max: s.opts.MaxOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = s.opts.WaitDelay
	prepare(cmd)
	passRaw(cmd, len(fixed)+1, params)

	s.logger.Info("starting script", "id", result.ID, "script", res.Name(), "interpreter", name)

	err = cmd.Run()
	reap(cmd)

	result.Output = stdout.String()
	result.Error = stderr.String()
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	var exitErr *exec.ExitError
	switch {
	case errors.Is(execCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		result.fail(qerr.CodeExecutionTimeout, fmt.Sprintf(
			"%s exceeded the execution timeout of %s and was terminated", res.Name(), s.opts.ExecutionTimeout))
	case ctx.Err() != nil:
		result.fail(qerr.CodeExecutionFailed, "execution cancelled")
	case err == nil || (errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState.Success()):
		result.Success = true
		result.Message = "Script executed successfully"
	case errors.As(err, &exitErr):
		result.fail(qerr.CodeExecutionFailed, fmt.Sprintf("%s exited with code %d", res.Name(), exitErr.ExitCode()))
	default:
		result.fail(qerr.CodeExecutionFailed, fmt.Sprintf("failed to run %s: %v", res.Name(), err))
		if result.Error == "" {
			result.Error = err.Error()
		}
	}

	s.logger.Info("script finished",
		"id", result.ID,
		"script", res.Name(),
		"success", result.Success,
		"exit_code", result.ExitCode,
		"duration", time.Since(result.StartedAt).Round(time.Millisecond),
	)
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// boundedBuffer keeps the first max bytes written and drops the rest.
type boundedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	max       int
	truncated bool
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.max - b.buf.Len(); room < len(p) {
		if room > 0 {
			b.buf.Write(p[:room])
		}
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.truncated {
		return b.buf.String() + "\n[output truncated]"
	}
	return b.buf.String()
}
