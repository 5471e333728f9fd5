// Package qjobs queues script executions as background jobs and runs them on
// a worker pool.
package qjobs

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quatton/qhook/pkg/qrunner"
	"github.com/quatton/qhook/pkg/qscript"
)

type State string

const (
	StateScheduled  State = "Scheduled"
	StateEnqueued   State = "Enqueued"
	StateProcessing State = "Processing"
	StateSucceeded  State = "Succeeded"
	StateFailed     State = "Failed"
)

var (
	ErrNotFound          = errors.New("job not found")
	ErrNotClaimable      = errors.New("job is not waiting to run")
	ErrInvalidTransition = errors.New("invalid job state transition")
)

// order ranks states; a job only ever moves to a higher rank.
var order = map[State]int{
	StateScheduled:  0,
	StateEnqueued:   1,
	StateProcessing: 2,
	StateSucceeded:  3,
	StateFailed:     3,
}

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Friendly returns the human readable status shown to API callers.
func (s State) Friendly() string {
	switch s {
	case StateSucceeded:
		return "Completed successfully"
	case StateFailed:
		return "Failed"
	case StateProcessing:
		return "Running"
	case StateScheduled:
		return "Scheduled"
	case StateEnqueued:
		return "Waiting to run"
	default:
		return string(s)
	}
}

// Source values recorded on jobs.
const (
	SourceAPI = "api"
	SourceCLI = "cli"
)

// RecurringSource is the source of jobs enqueued by a recurring trigger.
func RecurringSource(id string) string {
	return "recurring:" + id
}

type Job struct {
	ID          string          `json:"id"`
	State       State           `json:"state"`
	Request     qscript.Request `json:"request"`
	Source      string          `json:"source"`
	CreatedAt   time.Time       `json:"createdAt"`
	ScheduledAt *time.Time      `json:"scheduledAt,omitempty"`
	StartedAt   *time.Time      `json:"startedAt,omitempty"`
	FinishedAt  *time.Time      `json:"finishedAt,omitempty"`
	Result      *qrunner.Result `json:"result,omitempty"`
	// Reasons is set when the job was rejected before it ran.
	Reasons   []string `json:"reasons,omitempty"`
	Artifacts []string `json:"artifacts,omitempty"`
}

// NewJob creates an Enqueued job, or a Scheduled one when runAt is in the
// future.
func NewJob(req qscript.Request, source string, runAt time.Time) (*Job, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate UUID: %w", err)
	}
	now := time.Now().UTC()
	j := &Job{
		ID:        id.String(),
		State:     StateEnqueued,
		Request:   req,
		Source:    source,
		CreatedAt: now,
	}
	if runAt.After(now) {
		at := runAt.UTC()
		j.State = StateScheduled
		j.ScheduledAt = &at
	}
	return j, nil
}

// Transition moves the job to state to, stamping start and finish times.
// Moving backwards, or out of a terminal state, fails.
func (j *Job) Transition(to State, at time.Time) error {
	from, ok := order[j.State]
	next, known := order[to]
	if !ok || !known || next <= from {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.State, to)
	}

	at = at.UTC()
	switch {
	case to == StateProcessing:
		j.StartedAt = &at
	case to.Terminal():
		j.FinishedAt = &at
	}
	j.State = to
	return nil
}
