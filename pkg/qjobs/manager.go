package qjobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quatton/qhook/pkg/kv"
	"github.com/quatton/qhook/pkg/qart"
	"github.com/quatton/qhook/pkg/qerr"
	"github.com/quatton/qhook/pkg/qlog"
	"github.com/quatton/qhook/pkg/qrunner"
	"github.com/quatton/qhook/pkg/qscript"
)

// Executor runs a job's request through the same pipeline as a synchronous
// call. A non-nil error means the request was rejected before it ran.
type Executor interface {
	Execute(ctx context.Context, req qscript.Request) (*qrunner.Result, error)
}

const (
	DefaultQueue       = "qhook:queue:jobs"
	DefaultWorkers     = 4
	DefaultPollTimeout = 2 * time.Second
	presignExpiry      = 15 * time.Minute
	finalizeTimeout    = 10 * time.Second
)

type Options struct {
	Queue       string
	Workers     int
	PollTimeout time.Duration
	// Artifacts receives job output when set.
	Artifacts qart.Store
	Logger    *qlog.Logger
}

type Manager struct {
	store     Store
	queue     kv.Queue
	exec      Executor
	artifacts qart.Store
	opts      Options
	logger    *qlog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewManager(store Store, queue kv.Queue, exec Executor, opts Options) *Manager {
	if opts.Queue == "" {
		opts.Queue = DefaultQueue
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = DefaultPollTimeout
	}
	if opts.Logger == nil {
		opts.Logger = qlog.NewDiscard()
	}
	return &Manager{
		store:     store,
		queue:     queue,
		exec:      exec,
		artifacts: opts.Artifacts,
		opts:      opts,
		logger:    opts.Logger.With("component", "jobs"),
		timers:    make(map[string]*time.Timer),
	}
}

// Enqueue stores a new job and queues it for the workers. It returns as soon
// as the job is queued.
func (m *Manager) Enqueue(ctx context.Context, req qscript.Request, source string) (string, error) {
	job, err := NewJob(req, source, time.Time{})
	if err != nil {
		return "", err
	}
	if err := m.store.Create(ctx, job); err != nil {
		return "", err
	}
	if err := m.queue.Push(ctx, m.opts.Queue, []byte(job.ID)); err != nil {
		return "", fmt.Errorf("queueing job %s: %w", job.ID, err)
	}
	m.logger.Info("job enqueued", "job", job.ID, "script", req.Script, "source", source)
	return job.ID, nil
}

// Schedule stores a job that is queued once delay has passed. Pending
// schedules live in this process and are dropped by Stop.
func (m *Manager) Schedule(ctx context.Context, req qscript.Request, source string, delay time.Duration) (string, error) {
	if delay <= 0 {
		return m.Enqueue(ctx, req, source)
	}

	job, err := NewJob(req, source, time.Now().Add(delay))
	if err != nil {
		return "", err
	}
	if err := m.store.Create(ctx, job); err != nil {
		return "", err
	}

	id := job.ID
	m.mu.Lock()
	m.timers[id] = time.AfterFunc(delay, func() {
		m.mu.Lock()
		delete(m.timers, id)
		m.mu.Unlock()
		if err := m.promote(context.Background(), id); err != nil {
			m.logger.Error("failed to enqueue scheduled job", "job", id, "error", err)
		}
	})
	m.mu.Unlock()

	m.logger.Info("job scheduled", "job", id, "script", req.Script, "at", job.ScheduledAt.Format(time.RFC3339))
	return id, nil
}

func (m *Manager) promote(ctx context.Context, id string) error {
	job, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := job.Transition(StateEnqueued, time.Now()); err != nil {
		return err
	}
	if err := m.store.Update(ctx, job); err != nil {
		return err
	}
	return m.queue.Push(ctx, m.opts.Queue, []byte(id))
}

// Status returns the job with the given id, or ErrNotFound.
func (m *Manager) Status(ctx context.Context, id string) (*Job, error) {
	return m.store.Get(ctx, id)
}

// Pending returns the number of jobs waiting in the queue.
func (m *Manager) Pending(ctx context.Context) (int64, error) {
	return m.queue.Len(ctx, m.opts.Queue)
}

// Run starts the workers and blocks until ctx is cancelled and every worker
// has returned.
func (m *Manager) Run(ctx context.Context) error {
	m.logger.Info("starting job workers", "workers", m.opts.Workers, "queue", m.opts.Queue)

	var wg sync.WaitGroup
	for i := 0; i < m.opts.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			m.work(ctx, worker)
		}(i)
	}
	wg.Wait()
	m.Stop()
	return nil
}

// Stop cancels pending schedules.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.timers {
		t.Stop()
		delete(m.timers, id)
	}
}

func (m *Manager) work(ctx context.Context, worker int) {
	for ctx.Err() == nil {
		msg, err := m.queue.Pop(ctx, m.opts.Queue, m.opts.PollTimeout)
		switch {
		case err == nil:
			m.process(ctx, string(msg))
		case errors.Is(err, kv.ErrEmpty), ctx.Err() != nil:
		default:
			m.logger.Error("failed to pop job", "worker", worker, "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

func (m *Manager) process(ctx context.Context, id string) {
	job, err := m.store.Claim(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotClaimable) || errors.Is(err, ErrNotFound) {
			m.logger.Debug("skipping job", "job", id, "reason", err)
		} else {
			m.logger.Error("failed to claim job", "job", id, "error", err)
		}
		return
	}

	ctx = qlog.ContextAttrs(ctx, slog.String("job", id), slog.String("script", job.Request.Script))
	m.logger.InfoContext(ctx, "processing job")

	m.execute(ctx, job)

	// persist the outcome even when shutdown cancelled ctx
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	m.upload(fctx, job)
	if err := m.store.Update(fctx, job); err != nil {
		m.logger.ErrorContext(ctx, "failed to save job outcome", "error", err)
		return
	}
	m.logger.InfoContext(ctx, "job finished", "state", string(job.State))
}

func (m *Manager) execute(ctx context.Context, job *Job) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.ErrorContext(ctx, "job panicked", "panic", r)
			job.Reasons = []string{fmt.Sprintf("internal error: %v", r)}
			_ = job.Transition(StateFailed, time.Now())
		}
	}()

	result, err := m.exec.Execute(ctx, job.Request)
	job.Result = result
	state := StateSucceeded
	if err != nil {
		job.Reasons = qerr.Reasons(err)
		state = StateFailed
	} else if result == nil || !result.Success {
		state = StateFailed
	}
	if err := job.Transition(state, time.Now()); err != nil {
		m.logger.ErrorContext(ctx, "unexpected job state", "error", err)
	}
}
