// Package qcron runs named jobs on standard five-field cron schedules.
package qcron

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/quatton/qhook/pkg/qlog"
	cron "github.com/robfig/cron/v3"
)

// JobFunc is the work run on each tick. Its context is cancelled when the
// scheduler stops.
type JobFunc func(context.Context)

// Entry describes a registered schedule.
type Entry struct {
	ID       string    `json:"id"`
	Schedule string    `json:"schedule"`
	NextRun  time.Time `json:"nextRun"`
	LastRun  time.Time `json:"lastRun,omitempty"`
}

type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
	specs   map[string]string
	logger  *qlog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// Parse parses a standard cron expression (minute hour dom month dow, or a
// descriptor such as @hourly).
func Parse(spec string) (cron.Schedule, error) {
	return cron.ParseStandard(spec)
}

func New(logger *qlog.Logger) *Scheduler {
	if logger == nil {
		logger = qlog.NewDiscard()
	}
	logger = logger.With("component", "cron")
	cl := cron.PrintfLogger(logger.StdLogger(slog.LevelError))

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		entries: map[string]cron.EntryID{},
		specs:   map[string]string{},
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Schedule registers fn under id. Registering an existing id replaces its
// schedule and job.
func (s *Scheduler) Schedule(id, spec string, fn JobFunc) error {
	sched, err := Parse(spec)
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.entries[id]; ok {
		s.cron.Remove(prev)
		delete(s.entries, id)
	}
	s.entries[id] = s.cron.Schedule(sched, cron.FuncJob(func() { fn(s.ctx) }))
	s.specs[id] = spec
	return nil
}

// Remove unregisters id. Unknown ids are ignored.
func (s *Scheduler) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if eid, ok := s.entries[id]; ok {
		s.cron.Remove(eid)
		delete(s.entries, id)
		delete(s.specs, id)
	}
}

// Entries lists registered schedules ordered by id. NextRun is computed from
// the schedule when the scheduler has not been started yet.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	out := make([]Entry, 0, len(s.entries))
	for id, eid := range s.entries {
		e := s.cron.Entry(eid)
		if !e.Valid() {
			continue
		}
		next := e.Next
		if next.IsZero() {
			next = e.Schedule.Next(now)
		}
		out = append(out, Entry{ID: id, Schedule: s.specs[id], NextRun: next, LastRun: e.Prev})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "entries", len(s.Entries()))
}

// Stop halts the scheduler, cancels running jobs' context and waits for them
// to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}

// Run starts the scheduler and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Start()
	<-ctx.Done()
	s.Stop()
	return nil
}

// Trigger runs the job registered under id once, outside its schedule. It
// reports false for unknown ids.
func (s *Scheduler) Trigger(id string) bool {
	s.mu.Lock()
	eid, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return false
	}
	e := s.cron.Entry(eid)
	if !e.Valid() {
		return false
	}
	e.WrappedJob.Run()
	return true
}
