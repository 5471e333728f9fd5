package qcron

import (
	"context"

	"github.com/quatton/qhook/pkg/qjobs"
	"github.com/quatton/qhook/pkg/qlog"
	"github.com/quatton/qhook/pkg/qscript"
)

// Enqueuer queues a script request as a background job.
type Enqueuer interface {
	Enqueue(ctx context.Context, req qscript.Request, source string) (string, error)
}

// ConfigureRecurring registers one schedule per mapping with a
// recurringSchedule. Each tick enqueues the mapping's script with its
// resolved key and default parameters. Mappings that fail to register are
// logged and skipped; the number registered is returned.
func ConfigureRecurring(cfg *qscript.Config, sched *Scheduler, enq Enqueuer, logger *qlog.Logger) int {
	if logger == nil {
		logger = qlog.NewDiscard()
	}

	registered := 0
	for i := range cfg.Handlers {
		h := &cfg.Handlers[i]
		for j := range h.ScriptsMapping {
			m := &h.ScriptsMapping[j]
			if m.RecurringSchedule == "" {
				continue
			}

			id := h.RecurringID(m)
			req := qscript.Request{
				Script:     m.Name,
				Key:        cfg.ResolveKey(h, m),
				Parameters: m.DefaultParameters,
			}
			err := sched.Schedule(id, m.RecurringSchedule, func(ctx context.Context) {
				jobID, err := enq.Enqueue(ctx, req, qjobs.RecurringSource(id))
				if err != nil {
					logger.Error("failed to enqueue recurring job", "recurring", id, "error", err)
					return
				}
				logger.Info("recurring job enqueued", "recurring", id, "job", jobID)
			})
			if err != nil {
				logger.Warn("skipping recurring job", "recurring", id, "error", err)
				continue
			}
			logger.Info("registered recurring job", "recurring", id, "script", m.Name, "schedule", m.RecurringSchedule)
			registered++
		}
	}
	return registered
}
