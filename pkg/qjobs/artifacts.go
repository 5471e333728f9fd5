package qjobs

import (
	"context"
	"time"

	"github.com/quatton/qhook/pkg/qart"
)

// upload stores the job's captured output. Failures are logged and never
// change the job outcome.
func (m *Manager) upload(ctx context.Context, job *Job) {
	if m.artifacts == nil || job.Result == nil {
		return
	}

	files := []struct {
		name    string
		content string
	}{
		{"stdout.log", job.Result.Output},
		{"stderr.log", job.Result.Error},
	}
	for _, f := range files {
		if f.content == "" {
			continue
		}
		a, err := m.artifacts.Put(ctx, job.ID, f.name, f.content, map[string]string{
			"script": job.Request.Script,
			"source": job.Source,
		})
		if err != nil {
			m.logger.WarnContext(ctx, "failed to upload artifact", "job", job.ID, "file", f.name, "error", err)
			continue
		}
		job.Artifacts = append(job.Artifacts, a.Key)
	}
}

// Artifacts lists a job's stored output with presigned download URLs.
func (m *Manager) Artifacts(ctx context.Context, id string) ([]*qart.Artifact, error) {
	if m.artifacts == nil {
		return nil, qart.ErrNotConfigured
	}
	if _, err := m.store.Get(ctx, id); err != nil {
		return nil, err
	}

	list, err := m.artifacts.ListJob(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, a := range list {
		url, err := m.artifacts.Presign(ctx, a.Key, presignExpiry)
		if err != nil {
			return nil, err
		}
		a.URL = url
	}
	return list, nil
}

// Prune removes finished jobs older than retention from stores without
// native expiry, along with their artifacts.
func (m *Manager) Prune(ctx context.Context, retention time.Duration) (int, error) {
	p, ok := m.store.(Pruner)
	if !ok {
		return 0, nil
	}
	ids, err := p.Prune(ctx, time.Now().Add(-retention))
	if err != nil {
		return 0, err
	}
	if m.artifacts != nil {
		for _, id := range ids {
			if err := m.artifacts.DeleteJob(ctx, id); err != nil {
				m.logger.Warn("failed to delete artifacts", "job", id, "error", err)
			}
		}
	}
	if len(ids) > 0 {
		m.logger.Info("pruned jobs", "count", len(ids))
	}
	return len(ids), nil
}
