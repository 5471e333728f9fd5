package qjobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quatton/qhook/pkg/db/models"
	"github.com/quatton/qhook/pkg/qrunner"
	"github.com/quatton/qhook/pkg/qscript"
	"github.com/uptrace/bun"
)

// SQLStore keeps jobs in the qhook.jobs table.
type SQLStore struct {
	db *bun.DB
}

func NewSQLStore(db *bun.DB) *SQLStore {
	return &SQLStore{db: db}
}

func toModel(j *Job) (*models.Job, error) {
	id, err := uuid.Parse(j.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid job id %q: %w", j.ID, err)
	}
	m := &models.Job{
		ID:         id,
		State:      string(j.State),
		Script:     j.Request.Script,
		Parameters: j.Request.Parameters,
		AccessKey:  j.Request.Key,
		Source:     j.Source,
		Reasons:    j.Reasons,
		Artifacts:  j.Artifacts,
		CreatedAt:  j.CreatedAt,
	}
	if j.Result != nil {
		if m.Result, err = json.Marshal(j.Result); err != nil {
			return nil, fmt.Errorf("encoding result: %w", err)
		}
	}
	if j.ScheduledAt != nil {
		m.ScheduledAt = *j.ScheduledAt
	}
	if j.StartedAt != nil {
		m.StartedAt = *j.StartedAt
	}
	if j.FinishedAt != nil {
		m.FinishedAt = *j.FinishedAt
	}
	return m, nil
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}

func fromModel(m *models.Job) (*Job, error) {
	j := &Job{
		ID:    m.ID.String(),
		State: State(m.State),
		Request: qscript.Request{
			Script:     m.Script,
			Key:        m.AccessKey,
			Parameters: m.Parameters,
		},
		Source:      m.Source,
		CreatedAt:   m.CreatedAt.UTC(),
		ScheduledAt: timePtr(m.ScheduledAt),
		StartedAt:   timePtr(m.StartedAt),
		FinishedAt:  timePtr(m.FinishedAt),
		Reasons:     m.Reasons,
		Artifacts:   m.Artifacts,
	}
	if len(m.Result) > 0 {
		var r qrunner.Result
		if err := json.Unmarshal(m.Result, &r); err != nil {
			return nil, fmt.Errorf("decoding result of job %s: %w", j.ID, err)
		}
		j.Result = &r
	}
	return j, nil
}

func (s *SQLStore) Create(ctx context.Context, job *Job) error {
	m, err := toModel(job)
	if err != nil {
		return err
	}
	if _, err := s.db.NewInsert().Model(m).Exec(ctx); err != nil {
		return fmt.Errorf("inserting job %s: %w", job.ID, err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*Job, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	m := new(models.Job)
	err = s.db.NewSelect().Model(m).Where("j.id = ?", uid).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading job %s: %w", id, err)
	}
	return fromModel(m)
}

func (s *SQLStore) Update(ctx context.Context, job *Job) error {
	m, err := toModel(job)
	if err != nil {
		return err
	}
	res, err := s.db.NewUpdate().Model(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("updating job %s: %w", job.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) Claim(ctx context.Context, id string) (*Job, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}

	m := new(models.Job)
	res, err := s.db.NewUpdate().
		Model(m).
		Set("state = ?", string(StateProcessing)).
		Set("started_at = ?", time.Now().UTC()).
		Where("j.id = ?", uid).
		Where("j.state = ?", string(StateEnqueued)).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("claiming job %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotClaimable
	}
	return fromModel(m)
}

func (s *SQLStore) Prune(ctx context.Context, before time.Time) ([]string, error) {
	var ids []uuid.UUID
	_, err := s.db.NewDelete().
		Model((*models.Job)(nil)).
		Where("state IN (?)", bun.In([]string{string(StateSucceeded), string(StateFailed)})).
		Where("finished_at < ?", before.UTC()).
		Returning("id").
		Exec(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("pruning jobs: %w", err)
	}

	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out, nil
}

var (
	_ Store  = (*SQLStore)(nil)
	_ Pruner = (*SQLStore)(nil)
)
