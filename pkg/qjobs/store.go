package qjobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/quatton/qhook/pkg/kv"
)

// Store persists job records. Implementations synchronize themselves.
type Store interface {
	Create(ctx context.Context, job *Job) error
	// Get returns ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (*Job, error)
	Update(ctx context.Context, job *Job) error
	// Claim atomically moves an Enqueued job to Processing. A job that is
	// not Enqueued yields ErrNotClaimable, so duplicate deliveries are
	// dropped.
	Claim(ctx context.Context, id string) (*Job, error)
}

// Pruner is implemented by stores without native expiry.
type Pruner interface {
	// Prune deletes finished jobs older than before and returns their ids.
	Prune(ctx context.Context, before time.Time) ([]string, error)
}

const keyPrefix = "qhook:job:"

// KVStore keeps jobs as JSON documents in a kv.Store. Records expire after
// the retention period.
type KVStore struct {
	kv        kv.Store
	retention time.Duration
}

func NewKVStore(store kv.Store, retention time.Duration) *KVStore {
	return &KVStore{kv: store, retention: retention}
}

func jobKey(id string) string   { return keyPrefix + id }
func claimKey(id string) string { return keyPrefix + id + ":claim" }

func (s *KVStore) Create(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encoding job: %w", err)
	}
	ok, err := s.kv.SetNX(ctx, jobKey(job.ID), data, s.retention)
	if err != nil {
		return fmt.Errorf("saving job %s: %w", job.ID, err)
	}
	if !ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	return nil
}

func (s *KVStore) Get(ctx context.Context, id string) (*Job, error) {
	data, err := s.kv.Get(ctx, jobKey(id))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading job %s: %w", id, err)
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decoding job %s: %w", id, err)
	}
	return &job, nil
}

func (s *KVStore) Update(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encoding job: %w", err)
	}
	if err := s.kv.Set(ctx, jobKey(job.ID), data, s.retention); err != nil {
		return fmt.Errorf("saving job %s: %w", job.ID, err)
	}
	return nil
}

func (s *KVStore) Claim(ctx context.Context, id string) (*Job, error) {
	ok, err := s.kv.SetNX(ctx, claimKey(id), []byte("1"), s.retention)
	if err != nil {
		return nil, fmt.Errorf("claiming job %s: %w", id, err)
	}
	if !ok {
		return nil, ErrNotClaimable
	}

	job, err := s.Get(ctx, id)
	if err != nil {
		_ = s.kv.Delete(ctx, claimKey(id))
		return nil, err
	}
	if job.State != StateEnqueued {
		// a scheduled job becomes claimable once promoted
		_ = s.kv.Delete(ctx, claimKey(id))
		return nil, ErrNotClaimable
	}
	if err := job.Transition(StateProcessing, time.Now()); err != nil {
		return nil, err
	}
	if err := s.Update(ctx, job); err != nil {
		_ = s.kv.Delete(ctx, claimKey(id))
		return nil, err
	}
	return job, nil
}

var _ Store = (*KVStore)(nil)
