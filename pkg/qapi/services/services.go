package services

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/quatton/qhook/pkg/db"
	"github.com/quatton/qhook/pkg/kv"
	"github.com/quatton/qhook/pkg/qapi/config"
	"github.com/quatton/qhook/pkg/qart"
	"github.com/quatton/qhook/pkg/qcron"
	"github.com/quatton/qhook/pkg/qdispatch"
	"github.com/quatton/qhook/pkg/qhook"
	"github.com/quatton/qhook/pkg/qjobs"
	"github.com/quatton/qhook/pkg/qlog"
	"github.com/quatton/qhook/pkg/qpolicy"
	"github.com/quatton/qhook/pkg/qrunner"
	"github.com/quatton/qhook/pkg/qscript"
)

// Services is the dependency container behind the API and the background
// workers.
type Services struct {
	Hook *qhook.Service
	Jobs *qjobs.Manager
	Cron *qcron.Scheduler
	// Ping checks the job backend.
	Ping func(context.Context) error

	closers []func() error
}

// NewServices builds the execution pipeline and the job backend selected by
// STORE_BACKEND.
func NewServices(ctx context.Context, cfg *config.EnvConfig, scripts *qscript.Config, logger *qlog.Logger) (*Services, error) {
	dispatcher, err := qdispatch.New(scripts, cfg.ScriptsBaseDir)
	if err != nil {
		return nil, err
	}
	supervisor := qrunner.New(qrunner.Options{
		MaxConcurrent:    cfg.MaxConcurrent,
		AdmissionTimeout: cfg.AdmissionTimeout,
		ExecutionTimeout: cfg.ExecutionTimeout,
		Logger:           logger,
	})
	hook := qhook.New(scripts, qpolicy.NewChain(scripts), dispatcher, supervisor, logger)

	s := &Services{Hook: hook}

	store, queue, err := s.openBackend(ctx, cfg, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	var artifacts qart.Store
	if cfg.ArtifactsEnabled() {
		s3, err := qart.NewS3Store(cfg.S3Config())
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to create artifact store: %w", err)
		}
		if err := s3.EnsureBucket(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to prepare artifact bucket: %w", err)
		}
		artifacts = s3
	}

	s.Jobs = qjobs.NewManager(store, queue, hook, qjobs.Options{
		Workers:   cfg.Workers,
		Artifacts: artifacts,
		Logger:    logger,
	})
	s.Cron = qcron.New(logger)
	return s, nil
}

func (s *Services) openBackend(ctx context.Context, cfg *config.EnvConfig, logger *qlog.Logger) (qjobs.Store, kv.Queue, error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		valkey, err := kv.NewValkeyStore(cfg.ValkeyConfig())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		s.closers = append(s.closers, valkey.Close)
		s.Ping = valkey.Ping
		return qjobs.NewKVStore(valkey, cfg.JobRetention), valkey, nil

	case config.BackendPostgres:
		database, err := db.New(ctx, cfg.DBConfig(), os.Stderr)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		s.closers = append(s.closers, database.Close)
		s.Ping = database.PingContext

		var queue kv.Queue
		if cfg.RedisAddr != "" {
			valkey, err := kv.NewValkeyStore(cfg.ValkeyConfig())
			if err != nil {
				return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
			}
			s.closers = append(s.closers, valkey.Close)
			queue = valkey
		} else {
			logger.Warn("REDIS_ADDR not set, queued jobs are kept in process memory")
			queue = kv.NewMemoryStore()
		}
		return qjobs.NewSQLStore(database), queue, nil

	default:
		mem := kv.NewMemoryStore()
		s.Ping = mem.Ping
		return qjobs.NewKVStore(mem, cfg.JobRetention), mem, nil
	}
}

// Close releases backend connections.
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}
