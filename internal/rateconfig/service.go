package rateconfig

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/imexpress/backend-billing/internal/rate"
)

// ConfigStore is the persistence surface for the singleton configuration.
type ConfigStore interface {
	Get(ctx context.Context) (Config, bool, error)
	Save(ctx context.Context, p rate.Policy) (Config, error)
}

// TaskEnqueuer matches the asynq client surface the service uses.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Service owns the global rate configuration. Saving and propagating to
// clients are two separate operations: the save is synchronous, the optional
// bulk snapshot runs as a background job.
type Service struct {
	store ConfigStore
	tasks TaskEnqueuer
	cache *rate.Cache
	log   zerolog.Logger
}

func NewService(store ConfigStore, tasks TaskEnqueuer, cache *rate.Cache, log zerolog.Logger) *Service {
	return &Service{store: store, tasks: tasks, cache: cache, log: log}
}

// Get returns the stored configuration. Before the first save it returns a
// zero policy, which prices at the default per-kg fallback.
func (s *Service) Get(ctx context.Context) (Config, error) {
	cfg, found, err := s.store.Get(ctx)
	if err != nil {
		return Config{}, fmt.Errorf("load rate config: %w", err)
	}
	if !found {
		return Config{Policy: rate.Policy{DiscountType: rate.DiscountPercentage}}, nil
	}
	cfg.Policy = cfg.Policy.Normalize()
	return cfg, nil
}

// SaveResult reports what a save did.
type SaveResult struct {
	Config              Config `json:"config"`
	PropagationEnqueued bool   `json:"propagationEnqueued"`
}

// Save persists the policy and, when updateAllClients is set, enqueues the
// snapshot job. A failed enqueue does not roll back the save; the config is
// already durable and the caller is told propagation did not start.
func (s *Service) Save(ctx context.Context, p rate.Policy, updateAllClients bool) (SaveResult, error) {
	cfg, err := s.store.Save(ctx, p.Normalize())
	if err != nil {
		return SaveResult{}, fmt.Errorf("save rate config: %w", err)
	}
	if err := s.cache.InvalidateAll(ctx); err != nil {
		s.log.Warn().Err(err).Msg("policy cache invalidation failed")
	}

	result := SaveResult{Config: cfg}
	if updateAllClients && s.tasks != nil {
		task, err := NewPropagateTask(cfg.Policy)
		if err != nil {
			return result, fmt.Errorf("build propagate task: %w", err)
		}
		if _, err := s.tasks.EnqueueContext(ctx, task); err != nil {
			s.log.Error().Err(err).Msg("propagation enqueue failed")
			return result, nil
		}
		result.PropagationEnqueued = true
	}
	s.log.Info().Bool("propagate", result.PropagationEnqueued).Msg("rate config saved")
	return result, nil
}
