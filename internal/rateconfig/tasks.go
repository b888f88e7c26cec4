package rateconfig

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/imexpress/backend-billing/internal/obs"
	"github.com/imexpress/backend-billing/internal/rate"
)

const (
	// QueueDefault is the queue background jobs run on.
	QueueDefault = "default"
	// TaskTypePropagate snapshots the global policy onto every client.
	TaskTypePropagate = "rateconfig:propagate"
)

// PropagatePayload carries the policy to snapshot. The payload is the policy
// as saved, not a reference, so a propagation enqueued before a second save
// still applies the policy its save wrote.
type PropagatePayload struct {
	Policy rate.Policy `json:"policy"`
}

// NewPropagateTask constructs the propagation task for a saved policy.
func NewPropagateTask(p rate.Policy) (*asynq.Task, error) {
	data, err := json.Marshal(PropagatePayload{Policy: p})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypePropagate, data, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// PolicySnapshotter bulk-applies a policy to all clients.
type PolicySnapshotter interface {
	SnapshotPolicyAll(ctx context.Context, p rate.Policy) (int64, error)
}

// Propagator handles TaskTypePropagate tasks on the worker.
type Propagator struct {
	Clients PolicySnapshotter
	Cache   *rate.Cache
	Log     zerolog.Logger
}

// Handle applies the payload policy to every client and drops cached
// resolutions so subsequent lookups see the new rates.
func (p Propagator) Handle(ctx context.Context, t *asynq.Task) error {
	var payload PropagatePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	n, err := p.Clients.SnapshotPolicyAll(ctx, payload.Policy.Normalize())
	if err != nil {
		if obs.PolicyPropagationTotal != nil {
			obs.PolicyPropagationTotal.WithLabelValues("error").Inc()
		}
		return err
	}
	if err := p.Cache.InvalidateAll(ctx); err != nil {
		p.Log.Warn().Err(err).Msg("policy cache invalidation failed")
	}
	if obs.PolicyPropagationTotal != nil {
		obs.PolicyPropagationTotal.WithLabelValues("ok").Inc()
	}
	p.Log.Info().Int64("clients", n).Msg("global policy propagated")
	return nil
}
