package rateconfig

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/imexpress/backend-billing/internal/rate"
)

type memConfigStore struct {
	cfg   Config
	saved bool
	err   error
}

func (m *memConfigStore) Get(_ context.Context) (Config, bool, error) {
	return m.cfg, m.saved, m.err
}

func (m *memConfigStore) Save(_ context.Context, p rate.Policy) (Config, error) {
	if m.err != nil {
		return Config{}, m.err
	}
	m.cfg = Config{Policy: p, UpdatedAt: time.Now()}
	m.saved = true
	return m.cfg, nil
}

type recordingEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (r *recordingEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.tasks = append(r.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func d(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	v, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return v
}

func TestGetBeforeFirstSaveReturnsZeroPolicy(t *testing.T) {
	svc := NewService(&memConfigStore{}, nil, nil, zerolog.Nop())
	cfg, err := svc.Get(context.Background())
	require.NoError(t, err)
	require.False(t, cfg.Policy.Populated())
	require.Equal(t, rate.DiscountPercentage, cfg.Policy.DiscountType)
}

func TestSaveWithoutPropagation(t *testing.T) {
	store := &memConfigStore{}
	enq := &recordingEnqueuer{}
	svc := NewService(store, enq, nil, zerolog.Nop())

	result, err := svc.Save(context.Background(), rate.Policy{BaseRate: d(t, "500")}, false)
	require.NoError(t, err)
	require.False(t, result.PropagationEnqueued)
	require.Empty(t, enq.tasks)
	require.True(t, store.cfg.Policy.BaseRate.Equal(d(t, "500")))
}

func TestSaveEnqueuesPropagation(t *testing.T) {
	store := &memConfigStore{}
	enq := &recordingEnqueuer{}
	svc := NewService(store, enq, nil, zerolog.Nop())

	result, err := svc.Save(context.Background(), rate.Policy{RatePerKg: d(t, "90")}, true)
	require.NoError(t, err)
	require.True(t, result.PropagationEnqueued)
	require.Len(t, enq.tasks, 1)
	require.Equal(t, TaskTypePropagate, enq.tasks[0].Type())

	var payload PropagatePayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	require.True(t, payload.Policy.RatePerKg.Equal(d(t, "90")))
}

func TestSaveSurvivesEnqueueFailure(t *testing.T) {
	store := &memConfigStore{}
	enq := &recordingEnqueuer{err: errors.New("redis down")}
	svc := NewService(store, enq, nil, zerolog.Nop())

	result, err := svc.Save(context.Background(), rate.Policy{RatePerKg: d(t, "90")}, true)
	require.NoError(t, err)
	require.False(t, result.PropagationEnqueued)
	require.True(t, store.saved)
}

type countingSnapshotter struct {
	applied []rate.Policy
	err     error
}

func (c *countingSnapshotter) SnapshotPolicyAll(_ context.Context, p rate.Policy) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}
	c.applied = append(c.applied, p)
	return 7, nil
}

func TestPropagatorAppliesPayloadPolicy(t *testing.T) {
	snap := &countingSnapshotter{}
	p := Propagator{Clients: snap, Log: zerolog.Nop()}

	task, err := NewPropagateTask(rate.Policy{BaseRate: d(t, "500")})
	require.NoError(t, err)
	require.NoError(t, p.Handle(context.Background(), task))
	require.Len(t, snap.applied, 1)
	require.True(t, snap.applied[0].BaseRate.Equal(d(t, "500")))
}

func TestPropagatorSkipsRetryOnBadPayload(t *testing.T) {
	p := Propagator{Clients: &countingSnapshotter{}, Log: zerolog.Nop()}
	err := p.Handle(context.Background(), asynq.NewTask(TaskTypePropagate, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
