package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type stubClients struct {
	policy   Policy
	clientID string
	found    bool
	err      error
	calls    int
}

func (s *stubClients) PolicyByIdentity(_ context.Context, _, _ string) (Policy, string, bool, error) {
	s.calls++
	return s.policy, s.clientID, s.found, s.err
}

type stubGlobals struct {
	policy Policy
	found  bool
	err    error
}

func (s *stubGlobals) GlobalPolicy(_ context.Context) (Policy, bool, error) {
	return s.policy, s.found, s.err
}

func TestResolveClientOverrideWins(t *testing.T) {
	clients := &stubClients{policy: Policy{BaseRate: d("500")}, clientID: "IM007", found: true}
	globals := &stubGlobals{policy: Policy{RatePerKg: d("90")}, found: true}
	r := NewResolver(clients, globals, nil)

	res, err := r.Resolve(context.Background(), "Acme", "1 Main St")
	require.NoError(t, err)
	require.Equal(t, SourceClient, res.Source)
	require.Equal(t, "IM007", res.ClientID)
	require.True(t, res.Policy.BaseRate.Equal(d("500")))
}

func TestResolveUnpopulatedOverrideFallsToGlobal(t *testing.T) {
	clients := &stubClients{policy: Policy{}, clientID: "IM002", found: true}
	globals := &stubGlobals{policy: Policy{RatePerKg: d("90")}, found: true}
	r := NewResolver(clients, globals, nil)

	res, err := r.Resolve(context.Background(), "Acme", "1 Main St")
	require.NoError(t, err)
	require.Equal(t, SourceGlobal, res.Source)
	// The matched client id is still carried for line-item attribution.
	require.Equal(t, "IM002", res.ClientID)
	require.True(t, res.Policy.RatePerKg.Equal(d("90")))
}

func TestResolveFallbackWhenNothingConfigured(t *testing.T) {
	r := NewResolver(&stubClients{}, &stubGlobals{}, nil)

	res, err := r.Resolve(context.Background(), "Nobody", "Nowhere")
	require.NoError(t, err)
	require.Equal(t, SourceFallback, res.Source)
	require.False(t, res.Policy.Populated())

	// Fallback policy prices at the default per-kg rate.
	require.True(t, Price(res.Policy, d("3")).Equal(d("300")))
}

func TestResolveStoreErrorWrapsRateLookup(t *testing.T) {
	clients := &stubClients{err: errors.New("connection refused")}
	r := NewResolver(clients, &stubGlobals{}, nil)

	_, err := r.Resolve(context.Background(), "Acme", "1 Main St")
	require.ErrorIs(t, err, ErrRateLookup)
}

func TestResolveCachesResolutions(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	clients := &stubClients{policy: Policy{BaseRate: d("500")}, clientID: "IM001", found: true}
	r := NewResolver(clients, &stubGlobals{}, NewCache(rdb, time.Minute))

	first, err := r.Resolve(context.Background(), "Acme", "1 Main St")
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), "Acme", "1 Main St")
	require.NoError(t, err)

	require.Equal(t, 1, clients.calls)
	require.Equal(t, first.ClientID, second.ClientID)
	require.True(t, first.Policy.BaseRate.Equal(second.Policy.BaseRate))
}

func TestQuoteForAppliesDiscount(t *testing.T) {
	clients := &stubClients{
		policy: Policy{BaseRate: d("500"), ExtraRatePerKg: d("400"), DiscountType: DiscountPercentage, DiscountValue: d("50")},
		found:  true,
	}
	r := NewResolver(clients, &stubGlobals{}, nil)

	q, err := r.QuoteFor(context.Background(), "Acme", "1 Main St", d("2"))
	require.NoError(t, err)
	require.True(t, q.Price.Equal(d("900")))
	require.True(t, q.Discount.Equal(d("450")))
	require.True(t, q.Total.Equal(d("450")))
}
