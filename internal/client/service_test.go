package client

import (
	"context"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/imexpress/backend-billing/internal/common"
	"github.com/imexpress/backend-billing/internal/rate"
)

type memStore struct {
	clients []Client
	seq     int
}

func (m *memStore) Create(_ context.Context, c Client) (Client, error) {
	for _, existing := range m.clients {
		en, ea := NormalizeIdentity(existing.Name, existing.Address)
		cn, ca := NormalizeIdentity(c.Name, c.Address)
		if en == cn && ea == ca {
			return Client{}, ErrAlreadyExists
		}
	}
	m.seq++
	c.ID = uuid.New()
	c.ClientID = FormatClientID(m.seq)
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	m.clients = append(m.clients, c)
	return c, nil
}

func (m *memStore) FindByIdentity(_ context.Context, name, address string) (*Client, error) {
	n, a := NormalizeIdentity(name, address)
	for i := range m.clients {
		en, ea := NormalizeIdentity(m.clients[i].Name, m.clients[i].Address)
		if en == n && ea == a {
			return &m.clients[i], nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*Client, error) {
	for i := range m.clients {
		if m.clients[i].ID == id {
			return &m.clients[i], nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) List(_ context.Context) ([]Client, error) {
	out := make([]Client, len(m.clients))
	copy(out, m.clients)
	return out, nil
}

func (m *memStore) Update(_ context.Context, c Client) (*Client, error) {
	for i := range m.clients {
		if m.clients[i].ID == c.ID {
			c.ClientID = m.clients[i].ClientID
			c.CreatedAt = m.clients[i].CreatedAt
			c.UpdatedAt = time.Now()
			m.clients[i] = c
			return &m.clients[i], nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) Delete(_ context.Context, id uuid.UUID) error {
	for i := range m.clients {
		if m.clients[i].ID == id {
			m.clients = append(m.clients[:i], m.clients[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *memStore) ReplaceRateRules(_ context.Context, clientID uuid.UUID, rules []RateRule) error {
	for i := range m.clients {
		if m.clients[i].ID == clientID {
			m.clients[i].RateRules = rules
			return nil
		}
	}
	return ErrNotFound
}

func (m *memStore) AssignClientIDs(_ context.Context) (int, error) {
	for i := range m.clients {
		m.clients[i].ClientID = FormatClientID(i + 1)
	}
	return len(m.clients), nil
}

type fixedGlobals struct {
	policy rate.Policy
	found  bool
}

func (f fixedGlobals) GlobalPolicy(_ context.Context) (rate.Policy, bool, error) {
	return f.policy, f.found, nil
}

func newTestService(globals rate.GlobalPolicies) (*Service, *memStore) {
	store := &memStore{}
	return NewService(store, globals, nil, zerolog.Nop()), store
}

func parseDec(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

func TestRegisterAssignsSequentialCodes(t *testing.T) {
	svc, _ := newTestService(fixedGlobals{})
	owner := uuid.New()

	for i, name := range []string{"Alpha", "Beta", "Gamma"} {
		c, err := svc.Register(context.Background(), owner, RegisterInput{Name: name, Address: "Addr " + name})
		require.NoError(t, err)
		require.Equal(t, FormatClientID(i+1), c.ClientID)
	}
}

func TestRegisterRejectsCaseInsensitiveDuplicate(t *testing.T) {
	svc, store := newTestService(fixedGlobals{})
	owner := uuid.New()

	_, err := svc.Register(context.Background(), owner, RegisterInput{Name: "Acme", Address: "1 Main St"})
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), owner, RegisterInput{Name: "ACME", Address: "1 MAIN ST"})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeDuplicate, appErr.Code)
	require.Len(t, store.clients, 1)
}

func TestRegisterSnapshotsGlobalPolicy(t *testing.T) {
	global := rate.Policy{DiscountType: rate.DiscountPercentage}
	var err error
	global.BaseRate, err = parseDec("500")
	require.NoError(t, err)
	global.ExtraRatePerKg, err = parseDec("400")
	require.NoError(t, err)

	svc, _ := newTestService(fixedGlobals{policy: global, found: true})
	c, err := svc.Register(context.Background(), uuid.New(), RegisterInput{Name: "Acme", Address: "1 Main St"})
	require.NoError(t, err)
	require.True(t, c.Policy.BaseRate.Equal(global.BaseRate))
	require.True(t, c.Policy.ExtraRatePerKg.Equal(global.ExtraRatePerKg))
}

// A quote made before registration can leave a global or fallback resolution
// cached under the consignee's identity; registering that identity must drop
// it so the next quote picks up the client attribution.
func TestRegisterInvalidatesCachedResolution(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	key := rate.PolicyKey("Acme", "1 Main St")
	require.NoError(t, mr.Set(key, `{"source":"global"}`))

	store := &memStore{}
	svc := NewService(store, fixedGlobals{}, rate.NewCache(rdb, time.Minute), zerolog.Nop())

	_, err = svc.Register(context.Background(), uuid.New(), RegisterInput{Name: "ACME", Address: "1 MAIN ST"})
	require.NoError(t, err)
	require.False(t, mr.Exists(key))
}

func TestRegisterRequiresNameAndAddress(t *testing.T) {
	svc, _ := newTestService(fixedGlobals{})
	_, err := svc.Register(context.Background(), uuid.New(), RegisterInput{Name: "  ", Address: "x"})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeValidation, appErr.Code)
}

func TestCheckReportsPolicySource(t *testing.T) {
	global := rate.Policy{}
	var err error
	global.RatePerKg, err = parseDec("90")
	require.NoError(t, err)

	svc, _ := newTestService(fixedGlobals{policy: global, found: true})
	owner := uuid.New()

	// Unregistered identity prices from the global default.
	result, err := svc.Check(context.Background(), "Nobody", "Nowhere")
	require.NoError(t, err)
	require.False(t, result.Registered)
	require.Equal(t, rate.SourceGlobal, result.Source)

	// A registered client with a populated override wins.
	registered, err := svc.Register(context.Background(), owner, RegisterInput{Name: "Acme", Address: "1 Main St"})
	require.NoError(t, err)
	result, err = svc.Check(context.Background(), "acme", "1 main st")
	require.NoError(t, err)
	require.True(t, result.Registered)
	require.Equal(t, rate.SourceClient, result.Source)
	require.Equal(t, registered.ClientID, result.Client.ClientID)
}

func TestAssignClientIDsIdempotent(t *testing.T) {
	svc, store := newTestService(fixedGlobals{})
	owner := uuid.New()
	for _, name := range []string{"A", "B", "C"} {
		_, err := svc.Register(context.Background(), owner, RegisterInput{Name: name, Address: name})
		require.NoError(t, err)
	}

	first, err := svc.AssignClientIDs(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, first)
	codes := []string{store.clients[0].ClientID, store.clients[1].ClientID, store.clients[2].ClientID}

	second, err := svc.AssignClientIDs(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, second)
	require.Equal(t, codes, []string{store.clients[0].ClientID, store.clients[1].ClientID, store.clients[2].ClientID})
}

func TestFormatAndParseClientID(t *testing.T) {
	cases := map[int]string{1: "IM001", 42: "IM042", 999: "IM999", 1000: "IM1000"}
	for n, want := range cases {
		require.Equal(t, want, FormatClientID(n))
		got, ok := ParseClientIDSeq(want)
		require.True(t, ok)
		require.Equal(t, n, got)
	}
	_, ok := ParseClientIDSeq("XX001")
	require.False(t, ok)
	_, ok = ParseClientIDSeq("IMabc")
	require.False(t, ok)
	require.False(t, strings.HasPrefix("XX001", "IM"))
}
