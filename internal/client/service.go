package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/imexpress/backend-billing/internal/common"
	"github.com/imexpress/backend-billing/internal/rate"
)

// Store is the persistence surface the service needs.
type Store interface {
	Create(ctx context.Context, c Client) (Client, error)
	FindByIdentity(ctx context.Context, name, address string) (*Client, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Client, error)
	List(ctx context.Context) ([]Client, error)
	Update(ctx context.Context, c Client) (*Client, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ReplaceRateRules(ctx context.Context, clientID uuid.UUID, rules []RateRule) error
	AssignClientIDs(ctx context.Context) (int, error)
}

// Locker serialises maintenance operations across API instances.
type Locker interface {
	WithLock(ctx context.Context, name string, ttl time.Duration, fn func(context.Context) error) error
}

// Service wraps registry operations: duplicate-guarded registration,
// profile/rate updates, and client-code resequencing.
type Service struct {
	store   Store
	globals rate.GlobalPolicies
	cache   *rate.Cache
	locker  Locker
	log     zerolog.Logger
}

func NewService(store Store, globals rate.GlobalPolicies, cache *rate.Cache, log zerolog.Logger) *Service {
	return &Service{store: store, globals: globals, cache: cache, log: log}
}

// WithLocker makes AssignClientIDs take a distributed lock before running.
func (s *Service) WithLocker(l Locker) *Service {
	s.locker = l
	return s
}

// CheckResult describes the registration and pricing status of an identity.
type CheckResult struct {
	Registered bool              `json:"registered"`
	Client     *Client           `json:"client,omitempty"`
	Policy     rate.Policy       `json:"policy"`
	Source     rate.PolicySource `json:"source"`
}

// Check reports whether (name, address) is registered and which policy would
// price its shipments.
func (s *Service) Check(ctx context.Context, name, address string) (CheckResult, error) {
	c, err := s.store.FindByIdentity(ctx, name, address)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return CheckResult{}, fmt.Errorf("identity lookup: %w", err)
	}
	if c != nil && c.Policy.Populated() {
		return CheckResult{Registered: true, Client: c, Policy: c.Policy.Normalize(), Source: rate.SourceClient}, nil
	}
	global, ok, err := s.globals.GlobalPolicy(ctx)
	if err != nil {
		return CheckResult{}, fmt.Errorf("global config lookup: %w", err)
	}
	result := CheckResult{Registered: c != nil, Client: c, Source: rate.SourceFallback, Policy: rate.Policy{DiscountType: rate.DiscountPercentage}}
	if ok && global.Populated() {
		result.Policy = global.Normalize()
		result.Source = rate.SourceGlobal
	}
	return result, nil
}

// IsDuplicate reports whether the identity is already registered.
func (s *Service) IsDuplicate(ctx context.Context, name, address string) (bool, *Client, error) {
	c, err := s.store.FindByIdentity(ctx, name, address)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil, nil
		}
		return false, nil, err
	}
	return true, c, nil
}

// RegisterInput carries the fields accepted at registration.
type RegisterInput struct {
	Name       string
	Address    string
	Phone      string
	Email      string
	ClientType Type
}

// Register creates a client. Duplicates are rejected twice over: an
// application pre-check for a friendly error, and the storage unique index
// for correctness under concurrent registration. The new client snapshots the
// current global policy as its initial override.
func (s *Service) Register(ctx context.Context, principalID uuid.UUID, in RegisterInput) (Client, error) {
	name := strings.TrimSpace(in.Name)
	address := strings.TrimSpace(in.Address)
	if name == "" {
		return Client{}, common.ValidationError("name", "name is required")
	}
	if address == "" {
		return Client{}, common.ValidationError("address", "address is required")
	}

	if dup, existing, err := s.IsDuplicate(ctx, name, address); err != nil {
		return Client{}, fmt.Errorf("duplicate pre-check: %w", err)
	} else if dup {
		return Client{}, common.DuplicateError("client already registered", map[string]any{"clientId": existing.ClientID})
	}

	policy := rate.Policy{DiscountType: rate.DiscountPercentage}
	if global, ok, err := s.globals.GlobalPolicy(ctx); err != nil {
		return Client{}, fmt.Errorf("global config lookup: %w", err)
	} else if ok {
		policy = global.Normalize()
	}

	clientType := in.ClientType
	if clientType == "" {
		clientType = TypeNew
	}

	created, err := s.store.Create(ctx, Client{
		Name:         name,
		Address:      address,
		Phone:        strings.TrimSpace(in.Phone),
		Email:        strings.TrimSpace(in.Email),
		ClientType:   clientType,
		Policy:       policy,
		RegisteredBy: principalID,
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return Client{}, common.DuplicateError("client already registered", nil)
		}
		return Client{}, fmt.Errorf("create client: %w", err)
	}

	// A consignee quoted before registration may still have a global or
	// fallback resolution cached under this identity.
	s.cache.Invalidate(ctx, rate.PolicyKey(created.Name, created.Address))

	s.log.Info().
		Str("client_id", created.ClientID).
		Str("name", created.Name).
		Msg("client registered")
	return created, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Client, error) {
	c, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, common.NotFoundError("client not found")
		}
		return nil, err
	}
	return c, nil
}

func (s *Service) List(ctx context.Context) ([]Client, error) {
	return s.store.List(ctx)
}

// UpdateInput carries the mutable client fields.
type UpdateInput struct {
	Name       string
	Address    string
	Phone      string
	Email      string
	ClientType Type
	Policy     rate.Policy
}

// Update rewrites the client's profile and policy, then drops any cached
// resolution for both the old and new identity.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*Client, error) {
	existing, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, common.NotFoundError("client not found")
		}
		return nil, err
	}

	updated, err := s.store.Update(ctx, Client{
		ID:         id,
		Name:       strings.TrimSpace(in.Name),
		Address:    strings.TrimSpace(in.Address),
		Phone:      strings.TrimSpace(in.Phone),
		Email:      strings.TrimSpace(in.Email),
		ClientType: in.ClientType,
		Policy:     in.Policy.Normalize(),
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, common.DuplicateError("another client already uses that name and address", nil)
		}
		if errors.Is(err, ErrNotFound) {
			return nil, common.NotFoundError("client not found")
		}
		return nil, err
	}

	s.cache.Invalidate(ctx,
		rate.PolicyKey(existing.Name, existing.Address),
		rate.PolicyKey(updated.Name, updated.Address),
	)
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	existing, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return common.NotFoundError("client not found")
		}
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return common.NotFoundError("client not found")
		}
		return err
	}
	s.cache.Invalidate(ctx, rate.PolicyKey(existing.Name, existing.Address))
	return nil
}

// SaveRateRules replaces the client's ad-hoc rate rules.
func (s *Service) SaveRateRules(ctx context.Context, id uuid.UUID, rules []RateRule) error {
	if _, err := s.store.GetByID(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return common.NotFoundError("client not found")
		}
		return err
	}
	return s.store.ReplaceRateRules(ctx, id, rules)
}

// AssignClientIDs resequences all client codes in registration order and
// returns how many were touched. With a locker configured, concurrent runs
// from other instances wait their turn.
func (s *Service) AssignClientIDs(ctx context.Context) (int, error) {
	run := func(ctx context.Context) (int, error) {
		n, err := s.store.AssignClientIDs(ctx)
		if err != nil {
			return 0, fmt.Errorf("assign client ids: %w", err)
		}
		s.log.Info().Int("count", n).Msg("client ids resequenced")
		return n, nil
	}
	if s.locker == nil {
		return run(ctx)
	}
	var n int
	err := s.locker.WithLock(ctx, "assign-client-ids", 30*time.Second, func(ctx context.Context) error {
		var err error
		n, err = run(ctx)
		return err
	})
	return n, err
}
