package rate

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrRateLookup marks a resolution that failed because a backing store was
// unreachable. Batch callers degrade the affected row to price zero instead
// of aborting.
var ErrRateLookup = errors.New("rate lookup failed")

// PolicySource identifies which level of the hierarchy supplied a policy.
type PolicySource string

const (
	SourceClient   PolicySource = "client"
	SourceGlobal   PolicySource = "global"
	SourceFallback PolicySource = "fallback"
)

// ClientPolicies looks up per-client rate overrides by consignee identity.
type ClientPolicies interface {
	// PolicyByIdentity matches case-insensitively on trimmed (name, address).
	// It reports found=false when no client matches.
	PolicyByIdentity(ctx context.Context, name, address string) (policy Policy, clientID string, found bool, err error)
}

// GlobalPolicies reads the singleton global rate configuration.
type GlobalPolicies interface {
	// GlobalPolicy reports found=false when no configuration has been saved.
	GlobalPolicy(ctx context.Context) (Policy, bool, error)
}

// Resolution is the outcome of a policy lookup for one consignee.
type Resolution struct {
	Policy   Policy       `json:"policy"`
	ClientID string       `json:"clientId,omitempty"`
	Source   PolicySource `json:"source"`
}

// Resolver selects the applicable rate policy for a consignee: client
// override when meaningfully populated, else global default, else a zero
// fallback policy that prices at the default per-kg rate.
type Resolver struct {
	clients ClientPolicies
	globals GlobalPolicies
	cache   *Cache
}

// NewResolver constructs a resolver. cache may be nil.
func NewResolver(clients ClientPolicies, globals GlobalPolicies, cache *Cache) *Resolver {
	return &Resolver{clients: clients, globals: globals, cache: cache}
}

// Resolve walks the policy hierarchy for (name, address). Lookups are
// read-only; store errors are wrapped in ErrRateLookup.
func (r *Resolver) Resolve(ctx context.Context, name, address string) (Resolution, error) {
	key := PolicyKey(name, address)
	var cached Resolution
	if ok, err := r.cache.GetJSON(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}

	policy, clientID, found, err := r.clients.PolicyByIdentity(ctx, name, address)
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: client lookup: %v", ErrRateLookup, err)
	}
	if found && policy.Populated() {
		res := Resolution{Policy: policy.Normalize(), ClientID: clientID, Source: SourceClient}
		_ = r.cache.SetJSON(ctx, key, res)
		return res, nil
	}

	global, ok, err := r.globals.GlobalPolicy(ctx)
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: global config lookup: %v", ErrRateLookup, err)
	}
	if ok && global.Populated() {
		res := Resolution{Policy: global.Normalize(), ClientID: clientID, Source: SourceGlobal}
		_ = r.cache.SetJSON(ctx, key, res)
		return res, nil
	}

	res := Resolution{Policy: Policy{DiscountType: DiscountPercentage}, ClientID: clientID, Source: SourceFallback}
	_ = r.cache.SetJSON(ctx, key, res)
	return res, nil
}

// Quote is a fully priced outcome for one shipment.
type Quote struct {
	Resolution Resolution      `json:"resolution"`
	Price      decimal.Decimal `json:"price"`
	Discount   decimal.Decimal `json:"discount"`
	Total      decimal.Decimal `json:"total"`
}

// QuoteFor resolves the policy for (name, address) and prices the given
// weight through the pricing function and discount engine.
func (r *Resolver) QuoteFor(ctx context.Context, name, address string, weightKg decimal.Decimal) (Quote, error) {
	res, err := r.Resolve(ctx, name, address)
	if err != nil {
		return Quote{}, err
	}
	price := Price(res.Policy, weightKg)
	final, amount := ApplyDiscount(price, res.Policy.DiscountType, res.Policy.DiscountValue)
	return Quote{Resolution: res, Price: price, Discount: amount, Total: final}, nil
}
