package client

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/imexpress/backend-billing/internal/rate"
)

// Type classifies a client commercially. Informational only; pricing never
// branches on it.
type Type string

const (
	TypeVIP     Type = "VIP"
	TypeNew     Type = "NEW"
	TypeRegular Type = "REGULAR"
)

// Client is a registered consignee with an optional per-client rate override.
// (Name, Address) form a case-insensitive uniqueness key.
type Client struct {
	ID           uuid.UUID   `json:"id"`
	ClientID     string      `json:"clientId"`
	Name         string      `json:"name"`
	Address      string      `json:"address"`
	Phone        string      `json:"phone,omitempty"`
	Email        string      `json:"email,omitempty"`
	ClientType   Type        `json:"clientType"`
	Policy       rate.Policy `json:"policy"`
	RateRules    []RateRule  `json:"rateRules,omitempty"`
	RegisteredBy uuid.UUID   `json:"registeredBy"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// RateRule is an ad-hoc pattern/weight/rate triple attached to a client.
// Data-only: the resolver does not consult these.
type RateRule struct {
	ID      uuid.UUID       `json:"id"`
	Pattern string          `json:"pattern"`
	Weight  decimal.Decimal `json:"weight"`
	Rate    decimal.Decimal `json:"rate"`
}

const clientIDPrefix = "IM"

// FormatClientID renders a sequence number as a human-readable client code.
// Numbers past 999 keep growing without truncation.
func FormatClientID(n int) string {
	return fmt.Sprintf("%s%03d", clientIDPrefix, n)
}

// ParseClientIDSeq extracts the numeric suffix of a client code. It reports
// false for codes that do not match the IM### format.
func ParseClientIDSeq(code string) (int, bool) {
	if !strings.HasPrefix(code, clientIDPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(code[len(clientIDPrefix):])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// NormalizeIdentity trims and lowercases a (name, address) pair for matching.
func NormalizeIdentity(name, address string) (string, string) {
	return strings.ToLower(strings.TrimSpace(name)), strings.ToLower(strings.TrimSpace(address))
}
