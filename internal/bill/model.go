package bill

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/imexpress/backend-billing/internal/manifest"
)

// Status is the bill approval state. Only admins move a bill out of pending.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// ValidStatus reports whether s is a known status value.
func ValidStatus(s Status) bool {
	return s == StatusPending || s == StatusApproved || s == StatusRejected
}

// CanTransition reports whether a bill may move from one status to another.
// Bills leave pending exactly once.
func CanTransition(from, to Status) bool {
	return from == StatusPending && (to == StatusApproved || to == StatusRejected)
}

// Bill is a submitted batch of priced line items. Written atomically with its
// items; immutable after submission except for the status field.
type Bill struct {
	ID            uuid.UUID           `json:"id"`
	CustomerName  string              `json:"customerName"`
	Phone         string              `json:"phone,omitempty"`
	Email         string              `json:"email,omitempty"`
	Address       string              `json:"address,omitempty"`
	Items         []manifest.LineItem `json:"items,omitempty"`
	ItemCount     int                 `json:"itemCount"`
	GrandTotal    decimal.Decimal     `json:"grandTotal"`
	TotalDiscount decimal.Decimal     `json:"totalDiscount"`
	Status        Status              `json:"status"`
	SubmittedBy   uuid.UUID           `json:"submittedBy"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}
