package bill

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/imexpress/backend-billing/internal/common"
	"github.com/imexpress/backend-billing/internal/manifest"
	"github.com/imexpress/backend-billing/internal/obs"
)

// Store is the persistence surface the service needs.
type Store interface {
	Create(ctx context.Context, b Bill) (Bill, error)
	Get(ctx context.Context, id uuid.UUID) (*Bill, error)
	List(ctx context.Context, f ListFilter) ([]Bill, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Bill, error)
}

// Service handles bill submission and approval.
type Service struct {
	store Store
	log   zerolog.Logger
}

func NewService(store Store, log zerolog.Logger) *Service {
	return &Service{store: store, log: log}
}

// SubmitInput carries a finalized batch. Item prices arrive as edited in the
// UI; totals are recomputed server-side and never trusted from the client.
type SubmitInput struct {
	CustomerName string
	Phone        string
	Email        string
	Address      string
	Items        []manifest.LineItem
}

// Submit validates and persists the batch as a pending bill.
func (s *Service) Submit(ctx context.Context, submittedBy uuid.UUID, in SubmitInput) (Bill, error) {
	name := strings.TrimSpace(in.CustomerName)
	if name == "" {
		return Bill{}, common.ValidationError("customerName", "customer name is required")
	}
	if len(in.Items) == 0 {
		return Bill{}, common.ValidationError("items", "a bill needs at least one line item")
	}

	grandTotal := decimal.Zero
	totalDiscount := decimal.Zero
	for i, item := range in.Items {
		if item.Quantity < 1 {
			return Bill{}, common.ValidationError(fmt.Sprintf("items[%d].quantity", i), "quantity must be at least 1")
		}
		if item.Price.Sign() < 0 || item.Discount.Sign() < 0 || item.Total.Sign() < 0 {
			return Bill{}, common.ValidationError(fmt.Sprintf("items[%d]", i), "price, discount, and total must not be negative")
		}
		grandTotal = grandTotal.Add(item.Total)
		totalDiscount = totalDiscount.Add(item.Discount)
	}

	created, err := s.store.Create(ctx, Bill{
		CustomerName:  name,
		Phone:         strings.TrimSpace(in.Phone),
		Email:         strings.TrimSpace(in.Email),
		Address:       strings.TrimSpace(in.Address),
		Items:         in.Items,
		GrandTotal:    grandTotal,
		TotalDiscount: totalDiscount,
		Status:        StatusPending,
		SubmittedBy:   submittedBy,
	})
	if err != nil {
		if obs.BillsSubmittedTotal != nil {
			obs.BillsSubmittedTotal.WithLabelValues("error").Inc()
		}
		return Bill{}, fmt.Errorf("persist bill: %w", err)
	}

	if obs.BillsSubmittedTotal != nil {
		obs.BillsSubmittedTotal.WithLabelValues("ok").Inc()
	}
	s.log.Info().
		Str("bill_id", created.ID.String()).
		Str("customer", created.CustomerName).
		Int("items", len(in.Items)).
		Msg("bill submitted")
	return created, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Bill, error) {
	b, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, common.NotFoundError("bill not found")
		}
		return nil, err
	}
	return b, nil
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]Bill, error) {
	return s.store.List(ctx, f)
}

// Decide moves a pending bill to approved or rejected. Admin-only; the route
// enforces the role, this enforces the transition.
func (s *Service) Decide(ctx context.Context, id uuid.UUID, to Status) (*Bill, error) {
	if !ValidStatus(to) || !CanTransition(StatusPending, to) {
		return nil, common.ValidationError("status", "status must be approved or rejected")
	}
	updated, err := s.store.UpdateStatus(ctx, id, StatusPending, to)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Either no such bill or it already left pending.
			if existing, getErr := s.store.Get(ctx, id); getErr == nil {
				return nil, common.ValidationError("status", fmt.Sprintf("bill is already %s", existing.Status))
			}
			return nil, common.NotFoundError("bill not found")
		}
		return nil, err
	}
	s.log.Info().Str("bill_id", id.String()).Str("status", string(to)).Msg("bill decided")
	return updated, nil
}
