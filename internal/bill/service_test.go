package bill

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/imexpress/backend-billing/internal/common"
	"github.com/imexpress/backend-billing/internal/manifest"
)

type memBillStore struct {
	bills map[uuid.UUID]*Bill
}

func newMemBillStore() *memBillStore {
	return &memBillStore{bills: make(map[uuid.UUID]*Bill)}
}

func (m *memBillStore) Create(_ context.Context, b Bill) (Bill, error) {
	b.ID = uuid.New()
	b.ItemCount = len(b.Items)
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	stored := b
	m.bills[b.ID] = &stored
	return b, nil
}

func (m *memBillStore) Get(_ context.Context, id uuid.UUID) (*Bill, error) {
	b, ok := m.bills[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *b
	return &out, nil
}

func (m *memBillStore) List(_ context.Context, f ListFilter) ([]Bill, error) {
	var out []Bill
	for _, b := range m.bills {
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		if f.SubmittedBy != uuid.Nil && b.SubmittedBy != f.SubmittedBy {
			continue
		}
		out = append(out, *b)
	}
	return out, nil
}

func (m *memBillStore) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status) (*Bill, error) {
	b, ok := m.bills[id]
	if !ok || b.Status != from {
		return nil, ErrNotFound
	}
	b.Status = to
	b.UpdatedAt = time.Now()
	out := *b
	return &out, nil
}

func item(total, discount string) manifest.LineItem {
	return manifest.LineItem{
		AWB:       "AWB1",
		Consignee: "Acme",
		Quantity:  1,
		Weight:    decimal.NewFromInt(2),
		Price:     decimal.RequireFromString(total).Add(decimal.RequireFromString(discount)),
		Discount:  decimal.RequireFromString(discount),
		Total:     decimal.RequireFromString(total),
	}
}

func TestSubmitRecomputesTotals(t *testing.T) {
	store := newMemBillStore()
	svc := NewService(store, zerolog.Nop())

	created, err := svc.Submit(context.Background(), uuid.New(), SubmitInput{
		CustomerName: "Acme",
		Items:        []manifest.LineItem{item("190", "10"), item("390", "10")},
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, created.Status)
	require.True(t, created.GrandTotal.Equal(decimal.RequireFromString("580")))
	require.True(t, created.TotalDiscount.Equal(decimal.RequireFromString("20")))
}

func TestSubmitRejectsEmptyBatch(t *testing.T) {
	svc := NewService(newMemBillStore(), zerolog.Nop())
	_, err := svc.Submit(context.Background(), uuid.New(), SubmitInput{CustomerName: "Acme"})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeValidation, appErr.Code)
}

func TestSubmitRejectsNegativeAmounts(t *testing.T) {
	svc := NewService(newMemBillStore(), zerolog.Nop())
	bad := item("100", "0")
	bad.Discount = decimal.NewFromInt(-5)
	_, err := svc.Submit(context.Background(), uuid.New(), SubmitInput{
		CustomerName: "Acme",
		Items:        []manifest.LineItem{bad},
	})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeValidation, appErr.Code)
}

func TestDecideApprovesPendingBill(t *testing.T) {
	store := newMemBillStore()
	svc := NewService(store, zerolog.Nop())
	created, err := svc.Submit(context.Background(), uuid.New(), SubmitInput{
		CustomerName: "Acme",
		Items:        []manifest.LineItem{item("100", "0")},
	})
	require.NoError(t, err)

	updated, err := svc.Decide(context.Background(), created.ID, StatusApproved)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, updated.Status)
}

func TestDecideRejectsSecondDecision(t *testing.T) {
	store := newMemBillStore()
	svc := NewService(store, zerolog.Nop())
	created, err := svc.Submit(context.Background(), uuid.New(), SubmitInput{
		CustomerName: "Acme",
		Items:        []manifest.LineItem{item("100", "0")},
	})
	require.NoError(t, err)

	_, err = svc.Decide(context.Background(), created.ID, StatusRejected)
	require.NoError(t, err)

	_, err = svc.Decide(context.Background(), created.ID, StatusApproved)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeValidation, appErr.Code)
}

func TestDecideRejectsInvalidTarget(t *testing.T) {
	svc := NewService(newMemBillStore(), zerolog.Nop())
	_, err := svc.Decide(context.Background(), uuid.New(), StatusPending)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeValidation, appErr.Code)
}

func TestDecideUnknownBill(t *testing.T) {
	svc := NewService(newMemBillStore(), zerolog.Nop())
	_, err := svc.Decide(context.Background(), uuid.New(), StatusApproved)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeNotFound, appErr.Code)
}

func TestCanTransition(t *testing.T) {
	require.True(t, CanTransition(StatusPending, StatusApproved))
	require.True(t, CanTransition(StatusPending, StatusRejected))
	require.False(t, CanTransition(StatusApproved, StatusRejected))
	require.False(t, CanTransition(StatusRejected, StatusApproved))
	require.False(t, CanTransition(StatusPending, StatusPending))
}
