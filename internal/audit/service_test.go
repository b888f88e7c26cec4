package audit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/imexpress/backend-billing/internal/common"
	"github.com/imexpress/backend-billing/internal/obs"
)

type memStore struct {
	entries []Entry
}

func (m *memStore) InsertEntry(_ context.Context, e Entry) error {
	m.entries = append(m.entries, e)
	return nil
}

func (m *memStore) ListEntries(_ context.Context, limit, offset int) ([]Entry, error) {
	if offset >= len(m.entries) {
		return nil, nil
	}
	end := offset + limit
	if end > len(m.entries) {
		end = len(m.entries)
	}
	return m.entries[offset:end], nil
}

func TestRecordDisabledIsNoop(t *testing.T) {
	store := &memStore{}
	svc := Service{Store: store, Enabled: false}

	req := httptest.NewRequest("PUT", "/api/bills/abc/status", nil)
	err := svc.Record(context.Background(), Actor{Kind: ActorKindUser}, "", "", "", req, 200, nil)
	require.NoError(t, err)
	require.Empty(t, store.entries)
}

func TestRecordBuildsEntryFromRequest(t *testing.T) {
	store := &memStore{}
	svc := Service{Store: store, Enabled: true}
	userID := uuid.New()

	req := httptest.NewRequest("PUT", "/api/bills/abc/status?force=1", nil)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("X-Request-ID", "req-1")
	ctx := obs.WithRoutePattern(req.Context(), "/api/bills/{id}/status")
	req = req.WithContext(ctx)

	err := svc.Record(ctx, Actor{Kind: ActorKindUser, UserID: &userID}, "", "", "abc", req, 0, nil)
	require.NoError(t, err)
	require.Len(t, store.entries, 1)

	e := store.entries[0]
	require.Equal(t, ActorKindUser, e.ActorKind)
	require.Equal(t, userID, *e.ActorUserID)
	require.Equal(t, "PUT /api/bills/{id}/status", e.Action)
	require.Equal(t, "bills.{id}.status", e.ResourceType)
	require.Equal(t, "abc", e.ResourceID)
	require.Equal(t, 200, e.Status)
	require.Equal(t, "test-agent", e.UserAgent)
	require.Equal(t, "req-1", e.RequestID)
}

func TestRecordUnknownActorKindNormalised(t *testing.T) {
	store := &memStore{}
	svc := Service{Store: store, Enabled: true}

	req := httptest.NewRequest("POST", "/api/rate-config", nil)
	err := svc.Record(context.Background(), Actor{Kind: "robot"}, "rate-config.save", "rate-config", "", req, 200, nil)
	require.NoError(t, err)
	require.Equal(t, ActorKindAnonymous, store.entries[0].ActorKind)
	require.Equal(t, "rate-config.save", store.entries[0].Action)
}

func TestMiddlewareRecordsAfterHandler(t *testing.T) {
	store := &memStore{}
	rec := HTTPRecorder{Service: Service{Store: store, Enabled: true}}
	wrap := rec.Middleware(HTTPConfig{Action: "bill.decide", ResourceType: "bill"})
	userID := uuid.New()

	handler := wrap(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))

	req := httptest.NewRequest("PUT", "/api/bills/x/status", nil)
	req = req.WithContext(common.WithPrincipal(req.Context(), common.Principal{ID: userID, Role: common.RoleAdmin}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Len(t, store.entries, 1)
	require.Equal(t, "bill.decide", store.entries[0].Action)
	require.Equal(t, "bill", store.entries[0].ResourceType)
	require.Equal(t, http.StatusConflict, store.entries[0].Status)
	require.Equal(t, userID, *store.entries[0].ActorUserID)
}

func TestMiddlewareDisabledPassesThrough(t *testing.T) {
	store := &memStore{}
	rec := HTTPRecorder{Service: Service{Store: store, Enabled: false}}
	handler := rec.Middleware(HTTPConfig{Action: "noop"})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/bills", nil))
	require.Empty(t, store.entries)
}
