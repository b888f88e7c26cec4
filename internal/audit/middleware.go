package audit

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/imexpress/backend-billing/internal/common"
	"github.com/imexpress/backend-billing/internal/obs"
)

// HTTPRecorder records HTTP requests after they have been handled.
type HTTPRecorder struct {
	Service Service
	OnError func(error)
}

// HTTPConfig customises how the audit entry is produced for a route.
type HTTPConfig struct {
	Action          string
	ResourceType    string
	ResourceIDParam string
}

// Middleware returns a chi-compatible middleware that records audit entries.
func (r HTTPRecorder) Middleware(cfg HTTPConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !r.Service.Enabled {
				next.ServeHTTP(w, req)
				return
			}

			recorder := obs.NewStatusRecorder(w)
			next.ServeHTTP(recorder, req)

			resourceID := ""
			if cfg.ResourceIDParam != "" {
				resourceID = chi.URLParam(req, cfg.ResourceIDParam)
			}

			err := r.Service.Record(req.Context(), actorFrom(req), cfg.Action, cfg.ResourceType, resourceID, req, recorder.Status(), nil)
			if err != nil && r.OnError != nil {
				r.OnError(err)
			}
		})
	}
}

func actorFrom(req *http.Request) Actor {
	if p, ok := common.PrincipalFrom(req.Context()); ok && p.ID != uuid.Nil {
		id := p.ID
		return Actor{Kind: ActorKindUser, UserID: &id}
	}
	return Actor{Kind: ActorKindAnonymous}
}
