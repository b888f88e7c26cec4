package manifest

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/imexpress/backend-billing/internal/common"
	"github.com/imexpress/backend-billing/internal/obs"
)

// Handler exposes the manifest upload endpoint.
type Handler struct {
	pipeline *Pipeline
	maxBytes int64
	log      zerolog.Logger
}

func NewHandler(pipeline *Pipeline, maxBytes int64, log zerolog.Logger) *Handler {
	return &Handler{pipeline: pipeline, maxBytes: maxBytes, log: log}
}

// Upload handles POST /api/upload: multipart form with a "file" field
// carrying the Excel manifest. The response is the priced batch; the client
// edits line items locally and submits them as a bill.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		common.RenderError(w, common.ValidationError("file", "could not parse upload; check the file size and form encoding"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		common.RenderError(w, common.ValidationError("file", "a manifest file is required"))
		return
	}
	defer file.Close()

	rows, err := DecodeWorkbook(file)
	if err != nil {
		if obs.ManifestIngestTotal != nil {
			obs.ManifestIngestTotal.WithLabelValues("decode_error").Inc()
		}
		common.RenderError(w, common.ValidationError("file", "file is not a readable Excel workbook"))
		return
	}

	result, err := h.pipeline.Process(r.Context(), rows)
	if err != nil {
		if errors.Is(err, ErrEmptyManifest) {
			if obs.ManifestIngestTotal != nil {
				obs.ManifestIngestTotal.WithLabelValues("empty").Inc()
			}
			common.RenderError(w, common.ValidationError("file", "manifest contains no data rows"))
			return
		}
		common.RenderError(w, err)
		return
	}

	if obs.ManifestIngestTotal != nil {
		obs.ManifestIngestTotal.WithLabelValues("ok").Inc()
	}
	h.log.Info().
		Str("filename", header.Filename).
		Int("items", len(result.Items)).
		Int("warnings", len(result.Warnings)).
		Msg("manifest ingested")
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}
