package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/JainamDedhia/Eduthon/internal/logctx"
	"github.com/JainamDedhia/Eduthon/internal/material"
	"github.com/JainamDedhia/Eduthon/internal/telemetry"
	"github.com/go-chi/chi/v5"
)

// OfflineManager is the slice of the offline pipelines the HTTP surface
// exposes.
type OfflineManager interface {
	Download(ctx context.Context, classID string, mat material.Material) (string, error)
	Open(ctx context.Context, classID, name string) error
	Delete(ctx context.Context, classID, name string) error
	Export(ctx context.Context, classID, name string) ([]byte, error)
	ListForClass(classID string) ([]material.Record, error)
	Stats() (material.Stats, error)
}

// Uploader pushes a local copy of a material to hosted storage and returns
// its public URL.
type Uploader interface {
	Upload(ctx context.Context, classID, filename string, file io.Reader) (string, error)
}

// MaterialRegistrar announces a material to a class in the directory.
type MaterialRegistrar interface {
	AddMaterial(ctx context.Context, classID string, mat material.Material) error
}

// MaterialsHandler exposes the offline pipelines over HTTP.
type MaterialsHandler struct {
	manager   OfflineManager
	uploader  Uploader
	registrar MaterialRegistrar
}

func NewMaterialsHandler(manager OfflineManager) *MaterialsHandler {
	return &MaterialsHandler{manager: manager}
}

// WithSharing enables the share route, which needs both hosted storage and
// the class directory to be reachable.
func (h *MaterialsHandler) WithSharing(uploader Uploader, registrar MaterialRegistrar) *MaterialsHandler {
	h.uploader = uploader
	h.registrar = registrar

	return h
}

func (h *MaterialsHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Post("/classes/{classID}/materials", h.HandleDownload)
	r.Get("/classes/{classID}/materials", h.HandleList)
	r.Post("/classes/{classID}/materials/{name}/open", h.HandleOpen)
	r.Delete("/classes/{classID}/materials/{name}", h.HandleDelete)
	r.Get("/offline/stats", h.HandleStats)

	if h.uploader != nil && h.registrar != nil {
		r.Post("/classes/{classID}/materials/{name}/share", h.HandleShare)
	}

	return r
}

// HandleDownload saves one material for offline use. The body carries the
// material descriptor as advertised by the class directory.
func (h *MaterialsHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	classID := chi.URLParam(r, "classID")

	var mat material.Material
	if err := json.NewDecoder(r.Body).Decode(&mat); err != nil {
		writeError(w, r, &material.InvalidInputError{Field: "body", Reason: "invalid material descriptor"})

		return
	}

	localPath, err := h.manager.Download(r.Context(), classID, mat)
	if err != nil {
		writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"localPath": localPath})
}

func (h *MaterialsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	records, err := h.manager.ListForClass(chi.URLParam(r, "classID"))
	if err != nil {
		writeError(w, r, err)

		return
	}

	if records == nil {
		records = []material.Record{}
	}

	writeJSON(w, http.StatusOK, records)
}

func (h *MaterialsHandler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	classID := chi.URLParam(r, "classID")
	name := chi.URLParam(r, "name")

	if err := h.manager.Open(r.Context(), classID, name); err != nil {
		writeError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *MaterialsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	classID := chi.URLParam(r, "classID")
	name := chi.URLParam(r, "name")

	if err := h.manager.Delete(r.Context(), classID, name); err != nil {
		writeError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleShare re-publishes an offline copy into another class: it restores
// the plain bytes, uploads them to hosted storage, and registers the
// resulting URL as a material of the target class given in the body.
func (h *MaterialsHandler) HandleShare(w http.ResponseWriter, r *http.Request) {
	classID := chi.URLParam(r, "classID")
	name := chi.URLParam(r, "name")

	var req struct {
		TargetClassID string `json:"targetClassId"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TargetClassID == "" {
		writeError(w, r, &material.InvalidInputError{Field: "targetClassId", Reason: "target class is required"})

		return
	}

	plain, err := h.manager.Export(r.Context(), classID, name)
	if err != nil {
		writeError(w, r, err)

		return
	}

	url, err := h.uploader.Upload(r.Context(), req.TargetClassID, name, bytes.NewReader(plain))
	if err != nil {
		writeError(w, r, err)

		return
	}

	mat := material.Material{Name: name, URL: url, UploadedAt: time.Now().UTC().Format(time.RFC3339)}

	if err := h.registrar.AddMaterial(r.Context(), req.TargetClassID, mat); err != nil {
		writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusCreated, mat)
}

func (h *MaterialsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.manager.Stats()
	if err != nil {
		writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps the typed error taxonomy to HTTP statuses. The response
// carries the human-readable message, never internal detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logctx.LoggerFromContext(r.Context())

	if id := telemetry.GetRequestID(r.Context()); id != "" {
		logger = logger.With("request_id", id)
	}

	status := http.StatusInternalServerError

	var (
		existsErr   *material.AlreadyExistsError
		inputErr    *material.InvalidInputError
		notFoundErr *material.NotFoundError
		netErr      *material.NetworkError
		viewerErr   *material.NoViewerError
	)

	switch {
	case errors.As(err, &existsErr):
		status = http.StatusConflict
	case errors.As(err, &inputErr):
		status = http.StatusBadRequest
	case errors.As(err, &notFoundErr):
		status = http.StatusNotFound
	case errors.As(err, &netErr):
		status = http.StatusBadGateway
	case errors.As(err, &viewerErr):
		status = http.StatusNotImplemented
	}

	if status == http.StatusInternalServerError {
		logger.Error("request failed", "err", err)
	} else {
		logger.Debug("request rejected", "status", status, "err", err)
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}
