package knowledge

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"qaforge/internal/config"
	"qaforge/internal/failure"
	"qaforge/internal/index"
	"qaforge/internal/middleware"
)

// BuildTask is the payload published on config.TopicBuild.
type BuildTask struct {
	ClearExisting bool   `json:"clear_existing"`
	CorrelationID string `json:"correlation_id"`
}

type Publisher interface {
	Publish(topic string, body []byte) error
}

type Handler struct {
	service   *Service
	publisher Publisher
}

func NewHandler(service *Service, publisher Publisher) *Handler {
	return &Handler{service: service, publisher: publisher}
}

func (h *Handler) Build(w http.ResponseWriter, r *http.Request) {
	clearExisting, ok := h.clearFlag(w, r)
	if !ok {
		return
	}

	res, err := h.service.Build(r.Context(), clearExisting)
	if err != nil {
		slog.ErrorContext(r.Context(), "build failed", "error", err)
		h.writeError(r.Context(), w, failure.Code(err), err.Error(), failure.Status(err))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": res})
}

// BuildAsync queues a build for the worker and returns immediately.
func (h *Handler) BuildAsync(w http.ResponseWriter, r *http.Request) {
	clearExisting, ok := h.clearFlag(w, r)
	if !ok {
		return
	}
	if h.publisher == nil {
		h.writeError(r.Context(), w, "UNAVAILABLE", "Async builds are not configured", http.StatusServiceUnavailable)
		return
	}

	task := BuildTask{ClearExisting: clearExisting, CorrelationID: middleware.GetCorrelationID(r.Context())}
	body, _ := json.Marshal(task)
	if err := h.publisher.Publish(config.TopicBuild, body); err != nil {
		slog.ErrorContext(r.Context(), "failed to publish build task", "error", err)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Failed to queue build", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"data": map[string]interface{}{"status": "queued", "clear_existing": clearExisting},
	})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.Stats(r.Context())
	if err != nil {
		h.writeError(r.Context(), w, failure.Code(err), err.Error(), failure.Status(err))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": st})
}

func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Clear(r.Context()); err != nil {
		h.writeError(r.Context(), w, failure.Code(err), err.Error(), failure.Status(err))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]string{"message": "Knowledge base cleared"},
	})
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query          string `json:"query"`
		K              int    `json:"k"`
		SourceDocument string `json:"source_document"`
		FileType       string `json:"file_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "Query is required", http.StatusBadRequest)
		return
	}

	var filter index.Filter
	if req.SourceDocument != "" || req.FileType != "" {
		filter = index.Filter{}
		if req.SourceDocument != "" {
			filter[index.FieldSourceDocument] = req.SourceDocument
		}
		if req.FileType != "" {
			filter[index.FieldFileType] = req.FileType
		}
	}

	matches, err := h.service.Search(r.Context(), req.Query, req.K, filter)
	if err != nil {
		h.writeError(r.Context(), w, failure.Code(err), err.Error(), failure.Status(err))
		return
	}
	if matches == nil {
		matches = []index.Match{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": matches,
		"meta": map[string]int{"count": len(matches)},
	})
}

func (h *Handler) clearFlag(w http.ResponseWriter, r *http.Request) (bool, bool) {
	raw := r.URL.Query().Get("clear_existing")
	if raw == "" {
		return false, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "clear_existing must be a boolean", http.StatusBadRequest)
		return false, false
	}
	return v, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	json.NewEncoder(w).Encode(resp)
}
