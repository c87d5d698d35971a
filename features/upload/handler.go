package upload

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"qaforge/internal/failure"
	"qaforge/internal/middleware"
)

// Result is the per-file outcome of an upload request.
type Result struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Filename string `json:"filename"`
	Path     string `json:"file_path"`
	Size     int64  `json:"size,omitempty"`
}

type Handler struct {
	service  *Service
	maxBytes int64
}

func NewHandler(service *Service, maxUploadMB int64) *Handler {
	return &Handler{service: service, maxBytes: maxUploadMB << 20}
}

func (h *Handler) UploadDocuments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		h.writeError(ctx, w, "BAD_REQUEST", "File too large or malformed form", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		h.writeError(ctx, w, "BAD_REQUEST", "At least one file is required", http.StatusBadRequest)
		return
	}

	results := make([]Result, 0, len(headers))
	for _, fh := range headers {
		res := Result{Filename: fh.Filename}

		f, err := fh.Open()
		if err != nil {
			res.Message = "Upload failed: " + err.Error()
			results = append(results, res)
			continue
		}
		stored, err := h.service.SaveDocument(fh.Filename, f)
		f.Close()

		switch {
		case errors.Is(err, failure.ErrUnsupportedFormat):
			res.Message = "Upload failed: unsupported file type"
		case errors.Is(err, ErrInvalidName):
			res.Message = "Upload failed: invalid filename"
		case err != nil:
			slog.ErrorContext(ctx, "failed to save upload", "filename", fh.Filename, "error", err)
			res.Message = "Upload failed: " + err.Error()
		default:
			res.Success = true
			res.Message = "File uploaded successfully"
			res.Filename = stored.Filename
			res.Path = stored.Path
			res.Size = stored.Size
			slog.InfoContext(ctx, "document uploaded", "filename", stored.Filename, "size", stored.Size, "sha256", stored.SHA256)
		}
		results = append(results, res)
	}

	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": results})
}

func (h *Handler) UploadMarkup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		h.writeError(ctx, w, "BAD_REQUEST", "File too large or malformed form", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(ctx, w, "BAD_REQUEST", "Unable to retrieve file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	stored, err := h.service.SaveMarkup(file)
	if err != nil {
		slog.ErrorContext(ctx, "failed to save markup", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": Result{
		Success:  true,
		Message:  "HTML file uploaded successfully",
		Filename: header.Filename,
		Path:     stored.Path,
		Size:     stored.Size,
	}})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	names, err := h.service.List()
	if err != nil {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(r.Context(), w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{"total": len(names), "files": names},
	})
}

func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	removed, err := h.service.Clear()
	if err != nil {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	slog.InfoContext(r.Context(), "uploads cleared", "removed", removed)
	h.writeJSON(r.Context(), w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{"message": "All uploads cleared successfully", "removed": removed},
	})
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
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

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
