package script

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"qaforge/features/testcase"
	"qaforge/internal/failure"
	"qaforge/internal/middleware"
)

type TestCaseLookup interface {
	Lookup(ctx context.Context, testID string) (*testcase.TestCase, error)
}

type Handler struct {
	generator *Generator
	lookup    TestCaseLookup
}

func NewHandler(g *Generator, lookup TestCaseLookup) *Handler {
	return &Handler{generator: g, lookup: lookup}
}

func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body struct {
		TestCase *testcase.TestCase `json:"test_case"`
		TestID   string             `json:"test_id"`
		Markup   string             `json:"html_content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "Invalid JSON body", http.StatusBadRequest)
		return
	}

	tc := body.TestCase
	if tc == nil && body.TestID != "" && h.lookup != nil {
		found, err := h.lookup.Lookup(ctx, body.TestID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				h.writeError(ctx, w, "NOT_FOUND", "Test case not found", http.StatusNotFound)
				return
			}
			h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
			return
		}
		tc = found
	}
	if tc == nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "test_case or test_id is required", http.StatusBadRequest)
		return
	}

	res, err := h.generator.Generate(ctx, Request{TestCase: *tc, Markup: body.Markup})

	status := http.StatusOK
	resp := map[string]interface{}{
		"success": res.Success,
		"message": res.Message,
		"data":    res.Script,
	}
	if err != nil {
		slog.ErrorContext(ctx, "script generation failed", "test_id", tc.TestID, "error", err)
		status = failure.Status(err)
		resp["error"] = map[string]string{"code": failure.Code(err), "message": err.Error()}
		resp["correlationId"] = middleware.GetCorrelationID(ctx)
	}
	h.writeJSON(ctx, w, status, resp)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	names, err := h.generator.List()
	if err != nil {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(r.Context(), w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{"total": len(names), "scripts": names},
	})
}

func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")

	path, err := h.generator.Open(name)
	if err != nil {
		h.writeError(r.Context(), w, "NOT_FOUND", "Script not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/x-python")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeFile(w, r, path)
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
