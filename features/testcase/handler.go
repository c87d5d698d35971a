package testcase

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"qaforge/internal/failure"
	"qaforge/internal/middleware"
)

type Handler struct {
	generator *Generator
}

func NewHandler(g *Generator) *Handler {
	return &Handler{generator: g}
}

func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body struct {
		Query           string `json:"query"`
		IncludeNegative *bool  `json:"include_negative"`
		Feature         string `json:"feature"`
		Markup          string `json:"html_content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "Invalid JSON body", http.StatusBadRequest)
		return
	}

	req := Request{Query: body.Query, IncludeNegative: true, Feature: body.Feature, Markup: body.Markup}
	if body.IncludeNegative != nil {
		req.IncludeNegative = *body.IncludeNegative
	}

	slog.InfoContext(ctx, "generating test cases", "query", req.Query, "feature", req.Feature)
	res, err := h.generator.Generate(ctx, req)

	status := http.StatusOK
	resp := map[string]interface{}{
		"success": res.Success,
		"message": res.Message,
		"data":    res,
	}
	if err != nil {
		slog.ErrorContext(ctx, "test case generation failed", "error", err)
		status = failure.Status(err)
		resp["error"] = map[string]string{"code": failure.Code(err), "message": err.Error()}
		resp["correlationId"] = middleware.GetCorrelationID(ctx)
	}
	h.writeJSON(ctx, w, status, resp)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.writeError(ctx, w, "VALIDATION_ERROR", "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	records, err := h.generator.List(ctx, limit)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list test cases", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []Record{}
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{
		"data": records,
		"meta": map[string]int{"count": len(records)},
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	tc, err := h.generator.Lookup(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(ctx, w, "NOT_FOUND", "Test case not found", http.StatusNotFound)
			return
		}
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": tc})
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
