// Package handler provides the HTTP and MCP surfaces of the pricing service.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"b2b-pricing/internal/model"
	"b2b-pricing/internal/reconcile"
	"b2b-pricing/internal/shopctx"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	reconciler    *reconcile.Reconciler
	shop          string
	webhookSecret string
	logger        *slog.Logger
}

// Options configures a Handler.
type Options struct {
	Shop          string // shop domain the service is bound to
	WebhookSecret string // app API secret used to verify webhook HMACs
}

// New creates a new Handler.
func New(r *reconcile.Reconciler, opts Options, logger *slog.Logger) *Handler {
	return &Handler{
		reconciler:    r,
		shop:          opts.Shop,
		webhookSecret: opts.WebhookSecret,
		logger:        logger,
	}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Price operations
	mux.HandleFunc("POST /prices/reconcile", h.handleReconcile)
	mux.HandleFunc("POST /prices/import", h.handleImport)
	mux.HandleFunc("GET /prices/export", h.handleExport)
	mux.HandleFunc("GET /bulk-jobs", h.handlePollJob)

	// Platform webhooks, authenticated by HMAC rather than Shop-Context
	mux.HandleFunc("POST /webhooks/app-subscriptions-update", h.handleSubscriptionUpdate)

	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/mcp", h.NewMCPHandler())

	// Health check
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// handleHealth returns a simple health check response.
// GET /health, GET /healthz
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

type healthResponse struct {
	Status string `json:"status"`
}

// shopContext returns the caller identity set by the shopctx middleware,
// falling back to the bound shop. A non-empty actor overrides the stored one.
func (h *Handler) shopContext(ctx context.Context, actor string) model.ShopContext {
	sc, ok := shopctx.FromContext(ctx)
	if !ok {
		sc = model.ShopContext{Shop: h.shop}
	}
	if actor != "" {
		sc.Actor = actor
	}
	return sc
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response, extracting status/code from APIError if present.
// Uses errors.As() to unwrap error chains (e.g., fmt.Errorf wrapping).
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError

	if !errors.As(err, &apiErr) {
		apiErr = &model.APIError{
			Code:       "INTERNAL_ERROR",
			Message:    "an internal error occurred",
			StatusCode: http.StatusInternalServerError,
		}
		h.logger.Error("internal error", slog.String("error", err.Error()))
	}

	h.writeJSON(w, apiErr.StatusCode, errorResponse{
		Error: errorBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
		},
	})
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	// MaxRequestBodySize limits JSON request bodies.
	MaxRequestBodySize = 8 << 20 // 8MB
	// MaxUploadSize limits spreadsheet uploads.
	MaxUploadSize = 20 << 20 // 20MB
)

// decodeJSON reads JSON from request body into v.
// Limits body size to MaxRequestBodySize to prevent memory exhaustion.
// Returns an APIError if decoding fails.
func decodeJSON(r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Don't expose internal error details to client
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}
