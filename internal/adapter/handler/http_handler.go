package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/patyfb04/play-inventory/internal/core/domain"
	"github.com/patyfb04/play-inventory/internal/observability"
)

const idempotencyKeyHeader = "Idempotency-Key"

type HTTPHandler struct {
	grants     GrantService
	queries    QueryService
	reconciler Reconciler
	logger     observability.Logger
}

type GrantHTTPRequest struct {
	UserID        string `json:"userId"`
	CatalogItemID string `json:"catalogItemId"`
	Quantity      int    `json:"quantity"`
	CorrelationID string `json:"correlationId"`
}

type GrantHTTPResponse struct {
	Result        string `json:"result"`
	UserID        string `json:"userId"`
	CatalogItemID string `json:"catalogItemId"`
	Quantity      int    `json:"quantity"`
	MessageID     string `json:"messageId"`
}

type ReconcileHTTPResponse struct {
	Created    []string `json:"created"`
	Updated    []string `json:"updated"`
	Deleted    []string `json:"deleted"`
	Unchanged  int      `json:"unchanged"`
	Skipped    bool     `json:"skipped"`
	Reason     string   `json:"reason,omitempty"`
	DurationMs int64    `json:"durationMs"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewHTTPHandler(grants GrantService, queries QueryService, reconciler Reconciler, logger observability.Logger) *HTTPHandler {
	return &HTTPHandler{
		grants:     grants,
		queries:    queries,
		reconciler: reconciler,
		logger:     logger,
	}
}

func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.HealthCheck)
	mux.HandleFunc("/items", h.Items)
	mux.HandleFunc("/items/sync", h.SyncItems)
	mux.HandleFunc("/admin/reconcile", h.Reconcile)
}

func (h *HTTPHandler) Items(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listItems(w, r)
	case http.MethodPost:
		h.grantItems(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *HTTPHandler) listItems(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "userId is required"})
		return
	}

	items, err := h.queries.ListForUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *HTTPHandler) SyncItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	items, err := h.queries.ListAll(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *HTTPHandler) grantItems(w http.ResponseWriter, r *http.Request) {
	var req GrantHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	messageID := r.Header.Get(idempotencyKeyHeader)
	if messageID == "" {
		messageID = uuid.NewString()
	}
	if req.CorrelationID == "" {
		req.CorrelationID = messageID
	}

	outcome, err := h.grants.Consume(r.Context(), domain.GrantItems{
		CatalogItemID: req.CatalogItemID,
		UserID:        req.UserID,
		Quantity:      req.Quantity,
		CorrelationID: req.CorrelationID,
		MessageID:     messageID,
	})
	if err == nil {
		err = outcome.Err()
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	status := http.StatusOK
	if outcome.Result == domain.ResultApplied {
		status = http.StatusCreated
	}

	writeJSON(w, status, GrantHTTPResponse{
		Result:        string(outcome.Result),
		UserID:        outcome.Record.UserID,
		CatalogItemID: outcome.Record.CatalogItemID,
		Quantity:      outcome.Record.Quantity,
		MessageID:     messageID,
	})
}

func (h *HTTPHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	report, err := h.reconciler.Reconcile(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := ReconcileHTTPResponse{
		Created:    nonNil(report.Created),
		Updated:    nonNil(report.Updated),
		Deleted:    nonNil(report.Deleted),
		Unchanged:  report.Unchanged,
		Skipped:    report.Skipped,
		DurationMs: report.Duration.Milliseconds(),
	}
	status := http.StatusOK
	if report.Reason != nil {
		resp.Reason = report.Reason.Error()
		switch {
		case errors.Is(report.Reason, domain.ErrReconcileInProgress):
			status = http.StatusConflict
		case errors.Is(report.Reason, domain.ErrUpstreamUnavailable):
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, resp)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.Is(err, domain.ErrInvalidCommand):
		status = http.StatusBadRequest
		message = err.Error()
	case errors.Is(err, domain.ErrUnknownCatalogItem):
		status = http.StatusNotFound
		message = "unknown catalog item"
	case errors.Is(err, domain.ErrConcurrentModification), errors.Is(err, domain.ErrPublishFailure):
		status = http.StatusServiceUnavailable
		message = "temporarily unavailable, retry with the same Idempotency-Key"
	default:
		h.logger.Error("request failed", zap.Error(err))
	}

	writeJSON(w, status, ErrorResponse{Error: message})
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
