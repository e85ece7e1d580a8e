// Package httphandler is the HTTP driving adapter: the admin JSON API and the
// bank webhook receiver.
package httphandler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ericfisherdev/gamepay/internal/application"
	"github.com/ericfisherdev/gamepay/internal/domain/model"
)

// BankManager is the bank integration surface the handler drives.
type BankManager interface {
	Enable(ctx context.Context, principalID int64, apiKey, password string) error
	Disable(ctx context.Context, principalID int64) error
	ListAccounts(ctx context.Context, principalID int64, password string) ([]model.MonetaryAccount, error)
	BindAccount(ctx context.Context, principalID, accountID int64, password string) (*model.AccountBinding, error)
	InstallWebhook(ctx context.Context, principalID int64, targetURL, password string) error
}

// PaymentRequester issues and lists payment requests for an event.
type PaymentRequester interface {
	RequestPayments(ctx context.Context, eventID, collectorID int64, password string, policy model.PricingPolicy) (*model.BatchResult, error)
	ListPaymentRequests(ctx context.Context, eventID int64) ([]model.PaymentRequestRecord, error)
}

// Reconciler applies payments from webhooks, sweeps and manual corrections.
type Reconciler interface {
	RequestSweep(ctx context.Context, principalID int64, password string) (*model.SweepResult, error)
	SetRegistrationPaid(ctx context.Context, registrationID int64, paid bool) (*model.Event, error)
	EnqueueWebhookPayment(externalRequestID int64) error
	WebhookStats() application.WebhookStats
}

// Compile-time checks that the application services satisfy the handler's needs.
var (
	_ BankManager      = (*application.BankService)(nil)
	_ PaymentRequester = (*application.PaymentService)(nil)
	_ Reconciler       = (*application.ReconciliationService)(nil)
)

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	banks     BankManager
	payments  PaymentRequester
	reconcile Reconciler
	logger    *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	banks BankManager,
	payments PaymentRequester,
	reconcile Reconciler,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		banks:     banks,
		payments:  payments,
		reconcile: reconcile,
		logger:    logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging, recovery and body limit middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("PUT /api/v1/principals/{id}/bank/credentials", h.EnableBank)
	mux.HandleFunc("DELETE /api/v1/principals/{id}/bank/credentials", h.DisableBank)
	mux.HandleFunc("GET /api/v1/principals/{id}/bank/accounts", h.ListAccounts)
	mux.HandleFunc("PUT /api/v1/principals/{id}/bank/account", h.BindAccount)
	mux.HandleFunc("POST /api/v1/principals/{id}/bank/webhook", h.InstallWebhook)
	mux.HandleFunc("POST /api/v1/principals/{id}/reconcile", h.Reconcile)
	mux.HandleFunc("POST /api/v1/events/{id}/payment-requests", h.RequestPayments)
	mux.HandleFunc("GET /api/v1/events/{id}/payment-requests", h.ListPaymentRequests)
	mux.HandleFunc("PUT /api/v1/registrations/{id}/paid", h.SetRegistrationPaid)
	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("POST /webhooks/bank", h.BankWebhook)

	// Recovery inside logging so a recovered panic is logged as a 500.
	wrapped := bodyLimitMiddleware(mux)
	wrapped = recoveryMiddleware(logger, wrapped)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// Health returns a health check response with the webhook counters.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	}
	if h.reconcile != nil {
		stats := h.reconcile.WebhookStats()
		resp.Webhooks = &stats
	}
	writeJSON(w, http.StatusOK, resp)
}

// respondError maps err onto the error taxonomy and writes it. Unexpected
// errors are logged and hidden behind a generic message.
func (h *Handler) respondError(w http.ResponseWriter, msg string, err error, attrs ...any) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(msg, append(attrs, "error", err)...)
		writeError(w, status, code, "internal server error")
		return
	}
	h.logger.Warn(msg, append(attrs, "error", err)...)
	writeError(w, status, code, err.Error())
}

// decodeBody decodes a JSON request body, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid request body")
		return false
	}
	return true
}

// pathID parses a positive integer path value, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

// requirePassword writes a 400 when the vault password is missing.
func requirePassword(w http.ResponseWriter, password string) bool {
	if password == "" {
		writeError(w, http.StatusBadRequest, codeValidation, "password is required")
		return false
	}
	return true
}
