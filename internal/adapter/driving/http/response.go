package httphandler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ericfisherdev/gamepay/internal/application"
	"github.com/ericfisherdev/gamepay/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error","code":"internal"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code, message
// and machine-readable code.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Stable error codes returned in errorResponse.Code.
const (
	codeInvalidRequest = "invalid_request"
	codeValidation     = "validation_error"
	codeNotFound       = "not_found"
	codeAuthentication = "authentication_failed"
	codeConfiguration  = "not_configured"
	codeExternal       = "external_service_error"
	codeUnavailable    = "unavailable"
	codeInternal       = "internal"
)

// errorStatus maps the domain error taxonomy to an HTTP status and code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest, codeValidation
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, model.ErrAuthentication):
		return http.StatusUnauthorized, codeAuthentication
	case errors.Is(err, model.ErrConfiguration):
		return http.StatusPreconditionFailed, codeConfiguration
	case errors.Is(err, model.ErrExternalService), errors.Is(err, model.ErrTokenExpired):
		return http.StatusBadGateway, codeExternal
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

// EnableBankRequest is the JSON body for the enable bank endpoint.
type EnableBankRequest struct {
	APIKey   string `json:"api_key"`
	Password string `json:"password"`
}

// BindAccountRequest is the JSON body for the bind account endpoint.
type BindAccountRequest struct {
	MonetaryAccountID int64  `json:"monetary_account_id"`
	Password          string `json:"password"`
}

// InstallWebhookRequest is the JSON body for the install webhook endpoint.
type InstallWebhookRequest struct {
	URL      string `json:"url"`
	Password string `json:"password"`
}

// ReconcileRequest is the JSON body for the manual reconcile endpoint.
type ReconcileRequest struct {
	Password string `json:"password"`
}

// PricingPolicyRequest is the pricing part of RequestPaymentsRequest.
type PricingPolicyRequest struct {
	Kind        string `json:"kind"`
	AmountCents int64  `json:"amount_cents"`
}

// RequestPaymentsRequest is the JSON body for the request payments endpoint.
type RequestPaymentsRequest struct {
	PrincipalID int64                `json:"principal_id"`
	Password    string               `json:"password"`
	Policy      PricingPolicyRequest `json:"policy"`
}

// SetPaidRequest is the JSON body for the registration paid endpoint. Paid
// is a pointer so a missing field is rejected rather than read as false.
type SetPaidRequest struct {
	Paid *bool `json:"paid"`
}

// AccountResponse is the JSON representation of a monetary account.
type AccountResponse struct {
	ID          int64  `json:"id"`
	Description string `json:"description"`
	IBAN        string `json:"iban"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
}

// BindingResponse is the JSON representation of an account binding.
type BindingResponse struct {
	PrincipalID       int64 `json:"principal_id"`
	UserID            int64 `json:"user_id"`
	MonetaryAccountID int64 `json:"monetary_account_id"`
}

// BatchResponse is the JSON representation of a payment request batch.
type BatchResponse struct {
	EventID         int64    `json:"event_id"`
	Succeeded       int      `json:"succeeded"`
	Failed          int      `json:"failed"`
	Errors          []string `json:"errors"`
	WaitlistCleared int      `json:"waitlist_cleared"`
}

// PaymentRequestResponse is the JSON representation of one payment request row.
type PaymentRequestResponse struct {
	ID                int64  `json:"id"`
	ExternalRequestID int64  `json:"external_request_id"`
	CollectorID       int64  `json:"collector_id"`
	PayerID           int64  `json:"payer_id"`
	RegistrationID    int64  `json:"registration_id"`
	Amount            string `json:"amount"`
	AmountCents       int64  `json:"amount_cents"`
	PaymentLink       string `json:"payment_link"`
	Paid              bool   `json:"paid"`
	WebhookReceived   bool   `json:"webhook_received"`
	CreatedAt         string `json:"created_at"`
	LastCheckedAt     string `json:"last_checked_at,omitempty"`
}

// SweepResponse is the JSON representation of a reconciliation sweep.
type SweepResponse struct {
	Checked int `json:"checked"`
	Paid    int `json:"paid"`
	Errors  int `json:"errors"`
}

// EventResponse is the JSON representation of an event's settlement state.
type EventResponse struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Capacity int    `json:"capacity"`
	Settled  bool   `json:"settled"`
}

// WebhookAck is the body returned to the bank for a webhook delivery.
type WebhookAck struct {
	Status string `json:"status"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status   string                    `json:"status"`
	Time     string                    `json:"time"`
	Webhooks *application.WebhookStats `json:"webhooks,omitempty"`
}

func toAccountResponse(a model.MonetaryAccount) AccountResponse {
	return AccountResponse{
		ID:          a.ID,
		Description: a.Description,
		IBAN:        a.IBAN,
		Currency:    a.Currency,
		Status:      a.Status,
	}
}

func toBindingResponse(b model.AccountBinding) BindingResponse {
	return BindingResponse{
		PrincipalID:       b.PrincipalID,
		UserID:            b.UserID,
		MonetaryAccountID: b.MonetaryAccountID,
	}
}

// toBatchResponse converts a BatchResult. A nil error list becomes an empty array.
func toBatchResponse(b model.BatchResult) BatchResponse {
	errs := b.Errors
	if errs == nil {
		errs = []string{}
	}
	return BatchResponse{
		EventID:         b.EventID,
		Succeeded:       b.Succeeded,
		Failed:          b.Failed,
		Errors:          errs,
		WaitlistCleared: b.WaitlistCleared,
	}
}

func toPaymentRequestResponse(r model.PaymentRequestRecord) PaymentRequestResponse {
	resp := PaymentRequestResponse{
		ID:                r.ID,
		ExternalRequestID: r.ExternalRequestID,
		CollectorID:       r.CollectorID,
		PayerID:           r.PayerID,
		RegistrationID:    r.RegistrationID,
		Amount:            model.FormatAmount(r.AmountCents),
		AmountCents:       r.AmountCents,
		PaymentLink:       r.PaymentLink,
		Paid:              r.Paid,
		WebhookReceived:   r.WebhookReceived,
		CreatedAt:         r.CreatedAt.UTC().Format(time.RFC3339),
	}
	if !r.LastCheckedAt.IsZero() {
		resp.LastCheckedAt = r.LastCheckedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func toEventResponse(e model.Event) EventResponse {
	return EventResponse{
		ID:       e.ID,
		Title:    e.Title,
		Capacity: e.Capacity,
		Settled:  e.Settled,
	}
}
