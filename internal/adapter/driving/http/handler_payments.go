package httphandler

import (
	"net/http"

	"github.com/ericfisherdev/gamepay/internal/domain/model"
)

// RequestPayments issues payment requests for every unpaid active
// registration of the event.
func (h *Handler) RequestPayments(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req RequestPaymentsRequest
	if !decodeBody(w, r, &req) || !requirePassword(w, req.Password) {
		return
	}
	if req.PrincipalID <= 0 {
		writeError(w, http.StatusBadRequest, codeValidation, "principal_id is required")
		return
	}

	policy := model.PricingPolicy{
		Kind:        model.PricingKind(req.Policy.Kind),
		AmountCents: req.Policy.AmountCents,
	}

	result, err := h.payments.RequestPayments(r.Context(), eventID, req.PrincipalID, req.Password, policy)
	if err != nil {
		h.respondError(w, "failed to request payments", err, "event_id", eventID)
		return
	}

	writeJSON(w, http.StatusOK, toBatchResponse(*result))
}

// ListPaymentRequests returns every payment request row of the event.
func (h *Handler) ListPaymentRequests(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	records, err := h.payments.ListPaymentRequests(r.Context(), eventID)
	if err != nil {
		h.respondError(w, "failed to list payment requests", err, "event_id", eventID)
		return
	}

	resp := make([]PaymentRequestResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, toPaymentRequestResponse(rec))
	}

	writeJSON(w, http.StatusOK, resp)
}

// Reconcile runs a manual sweep of the principal's unpaid requests.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	principalID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req ReconcileRequest
	if !decodeBody(w, r, &req) || !requirePassword(w, req.Password) {
		return
	}

	result, err := h.reconcile.RequestSweep(r.Context(), principalID, req.Password)
	if err != nil {
		h.respondError(w, "failed to reconcile", err, "principal_id", principalID)
		return
	}

	writeJSON(w, http.StatusOK, SweepResponse{
		Checked: result.Checked,
		Paid:    result.Paid,
		Errors:  result.Errors,
	})
}

// SetRegistrationPaid corrects a registration's paid flag by hand.
func (h *Handler) SetRegistrationPaid(w http.ResponseWriter, r *http.Request) {
	registrationID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req SetPaidRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Paid == nil {
		writeError(w, http.StatusBadRequest, codeValidation, "paid is required")
		return
	}

	event, err := h.reconcile.SetRegistrationPaid(r.Context(), registrationID, *req.Paid)
	if err != nil {
		h.respondError(w, "failed to set registration paid", err, "registration_id", registrationID)
		return
	}

	writeJSON(w, http.StatusOK, toEventResponse(*event))
}
