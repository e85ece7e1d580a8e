package httphandler

import (
	"net/http"
)

// EnableBank stores a principal's API key and verifies it against the bank.
func (h *Handler) EnableBank(w http.ResponseWriter, r *http.Request) {
	principalID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req EnableBankRequest
	if !decodeBody(w, r, &req) || !requirePassword(w, req.Password) {
		return
	}

	if err := h.banks.Enable(r.Context(), principalID, req.APIKey, req.Password); err != nil {
		h.respondError(w, "failed to enable bank", err, "principal_id", principalID)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DisableBank deletes every stored bank secret of the principal.
func (h *Handler) DisableBank(w http.ResponseWriter, r *http.Request) {
	principalID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.banks.Disable(r.Context(), principalID); err != nil {
		h.respondError(w, "failed to disable bank", err, "principal_id", principalID)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListAccounts returns the principal's monetary accounts. The vault password
// is read from the X-Vault-Password header.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	principalID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	password := r.Header.Get("X-Vault-Password")
	if !requirePassword(w, password) {
		return
	}

	accounts, err := h.banks.ListAccounts(r.Context(), principalID, password)
	if err != nil {
		h.respondError(w, "failed to list accounts", err, "principal_id", principalID)
		return
	}

	resp := make([]AccountResponse, 0, len(accounts))
	for _, a := range accounts {
		resp = append(resp, toAccountResponse(a))
	}

	writeJSON(w, http.StatusOK, resp)
}

// BindAccount selects the monetary account payment requests are issued from.
func (h *Handler) BindAccount(w http.ResponseWriter, r *http.Request) {
	principalID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req BindAccountRequest
	if !decodeBody(w, r, &req) || !requirePassword(w, req.Password) {
		return
	}
	if req.MonetaryAccountID <= 0 {
		writeError(w, http.StatusBadRequest, codeValidation, "monetary_account_id is required")
		return
	}

	binding, err := h.banks.BindAccount(r.Context(), principalID, req.MonetaryAccountID, req.Password)
	if err != nil {
		h.respondError(w, "failed to bind account", err, "principal_id", principalID)
		return
	}

	writeJSON(w, http.StatusOK, toBindingResponse(*binding))
}

// InstallWebhook points the bank's payment request notifications at a URL.
func (h *Handler) InstallWebhook(w http.ResponseWriter, r *http.Request) {
	principalID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req InstallWebhookRequest
	if !decodeBody(w, r, &req) || !requirePassword(w, req.Password) {
		return
	}

	if err := h.banks.InstallWebhook(r.Context(), principalID, req.URL, req.Password); err != nil {
		h.respondError(w, "failed to install webhook", err, "principal_id", principalID)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
