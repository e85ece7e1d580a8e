package httphandler

import (
	"encoding/json"
	"net/http"
)

const (
	webhookCategoryRequest = "REQUEST"
	webhookEventAccepted   = "REQUEST_INQUIRY_ACCEPTED"
)

// bankNotification is the callback envelope the bank posts to a notification
// filter URL.
type bankNotification struct {
	NotificationURL *struct {
		Category  string `json:"category"`
		EventType string `json:"event_type"`
		Object    struct {
			RequestInquiry  *webhookObject `json:"RequestInquiry"`
			RequestResponse *webhookObject `json:"RequestResponse"`
		} `json:"object"`
	} `json:"NotificationUrl"`
}

type webhookObject struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

// BankWebhook receives payment request notifications. Accepted requests are
// queued for the reconciliation worker and acknowledged immediately; every
// other notification, including the payer-side RequestResponse view, is
// acknowledged and ignored. A full queue answers 503
// so the bank delivers again later.
func (h *Handler) BankWebhook(w http.ResponseWriter, r *http.Request) {
	var n bankNotification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil || n.NotificationURL == nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid notification body")
		return
	}

	note := n.NotificationURL
	if note.Category != webhookCategoryRequest || note.EventType != webhookEventAccepted {
		h.logger.Debug("bank notification ignored", "category", note.Category, "event_type", note.EventType)
		writeJSON(w, http.StatusOK, WebhookAck{Status: "ignored"})
		return
	}

	obj := note.Object.RequestInquiry
	if obj == nil && note.Object.RequestResponse != nil {
		// The payer-side view carries its own id, never the request we issued.
		h.logger.Debug("bank notification ignored", "reason", "request response object", "id", note.Object.RequestResponse.ID)
		writeJSON(w, http.StatusOK, WebhookAck{Status: "ignored"})
		return
	}
	if obj == nil || obj.ID <= 0 {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "notification carries no request id")
		return
	}

	if err := h.reconcile.EnqueueWebhookPayment(obj.ID); err != nil {
		h.logger.Warn("bank notification dropped", "request_id", obj.ID, "error", err)
		writeError(w, http.StatusServiceUnavailable, codeUnavailable, "webhook queue full, retry later")
		return
	}

	h.logger.Info("bank notification queued", "request_id", obj.ID)
	writeJSON(w, http.StatusOK, WebhookAck{Status: "queued"})
}
