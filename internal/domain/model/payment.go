package model

import "time"

// PaymentRequest is one request issued to the bank for a payer group. It is
// persisted as one PaymentRequestRecord per covered registration.
type PaymentRequest struct {
	ExternalRequestID int64
	CollectorID       int64
	PayerID           int64
	EventID           int64
	RegistrationIDs   []int64
	AmountCents       int64
	PaymentLink       string
	MonetaryAccountID int64
	CreatedAt         time.Time
}

// PaymentRequestRecord is a stored row of a payment request. Rows sharing an
// ExternalRequestID always transition to paid together.
type PaymentRequestRecord struct {
	ID                int64
	ExternalRequestID int64
	CollectorID       int64
	PayerID           int64
	EventID           int64
	RegistrationID    int64
	AmountCents       int64
	PaymentLink       string
	MonetaryAccountID int64
	CreatedAt         time.Time
	LastCheckedAt     time.Time // Zero until the first poll.
	Paid              bool
	WebhookReceived   bool
}

// PaidSource identifies which path triggered a paid transition.
type PaidSource string

const (
	PaidViaWebhook PaidSource = "webhook"
	PaidViaPoll    PaidSource = "poll"
)

// PaidTransition reports the effect of applying a paid status to an external
// request id. Applied is false when nothing changed.
type PaidTransition struct {
	ExternalRequestID int64
	Applied           bool
	PayerID           int64
	CollectorID       int64
	RegistrationIDs   []int64
	EventIDs          []int64
	SettledEventIDs   []int64
}

// PayerGroup is the set of unpaid active registrations billed to one payer.
type PayerGroup struct {
	Payer         User
	Registrations []Registration
}

// RegistrationIDs returns the ids of the registrations in the group.
func (g PayerGroup) RegistrationIDs() []int64 {
	ids := make([]int64, 0, len(g.Registrations))
	for _, r := range g.Registrations {
		ids = append(ids, r.ID)
	}
	return ids
}

// BatchResult summarizes a payment request batch for an event.
type BatchResult struct {
	EventID         int64
	Succeeded       int
	Failed          int
	Errors          []string
	WaitlistCleared int
}

// SweepResult summarizes one poll-based reconciliation pass.
type SweepResult struct {
	Checked int
	Paid    int
	Errors  int
}
