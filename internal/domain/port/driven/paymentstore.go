package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/gamepay/internal/domain/model"
)

// PaymentStore defines the driven port for payment request persistence and
// the paid transition.
type PaymentStore interface {
	// Create fans a payment request out into one row per registration.
	Create(ctx context.Context, req model.PaymentRequest) error

	// ListByEvent returns every row recorded for the event.
	ListByEvent(ctx context.Context, eventID int64) ([]model.PaymentRequestRecord, error)

	// ListByExternalID returns every row sharing an external request id.
	ListByExternalID(ctx context.Context, externalRequestID int64) ([]model.PaymentRequestRecord, error)

	// CoveredRegistrationIDs returns the registrations of the event that
	// already have a payment request, paid or not.
	CoveredRegistrationIDs(ctx context.Context, eventID int64) (map[int64]bool, error)

	// ListDueForCheck returns one representative unpaid row per external id
	// issued by the collector whose last check is unset or before cutoff.
	ListDueForCheck(ctx context.Context, collectorID int64, cutoff time.Time) ([]model.PaymentRequestRecord, error)

	// TouchChecked stamps last_checked_at on every row of the external id.
	TouchChecked(ctx context.Context, externalRequestID int64, at time.Time) error

	// ApplyPaid flips every row of the external id to paid, marks the covered
	// registrations paid and recomputes the settled flag of their events, in
	// one transaction. The webhook source only applies when no row has been
	// paid or webhook-flagged yet, and sets webhook_received. When nothing is
	// flipped no other write happens and Applied is false.
	ApplyPaid(ctx context.Context, externalRequestID int64, source model.PaidSource) (*model.PaidTransition, error)
}
