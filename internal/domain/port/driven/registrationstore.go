package driven

import (
	"context"

	"github.com/ericfisherdev/gamepay/internal/domain/model"
)

// RegistrationStore defines the driven port for events and their
// registrations.
type RegistrationStore interface {
	GetEvent(ctx context.Context, eventID int64) (*model.Event, error)
	ListRegistrations(ctx context.Context, eventID int64) ([]model.Registration, error)
	GetRegistration(ctx context.Context, registrationID int64) (*model.Registration, error)
	DeleteRegistrations(ctx context.Context, registrationIDs []int64) (int, error)

	// SetRegistrationPaid updates one registration. Clearing the flag also
	// clears the owning event's settled flag; setting it recomputes settled.
	// Returns the event after the update.
	SetRegistrationPaid(ctx context.Context, registrationID int64, paid bool) (*model.Event, error)
}

// UserStore defines the driven port for user lookups.
type UserStore interface {
	Get(ctx context.Context, userID int64) (*model.User, error)
}
