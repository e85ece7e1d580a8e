package application_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/gamepay/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/gamepay/internal/domain/model"
)

// testStores bundles the SQLite repositories backing a service under test.
type testStores struct {
	db            *sqlite.DB
	users         *sqlite.UserRepo
	registrations *sqlite.RegistrationRepo
	payments      *sqlite.PaymentRepo
	credentials   *sqlite.CredentialRepo
	bindings      *sqlite.AccountBindingRepo
}

// newTestStores opens a migrated SQLite database in the test's temp dir.
func newTestStores(t *testing.T) *testStores {
	t.Helper()

	db, err := sqlite.NewDB(context.Background(), filepath.Join(t.TempDir(), "gamepay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, sqlite.RunMigrations(db.Writer))

	return &testStores{
		db:            db,
		users:         sqlite.NewUserRepo(db),
		registrations: sqlite.NewRegistrationRepo(db),
		payments:      sqlite.NewPaymentRepo(db),
		credentials:   sqlite.NewCredentialRepo(db),
		bindings:      sqlite.NewAccountBindingRepo(db),
	}
}

func (s *testStores) user(t *testing.T, u model.User) model.User {
	t.Helper()
	created, err := s.users.Create(context.Background(), u)
	require.NoError(t, err)
	return created
}

func (s *testStores) event(t *testing.T, capacity int) model.Event {
	t.Helper()
	created, err := s.registrations.CreateEvent(context.Background(), model.Event{
		Title:    "Sunday football",
		Capacity: capacity,
		StartsAt: time.Date(2026, 6, 7, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return created
}

// register adds a registration ranked by the given minute offset.
func (s *testStores) register(t *testing.T, eventID, userID int64, guest string, minute int) model.Registration {
	t.Helper()
	created, err := s.registrations.AddRegistration(context.Background(), model.Registration{
		EventID:   eventID,
		UserID:    userID,
		GuestName: guest,
		CreatedAt: time.Date(2026, 6, 1, 9, minute, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return created
}
