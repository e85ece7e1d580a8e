package sqlite

import (
	"context"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/gamepay/internal/domain/model"
)

// setupTestDB creates a named shared in-memory SQLite database for testing.
// Writer and reader connections share the same in-memory database via cache=shared.
// A unique name derived from t.Name() ensures isolation between parallel tests.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	// Percent-encode the test name so it's a safe SQLite URI filename component.
	safeName := url.PathEscape(t.Name())
	// WAL mode is not applicable to in-memory databases; omit journal_mode pragma.
	dsn := fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)",
		safeName,
	)

	db, err := open(context.Background(), dsn, dsn)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	if err := RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		t.Fatalf("run migrations: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })

	return db
}

// fixture seeds users and events for repository tests.
type fixture struct {
	t     *testing.T
	ctx   context.Context
	users *UserRepo
	regs  *RegistrationRepo
	base  time.Time
}

func newFixture(t *testing.T, db *DB) *fixture {
	return &fixture{
		t:     t,
		ctx:   context.Background(),
		users: NewUserRepo(db),
		regs:  NewRegistrationRepo(db),
		base:  time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) user(name string) model.User {
	f.t.Helper()
	u, err := f.users.Create(f.ctx, model.User{Name: name, Email: name + "@example.com"})
	require.NoError(f.t, err)
	return u
}

func (f *fixture) event(capacity int) model.Event {
	f.t.Helper()
	e, err := f.regs.CreateEvent(f.ctx, model.Event{Title: "Thursday volleyball", Capacity: capacity, StartsAt: f.base.Add(72 * time.Hour)})
	require.NoError(f.t, err)
	return e
}

// register adds a registration created offset minutes after the fixture base.
func (f *fixture) register(eventID, userID int64, guest string, offset int) model.Registration {
	f.t.Helper()
	r, err := f.regs.AddRegistration(f.ctx, model.Registration{
		EventID:   eventID,
		UserID:    userID,
		GuestName: guest,
		CreatedAt: f.base.Add(time.Duration(offset) * time.Minute),
	})
	require.NoError(f.t, err)
	return r
}

func sealed(b byte) model.EncryptedSecret {
	return model.EncryptedSecret{
		Ciphertext: []byte{b, b, b},
		IV:         []byte{1, 2, 3},
		AuthTag:    []byte{4, 5, 6},
		Salt:       []byte{7, 8, 9},
		UpdatedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}
