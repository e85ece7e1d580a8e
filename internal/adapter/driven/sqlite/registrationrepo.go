package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/gamepay/internal/domain/model"
	"github.com/ericfisherdev/gamepay/internal/domain/port/driven"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.RegistrationStore = (*RegistrationRepo)(nil)
	_ driven.UserStore         = (*UserRepo)(nil)
)

// RegistrationRepo is the SQLite implementation of the RegistrationStore port.
type RegistrationRepo struct {
	db *DB
}

// NewRegistrationRepo creates a new RegistrationRepo backed by the given DB.
func NewRegistrationRepo(db *DB) *RegistrationRepo {
	return &RegistrationRepo{db: db}
}

// CreateEvent inserts an event and returns it with its assigned id.
func (r *RegistrationRepo) CreateEvent(ctx context.Context, e model.Event) (model.Event, error) {
	const query = `INSERT INTO events (title, capacity, starts_at, settled, created_at) VALUES (?, ?, ?, ?, ?)`

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	result, err := r.db.Writer.ExecContext(ctx, query,
		e.Title, e.Capacity, formatTime(e.StartsAt), boolToInt(e.Settled), formatTime(e.CreatedAt),
	)
	if err != nil {
		return e, fmt.Errorf("create event %q: %w", e.Title, err)
	}

	e.ID, err = result.LastInsertId()
	if err != nil {
		return e, fmt.Errorf("read event id: %w", err)
	}
	return e, nil
}

// AddRegistration inserts a registration and returns it with its assigned id.
func (r *RegistrationRepo) AddRegistration(ctx context.Context, reg model.Registration) (model.Registration, error) {
	const query = `INSERT INTO registrations (event_id, user_id, guest_name, paid, created_at) VALUES (?, ?, ?, ?, ?)`

	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = time.Now()
	}

	result, err := r.db.Writer.ExecContext(ctx, query,
		reg.EventID, reg.UserID, reg.GuestName, boolToInt(reg.Paid), formatTime(reg.CreatedAt),
	)
	if err != nil {
		return reg, fmt.Errorf("add registration to event %d: %w", reg.EventID, err)
	}

	reg.ID, err = result.LastInsertId()
	if err != nil {
		return reg, fmt.Errorf("read registration id: %w", err)
	}
	return reg, nil
}

// GetEvent returns an event by id, or model.ErrNotFound.
func (r *RegistrationRepo) GetEvent(ctx context.Context, eventID int64) (*model.Event, error) {
	return getEvent(ctx, r.db.Reader, eventID)
}

// ListRegistrations returns every registration of the event in rank order.
func (r *RegistrationRepo) ListRegistrations(ctx context.Context, eventID int64) ([]model.Registration, error) {
	return listRegistrations(ctx, r.db.Reader, eventID)
}

// GetRegistration returns a registration by id, or model.ErrNotFound.
func (r *RegistrationRepo) GetRegistration(ctx context.Context, registrationID int64) (*model.Registration, error) {
	const query = `
		SELECT id, event_id, user_id, guest_name, paid, created_at
		FROM registrations
		WHERE id = ?
	`

	reg, err := scanRegistration(r.db.Reader.QueryRowContext(ctx, query, registrationID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("registration %d: %w", registrationID, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get registration %d: %w", registrationID, err)
	}
	return reg, nil
}

// DeleteRegistrations removes the given registrations and returns how many
// rows were deleted.
func (r *RegistrationRepo) DeleteRegistrations(ctx context.Context, registrationIDs []int64) (int, error) {
	if len(registrationIDs) == 0 {
		return 0, nil
	}

	placeholders, args := inClause(registrationIDs)
	result, err := r.db.Writer.ExecContext(ctx,
		`DELETE FROM registrations WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("delete registrations: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check rows affected: %w", err)
	}
	return int(rows), nil
}

// SetRegistrationPaid updates one registration's paid flag. Clearing it
// clears the event's settled flag outright; setting it recomputes settled
// from the active set.
func (r *RegistrationRepo) SetRegistrationPaid(ctx context.Context, registrationID int64, paid bool) (*model.Event, error) {
	var event *model.Event

	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		var eventID int64
		err := tx.QueryRowContext(ctx, `SELECT event_id FROM registrations WHERE id = ?`, registrationID).Scan(&eventID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("registration %d: %w", registrationID, model.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get registration %d: %w", registrationID, err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE registrations SET paid = ? WHERE id = ?`, boolToInt(paid), registrationID,
		); err != nil {
			return fmt.Errorf("update registration %d: %w", registrationID, err)
		}

		if paid {
			if _, err := recomputeSettled(ctx, tx, eventID); err != nil {
				return err
			}
		} else {
			if _, err := tx.ExecContext(ctx, `UPDATE events SET settled = 0 WHERE id = ?`, eventID); err != nil {
				return fmt.Errorf("clear settled on event %d: %w", eventID, err)
			}
		}

		event, err = getEvent(ctx, tx, eventID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getEvent(ctx context.Context, q queryer, eventID int64) (*model.Event, error) {
	const query = `SELECT id, title, capacity, starts_at, settled, created_at FROM events WHERE id = ?`

	var e model.Event
	var settled int
	var startsAt, createdAt string
	err := q.QueryRowContext(ctx, query, eventID).
		Scan(&e.ID, &e.Title, &e.Capacity, &startsAt, &settled, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %d: %w", eventID, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get event %d: %w", eventID, err)
	}

	e.Settled = settled != 0
	if e.StartsAt, err = parseTime(startsAt); err != nil {
		return nil, fmt.Errorf("parse starts_at: %w", err)
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &e, nil
}

func listRegistrations(ctx context.Context, q queryer, eventID int64) ([]model.Registration, error) {
	const query = `
		SELECT id, event_id, user_id, guest_name, paid, created_at
		FROM registrations
		WHERE event_id = ?
		ORDER BY created_at, id
	`

	rows, err := q.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("list registrations for event %d: %w", eventID, err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, *reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registrations: %w", err)
	}
	return regs, nil
}

// recomputeSettled derives the event's settled flag from its active set and
// stores it. It reports whether the event is now settled.
func recomputeSettled(ctx context.Context, tx *sql.Tx, eventID int64) (bool, error) {
	event, err := getEvent(ctx, tx, eventID)
	if err != nil {
		return false, err
	}

	regs, err := listRegistrations(ctx, tx, eventID)
	if err != nil {
		return false, err
	}

	settled := model.AllActivePaid(regs, event.Capacity)
	if _, err := tx.ExecContext(ctx,
		`UPDATE events SET settled = ? WHERE id = ?`, boolToInt(settled), eventID,
	); err != nil {
		return false, fmt.Errorf("update settled on event %d: %w", eventID, err)
	}
	return settled, nil
}

func scanRegistration(s scanner) (*model.Registration, error) {
	var reg model.Registration
	var paid int
	var createdAt string

	if err := s.Scan(&reg.ID, &reg.EventID, &reg.UserID, &reg.GuestName, &paid, &createdAt); err != nil {
		return nil, err
	}

	reg.Paid = paid != 0
	var err error
	reg.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &reg, nil
}

// UserRepo is the SQLite implementation of the UserStore port.
type UserRepo struct {
	db *DB
}

// NewUserRepo creates a new UserRepo backed by the given DB.
func NewUserRepo(db *DB) *UserRepo {
	return &UserRepo{db: db}
}

// Create inserts a user and returns it with its assigned id.
func (r *UserRepo) Create(ctx context.Context, u model.User) (model.User, error) {
	const query = `INSERT INTO users (name, telegram_chat_id, phone, email) VALUES (?, ?, ?, ?)`

	result, err := r.db.Writer.ExecContext(ctx, query, u.Name, u.TelegramChatID, u.Phone, u.Email)
	if err != nil {
		return u, fmt.Errorf("create user %q: %w", u.Name, err)
	}

	u.ID, err = result.LastInsertId()
	if err != nil {
		return u, fmt.Errorf("read user id: %w", err)
	}
	return u, nil
}

// Get returns a user by id, or model.ErrNotFound.
func (r *UserRepo) Get(ctx context.Context, userID int64) (*model.User, error) {
	const query = `SELECT id, name, telegram_chat_id, phone, email FROM users WHERE id = ?`

	var u model.User
	err := r.db.Reader.QueryRowContext(ctx, query, userID).
		Scan(&u.ID, &u.Name, &u.TelegramChatID, &u.Phone, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", userID, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", userID, err)
	}
	return &u, nil
}
