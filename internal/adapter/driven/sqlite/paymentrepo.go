package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ericfisherdev/gamepay/internal/domain/model"
	"github.com/ericfisherdev/gamepay/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PaymentStore = (*PaymentRepo)(nil)

const paymentColumns = `
	id, external_request_id, collector_id, payer_id, event_id, registration_id,
	amount_cents, payment_link, monetary_account_id, created_at, last_checked_at,
	paid, webhook_received
`

// PaymentRepo is the SQLite implementation of the PaymentStore port.
type PaymentRepo struct {
	db *DB
}

// NewPaymentRepo creates a new PaymentRepo backed by the given DB.
func NewPaymentRepo(db *DB) *PaymentRepo {
	return &PaymentRepo{db: db}
}

// Create writes one row per covered registration, all sharing the request's
// external id.
func (r *PaymentRepo) Create(ctx context.Context, req model.PaymentRequest) error {
	if len(req.RegistrationIDs) == 0 {
		return fmt.Errorf("%w: payment request %d covers no registrations", model.ErrValidation, req.ExternalRequestID)
	}

	createdAt := req.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	const query = `
		INSERT INTO payment_requests (
			external_request_id, collector_id, payer_id, event_id, registration_id,
			amount_cents, payment_link, monetary_account_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		for _, regID := range req.RegistrationIDs {
			if _, err := tx.ExecContext(ctx, query,
				req.ExternalRequestID, req.CollectorID, req.PayerID, req.EventID, regID,
				req.AmountCents, req.PaymentLink, req.MonetaryAccountID, formatTime(createdAt),
			); err != nil {
				return fmt.Errorf("insert payment request %d for registration %d: %w", req.ExternalRequestID, regID, err)
			}
		}
		return nil
	})
}

// ListByEvent returns every row recorded for the event, ordered by id.
func (r *PaymentRepo) ListByEvent(ctx context.Context, eventID int64) ([]model.PaymentRequestRecord, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_requests WHERE event_id = ? ORDER BY id`
	return r.queryRecords(ctx, r.db.Reader, query, eventID)
}

// ListByExternalID returns every row sharing an external request id.
func (r *PaymentRepo) ListByExternalID(ctx context.Context, externalRequestID int64) ([]model.PaymentRequestRecord, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_requests WHERE external_request_id = ? ORDER BY id`
	return r.queryRecords(ctx, r.db.Reader, query, externalRequestID)
}

// CoveredRegistrationIDs returns the registrations of the event that already
// have a payment request.
func (r *PaymentRepo) CoveredRegistrationIDs(ctx context.Context, eventID int64) (map[int64]bool, error) {
	rows, err := r.db.Reader.QueryContext(ctx,
		`SELECT DISTINCT registration_id FROM payment_requests WHERE event_id = ?`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list covered registrations for event %d: %w", eventID, err)
	}
	defer rows.Close()

	covered := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan registration id: %w", err)
		}
		covered[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate covered registrations: %w", err)
	}
	return covered, nil
}

// ListDueForCheck returns the first row of each unpaid external id issued by
// the collector that has not been checked since cutoff.
func (r *PaymentRepo) ListDueForCheck(ctx context.Context, collectorID int64, cutoff time.Time) ([]model.PaymentRequestRecord, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payment_requests
		WHERE id IN (
			SELECT MIN(id)
			FROM payment_requests
			WHERE collector_id = ?
			  AND paid = 0
			  AND (last_checked_at IS NULL OR last_checked_at <= ?)
			GROUP BY external_request_id
		)
		ORDER BY id
	`
	return r.queryRecords(ctx, r.db.Reader, query, collectorID, formatTime(cutoff))
}

// TouchChecked stamps last_checked_at on every row of the external id.
func (r *PaymentRepo) TouchChecked(ctx context.Context, externalRequestID int64, at time.Time) error {
	_, err := r.db.Writer.ExecContext(ctx,
		`UPDATE payment_requests SET last_checked_at = ? WHERE external_request_id = ?`,
		formatTime(at), externalRequestID,
	)
	if err != nil {
		return fmt.Errorf("touch payment request %d: %w", externalRequestID, err)
	}
	return nil
}

// ApplyPaid is the single paid transition shared by the webhook and poll
// paths. See driven.PaymentStore.
func (r *PaymentRepo) ApplyPaid(ctx context.Context, externalRequestID int64, source model.PaidSource) (*model.PaidTransition, error) {
	transition := &model.PaidTransition{ExternalRequestID: externalRequestID}

	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		var flip string
		switch source {
		case model.PaidViaWebhook:
			// A duplicate delivery, or a delivery after the poll path already
			// applied, matches no rows.
			flip = `UPDATE payment_requests SET paid = 1, webhook_received = 1
				WHERE external_request_id = ? AND paid = 0 AND webhook_received = 0`
		case model.PaidViaPoll:
			flip = `UPDATE payment_requests SET paid = 1
				WHERE external_request_id = ? AND paid = 0`
		default:
			return fmt.Errorf("%w: unknown paid source %q", model.ErrValidation, source)
		}

		result, err := tx.ExecContext(ctx, flip, externalRequestID)
		if err != nil {
			return fmt.Errorf("flip payment request %d: %w", externalRequestID, err)
		}
		flipped, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("check rows affected: %w", err)
		}
		if flipped == 0 {
			return nil
		}
		transition.Applied = true

		records, err := r.queryRecords(ctx, tx,
			`SELECT `+paymentColumns+` FROM payment_requests WHERE external_request_id = ? ORDER BY id`,
			externalRequestID)
		if err != nil {
			return err
		}

		seenEvent := make(map[int64]bool)
		for _, rec := range records {
			transition.PayerID = rec.PayerID
			transition.CollectorID = rec.CollectorID
			transition.RegistrationIDs = append(transition.RegistrationIDs, rec.RegistrationID)
			if !seenEvent[rec.EventID] {
				seenEvent[rec.EventID] = true
				transition.EventIDs = append(transition.EventIDs, rec.EventID)
			}
		}

		placeholders, args := inClause(transition.RegistrationIDs)
		if _, err := tx.ExecContext(ctx,
			`UPDATE registrations SET paid = 1 WHERE id IN (`+placeholders+`)`, args...,
		); err != nil {
			return fmt.Errorf("mark registrations paid for request %d: %w", externalRequestID, err)
		}

		for _, eventID := range transition.EventIDs {
			var wasSettled int
			if err := tx.QueryRowContext(ctx, `SELECT settled FROM events WHERE id = ?`, eventID).Scan(&wasSettled); err != nil {
				return fmt.Errorf("read settled on event %d: %w", eventID, err)
			}
			settled, err := recomputeSettled(ctx, tx, eventID)
			if err != nil {
				return err
			}
			if settled && wasSettled == 0 {
				transition.SettledEventIDs = append(transition.SettledEventIDs, eventID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return transition, nil
}

func (r *PaymentRepo) queryRecords(ctx context.Context, q queryer, query string, args ...any) ([]model.PaymentRequestRecord, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query payment requests: %w", err)
	}
	defer rows.Close()

	var records []model.PaymentRequestRecord
	for rows.Next() {
		rec, err := scanPaymentRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment request: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment requests: %w", err)
	}
	return records, nil
}

func scanPaymentRecord(s scanner) (*model.PaymentRequestRecord, error) {
	var rec model.PaymentRequestRecord
	var createdAt string
	var lastCheckedAt sql.NullString
	var paid, webhookReceived int

	err := s.Scan(
		&rec.ID, &rec.ExternalRequestID, &rec.CollectorID, &rec.PayerID, &rec.EventID, &rec.RegistrationID,
		&rec.AmountCents, &rec.PaymentLink, &rec.MonetaryAccountID, &createdAt, &lastCheckedAt,
		&paid, &webhookReceived,
	)
	if err != nil {
		return nil, err
	}

	rec.Paid = paid != 0
	rec.WebhookReceived = webhookReceived != 0

	rec.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	rec.LastCheckedAt, err = parseNullTime(lastCheckedAt)
	if err != nil {
		return nil, fmt.Errorf("parse last_checked_at: %w", err)
	}
	return &rec, nil
}
