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
	_ driven.CredentialStore     = (*CredentialRepo)(nil)
	_ driven.AccountBindingStore = (*AccountBindingRepo)(nil)
)

// CredentialRepo is the SQLite implementation of the CredentialStore port.
// It stores sealed slots only; it never sees a plaintext secret or a password.
type CredentialRepo struct {
	db *DB
}

// NewCredentialRepo creates a new CredentialRepo backed by the given DB.
func NewCredentialRepo(db *DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

// PutSlots writes the given slots and clears their downstream slots in one
// transaction.
func (r *CredentialRepo) PutSlots(ctx context.Context, principalID int64, slots map[model.SecretSlot]model.EncryptedSecret) error {
	if len(slots) == 0 {
		return fmt.Errorf("%w: no slots to write", model.ErrValidation)
	}

	cleared := make(map[model.SecretSlot]bool)
	for slot, secret := range slots {
		if !slot.Valid() {
			return fmt.Errorf("%w: unknown slot %q", model.ErrValidation, slot)
		}
		if !complete(secret) {
			return fmt.Errorf("%w: slot %q is partially populated", model.ErrValidation, slot)
		}
		for _, d := range slot.Downstream() {
			cleared[d] = true
		}
	}
	for slot := range slots {
		delete(cleared, slot)
	}

	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		if _, writesKey := slots[model.SlotAPIKey]; !writesKey {
			var exists int
			err := tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM credential_slots WHERE principal_id = ? AND slot = ?`,
				principalID, string(model.SlotAPIKey),
			).Scan(&exists)
			if err != nil {
				return fmt.Errorf("check api key for principal %d: %w", principalID, err)
			}
			if exists == 0 {
				return fmt.Errorf("api key for principal %d: %w", principalID, model.ErrNotFound)
			}
		}

		for slot := range cleared {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM credential_slots WHERE principal_id = ? AND slot = ?`,
				principalID, string(slot),
			); err != nil {
				return fmt.Errorf("clear slot %q for principal %d: %w", slot, principalID, err)
			}
		}

		const upsert = `
			INSERT INTO credential_slots (principal_id, slot, ciphertext, iv, auth_tag, salt, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(principal_id, slot) DO UPDATE SET
				ciphertext = excluded.ciphertext,
				iv = excluded.iv,
				auth_tag = excluded.auth_tag,
				salt = excluded.salt,
				updated_at = excluded.updated_at
		`
		for slot, secret := range slots {
			if _, err := tx.ExecContext(ctx, upsert,
				principalID, string(slot), secret.Ciphertext, secret.IV, secret.AuthTag, secret.Salt,
				formatTime(secret.UpdatedAt),
			); err != nil {
				return fmt.Errorf("write slot %q for principal %d: %w", slot, principalID, err)
			}
		}
		return nil
	})
}

// GetSlot returns one sealed slot, or model.ErrNotFound.
func (r *CredentialRepo) GetSlot(ctx context.Context, principalID int64, slot model.SecretSlot) (*model.EncryptedSecret, error) {
	const query = `
		SELECT slot, ciphertext, iv, auth_tag, salt, updated_at
		FROM credential_slots
		WHERE principal_id = ? AND slot = ?
	`

	_, secret, err := scanSlot(r.db.Reader.QueryRowContext(ctx, query, principalID, string(slot)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("slot %q for principal %d: %w", slot, principalID, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get slot %q for principal %d: %w", slot, principalID, err)
	}
	return secret, nil
}

// GetRecord returns every stored slot for the principal.
func (r *CredentialRepo) GetRecord(ctx context.Context, principalID int64) (*model.CredentialRecord, error) {
	const query = `
		SELECT slot, ciphertext, iv, auth_tag, salt, updated_at
		FROM credential_slots
		WHERE principal_id = ?
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, principalID)
	if err != nil {
		return nil, fmt.Errorf("list slots for principal %d: %w", principalID, err)
	}
	defer rows.Close()

	record := &model.CredentialRecord{
		PrincipalID: principalID,
		Slots:       make(map[model.SecretSlot]model.EncryptedSecret),
	}
	for rows.Next() {
		slot, secret, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		record.Slots[slot] = *secret
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate slots: %w", err)
	}

	if !record.Has(model.SlotAPIKey) {
		return nil, fmt.Errorf("credentials for principal %d: %w", principalID, model.ErrNotFound)
	}
	return record, nil
}

// DeleteAll removes every slot and the account binding of the principal.
func (r *CredentialRepo) DeleteAll(ctx context.Context, principalID int64) error {
	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM credential_slots WHERE principal_id = ?`, principalID); err != nil {
			return fmt.Errorf("delete credentials for principal %d: %w", principalID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM bank_account_bindings WHERE principal_id = ?`, principalID); err != nil {
			return fmt.Errorf("delete account binding for principal %d: %w", principalID, err)
		}
		return nil
	})
}

func complete(s model.EncryptedSecret) bool {
	return len(s.Ciphertext) > 0 && len(s.IV) > 0 && len(s.AuthTag) > 0 && len(s.Salt) > 0 && !s.UpdatedAt.IsZero()
}

func scanSlot(s scanner) (model.SecretSlot, *model.EncryptedSecret, error) {
	var slot, updatedAt string
	var secret model.EncryptedSecret

	if err := s.Scan(&slot, &secret.Ciphertext, &secret.IV, &secret.AuthTag, &secret.Salt, &updatedAt); err != nil {
		return "", nil, err
	}

	var err error
	secret.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return "", nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return model.SecretSlot(slot), &secret, nil
}

// AccountBindingRepo is the SQLite implementation of the AccountBindingStore port.
type AccountBindingRepo struct {
	db *DB
}

// NewAccountBindingRepo creates a new AccountBindingRepo backed by the given DB.
func NewAccountBindingRepo(db *DB) *AccountBindingRepo {
	return &AccountBindingRepo{db: db}
}

// Get returns the principal's binding, or model.ErrNotFound.
func (r *AccountBindingRepo) Get(ctx context.Context, principalID int64) (*model.AccountBinding, error) {
	const query = `
		SELECT principal_id, user_id, monetary_account_id, updated_at
		FROM bank_account_bindings
		WHERE principal_id = ?
	`

	var b model.AccountBinding
	var updatedAt string
	err := r.db.Reader.QueryRowContext(ctx, query, principalID).
		Scan(&b.PrincipalID, &b.UserID, &b.MonetaryAccountID, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account binding for principal %d: %w", principalID, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get account binding for principal %d: %w", principalID, err)
	}

	b.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &b, nil
}

// Set stores or replaces the principal's binding.
func (r *AccountBindingRepo) Set(ctx context.Context, b model.AccountBinding) error {
	const query = `
		INSERT INTO bank_account_bindings (principal_id, user_id, monetary_account_id, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(principal_id) DO UPDATE SET
			user_id = excluded.user_id,
			monetary_account_id = excluded.monetary_account_id,
			updated_at = excluded.updated_at
	`

	updatedAt := b.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	if _, err := r.db.Writer.ExecContext(ctx, query, b.PrincipalID, b.UserID, b.MonetaryAccountID, formatTime(updatedAt)); err != nil {
		return fmt.Errorf("set account binding for principal %d: %w", b.PrincipalID, err)
	}
	return nil
}
