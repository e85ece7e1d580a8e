package driven

import (
	"context"

	"github.com/ericfisherdev/gamepay/internal/domain/model"
)

// CredentialStore defines the driven port for sealed credential persistence.
// The store only ever sees ciphertext; encryption happens in the vault.
type CredentialStore interface {
	// PutSlots writes the given slots and clears every slot downstream of
	// them in a single transaction. Writing anything other than the API key
	// requires an API key to be present; model.ErrNotFound otherwise.
	PutSlots(ctx context.Context, principalID int64, slots map[model.SecretSlot]model.EncryptedSecret) error

	// GetSlot returns one sealed slot, or model.ErrNotFound.
	GetSlot(ctx context.Context, principalID int64, slot model.SecretSlot) (*model.EncryptedSecret, error)

	// GetRecord returns every stored slot for the principal, or
	// model.ErrNotFound when the principal has no API key stored.
	GetRecord(ctx context.Context, principalID int64) (*model.CredentialRecord, error)

	// DeleteAll removes every slot and the monetary account binding.
	DeleteAll(ctx context.Context, principalID int64) error
}

// AccountBindingStore persists which monetary account a principal collects into.
type AccountBindingStore interface {
	// Get returns the binding, or model.ErrNotFound.
	Get(ctx context.Context, principalID int64) (*model.AccountBinding, error)
	Set(ctx context.Context, binding model.AccountBinding) error
}
