package model

import "time"

// SecretSlot identifies one of the independently encrypted secrets held for a
// principal's bank integration.
type SecretSlot string

const (
	SlotAPIKey            SecretSlot = "api_key"
	SlotInstallationToken SecretSlot = "installation_token"
	SlotPrivateKey        SecretSlot = "private_key"
	SlotSessionToken      SecretSlot = "session_token"
)

// AllSlots lists every slot in dependency order: each slot is invalidated
// when any slot before it in the chain is rotated.
var AllSlots = []SecretSlot{SlotAPIKey, SlotInstallationToken, SlotPrivateKey, SlotSessionToken}

// Valid reports whether s is a known slot.
func (s SecretSlot) Valid() bool {
	switch s {
	case SlotAPIKey, SlotInstallationToken, SlotPrivateKey, SlotSessionToken:
		return true
	}
	return false
}

// Downstream returns the slots that must be cleared when s is written.
// The API key invalidates the whole chain; an installation token invalidates
// the session that was opened against the previous installation.
func (s SecretSlot) Downstream() []SecretSlot {
	switch s {
	case SlotAPIKey:
		return []SecretSlot{SlotInstallationToken, SlotPrivateKey, SlotSessionToken}
	case SlotInstallationToken, SlotPrivateKey:
		return []SecretSlot{SlotSessionToken}
	}
	return nil
}

// EncryptedSecret is one sealed slot. All fields are populated or the slot
// does not exist.
type EncryptedSecret struct {
	Ciphertext []byte
	IV         []byte
	AuthTag    []byte
	Salt       []byte
	UpdatedAt  time.Time
}

// CredentialRecord is the full set of sealed slots stored for a principal.
// Missing slots are absent from the map.
type CredentialRecord struct {
	PrincipalID int64
	Slots       map[SecretSlot]EncryptedSecret
}

// Has reports whether the record holds the given slot.
func (r CredentialRecord) Has(slot SecretSlot) bool {
	_, ok := r.Slots[slot]
	return ok
}
