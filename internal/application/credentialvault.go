package application

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"github.com/ericfisherdev/gamepay/internal/domain/model"
	"github.com/ericfisherdev/gamepay/internal/domain/port/driven"
)

const (
	// DefaultKDFIterations is the PBKDF2 work factor used when none is configured.
	DefaultKDFIterations = 210_000
	// MinKDFIterations is the lowest work factor the vault accepts.
	MinKDFIterations = 100_000

	saltSize = 16
	keySize  = 32
	ivSize   = 12
	tagSize  = 16
)

// CredentialVault seals a principal's bank secrets under a password-derived
// key. Each slot gets its own salt and IV, so slots can be rotated and read
// independently. The password is only ever held for the duration of a call.
type CredentialVault struct {
	store      driven.CredentialStore
	iterations int
	random     io.Reader
	now        func() time.Time
}

// NewCredentialVault creates a vault over the given store. iterations of zero
// selects DefaultKDFIterations; anything below MinKDFIterations is rejected.
// Secrets sealed under one work factor cannot be opened under another.
func NewCredentialVault(store driven.CredentialStore, iterations int) (*CredentialVault, error) {
	if iterations == 0 {
		iterations = DefaultKDFIterations
	}
	if iterations < MinKDFIterations {
		return nil, fmt.Errorf("%w: kdf iterations %d below minimum %d", model.ErrConfiguration, iterations, MinKDFIterations)
	}
	return &CredentialVault{
		store:      store,
		iterations: iterations,
		random:     rand.Reader,
		now:        time.Now,
	}, nil
}

// StoreSecret seals plaintext into one slot. Downstream slots are cleared in
// the same write.
func (v *CredentialVault) StoreSecret(ctx context.Context, principalID int64, slot model.SecretSlot, plaintext, password string) error {
	if !slot.Valid() {
		return fmt.Errorf("%w: unknown slot %q", model.ErrValidation, slot)
	}
	sealed, err := v.seal(plaintext, password)
	if err != nil {
		return fmt.Errorf("seal %s: %w", slot, err)
	}
	return v.store.PutSlots(ctx, principalID, map[model.SecretSlot]model.EncryptedSecret{slot: sealed})
}

// StoreInstallation seals a new installation token together with the private
// key it was registered with, clearing the session opened under the previous
// installation.
func (v *CredentialVault) StoreInstallation(ctx context.Context, principalID int64, installationToken, privateKeyPEM, password string) error {
	token, err := v.seal(installationToken, password)
	if err != nil {
		return fmt.Errorf("seal installation token: %w", err)
	}
	key, err := v.seal(privateKeyPEM, password)
	if err != nil {
		return fmt.Errorf("seal private key: %w", err)
	}
	return v.store.PutSlots(ctx, principalID, map[model.SecretSlot]model.EncryptedSecret{
		model.SlotInstallationToken: token,
		model.SlotPrivateKey:        key,
	})
}

// ReadSecret opens one slot. It returns model.ErrNotFound for an empty slot
// and model.ErrDecryptFailed for a wrong password or tampered ciphertext.
func (v *CredentialVault) ReadSecret(ctx context.Context, principalID int64, slot model.SecretSlot, password string) (string, error) {
	sealed, err := v.store.GetSlot(ctx, principalID, slot)
	if err != nil {
		return "", err
	}
	plaintext, err := v.open(*sealed, password)
	if err != nil {
		return "", fmt.Errorf("open %s for principal %d: %w", slot, principalID, err)
	}
	return plaintext, nil
}

// LoadSession decrypts every stored slot into a BankSession. The monetary
// account binding is not part of the vault and is left zero.
func (v *CredentialVault) LoadSession(ctx context.Context, principalID int64, password string) (*model.BankSession, error) {
	record, err := v.store.GetRecord(ctx, principalID)
	if err != nil {
		return nil, err
	}

	plain := make(map[model.SecretSlot]string, len(record.Slots))
	for slot, sealed := range record.Slots {
		p, err := v.open(sealed, password)
		if err != nil {
			return nil, fmt.Errorf("open %s for principal %d: %w", slot, principalID, err)
		}
		plain[slot] = p
	}

	return &model.BankSession{
		APIKey:            plain[model.SlotAPIKey],
		InstallationToken: plain[model.SlotInstallationToken],
		SigningPrivateKey: plain[model.SlotPrivateKey],
		SessionToken:      plain[model.SlotSessionToken],
	}, nil
}

// DeleteAll removes every slot and the account binding of the principal.
func (v *CredentialVault) DeleteAll(ctx context.Context, principalID int64) error {
	if err := v.store.DeleteAll(ctx, principalID); err != nil {
		return fmt.Errorf("delete credentials for principal %d: %w", principalID, err)
	}
	return nil
}

func (v *CredentialVault) seal(plaintext, password string) (model.EncryptedSecret, error) {
	if plaintext == "" {
		return model.EncryptedSecret{}, fmt.Errorf("%w: empty secret", model.ErrValidation)
	}
	if password == "" {
		return model.EncryptedSecret{}, fmt.Errorf("%w: empty password", model.ErrValidation)
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(v.random, salt); err != nil {
		return model.EncryptedSecret{}, fmt.Errorf("generate salt: %w", err)
	}
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(v.random, iv); err != nil {
		return model.EncryptedSecret{}, fmt.Errorf("generate iv: %w", err)
	}

	aead, err := v.aead(password, salt)
	if err != nil {
		return model.EncryptedSecret{}, err
	}

	out := aead.Seal(nil, iv, []byte(plaintext), nil)
	split := len(out) - tagSize
	return model.EncryptedSecret{
		Ciphertext: out[:split],
		AuthTag:    out[split:],
		IV:         iv,
		Salt:       salt,
		UpdatedAt:  v.now(),
	}, nil
}

func (v *CredentialVault) open(sealed model.EncryptedSecret, password string) (string, error) {
	if len(sealed.IV) != ivSize || len(sealed.AuthTag) != tagSize {
		return "", model.ErrDecryptFailed
	}

	aead, err := v.aead(password, sealed.Salt)
	if err != nil {
		return "", err
	}

	combined := make([]byte, 0, len(sealed.Ciphertext)+len(sealed.AuthTag))
	combined = append(combined, sealed.Ciphertext...)
	combined = append(combined, sealed.AuthTag...)

	plaintext, err := aead.Open(nil, sealed.IV, combined, nil)
	if err != nil {
		return "", model.ErrDecryptFailed
	}
	return string(plaintext), nil
}

func (v *CredentialVault) aead(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, v.iterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return aead, nil
}
