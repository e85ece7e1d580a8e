package model

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every layer. Adapters wrap these with context;
// the HTTP layer maps them to status codes with errors.Is.
var (
	// ErrConfiguration marks a feature that cannot run because required
	// credentials or settings are missing.
	ErrConfiguration = errors.New("configuration error")

	// ErrAuthentication covers a wrong vault password and a bank that rejects
	// the API key or a freshly issued session.
	ErrAuthentication = errors.New("authentication failure")

	// ErrTokenExpired is raised by the bank adapter on HTTP 401. The session
	// manager consumes it and refreshes once; callers should never see it.
	ErrTokenExpired = errors.New("bank session token expired")

	// ErrExternalService is a bank or gateway that is unreachable or returned
	// a non-2xx response other than 401.
	ErrExternalService = errors.New("external service error")

	// ErrNotFound is returned for unknown principals, slots and records.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation error")

	// ErrDecryptFailed is returned when an authenticated decryption fails.
	// A wrong password cannot be told apart from tampered ciphertext.
	ErrDecryptFailed = fmt.Errorf("decrypt failed: %w", ErrAuthentication)
)

// BankError is a non-2xx response from the bank API.
type BankError struct {
	StatusCode  int
	Description string
}

func (e *BankError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("bank responded %d", e.StatusCode)
	}
	return fmt.Sprintf("bank responded %d: %s", e.StatusCode, e.Description)
}

// Unwrap classifies the response so callers can use errors.Is with the
// taxonomy sentinels.
func (e *BankError) Unwrap() error {
	if e.StatusCode == 401 {
		return ErrTokenExpired
	}
	return ErrExternalService
}
