package model

import "time"

// SessionState is a position in the bank token chain.
type SessionState int

const (
	StateNoInstallation SessionState = iota
	StateInstalled
	StateDeviceRegistered
	StateSessionActive
)

func (s SessionState) String() string {
	switch s {
	case StateNoInstallation:
		return "no_installation"
	case StateInstalled:
		return "installed"
	case StateDeviceRegistered:
		return "device_registered"
	case StateSessionActive:
		return "session_active"
	}
	return "unknown"
}

// BankSession is the decrypted token chain for one in-flight client. It is
// never persisted as such and never shared across requests.
type BankSession struct {
	APIKey            string
	InstallationToken string
	SigningPrivateKey string // PEM-encoded RSA private key.
	SessionToken      string
	UserID            int64
	MonetaryAccountID int64
}

// State derives the chain position from which tokens are present.
func (s BankSession) State() SessionState {
	switch {
	case s.InstallationToken == "" || s.SigningPrivateKey == "":
		return StateNoInstallation
	case s.SessionToken == "":
		return StateInstalled
	}
	return StateSessionActive
}

// AccountBinding records which monetary account a principal collects into.
type AccountBinding struct {
	PrincipalID       int64
	UserID            int64
	MonetaryAccountID int64
	UpdatedAt         time.Time
}

// MonetaryAccount is a bank account the principal can collect into.
type MonetaryAccount struct {
	ID          int64
	Description string
	IBAN        string
	Currency    string
	Status      string
}

// AliasType is the counterparty identifier kind on a request inquiry.
type AliasType string

const (
	AliasEmail AliasType = "EMAIL"
	AliasPhone AliasType = "PHONE_NUMBER"
)

// Counterparty is the person a payment request is addressed to.
type Counterparty struct {
	Type  AliasType
	Value string
	Name  string
}

// RequestInquiry is a payment request as issued to or read back from the bank.
type RequestInquiry struct {
	ID          int64
	AmountCents int64
	Currency    string
	Description string
	Status      string
	ShareURL    string
}

// RequestInquiryAccepted is the terminal paid status of a request inquiry.
const RequestInquiryAccepted = "ACCEPTED"

// IsPaid reports whether the bank considers the request settled.
func (r RequestInquiry) IsPaid() bool {
	return r.Status == RequestInquiryAccepted
}
