package driven

import (
	"context"
	"crypto/rsa"

	"github.com/ericfisherdev/gamepay/internal/domain/model"
)

// InstallationResult is the outcome of registering a client public key.
type InstallationResult struct {
	Token string
}

// SessionResult is the outcome of opening a bank session. UserID is zero when
// the bank did not name the user in the session response.
type SessionResult struct {
	Token  string
	UserID int64
}

// SessionAuth carries the credentials of an open session. Request bodies are
// signed with Signer.
type SessionAuth struct {
	Token  string
	Signer *rsa.PrivateKey
}

// BankRequest is a raw call against the bank API. Path is relative to the API
// base, e.g. "/user/1/monetary-account/2/request-inquiry".
type BankRequest struct {
	Method string
	Path   string
	Body   any
}

// BankResponse is the raw JSON payload of a successful bank call.
type BankResponse struct {
	StatusCode int
	Body       []byte
}

// BankAPI defines the driven port for the third-party bank. The first three
// methods walk the token chain; the rest run with an open session. A 401 from
// any call is reported as an error wrapping model.ErrTokenExpired.
type BankAPI interface {
	CreateInstallation(ctx context.Context, publicKeyPEM string) (*InstallationResult, error)
	RegisterDevice(ctx context.Context, installationToken, apiKey, description string) error
	CreateSession(ctx context.Context, installationToken string, signer *rsa.PrivateKey, apiKey string) (*SessionResult, error)

	Do(ctx context.Context, auth SessionAuth, req BankRequest) (*BankResponse, error)
	CurrentUserID(ctx context.Context, auth SessionAuth) (int64, error)
	ListMonetaryAccounts(ctx context.Context, auth SessionAuth, userID int64) ([]model.MonetaryAccount, error)
	CreateRequestInquiry(ctx context.Context, auth SessionAuth, userID, accountID int64, inquiry model.RequestInquiry, to model.Counterparty) (int64, error)
	GetRequestInquiry(ctx context.Context, auth SessionAuth, userID, accountID, requestID int64) (*model.RequestInquiry, error)
	InstallNotificationFilter(ctx context.Context, auth SessionAuth, userID, accountID int64, category, targetURL string) error
}

// BankClient is an authenticated, self-refreshing handle for one principal.
// Callers never see the token chain; a call that fails with an expired
// session is refreshed and replayed once.
type BankClient interface {
	Issue(ctx context.Context, req BankRequest) (*BankResponse, error)
	UserID(ctx context.Context) (int64, error)
	ListMonetaryAccounts(ctx context.Context) ([]model.MonetaryAccount, error)
	CreateRequestInquiry(ctx context.Context, accountID int64, inquiry model.RequestInquiry, to model.Counterparty) (int64, error)
	GetRequestInquiry(ctx context.Context, accountID, requestID int64) (*model.RequestInquiry, error)
	InstallNotificationFilter(ctx context.Context, accountID int64, category, targetURL string) error
}

// BankClientFactory opens an authenticated client for a principal using the
// vault password to unseal its credentials.
type BankClientFactory interface {
	Client(ctx context.Context, principalID int64, password string) (BankClient, error)
}
