package application

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ericfisherdev/gamepay/internal/domain/model"
	"github.com/ericfisherdev/gamepay/internal/domain/port/driven"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.BankClientFactory = (*SessionManager)(nil)
	_ driven.BankClient        = (*AuthenticatedClient)(nil)
)

const installationKeyBits = 2048

// SessionManager drives the bank token chain
// (installation, device registration, session) for each principal and hands
// out clients that refresh the chain transparently when a session expires.
type SessionManager struct {
	vault             *CredentialVault
	bindings          driven.AccountBindingStore
	bank              driven.BankAPI
	deviceDescription string
}

// NewSessionManager creates a SessionManager.
func NewSessionManager(vault *CredentialVault, bindings driven.AccountBindingStore, bank driven.BankAPI, deviceDescription string) *SessionManager {
	return &SessionManager{
		vault:             vault,
		bindings:          bindings,
		bank:              bank,
		deviceDescription: deviceDescription,
	}
}

// Client unseals the principal's credentials and returns an authenticated
// client. No bank call is made until the client is first used.
func (m *SessionManager) Client(ctx context.Context, principalID int64, password string) (driven.BankClient, error) {
	session, err := m.vault.LoadSession(ctx, principalID, password)
	if err != nil {
		return nil, fmt.Errorf("load bank session for principal %d: %w", principalID, err)
	}

	binding, err := m.bindings.Get(ctx, principalID)
	switch {
	case err == nil:
		session.UserID = binding.UserID
		session.MonetaryAccountID = binding.MonetaryAccountID
	case errors.Is(err, model.ErrNotFound):
	default:
		return nil, fmt.Errorf("load account binding for principal %d: %w", principalID, err)
	}

	return &AuthenticatedClient{
		manager:     m,
		principalID: principalID,
		password:    password,
		session:     *session,
		state:       session.State(),
	}, nil
}

// AuthenticatedClient is a per-request bank handle for one principal. It
// holds the decrypted token chain in memory for its own lifetime only.
type AuthenticatedClient struct {
	manager     *SessionManager
	principalID int64
	password    string

	mu      sync.Mutex
	session model.BankSession
	state   model.SessionState
	signer  *rsa.PrivateKey
}

// State reports where the client is in the token chain.
func (c *AuthenticatedClient) State() model.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Issue runs a raw bank call with the current session.
func (c *AuthenticatedClient) Issue(ctx context.Context, req driven.BankRequest) (*driven.BankResponse, error) {
	var resp *driven.BankResponse
	err := c.withSession(ctx, func(auth driven.SessionAuth) error {
		var err error
		resp, err = c.manager.bank.Do(ctx, auth, req)
		return err
	})
	return resp, err
}

// UserID returns the bank user id of the principal, asking the bank when it
// was not learned from the session or the account binding.
func (c *AuthenticatedClient) UserID(ctx context.Context) (int64, error) {
	c.mu.Lock()
	known := c.session.UserID
	c.mu.Unlock()
	if known != 0 {
		return known, nil
	}

	var userID int64
	err := c.withSession(ctx, func(auth driven.SessionAuth) error {
		// Opening the session may have named the user already.
		c.mu.Lock()
		userID = c.session.UserID
		c.mu.Unlock()
		if userID != 0 {
			return nil
		}

		var err error
		userID, err = c.manager.bank.CurrentUserID(ctx, auth)
		return err
	})
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.session.UserID = userID
	c.mu.Unlock()
	return userID, nil
}

// ListMonetaryAccounts returns the principal's bank accounts.
func (c *AuthenticatedClient) ListMonetaryAccounts(ctx context.Context) ([]model.MonetaryAccount, error) {
	userID, err := c.UserID(ctx)
	if err != nil {
		return nil, err
	}

	var accounts []model.MonetaryAccount
	err = c.withSession(ctx, func(auth driven.SessionAuth) error {
		var err error
		accounts, err = c.manager.bank.ListMonetaryAccounts(ctx, auth, userID)
		return err
	})
	return accounts, err
}

// CreateRequestInquiry issues a payment request from the given account.
func (c *AuthenticatedClient) CreateRequestInquiry(ctx context.Context, accountID int64, inquiry model.RequestInquiry, to model.Counterparty) (int64, error) {
	userID, err := c.UserID(ctx)
	if err != nil {
		return 0, err
	}

	var id int64
	err = c.withSession(ctx, func(auth driven.SessionAuth) error {
		var err error
		id, err = c.manager.bank.CreateRequestInquiry(ctx, auth, userID, accountID, inquiry, to)
		return err
	})
	return id, err
}

// GetRequestInquiry reads a payment request back from the bank.
func (c *AuthenticatedClient) GetRequestInquiry(ctx context.Context, accountID, requestID int64) (*model.RequestInquiry, error) {
	userID, err := c.UserID(ctx)
	if err != nil {
		return nil, err
	}

	var inquiry *model.RequestInquiry
	err = c.withSession(ctx, func(auth driven.SessionAuth) error {
		var err error
		inquiry, err = c.manager.bank.GetRequestInquiry(ctx, auth, userID, accountID, requestID)
		return err
	})
	return inquiry, err
}

// InstallNotificationFilter routes the account's notifications of a category
// to targetURL.
func (c *AuthenticatedClient) InstallNotificationFilter(ctx context.Context, accountID int64, category, targetURL string) error {
	userID, err := c.UserID(ctx)
	if err != nil {
		return err
	}

	return c.withSession(ctx, func(auth driven.SessionAuth) error {
		return c.manager.bank.InstallNotificationFilter(ctx, auth, userID, accountID, category, targetURL)
	})
}

// withSession runs fn with an active session. When fn reports an expired
// session the whole chain is rebuilt and fn is replayed exactly once.
func (c *AuthenticatedClient) withSession(ctx context.Context, fn func(driven.SessionAuth) error) error {
	auth, err := c.activeAuth(ctx, false)
	if err != nil {
		return err
	}

	err = fn(auth)
	if !errors.Is(err, model.ErrTokenExpired) {
		return err
	}

	slog.Info("bank session rejected, re-authenticating", "principal_id", c.principalID)

	auth, err = c.activeAuth(ctx, true)
	if err != nil {
		return err
	}

	err = fn(auth)
	if errors.Is(err, model.ErrTokenExpired) {
		return fmt.Errorf("%w: bank rejected a freshly opened session: %w", model.ErrAuthentication, err)
	}
	return err
}

// activeAuth walks the chain to SessionActive, starting over from a new
// installation when reset is set.
func (c *AuthenticatedClient) activeAuth(ctx context.Context, reset bool) (driven.SessionAuth, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if reset {
		c.state = model.StateNoInstallation
	}
	if err := c.manager.authenticate(ctx, c); err != nil {
		return driven.SessionAuth{}, err
	}
	return driven.SessionAuth{Token: c.session.SessionToken, Signer: c.signer}, nil
}

// authenticate advances the client until its session is active. The caller
// holds c.mu.
func (m *SessionManager) authenticate(ctx context.Context, c *AuthenticatedClient) error {
	reinstalled := false

	for c.state != model.StateSessionActive {
		var err error
		switch c.state {
		case model.StateNoInstallation:
			err = m.install(ctx, c)
		case model.StateInstalled:
			err = m.registerDevice(ctx, c)
			if err != nil && !reinstalled {
				// The installation may be stale; mint a fresh one once.
				slog.Warn("device registration failed, re-installing",
					"principal_id", c.principalID, "error", err)
				reinstalled = true
				c.state = model.StateNoInstallation
				continue
			}
		case model.StateDeviceRegistered:
			err = m.openSession(ctx, c)
		default:
			err = fmt.Errorf("unknown session state %d", c.state)
		}
		if err != nil {
			if errors.Is(err, model.ErrTokenExpired) {
				return fmt.Errorf("%w: bank rejected credentials for principal %d: %w", model.ErrAuthentication, c.principalID, err)
			}
			return err
		}
	}

	if c.signer == nil {
		signer, err := parsePrivateKey(c.session.SigningPrivateKey)
		if err != nil {
			return err
		}
		c.signer = signer
	}
	return nil
}

// install generates a signing keypair, registers its public half and stores
// the new installation. NoInstallation -> Installed.
func (m *SessionManager) install(ctx context.Context, c *AuthenticatedClient) error {
	key, err := rsa.GenerateKey(rand.Reader, installationKeyBits)
	if err != nil {
		return fmt.Errorf("generate installation key: %w", err)
	}
	publicPEM, privatePEM, err := encodeKeyPair(key)
	if err != nil {
		return err
	}

	result, err := m.bank.CreateInstallation(ctx, publicPEM)
	if err != nil {
		return fmt.Errorf("install for principal %d: %w", c.principalID, err)
	}

	if err := m.vault.StoreInstallation(ctx, c.principalID, result.Token, privatePEM, c.password); err != nil {
		return fmt.Errorf("persist installation for principal %d: %w", c.principalID, err)
	}

	c.session.InstallationToken = result.Token
	c.session.SigningPrivateKey = privatePEM
	c.session.SessionToken = ""
	c.signer = key
	c.state = model.StateInstalled
	slog.Info("bank installation created", "principal_id", c.principalID)
	return nil
}

// registerDevice binds the API key to the installation.
// Installed -> DeviceRegistered.
func (m *SessionManager) registerDevice(ctx context.Context, c *AuthenticatedClient) error {
	if err := m.bank.RegisterDevice(ctx, c.session.InstallationToken, c.session.APIKey, m.deviceDescription); err != nil {
		return fmt.Errorf("register device for principal %d: %w", c.principalID, err)
	}
	c.state = model.StateDeviceRegistered
	return nil
}

// openSession opens and stores a session. DeviceRegistered -> SessionActive.
func (m *SessionManager) openSession(ctx context.Context, c *AuthenticatedClient) error {
	if c.signer == nil {
		signer, err := parsePrivateKey(c.session.SigningPrivateKey)
		if err != nil {
			return err
		}
		c.signer = signer
	}

	result, err := m.bank.CreateSession(ctx, c.session.InstallationToken, c.signer, c.session.APIKey)
	if err != nil {
		return fmt.Errorf("open session for principal %d: %w", c.principalID, err)
	}

	if err := m.vault.StoreSecret(ctx, c.principalID, model.SlotSessionToken, result.Token, c.password); err != nil {
		return fmt.Errorf("persist session for principal %d: %w", c.principalID, err)
	}

	c.session.SessionToken = result.Token
	if result.UserID != 0 {
		c.session.UserID = result.UserID
	}
	c.state = model.StateSessionActive
	slog.Info("bank session opened", "principal_id", c.principalID)
	return nil
}

func encodeKeyPair(key *rsa.PrivateKey) (publicPEM, privatePEM string, err error) {
	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return "", "", fmt.Errorf("marshal public key: %w", err)
	}
	priv, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", "", fmt.Errorf("marshal private key: %w", err)
	}
	publicPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pub}))
	privatePEM = string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: priv}))
	return publicPEM, privatePEM, nil
}

func parsePrivateKey(privatePEM string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(privatePEM))
	if block == nil {
		return nil, fmt.Errorf("%w: stored signing key is not PEM", model.ErrConfiguration)
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parse signing key: %w", model.ErrConfiguration, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: signing key is not RSA", model.ErrConfiguration)
	}
	return key, nil
}
