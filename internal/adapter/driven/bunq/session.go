package bunq

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"

	"github.com/ericfisherdev/gamepay/internal/domain/port/driven"
)

// CreateInstallation registers the client public key and returns the
// installation token.
func (c *Client) CreateInstallation(ctx context.Context, publicKeyPEM string) (*driven.InstallationResult, error) {
	resp, err := c.send(ctx, call{
		method: http.MethodPost,
		path:   "/installation",
		body:   map[string]string{"client_public_key": publicKeyPEM},
	})
	if err != nil {
		return nil, fmt.Errorf("create installation: %w", err)
	}

	env, err := decodeEnvelope(resp.Body)
	if err != nil {
		return nil, err
	}
	var token tokenObject
	if _, err := env.first(&token, "Token"); err != nil {
		return nil, fmt.Errorf("create installation: %w", err)
	}
	return &driven.InstallationResult{Token: token.Token}, nil
}

// RegisterDevice binds the API key to the installation. All IPs are
// permitted so the service can move between hosts.
func (c *Client) RegisterDevice(ctx context.Context, installationToken, apiKey, description string) error {
	_, err := c.send(ctx, call{
		method: http.MethodPost,
		path:   "/device-server",
		token:  installationToken,
		body: map[string]any{
			"description":   description,
			"secret":        apiKey,
			"permitted_ips": []string{"*"},
		},
	})
	if err != nil {
		return fmt.Errorf("register device: %w", err)
	}
	return nil
}

// CreateSession opens a session for the API key. The body is signed with the
// installation private key.
func (c *Client) CreateSession(ctx context.Context, installationToken string, signer *rsa.PrivateKey, apiKey string) (*driven.SessionResult, error) {
	resp, err := c.send(ctx, call{
		method: http.MethodPost,
		path:   "/session-server",
		token:  installationToken,
		signer: signer,
		body:   map[string]string{"secret": apiKey},
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	env, err := decodeEnvelope(resp.Body)
	if err != nil {
		return nil, err
	}
	var token tokenObject
	if _, err := env.first(&token, "Token"); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	result := &driven.SessionResult{Token: token.Token}
	var user idObject
	if _, err := env.first(&user, userKeys...); err == nil {
		result.UserID = user.ID
	}
	return result, nil
}

// userKeys are the resource names the bank uses for the session owner.
var userKeys = []string{"UserPerson", "UserCompany", "UserApiKey", "UserPaymentServiceProvider"}
