// Package bunq implements the BankAPI port against a bunq-style REST API.
package bunq

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/ericfisherdev/gamepay/internal/domain/model"
	"github.com/ericfisherdev/gamepay/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.BankAPI = (*Client)(nil)

const (
	// ProductionBaseURL is the live bunq API.
	ProductionBaseURL = "https://api.bunq.com/v1"
	// SandboxBaseURL is the bunq sandbox API.
	SandboxBaseURL = "https://public-api.sandbox.bunq.com/v1"

	requestTimeout = 30 * time.Second
	maxBodyBytes   = 4 << 20

	headerRequestID      = "X-Bunq-Client-Request-Id"
	headerAuthentication = "X-Bunq-Client-Authentication"
	headerSignature      = "X-Bunq-Client-Signature"
	headerGeolocation    = "X-Bunq-Geolocation"
	headerLanguage       = "X-Bunq-Language"
	headerRegion         = "X-Bunq-Region"
)

// Client implements the driven.BankAPI port over HTTP.
type Client struct {
	http      *http.Client
	baseURL   string
	userAgent string
}

// NewClient creates a bank API client with the following transport stack:
//  1. httpcache (serves user and account reads the bank marks cacheable;
//     status reads and mutations bypass it)
//  2. go-github-ratelimit (sleeps and retries on 429 with Retry-After)
//  3. a request timeout on the outer http.Client
func NewClient(baseURL, userAgent string) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	rateLimitClient.Timeout = requestTimeout

	return &Client{
		http:      rateLimitClient,
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
	}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string) (*Client, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	return &Client{
		http:      httpClient,
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: "gamepay-test",
	}, nil
}

// call describes one HTTP exchange with the bank.
type call struct {
	method string
	path   string
	body   any
	token  string
	signer *rsa.PrivateKey
	// fresh forces a GET past the response cache.
	fresh bool
}

// send performs the call and returns the raw body of a 2xx response. Non-2xx
// responses become *model.BankError; transport failures wrap
// model.ErrExternalService.
func (c *Client) send(ctx context.Context, cl call) (*driven.BankResponse, error) {
	var payload []byte
	if cl.body != nil {
		var err error
		payload, err = json.Marshal(cl.body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s %s: %w", cl.method, cl.path, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, c.baseURL+cl.path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request %s %s: %w", cl.method, cl.path, err)
	}

	if cl.fresh || cl.method != http.MethodGet {
		req.Header.Set("Cache-Control", "no-cache")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerRequestID, uuid.NewString())
	req.Header.Set(headerGeolocation, "0 0 0 0 000")
	req.Header.Set(headerLanguage, "en_US")
	req.Header.Set(headerRegion, "nl_NL")
	if cl.token != "" {
		req.Header.Set(headerAuthentication, cl.token)
	}
	if cl.signer != nil && len(payload) > 0 {
		signature, err := sign(cl.signer, payload)
		if err != nil {
			return nil, err
		}
		req.Header.Set(headerSignature, signature)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", model.ErrExternalService, cl.method, cl.path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s %s: %w", model.ErrExternalService, cl.method, cl.path, err)
	}

	slog.Debug("bank api call",
		"method", cl.method,
		"path", cl.path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &model.BankError{StatusCode: resp.StatusCode, Description: errorDescription(body)}
	}
	return &driven.BankResponse{StatusCode: resp.StatusCode, Body: body}, nil
}

// sign returns the base64 RSA PKCS#1 v1.5 signature of the SHA-256 digest of
// the request body.
func sign(key *rsa.PrivateKey, payload []byte) (string, error) {
	digest := sha256.Sum256(payload)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("sign request body: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}
