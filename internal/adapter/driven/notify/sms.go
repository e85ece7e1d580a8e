package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ericfisherdev/gamepay/internal/domain/model"
)

// SMSGateway posts text messages to an HTTP SMS gateway as
// {"to": "+31...", "message": "..."}. Any 2xx response counts as accepted.
type SMSGateway struct {
	http *http.Client
	url  string
}

// NewSMSGateway creates a gateway client for the given endpoint. It returns
// nil for an empty URL, which disables the channel.
func NewSMSGateway(url string) *SMSGateway {
	if url == "" {
		return nil
	}
	return &SMSGateway{http: &http.Client{Timeout: sendTimeout}, url: url}
}

// NewSMSGatewayWithHTTPClient creates an SMSGateway with a custom http.Client.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewSMSGatewayWithHTTPClient(httpClient *http.Client, url string) *SMSGateway {
	return &SMSGateway{http: httpClient, url: url}
}

type smsRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// Send delivers a plain-text message to a phone number.
func (g *SMSGateway) Send(ctx context.Context, phone, message string) error {
	payload, err := json.Marshal(smsRequest{To: phone, Message: message})
	if err != nil {
		return fmt.Errorf("encode sms: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: sms gateway: %v", model.ErrExternalService, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxReplySize))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: sms gateway responded %d", model.ErrExternalService, resp.StatusCode)
	}
	return nil
}
