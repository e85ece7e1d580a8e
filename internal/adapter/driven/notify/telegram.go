// Package notify implements the Notifier port over a Telegram bot and an
// SMS gateway.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ericfisherdev/gamepay/internal/domain/model"
)

const (
	// TelegramBaseURL is the public Bot API endpoint.
	TelegramBaseURL = "https://api.telegram.org"

	sendTimeout  = 10 * time.Second
	maxReplySize = 1 << 20
)

// TelegramClient sends messages through the Telegram Bot API.
type TelegramClient struct {
	http    *http.Client
	baseURL string
	token   string
}

// NewTelegramClient creates a client for the given bot token. It returns nil
// for an empty token, which disables the channel.
func NewTelegramClient(token string) *TelegramClient {
	if token == "" {
		return nil
	}
	return &TelegramClient{
		http:    &http.Client{Timeout: sendTimeout},
		baseURL: TelegramBaseURL,
		token:   token,
	}
}

// NewTelegramClientWithHTTPClient creates a TelegramClient with a custom
// http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewTelegramClientWithHTTPClient(httpClient *http.Client, baseURL, token string) *TelegramClient {
	return &TelegramClient{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

type sendMessageRequest struct {
	ChatID                int64  `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type botAPIReply struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// SendHTML delivers an HTML-formatted message to a chat.
func (c *TelegramClient) SendHTML(ctx context.Context, chatID int64, html string) error {
	payload, err := json.Marshal(sendMessageRequest{
		ChatID:                chatID,
		Text:                  html,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("encode telegram message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// The URL carries the bot token; keep it out of the error.
		return fmt.Errorf("%w: telegram send failed", model.ErrExternalService)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
	if err != nil {
		return fmt.Errorf("%w: read telegram reply: %v", model.ErrExternalService, err)
	}

	var reply botAPIReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return fmt.Errorf("%w: telegram responded %d", model.ErrExternalService, resp.StatusCode)
	}
	if !reply.OK {
		return fmt.Errorf("%w: telegram responded %d: %s", model.ErrExternalService, resp.StatusCode, reply.Description)
	}
	return nil
}
