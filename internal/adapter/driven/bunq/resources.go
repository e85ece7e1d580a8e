package bunq

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ericfisherdev/gamepay/internal/domain/model"
	"github.com/ericfisherdev/gamepay/internal/domain/port/driven"
)

// Do issues a raw session-authenticated call.
func (c *Client) Do(ctx context.Context, auth driven.SessionAuth, req driven.BankRequest) (*driven.BankResponse, error) {
	return c.send(ctx, call{
		method: req.Method,
		path:   req.Path,
		body:   req.Body,
		token:  auth.Token,
		signer: auth.Signer,
	})
}

// CurrentUserID returns the id of the user the session belongs to.
func (c *Client) CurrentUserID(ctx context.Context, auth driven.SessionAuth) (int64, error) {
	resp, err := c.Do(ctx, auth, driven.BankRequest{Method: http.MethodGet, Path: "/user"})
	if err != nil {
		return 0, fmt.Errorf("get user: %w", err)
	}

	env, err := decodeEnvelope(resp.Body)
	if err != nil {
		return 0, err
	}
	var user idObject
	if _, err := env.first(&user, userKeys...); err != nil {
		return 0, fmt.Errorf("get user: %w", err)
	}
	return user.ID, nil
}

// ListMonetaryAccounts returns the user's bank accounts.
func (c *Client) ListMonetaryAccounts(ctx context.Context, auth driven.SessionAuth, userID int64) ([]model.MonetaryAccount, error) {
	resp, err := c.Do(ctx, auth, driven.BankRequest{
		Method: http.MethodGet,
		Path:   fmt.Sprintf("/user/%d/monetary-account-bank", userID),
	})
	if err != nil {
		return nil, fmt.Errorf("list monetary accounts for user %d: %w", userID, err)
	}

	env, err := decodeEnvelope(resp.Body)
	if err != nil {
		return nil, err
	}

	accounts := []model.MonetaryAccount{}
	err = env.all("MonetaryAccountBank", func(raw json.RawMessage) error {
		var obj monetaryAccountObject
		if err := json.Unmarshal(raw, &obj); err != nil {
			return err
		}
		accounts = append(accounts, obj.toModel())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

type requestInquiryBody struct {
	AmountInquired    amount `json:"amount_inquired"`
	CounterpartyAlias alias  `json:"counterparty_alias"`
	Description       string `json:"description"`
	AllowBunqme       bool   `json:"allow_bunqme"`
}

// CreateRequestInquiry issues a payment request and returns its id.
func (c *Client) CreateRequestInquiry(ctx context.Context, auth driven.SessionAuth, userID, accountID int64, inquiry model.RequestInquiry, to model.Counterparty) (int64, error) {
	currency := inquiry.Currency
	if currency == "" {
		currency = "EUR"
	}

	resp, err := c.Do(ctx, auth, driven.BankRequest{
		Method: http.MethodPost,
		Path:   requestInquiryPath(userID, accountID),
		Body: requestInquiryBody{
			AmountInquired:    amount{Value: model.FormatAmount(inquiry.AmountCents), Currency: currency},
			CounterpartyAlias: alias{Type: string(to.Type), Value: to.Value, Name: to.Name},
			Description:       inquiry.Description,
			AllowBunqme:       true,
		},
	})
	if err != nil {
		return 0, fmt.Errorf("create request inquiry: %w", err)
	}

	env, err := decodeEnvelope(resp.Body)
	if err != nil {
		return 0, err
	}
	var id idObject
	if _, err := env.first(&id, "Id"); err != nil {
		return 0, fmt.Errorf("create request inquiry: %w", err)
	}
	return id.ID, nil
}

// GetRequestInquiry reads a payment request back, including its status and
// share link.
func (c *Client) GetRequestInquiry(ctx context.Context, auth driven.SessionAuth, userID, accountID, requestID int64) (*model.RequestInquiry, error) {
	resp, err := c.send(ctx, call{
		method: http.MethodGet,
		path:   fmt.Sprintf("%s/%d", requestInquiryPath(userID, accountID), requestID),
		token:  auth.Token,
		signer: auth.Signer,
		fresh:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("get request inquiry %d: %w", requestID, err)
	}

	env, err := decodeEnvelope(resp.Body)
	if err != nil {
		return nil, err
	}
	var obj requestInquiryObject
	if _, err := env.first(&obj, "RequestInquiry"); err != nil {
		return nil, fmt.Errorf("get request inquiry %d: %w", requestID, err)
	}
	return obj.toModel()
}

// InstallNotificationFilter points the account's notifications of the given
// category at targetURL.
func (c *Client) InstallNotificationFilter(ctx context.Context, auth driven.SessionAuth, userID, accountID int64, category, targetURL string) error {
	_, err := c.Do(ctx, auth, driven.BankRequest{
		Method: http.MethodPost,
		Path:   fmt.Sprintf("/user/%d/monetary-account/%d/notification-filter-url", userID, accountID),
		Body: map[string]any{
			"notification_filters": []map[string]string{
				{"category": category, "notification_target": targetURL},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("install %s notification filter: %w", category, err)
	}
	return nil
}

func requestInquiryPath(userID, accountID int64) string {
	return fmt.Sprintf("/user/%d/monetary-account/%d/request-inquiry", userID, accountID)
}
