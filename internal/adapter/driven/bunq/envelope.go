package bunq

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ericfisherdev/gamepay/internal/domain/model"
)

// envelope is the outer shape of every bank response. Each Response item is
// a single-key object naming the resource type, e.g. {"Token": {...}}.
type envelope struct {
	Response []map[string]json.RawMessage `json:"Response"`
	Error    []struct {
		ErrorDescription string `json:"error_description"`
	} `json:"Error"`
}

func decodeEnvelope(body []byte) (*envelope, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: decode bank response: %w", model.ErrExternalService, err)
	}
	return &env, nil
}

// first decodes the first Response item with one of the given keys into dst.
// It returns the key that matched.
func (e *envelope) first(dst any, keys ...string) (string, error) {
	for _, item := range e.Response {
		for _, key := range keys {
			raw, ok := item[key]
			if !ok {
				continue
			}
			if err := json.Unmarshal(raw, dst); err != nil {
				return "", fmt.Errorf("%w: decode %s: %w", model.ErrExternalService, key, err)
			}
			return key, nil
		}
	}
	return "", fmt.Errorf("%w: bank response has no %s", model.ErrExternalService, strings.Join(keys, " or "))
}

// all decodes every Response item under key with fn.
func (e *envelope) all(key string, fn func(raw json.RawMessage) error) error {
	for _, item := range e.Response {
		raw, ok := item[key]
		if !ok {
			continue
		}
		if err := fn(raw); err != nil {
			return fmt.Errorf("%w: decode %s: %w", model.ErrExternalService, key, err)
		}
	}
	return nil
}

// errorDescription extracts the bank's error text from a failed response.
func errorDescription(body []byte) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil || len(env.Error) == 0 {
		return ""
	}
	descs := make([]string, 0, len(env.Error))
	for _, e := range env.Error {
		descs = append(descs, e.ErrorDescription)
	}
	return strings.Join(descs, "; ")
}

type idObject struct {
	ID int64 `json:"id"`
}

type tokenObject struct {
	ID    int64  `json:"id"`
	Token string `json:"token"`
}

type amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type alias struct {
	Type  string `json:"type"`
	Value string `json:"value"`
	Name  string `json:"name,omitempty"`
}

type monetaryAccountObject struct {
	ID          int64   `json:"id"`
	Description string  `json:"description"`
	Currency    string  `json:"currency"`
	Status      string  `json:"status"`
	Alias       []alias `json:"alias"`
}

func (m monetaryAccountObject) toModel() model.MonetaryAccount {
	acct := model.MonetaryAccount{
		ID:          m.ID,
		Description: m.Description,
		Currency:    m.Currency,
		Status:      m.Status,
	}
	for _, a := range m.Alias {
		if a.Type == "IBAN" {
			acct.IBAN = a.Value
			break
		}
	}
	return acct
}

type requestInquiryObject struct {
	ID             int64  `json:"id"`
	Status         string `json:"status"`
	Description    string `json:"description"`
	AmountInquired amount `json:"amount_inquired"`
	ShareURL       string `json:"bunqme_share_url"`
}

func (r requestInquiryObject) toModel() (*model.RequestInquiry, error) {
	inquiry := &model.RequestInquiry{
		ID:          r.ID,
		Currency:    r.AmountInquired.Currency,
		Description: r.Description,
		Status:      r.Status,
		ShareURL:    r.ShareURL,
	}
	if r.AmountInquired.Value != "" {
		cents, err := model.ParseAmount(r.AmountInquired.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: request inquiry %d amount: %w", model.ErrExternalService, r.ID, err)
		}
		inquiry.AmountCents = cents
	}
	return inquiry, nil
}
