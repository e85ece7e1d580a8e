package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/gamepay/internal/domain/model"
	"github.com/ericfisherdev/gamepay/internal/domain/port/driven"
)

// NotificationCategoryRequest is the bank notification category carrying
// payment request status changes.
const NotificationCategoryRequest = "REQUEST"

// BankService manages a principal's bank integration: enabling it with an
// API key, choosing the account payments are collected into and pointing the
// bank's notifications at the webhook.
type BankService struct {
	vault    *CredentialVault
	bindings driven.AccountBindingStore
	banks    driven.BankClientFactory
}

// NewBankService creates a BankService.
func NewBankService(vault *CredentialVault, bindings driven.AccountBindingStore, banks driven.BankClientFactory) *BankService {
	return &BankService{vault: vault, bindings: bindings, banks: banks}
}

// Enable stores a new API key and walks the token chain once to prove the
// bank accepts it. A key the bank rejects is removed again together with the
// account binding; when the bank is merely unavailable the key and binding
// are kept and the chain is built on first use. Storing a key discards any
// installation and session made with the previous one.
func (s *BankService) Enable(ctx context.Context, principalID int64, apiKey, password string) error {
	if apiKey == "" {
		return fmt.Errorf("%w: api key is required", model.ErrValidation)
	}
	if err := s.vault.StoreSecret(ctx, principalID, model.SlotAPIKey, apiKey, password); err != nil {
		return err
	}

	client, err := s.banks.Client(ctx, principalID, password)
	if err == nil {
		_, err = client.UserID(ctx)
	}
	if err != nil {
		if keyRejected(err) {
			if delErr := s.vault.DeleteAll(ctx, principalID); delErr != nil {
				slog.Error("remove rejected bank credentials failed", "principal_id", principalID, "error", delErr)
			}
		} else {
			slog.Warn("bank unavailable, api key kept unverified", "principal_id", principalID, "error", err)
		}
		return fmt.Errorf("verify api key for principal %d: %w", principalID, err)
	}

	slog.Info("bank integration enabled", "principal_id", principalID)
	return nil
}

// keyRejected reports whether the bank refused the credentials themselves,
// as opposed to failing to answer.
func keyRejected(err error) bool {
	if errors.Is(err, model.ErrAuthentication) {
		return true
	}
	var bankErr *model.BankError
	return errors.As(err, &bankErr) && bankErr.StatusCode >= 400 && bankErr.StatusCode < 500
}

// Disable deletes every stored secret and the account binding.
func (s *BankService) Disable(ctx context.Context, principalID int64) error {
	if err := s.vault.DeleteAll(ctx, principalID); err != nil {
		return err
	}
	slog.Info("bank integration disabled", "principal_id", principalID)
	return nil
}

// ListAccounts returns the accounts the principal can collect into.
func (s *BankService) ListAccounts(ctx context.Context, principalID int64, password string) ([]model.MonetaryAccount, error) {
	client, err := s.banks.Client(ctx, principalID, password)
	if err != nil {
		return nil, err
	}
	return client.ListMonetaryAccounts(ctx)
}

// BindAccount selects the account payment requests are issued from. The
// account must belong to the principal.
func (s *BankService) BindAccount(ctx context.Context, principalID, accountID int64, password string) (*model.AccountBinding, error) {
	client, err := s.banks.Client(ctx, principalID, password)
	if err != nil {
		return nil, err
	}

	accounts, err := client.ListMonetaryAccounts(ctx)
	if err != nil {
		return nil, err
	}
	found := false
	for _, a := range accounts {
		if a.ID == accountID {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("monetary account %d: %w", accountID, model.ErrNotFound)
	}

	userID, err := client.UserID(ctx)
	if err != nil {
		return nil, err
	}

	binding := model.AccountBinding{PrincipalID: principalID, UserID: userID, MonetaryAccountID: accountID}
	if err := s.bindings.Set(ctx, binding); err != nil {
		return nil, err
	}
	return &binding, nil
}

// InstallWebhook asks the bank to deliver payment request notifications for
// the bound account to targetURL.
func (s *BankService) InstallWebhook(ctx context.Context, principalID int64, targetURL, password string) error {
	if targetURL == "" {
		return fmt.Errorf("%w: webhook url is required", model.ErrValidation)
	}

	binding, err := s.bindings.Get(ctx, principalID)
	if errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("%w: principal %d has no monetary account bound", model.ErrConfiguration, principalID)
	}
	if err != nil {
		return err
	}

	client, err := s.banks.Client(ctx, principalID, password)
	if err != nil {
		return err
	}
	return client.InstallNotificationFilter(ctx, binding.MonetaryAccountID, NotificationCategoryRequest, targetURL)
}
