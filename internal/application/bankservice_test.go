package application_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/gamepay/internal/application"
	"github.com/ericfisherdev/gamepay/internal/domain/model"
)

type bankFixture struct {
	stores    *testStores
	vault     *application.CredentialVault
	bank      *fakeBankClient
	factory   *fakeFactory
	svc       *application.BankService
	principal int64
}

func newBankFixture(t *testing.T) *bankFixture {
	t.Helper()
	stores := newTestStores(t)
	admin := stores.user(t, model.User{Name: "admin"})

	vault, err := application.NewCredentialVault(stores.credentials, application.MinKDFIterations)
	require.NoError(t, err)

	bank := newFakeBankClient()
	bank.accounts = []model.MonetaryAccount{{ID: 11, Description: "Club pot"}, {ID: 12, Description: "Savings"}}
	factory := &fakeFactory{client: bank}

	return &bankFixture{
		stores:    stores,
		vault:     vault,
		bank:      bank,
		factory:   factory,
		svc:       application.NewBankService(vault, stores.bindings, factory),
		principal: admin.ID,
	}
}

func TestBankService_EnableStoresKey(t *testing.T) {
	f := newBankFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Enable(ctx, f.principal, "api-key", "pw"))

	key, err := f.vault.ReadSecret(ctx, f.principal, model.SlotAPIKey, "pw")
	require.NoError(t, err)
	assert.Equal(t, "api-key", key)
}

func TestBankService_EnableRejectedKeyIsRemoved(t *testing.T) {
	f := newBankFixture(t)
	ctx := context.Background()
	f.factory.err = &model.BankError{StatusCode: 400, Description: "User credentials are incorrect."}

	err := f.svc.Enable(ctx, f.principal, "bad-key", "pw")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrExternalService)

	_, err = f.vault.ReadSecret(ctx, f.principal, model.SlotAPIKey, "pw")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestBankService_EnableAuthenticationFailureIsRemoved(t *testing.T) {
	f := newBankFixture(t)
	ctx := context.Background()
	f.factory.err = fmt.Errorf("%w: bank rejected a freshly opened session", model.ErrAuthentication)

	err := f.svc.Enable(ctx, f.principal, "bad-key", "pw")
	assert.ErrorIs(t, err, model.ErrAuthentication)

	_, err = f.vault.ReadSecret(ctx, f.principal, model.SlotAPIKey, "pw")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestBankService_EnableDuringOutageKeepsKeyAndBinding(t *testing.T) {
	f := newBankFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.Enable(ctx, f.principal, "api-key", "pw"))
	_, err := f.svc.BindAccount(ctx, f.principal, 11, "pw")
	require.NoError(t, err)

	f.factory.err = &model.BankError{StatusCode: 503, Description: "maintenance"}
	err = f.svc.Enable(ctx, f.principal, "rotated-key", "pw")
	assert.ErrorIs(t, err, model.ErrExternalService)

	binding, err := f.stores.bindings.Get(ctx, f.principal)
	require.NoError(t, err)
	assert.Equal(t, int64(11), binding.MonetaryAccountID)

	key, err := f.vault.ReadSecret(ctx, f.principal, model.SlotAPIKey, "pw")
	require.NoError(t, err)
	assert.Equal(t, "rotated-key", key)
}

func TestBankService_EnableUnreachableBankKeepsKey(t *testing.T) {
	f := newBankFixture(t)
	ctx := context.Background()
	f.factory.err = fmt.Errorf("%w: dial tcp: connection refused", model.ErrExternalService)

	err := f.svc.Enable(ctx, f.principal, "api-key", "pw")
	assert.ErrorIs(t, err, model.ErrExternalService)

	key, err := f.vault.ReadSecret(ctx, f.principal, model.SlotAPIKey, "pw")
	require.NoError(t, err)
	assert.Equal(t, "api-key", key)
}

func TestBankService_EnableRequiresKey(t *testing.T) {
	f := newBankFixture(t)

	err := f.svc.Enable(context.Background(), f.principal, "", "pw")
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestBankService_DisableRemovesBinding(t *testing.T) {
	f := newBankFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.Enable(ctx, f.principal, "api-key", "pw"))
	_, err := f.svc.BindAccount(ctx, f.principal, 11, "pw")
	require.NoError(t, err)

	require.NoError(t, f.svc.Disable(ctx, f.principal))

	_, err = f.stores.bindings.Get(ctx, f.principal)
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = f.vault.LoadSession(ctx, f.principal, "pw")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestBankService_ListAccounts(t *testing.T) {
	f := newBankFixture(t)

	accounts, err := f.svc.ListAccounts(context.Background(), f.principal, "pw")
	require.NoError(t, err)
	assert.Len(t, accounts, 2)
}

func TestBankService_BindAccount(t *testing.T) {
	f := newBankFixture(t)
	ctx := context.Background()

	binding, err := f.svc.BindAccount(ctx, f.principal, 12, "pw")
	require.NoError(t, err)
	assert.Equal(t, int64(7), binding.UserID)

	stored, err := f.stores.bindings.Get(ctx, f.principal)
	require.NoError(t, err)
	assert.Equal(t, int64(12), stored.MonetaryAccountID)

	_, err = f.svc.BindAccount(ctx, f.principal, 99, "pw")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestBankService_InstallWebhook(t *testing.T) {
	f := newBankFixture(t)
	ctx := context.Background()

	err := f.svc.InstallWebhook(ctx, f.principal, "https://pay.example.com/webhooks/bank", "pw")
	assert.ErrorIs(t, err, model.ErrConfiguration, "an account must be bound first")

	_, err = f.svc.BindAccount(ctx, f.principal, 11, "pw")
	require.NoError(t, err)
	require.NoError(t, f.svc.InstallWebhook(ctx, f.principal, "https://pay.example.com/webhooks/bank", "pw"))
	assert.Equal(t, []string{"REQUEST https://pay.example.com/webhooks/bank"}, f.bank.filters)
}
