package application_test

import (
	"context"
	"crypto/rsa"
	"fmt"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/ericfisherdev/gamepay/internal/domain/model"
	"github.com/ericfisherdev/gamepay/internal/domain/port/driven"
)

// --- Mock implementations ---

type mockBankAPI struct {
	mock.Mock
}

func (m *mockBankAPI) CreateInstallation(ctx context.Context, publicKeyPEM string) (*driven.InstallationResult, error) {
	args := m.Called(ctx, publicKeyPEM)
	res, _ := args.Get(0).(*driven.InstallationResult)
	return res, args.Error(1)
}

func (m *mockBankAPI) RegisterDevice(ctx context.Context, installationToken, apiKey, description string) error {
	return m.Called(ctx, installationToken, apiKey, description).Error(0)
}

func (m *mockBankAPI) CreateSession(ctx context.Context, installationToken string, signer *rsa.PrivateKey, apiKey string) (*driven.SessionResult, error) {
	args := m.Called(ctx, installationToken, signer, apiKey)
	res, _ := args.Get(0).(*driven.SessionResult)
	return res, args.Error(1)
}

func (m *mockBankAPI) Do(ctx context.Context, auth driven.SessionAuth, req driven.BankRequest) (*driven.BankResponse, error) {
	args := m.Called(ctx, auth.Token, req)
	res, _ := args.Get(0).(*driven.BankResponse)
	return res, args.Error(1)
}

func (m *mockBankAPI) CurrentUserID(ctx context.Context, auth driven.SessionAuth) (int64, error) {
	args := m.Called(ctx, auth.Token)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockBankAPI) ListMonetaryAccounts(ctx context.Context, auth driven.SessionAuth, userID int64) ([]model.MonetaryAccount, error) {
	args := m.Called(ctx, auth.Token, userID)
	res, _ := args.Get(0).([]model.MonetaryAccount)
	return res, args.Error(1)
}

func (m *mockBankAPI) CreateRequestInquiry(ctx context.Context, auth driven.SessionAuth, userID, accountID int64, inquiry model.RequestInquiry, to model.Counterparty) (int64, error) {
	args := m.Called(ctx, auth.Token, userID, accountID, inquiry, to)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockBankAPI) GetRequestInquiry(ctx context.Context, auth driven.SessionAuth, userID, accountID, requestID int64) (*model.RequestInquiry, error) {
	args := m.Called(ctx, auth.Token, userID, accountID, requestID)
	res, _ := args.Get(0).(*model.RequestInquiry)
	return res, args.Error(1)
}

func (m *mockBankAPI) InstallNotificationFilter(ctx context.Context, auth driven.SessionAuth, userID, accountID int64, category, targetURL string) error {
	return m.Called(ctx, auth.Token, userID, accountID, category, targetURL).Error(0)
}

// fakeBankClient is an in-memory BankClient for orchestration tests.
type fakeBankClient struct {
	mu        sync.Mutex
	userID    int64
	nextID    int64
	created   []createdInquiry
	statuses  map[int64]string
	failFor   map[string]error // keyed by counterparty value
	getErr    error
	onGet     func(requestID int64) // runs before a status read, outside the lock
	filters   []string
	accounts  []model.MonetaryAccount
	listCalls int
}

type createdInquiry struct {
	AccountID int64
	Inquiry   model.RequestInquiry
	To        model.Counterparty
}

func newFakeBankClient() *fakeBankClient {
	return &fakeBankClient{
		userID:   7,
		nextID:   5000,
		statuses: make(map[int64]string),
		failFor:  make(map[string]error),
	}
}

func (f *fakeBankClient) Issue(_ context.Context, _ driven.BankRequest) (*driven.BankResponse, error) {
	return &driven.BankResponse{StatusCode: 200, Body: []byte(`{"Response":[]}`)}, nil
}

func (f *fakeBankClient) UserID(_ context.Context) (int64, error) {
	return f.userID, nil
}

func (f *fakeBankClient) ListMonetaryAccounts(_ context.Context) ([]model.MonetaryAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return f.accounts, nil
}

func (f *fakeBankClient) CreateRequestInquiry(_ context.Context, accountID int64, inquiry model.RequestInquiry, to model.Counterparty) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[to.Value]; err != nil {
		return 0, err
	}
	f.nextID++
	f.created = append(f.created, createdInquiry{AccountID: accountID, Inquiry: inquiry, To: to})
	f.statuses[f.nextID] = "PENDING"
	return f.nextID, nil
}

func (f *fakeBankClient) GetRequestInquiry(_ context.Context, _ int64, requestID int64) (*model.RequestInquiry, error) {
	if f.onGet != nil {
		f.onGet(requestID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	status, ok := f.statuses[requestID]
	if !ok {
		return nil, &model.BankError{StatusCode: 404, Description: "not found"}
	}
	return &model.RequestInquiry{
		ID:       requestID,
		Status:   status,
		ShareURL: fmt.Sprintf("https://bunq.me/t/%d", requestID),
	}, nil
}

func (f *fakeBankClient) InstallNotificationFilter(_ context.Context, _ int64, category, targetURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, category+" "+targetURL)
	return nil
}

func (f *fakeBankClient) setStatus(requestID int64, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[requestID] = status
}

// fakeFactory hands out the same fake client for every principal and
// records the passwords it was called with.
type fakeFactory struct {
	client    *fakeBankClient
	err       error
	passwords []string
}

func (f *fakeFactory) Client(_ context.Context, _ int64, password string) (driven.BankClient, error) {
	f.passwords = append(f.passwords, password)
	if f.err != nil {
		return nil, f.err
	}
	return f.client, nil
}

// recordingNotifier captures notifications instead of delivering them.
type recordingNotifier struct {
	mu       sync.Mutex
	messages []notification
	err      error
}

type notification struct {
	UserID  int64
	Message string
}

func (n *recordingNotifier) Notify(_ context.Context, user model.User, message string) (model.Channel, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return model.ChannelNone, n.err
	}
	n.messages = append(n.messages, notification{UserID: user.ID, Message: message})
	return model.ChannelTelegram, nil
}

func (n *recordingNotifier) sent() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notification, len(n.messages))
	copy(out, n.messages)
	return out
}
