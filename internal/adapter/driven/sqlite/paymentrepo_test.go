package sqlite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/gamepay/internal/domain/model"
)

type paymentFixture struct {
	*fixture
	payments  *PaymentRepo
	collector model.User
	payer     model.User
	event     model.Event
	own       model.Registration
	guest     model.Registration
}

// newPaymentFixture seeds a capacity-2 event whose two active registrations
// are both billed to one payer under external request 5001.
func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()
	db := setupTestDB(t)
	f := newFixture(t, db)

	pf := &paymentFixture{fixture: f, payments: NewPaymentRepo(db)}
	pf.collector = f.user("collector")
	pf.payer = f.user("payer")
	pf.event = f.event(2)
	pf.own = f.register(pf.event.ID, pf.payer.ID, "", 1)
	pf.guest = f.register(pf.event.ID, pf.payer.ID, "guest", 2)

	err := pf.payments.Create(f.ctx, model.PaymentRequest{
		ExternalRequestID: 5001,
		CollectorID:       pf.collector.ID,
		PayerID:           pf.payer.ID,
		EventID:           pf.event.ID,
		RegistrationIDs:   []int64{pf.own.ID, pf.guest.ID},
		AmountCents:       1000,
		PaymentLink:       "https://bunq.me/t/5001",
		MonetaryAccountID: 77,
		CreatedAt:         f.base,
	})
	require.NoError(t, err)
	return pf
}

func TestPaymentRepo_CreateFansOut(t *testing.T) {
	pf := newPaymentFixture(t)

	rows, err := pf.payments.ListByExternalID(pf.ctx, 5001)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, int64(1000), row.AmountCents)
		assert.Equal(t, "https://bunq.me/t/5001", row.PaymentLink)
		assert.False(t, row.Paid)
		assert.True(t, row.LastCheckedAt.IsZero())
	}

	covered, err := pf.payments.CoveredRegistrationIDs(pf.ctx, pf.event.ID)
	require.NoError(t, err)
	assert.Equal(t, map[int64]bool{pf.own.ID: true, pf.guest.ID: true}, covered)
}

func TestPaymentRepo_CreateRejectsEmpty(t *testing.T) {
	pf := newPaymentFixture(t)

	err := pf.payments.Create(pf.ctx, model.PaymentRequest{ExternalRequestID: 1})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestPaymentRepo_ApplyPaidFlipsGroupAndSettles(t *testing.T) {
	pf := newPaymentFixture(t)

	tr, err := pf.payments.ApplyPaid(pf.ctx, 5001, model.PaidViaPoll)
	require.NoError(t, err)
	assert.True(t, tr.Applied)
	assert.Equal(t, pf.payer.ID, tr.PayerID)
	assert.Equal(t, pf.collector.ID, tr.CollectorID)
	assert.ElementsMatch(t, []int64{pf.own.ID, pf.guest.ID}, tr.RegistrationIDs)
	assert.Equal(t, []int64{pf.event.ID}, tr.SettledEventIDs)

	regs, err := pf.regs.ListRegistrations(pf.ctx, pf.event.ID)
	require.NoError(t, err)
	for _, r := range regs {
		assert.True(t, r.Paid, "registration %d", r.ID)
	}

	event, err := pf.regs.GetEvent(pf.ctx, pf.event.ID)
	require.NoError(t, err)
	assert.True(t, event.Settled)
}

func TestPaymentRepo_WebhookTwiceIsIdempotent(t *testing.T) {
	pf := newPaymentFixture(t)

	first, err := pf.payments.ApplyPaid(pf.ctx, 5001, model.PaidViaWebhook)
	require.NoError(t, err)
	assert.True(t, first.Applied)

	second, err := pf.payments.ApplyPaid(pf.ctx, 5001, model.PaidViaWebhook)
	require.NoError(t, err)
	assert.False(t, second.Applied)
	assert.Empty(t, second.SettledEventIDs)

	rows, err := pf.payments.ListByExternalID(pf.ctx, 5001)
	require.NoError(t, err)
	for _, row := range rows {
		assert.True(t, row.Paid)
		assert.True(t, row.WebhookReceived)
	}
}

func TestPaymentRepo_PollAfterWebhookIsNoop(t *testing.T) {
	pf := newPaymentFixture(t)

	_, err := pf.payments.ApplyPaid(pf.ctx, 5001, model.PaidViaWebhook)
	require.NoError(t, err)

	// An admin correction in between must survive a late poll.
	_, err = pf.regs.SetRegistrationPaid(pf.ctx, pf.guest.ID, false)
	require.NoError(t, err)

	tr, err := pf.payments.ApplyPaid(pf.ctx, 5001, model.PaidViaPoll)
	require.NoError(t, err)
	assert.False(t, tr.Applied)

	reg, err := pf.regs.GetRegistration(pf.ctx, pf.guest.ID)
	require.NoError(t, err)
	assert.False(t, reg.Paid)
}

func TestPaymentRepo_WebhookAfterPollIsNoop(t *testing.T) {
	pf := newPaymentFixture(t)

	_, err := pf.payments.ApplyPaid(pf.ctx, 5001, model.PaidViaPoll)
	require.NoError(t, err)

	tr, err := pf.payments.ApplyPaid(pf.ctx, 5001, model.PaidViaWebhook)
	require.NoError(t, err)
	assert.False(t, tr.Applied)
}

func TestPaymentRepo_ApplyPaidUnknownID(t *testing.T) {
	pf := newPaymentFixture(t)

	tr, err := pf.payments.ApplyPaid(pf.ctx, 999999, model.PaidViaWebhook)
	require.NoError(t, err)
	assert.False(t, tr.Applied)
}

func TestPaymentRepo_ApplyPaidUnknownSource(t *testing.T) {
	pf := newPaymentFixture(t)

	_, err := pf.payments.ApplyPaid(pf.ctx, 5001, model.PaidSource("carrier-pigeon"))
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestPaymentRepo_ListDueForCheck(t *testing.T) {
	pf := newPaymentFixture(t)
	now := pf.base.Add(time.Hour)

	due, err := pf.payments.ListDueForCheck(pf.ctx, pf.collector.ID, now.Add(-10*time.Minute))
	require.NoError(t, err)
	require.Len(t, due, 1, "one representative row per external id")
	assert.Equal(t, int64(5001), due[0].ExternalRequestID)

	require.NoError(t, pf.payments.TouchChecked(pf.ctx, 5001, now))

	due, err = pf.payments.ListDueForCheck(pf.ctx, pf.collector.ID, now.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, due, "recently checked requests are skipped")

	due, err = pf.payments.ListDueForCheck(pf.ctx, pf.collector.ID, now.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Len(t, due, 1)

	rows, err := pf.payments.ListByExternalID(pf.ctx, 5001)
	require.NoError(t, err)
	for _, row := range rows {
		assert.True(t, row.LastCheckedAt.Equal(now))
	}

	due, err = pf.payments.ListDueForCheck(pf.ctx, pf.collector.ID+100, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due, "other collectors' requests are not listed")

	_, err = pf.payments.ApplyPaid(pf.ctx, 5001, model.PaidViaWebhook)
	require.NoError(t, err)
	due, err = pf.payments.ListDueForCheck(pf.ctx, pf.collector.ID, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due, "paid requests are not polled")
}

func TestPaymentRepo_ListByEvent(t *testing.T) {
	pf := newPaymentFixture(t)

	rows, err := pf.payments.ListByEvent(pf.ctx, pf.event.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = pf.payments.ListByEvent(pf.ctx, pf.event.ID+1)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
