package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/gamepay/internal/domain/model"
	"github.com/ericfisherdev/gamepay/internal/domain/port/driven"
)

const (
	// DefaultPhoneSurchargeCents is added once per payer group reachable
	// only by phone.
	DefaultPhoneSurchargeCents = 20

	requestCurrency = "EUR"
)

// PaymentService issues consolidated payment requests for an event: one bank
// request per payer group, covering the payer's own slot and their guests.
//
// Batches for the same event must not run concurrently; the caller
// serializes them.
type PaymentService struct {
	registrations  driven.RegistrationStore
	users          driven.UserStore
	payments       driven.PaymentStore
	bindings       driven.AccountBindingStore
	banks          driven.BankClientFactory
	notifier       driven.Notifier
	phoneSurcharge int64
	now            func() time.Time
}

// NewPaymentService creates a PaymentService.
func NewPaymentService(
	registrations driven.RegistrationStore,
	users driven.UserStore,
	payments driven.PaymentStore,
	bindings driven.AccountBindingStore,
	banks driven.BankClientFactory,
	notifier driven.Notifier,
	phoneSurchargeCents int64,
) *PaymentService {
	return &PaymentService{
		registrations:  registrations,
		users:          users,
		payments:       payments,
		bindings:       bindings,
		banks:          banks,
		notifier:       notifier,
		phoneSurcharge: phoneSurchargeCents,
		now:            time.Now,
	}
}

// RequestPayments bills every unpaid active registration of the event that
// has no payment request yet. Per-group failures are collected in the
// result; the waitlist is deleted only when the whole batch succeeded.
// Errors returned directly (bad password, unknown event, no bound account)
// mean nothing was issued.
func (s *PaymentService) RequestPayments(ctx context.Context, eventID, collectorID int64, password string, policy model.PricingPolicy) (*model.BatchResult, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	event, err := s.registrations.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	regs, err := s.registrations.ListRegistrations(ctx, eventID)
	if err != nil {
		return nil, err
	}
	active, waitlisted := model.Partition(regs, event.Capacity)

	result := &model.BatchResult{EventID: eventID}
	if len(active) == 0 {
		return result, nil
	}

	perHead, err := model.PerParticipantCents(policy, len(active))
	if err != nil {
		return nil, err
	}

	covered, err := s.payments.CoveredRegistrationIDs(ctx, eventID)
	if err != nil {
		return nil, err
	}

	groups, err := s.payerGroups(ctx, active, covered)
	if err != nil {
		return nil, err
	}

	if len(groups) > 0 {
		binding, err := s.bindings.Get(ctx, collectorID)
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("%w: principal %d has no monetary account bound", model.ErrConfiguration, collectorID)
		}
		if err != nil {
			return nil, err
		}

		client, err := s.banks.Client(ctx, collectorID, password)
		if err != nil {
			return nil, err
		}

		for _, group := range groups {
			if err := s.requestGroup(ctx, client, event, binding, perHead, group, collectorID); err != nil {
				slog.Error("payment request failed",
					"event_id", eventID,
					"payer_id", group.Payer.ID,
					"error", err,
				)
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("payer %d (%s): %v", group.Payer.ID, group.Payer.Name, err))
				continue
			}
			result.Succeeded++
		}
	}

	if len(result.Errors) == 0 && len(waitlisted) > 0 {
		ids := make([]int64, 0, len(waitlisted))
		for _, r := range waitlisted {
			ids = append(ids, r.ID)
		}
		deleted, err := s.registrations.DeleteRegistrations(ctx, ids)
		if err != nil {
			slog.Error("clear waitlist failed", "event_id", eventID, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("clear waitlist: %v", err))
		}
		result.WaitlistCleared = deleted
	}

	slog.Info("payment request batch complete",
		"event_id", eventID,
		"active", len(active),
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"waitlist_cleared", result.WaitlistCleared,
	)
	return result, nil
}

// ListPaymentRequests returns every payment request row of the event.
func (s *PaymentService) ListPaymentRequests(ctx context.Context, eventID int64) ([]model.PaymentRequestRecord, error) {
	if _, err := s.registrations.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return s.payments.ListByEvent(ctx, eventID)
}

// payerGroups groups the billable active registrations by account holder, in
// the rank order of each payer's first registration. Paid and already
// requested registrations are not billable.
func (s *PaymentService) payerGroups(ctx context.Context, active []model.Registration, covered map[int64]bool) ([]model.PayerGroup, error) {
	var order []int64
	byPayer := make(map[int64][]model.Registration)
	for _, r := range active {
		if r.Paid || covered[r.ID] {
			continue
		}
		if _, seen := byPayer[r.UserID]; !seen {
			order = append(order, r.UserID)
		}
		byPayer[r.UserID] = append(byPayer[r.UserID], r)
	}

	groups := make([]model.PayerGroup, 0, len(order))
	for _, payerID := range order {
		payer, err := s.users.Get(ctx, payerID)
		if err != nil {
			return nil, fmt.Errorf("load payer %d: %w", payerID, err)
		}
		groups = append(groups, model.PayerGroup{Payer: *payer, Registrations: byPayer[payerID]})
	}
	return groups, nil
}

// requestGroup issues one bank request for the group and records it.
func (s *PaymentService) requestGroup(
	ctx context.Context,
	client driven.BankClient,
	event *model.Event,
	binding *model.AccountBinding,
	perHead int64,
	group model.PayerGroup,
	collectorID int64,
) error {
	to, err := counterpartyFor(group.Payer)
	if err != nil {
		return err
	}

	amount := perHead * int64(len(group.Registrations))
	if group.Payer.IsPhoneOnly() {
		amount += s.phoneSurcharge
	}

	inquiry := model.RequestInquiry{
		AmountCents: amount,
		Currency:    requestCurrency,
		Description: requestDescription(event, len(group.Registrations)),
	}
	requestID, err := client.CreateRequestInquiry(ctx, binding.MonetaryAccountID, inquiry, to)
	if err != nil {
		return err
	}

	// The request exists at the bank from here on; it must be recorded even
	// without a share link so a retry does not bill the group twice.
	var link string
	issued, err := client.GetRequestInquiry(ctx, binding.MonetaryAccountID, requestID)
	if err != nil {
		slog.Warn("read back payment link failed", "request_id", requestID, "error", err)
	} else {
		link = issued.ShareURL
	}

	err = s.payments.Create(ctx, model.PaymentRequest{
		ExternalRequestID: requestID,
		CollectorID:       collectorID,
		PayerID:           group.Payer.ID,
		EventID:           event.ID,
		RegistrationIDs:   group.RegistrationIDs(),
		AmountCents:       amount,
		PaymentLink:       link,
		MonetaryAccountID: binding.MonetaryAccountID,
		CreatedAt:         s.now(),
	})
	if err != nil {
		return fmt.Errorf("record payment request %d: %w", requestID, err)
	}

	if _, err := s.notifier.Notify(ctx, group.Payer, paymentRequestMessage(event, group, amount, link)); err != nil {
		slog.Warn("payment request notification failed",
			"payer_id", group.Payer.ID,
			"request_id", requestID,
			"error", err,
		)
	}
	return nil
}

// counterpartyFor picks the alias the bank addresses the request to.
func counterpartyFor(payer model.User) (model.Counterparty, error) {
	switch {
	case payer.Email != "":
		return model.Counterparty{Type: model.AliasEmail, Value: payer.Email, Name: payer.Name}, nil
	case payer.Phone != "":
		return model.Counterparty{Type: model.AliasPhone, Value: payer.Phone, Name: payer.Name}, nil
	}
	return model.Counterparty{}, fmt.Errorf("%w: payer %d has no email or phone to address a request to", model.ErrValidation, payer.ID)
}

func requestDescription(event *model.Event, participants int) string {
	if participants == 1 {
		return event.Title
	}
	return fmt.Sprintf("%s (%d participants)", event.Title, participants)
}
