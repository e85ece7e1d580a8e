package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/atomic"

	"github.com/ericfisherdev/gamepay/internal/domain/model"
	"github.com/ericfisherdev/gamepay/internal/domain/port/driven"
)

const (
	// DefaultRecheckAfter is how long the periodic sweep leaves a request
	// alone after checking it.
	DefaultRecheckAfter = 10 * time.Minute
	// DefaultWebhookQueueSize bounds the webhook payments waiting to apply.
	DefaultWebhookQueueSize = 256

	webhookApplyTimeout = 30 * time.Second
)

// ReconciliationConfig tunes the background loop. The periodic sweep only
// runs when SweepPrincipalID, SweepPassword and SweepInterval are all set.
type ReconciliationConfig struct {
	SweepPrincipalID int64
	SweepPassword    string
	SweepInterval    time.Duration
	RecheckAfter     time.Duration
	WebhookQueueSize int
}

// sweepRequest represents a manual sweep trigger.
type sweepRequest struct {
	principalID int64
	password    string
	done        chan sweepOutcome
}

type sweepOutcome struct {
	result *model.SweepResult
	err    error
}

// WebhookStats counts webhook payments since startup.
type WebhookStats struct {
	Enqueued   int64 `json:"enqueued"`
	Applied    int64 `json:"applied"`
	Duplicates int64 `json:"duplicates"`
	Failed     int64 `json:"failed"`
	Dropped    int64 `json:"dropped"`
}

// ReconciliationService moves payment requests to paid from two sources:
// bank webhooks and polling the bank. Both go through ApplyPaid, so either
// may fire first and the other becomes a no-op.
type ReconciliationService struct {
	payments      driven.PaymentStore
	registrations driven.RegistrationStore
	users         driven.UserStore
	banks         driven.BankClientFactory
	notifier      driven.Notifier
	cfg           ReconciliationConfig
	now           func() time.Time

	sweepCh  chan sweepRequest
	webhooks chan int64

	enqueued   atomic.Int64
	applied    atomic.Int64
	duplicates atomic.Int64
	failed     atomic.Int64
	dropped    atomic.Int64
}

// NewReconciliationService creates a ReconciliationService. Zero config
// values select the defaults.
func NewReconciliationService(
	payments driven.PaymentStore,
	registrations driven.RegistrationStore,
	users driven.UserStore,
	banks driven.BankClientFactory,
	notifier driven.Notifier,
	cfg ReconciliationConfig,
) *ReconciliationService {
	if cfg.RecheckAfter <= 0 {
		cfg.RecheckAfter = DefaultRecheckAfter
	}
	if cfg.WebhookQueueSize <= 0 {
		cfg.WebhookQueueSize = DefaultWebhookQueueSize
	}
	return &ReconciliationService{
		payments:      payments,
		registrations: registrations,
		users:         users,
		banks:         banks,
		notifier:      notifier,
		cfg:           cfg,
		now:           time.Now,
		sweepCh:       make(chan sweepRequest),
		webhooks:      make(chan int64, cfg.WebhookQueueSize),
	}
}

// Start runs the webhook worker and the sweep loop. It blocks until the
// context is canceled. Webhook payments still queued at shutdown are left to
// the next poll.
func (s *ReconciliationService) Start(ctx context.Context) {
	go s.runWebhookWorker(ctx)

	var tick <-chan time.Time
	if s.periodicSweepEnabled() {
		ticker := time.NewTicker(s.cfg.SweepInterval)
		defer ticker.Stop()
		tick = ticker.C
		slog.Info("periodic payment sweep enabled",
			"principal_id", s.cfg.SweepPrincipalID,
			"interval", s.cfg.SweepInterval,
		)
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("reconciliation service stopped")
			return
		case <-tick:
			cutoff := s.now().Add(-s.cfg.RecheckAfter)
			if _, err := s.sweep(ctx, s.cfg.SweepPrincipalID, s.cfg.SweepPassword, cutoff); err != nil {
				slog.Error("periodic payment sweep failed", "error", err)
			}
		case req := <-s.sweepCh:
			result, err := s.sweep(ctx, req.principalID, req.password, s.now())
			req.done <- sweepOutcome{result: result, err: err}
		}
	}
}

func (s *ReconciliationService) periodicSweepEnabled() bool {
	return s.cfg.SweepInterval > 0 && s.cfg.SweepPrincipalID != 0 && s.cfg.SweepPassword != ""
}

// RequestSweep runs a manual sweep of every unpaid request the principal
// issued through the running loop, so it never overlaps a periodic sweep.
// It blocks until the sweep completes or the context is canceled.
func (s *ReconciliationService) RequestSweep(ctx context.Context, principalID int64, password string) (*model.SweepResult, error) {
	done := make(chan sweepOutcome, 1)
	req := sweepRequest{principalID: principalID, password: password, done: done}

	select {
	case s.sweepCh <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Sweep checks every unpaid request the principal issued against the bank,
// without the loop. Used by one-shot callers such as the CLI.
func (s *ReconciliationService) Sweep(ctx context.Context, principalID int64, password string) (*model.SweepResult, error) {
	return s.sweep(ctx, principalID, password, s.now())
}

// sweep polls each unpaid request last checked at or before cutoff. Every
// checked request is stamped, whatever the outcome.
func (s *ReconciliationService) sweep(ctx context.Context, principalID int64, password string, cutoff time.Time) (*model.SweepResult, error) {
	start := time.Now()
	result := &model.SweepResult{}

	due, err := s.payments.ListDueForCheck(ctx, principalID, cutoff)
	if err != nil {
		return nil, err
	}
	if len(due) == 0 {
		return result, nil
	}

	client, err := s.banks.Client(ctx, principalID, password)
	if err != nil {
		return nil, err
	}

	for _, rec := range due {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.Checked++

		if paid, err := s.checkRequest(ctx, client, rec); err != nil {
			slog.Error("payment status check failed",
				"request_id", rec.ExternalRequestID,
				"error", err,
			)
			result.Errors++
		} else if paid {
			result.Paid++
		}

		if err := s.payments.TouchChecked(ctx, rec.ExternalRequestID, s.now()); err != nil {
			slog.Error("stamp payment check failed", "request_id", rec.ExternalRequestID, "error", err)
		}
	}

	slog.Info("payment sweep complete",
		"principal_id", principalID,
		"checked", result.Checked,
		"paid", result.Paid,
		"errors", result.Errors,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return result, nil
}

// checkRequest reports whether this check moved the request to paid.
func (s *ReconciliationService) checkRequest(ctx context.Context, client driven.BankClient, rec model.PaymentRequestRecord) (bool, error) {
	inquiry, err := client.GetRequestInquiry(ctx, rec.MonetaryAccountID, rec.ExternalRequestID)
	if err != nil {
		return false, err
	}
	if !inquiry.IsPaid() {
		return false, nil
	}
	transition, err := s.ApplyPaid(ctx, rec.ExternalRequestID, model.PaidViaPoll)
	if err != nil {
		return false, err
	}
	return transition.Applied, nil
}

// EnqueueWebhookPayment queues an accepted payment reported by the bank. It
// never blocks; a full queue is reported so the bank redelivers later.
func (s *ReconciliationService) EnqueueWebhookPayment(externalRequestID int64) error {
	select {
	case s.webhooks <- externalRequestID:
		s.enqueued.Inc()
		return nil
	default:
		s.dropped.Inc()
		return fmt.Errorf("%w: webhook queue full", model.ErrExternalService)
	}
}

func (s *ReconciliationService) runWebhookWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-s.webhooks:
			s.applyWebhook(ctx, id)
		}
	}
}

func (s *ReconciliationService) applyWebhook(ctx context.Context, externalRequestID int64) {
	ctx, cancel := context.WithTimeout(ctx, webhookApplyTimeout)
	defer cancel()

	transition, err := s.ApplyPaid(ctx, externalRequestID, model.PaidViaWebhook)
	switch {
	case err != nil:
		s.failed.Inc()
		slog.Error("apply webhook payment failed", "request_id", externalRequestID, "error", err)
	case transition.Applied:
		s.applied.Inc()
	default:
		s.duplicates.Inc()
	}
}

// WebhookStats returns the webhook counters.
func (s *ReconciliationService) WebhookStats() WebhookStats {
	return WebhookStats{
		Enqueued:   s.enqueued.Load(),
		Applied:    s.applied.Load(),
		Duplicates: s.duplicates.Load(),
		Failed:     s.failed.Load(),
		Dropped:    s.dropped.Load(),
	}
}

// ApplyPaid applies a paid status to every row of the external request and
// notifies the payer, and the collector for each event that became settled.
// Applying an already paid request is a no-op with Applied false.
func (s *ReconciliationService) ApplyPaid(ctx context.Context, externalRequestID int64, source model.PaidSource) (*model.PaidTransition, error) {
	transition, err := s.payments.ApplyPaid(ctx, externalRequestID, source)
	if err != nil {
		return nil, fmt.Errorf("apply paid to request %d: %w", externalRequestID, err)
	}
	if !transition.Applied {
		slog.Debug("payment already applied", "request_id", externalRequestID, "source", source)
		return transition, nil
	}

	slog.Info("payment applied",
		"request_id", externalRequestID,
		"source", source,
		"registrations", len(transition.RegistrationIDs),
		"settled_events", transition.SettledEventIDs,
	)
	s.notifyTransition(ctx, transition)
	return transition, nil
}

// SetRegistrationPaid corrects one registration's paid flag by hand.
func (s *ReconciliationService) SetRegistrationPaid(ctx context.Context, registrationID int64, paid bool) (*model.Event, error) {
	event, err := s.registrations.SetRegistrationPaid(ctx, registrationID, paid)
	if err != nil {
		return nil, err
	}
	slog.Info("registration paid flag set",
		"registration_id", registrationID,
		"paid", paid,
		"event_id", event.ID,
		"settled", event.Settled,
	)
	return event, nil
}

// notifyTransition sends the follow-up messages of a paid transition.
// Failures are logged only.
func (s *ReconciliationService) notifyTransition(ctx context.Context, t *model.PaidTransition) {
	if len(t.EventIDs) > 0 {
		s.notify(ctx, t.PayerID, t.EventIDs[0], paymentReceivedMessage)
	}
	for _, eventID := range t.SettledEventIDs {
		s.notify(ctx, t.CollectorID, eventID, eventSettledMessage)
	}
}

func (s *ReconciliationService) notify(ctx context.Context, userID, eventID int64, render func(*model.Event) string) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		slog.Warn("notification skipped", "user_id", userID, "error", err)
		return
	}
	event, err := s.registrations.GetEvent(ctx, eventID)
	if err != nil {
		slog.Warn("notification skipped", "event_id", eventID, "error", err)
		return
	}
	channel, err := s.notifier.Notify(ctx, *user, render(event))
	if err != nil {
		slog.Warn("notification failed", "user_id", userID, "channel", channel, "error", err)
	}
}
