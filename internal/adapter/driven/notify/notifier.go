package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/gamepay/internal/domain/model"
	"github.com/ericfisherdev/gamepay/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Notifier = (*Notifier)(nil)

// Notifier delivers messages over Telegram when the user linked a chat, and
// falls back to SMS when the user has a phone number. Either channel may be
// nil when it is not configured.
type Notifier struct {
	telegram *TelegramClient
	sms      *SMSGateway
}

// New creates a Notifier over the configured channels.
func New(telegram *TelegramClient, sms *SMSGateway) *Notifier {
	if telegram == nil {
		slog.Info("telegram notifications disabled")
	}
	if sms == nil {
		slog.Info("sms notifications disabled")
	}
	return &Notifier{telegram: telegram, sms: sms}
}

// Notify renders the Markdown message for the first usable channel and sends
// it. A failed Telegram send falls through to SMS. A user with no usable
// channel is reported as model.ChannelNone without an error.
func (n *Notifier) Notify(ctx context.Context, user model.User, message string) (model.Channel, error) {
	var errs []error

	if n.telegram != nil && user.HasMessagingChannel() {
		err := n.telegram.SendHTML(ctx, user.TelegramChatID, RenderTelegramHTML(message))
		if err == nil {
			return model.ChannelTelegram, nil
		}
		slog.Warn("telegram delivery failed", "user_id", user.ID, "error", err)
		errs = append(errs, err)
	}

	if n.sms != nil && user.Phone != "" {
		err := n.sms.Send(ctx, user.Phone, RenderPlainText(message))
		if err == nil {
			return model.ChannelSMS, nil
		}
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return model.ChannelNone, fmt.Errorf("notify user %d: %w", user.ID, errors.Join(errs...))
	}

	slog.Debug("no notification channel for user", "user_id", user.ID)
	return model.ChannelNone, nil
}
