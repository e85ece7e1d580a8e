package driven

import (
	"context"

	"github.com/ericfisherdev/gamepay/internal/domain/model"
)

// Notifier delivers a Markdown message to a user over the best channel
// available and reports which channel it used.
type Notifier interface {
	Notify(ctx context.Context, user model.User, message string) (model.Channel, error)
}
