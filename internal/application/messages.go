package application

import (
	"fmt"
	"strings"

	"github.com/ericfisherdev/gamepay/internal/domain/model"
)

// Notification bodies are Markdown; the notifier renders them per channel.

func paymentRequestMessage(event *model.Event, group model.PayerGroup, amountCents int64, link string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Payment request: %s**\n\n", event.Title)
	fmt.Fprintf(&b, "Amount due: EUR %s", model.FormatAmount(amountCents))

	var guests []string
	for _, r := range group.Registrations {
		if r.IsGuest() {
			guests = append(guests, r.GuestName)
		}
	}
	if len(guests) > 0 {
		fmt.Fprintf(&b, " (includes %s)", strings.Join(guests, ", "))
	}
	b.WriteString("\n")

	if link != "" {
		fmt.Fprintf(&b, "\n[Pay now](%s)\n", link)
	}
	return b.String()
}

func paymentReceivedMessage(event *model.Event) string {
	return fmt.Sprintf("Payment received for **%s**. Thanks!\n", event.Title)
}

func eventSettledMessage(event *model.Event) string {
	return fmt.Sprintf("Everyone on the list for **%s** has paid.\n", event.Title)
}
