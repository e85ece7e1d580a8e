package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PricingKind selects how an event's cost is distributed.
type PricingKind string

const (
	// PricingFlat charges AmountCents to every participant.
	PricingFlat PricingKind = "flat"
	// PricingSplit divides AmountCents evenly across the active participants.
	PricingSplit PricingKind = "split"
)

// PricingPolicy is the payment policy of an event.
type PricingPolicy struct {
	Kind        PricingKind
	AmountCents int64
}

// Validate checks that the policy can be priced.
func (p PricingPolicy) Validate() error {
	switch p.Kind {
	case PricingFlat, PricingSplit:
	default:
		return fmt.Errorf("%w: unknown pricing kind %q", ErrValidation, p.Kind)
	}
	if p.AmountCents <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	return nil
}

// PerParticipantCents returns what each active participant owes. Split
// policies round half away from zero to the nearest cent.
func PerParticipantCents(policy PricingPolicy, activeCount int) (int64, error) {
	if err := policy.Validate(); err != nil {
		return 0, err
	}
	if policy.Kind == PricingFlat {
		return policy.AmountCents, nil
	}
	if activeCount <= 0 {
		return 0, fmt.Errorf("%w: no active participants to split across", ErrValidation)
	}
	share := decimal.NewFromInt(policy.AmountCents).
		Div(decimal.NewFromInt(int64(activeCount))).
		Round(0)
	return share.IntPart(), nil
}

// FormatAmount renders cents as a fixed two-decimal string, e.g. "12.50".
func FormatAmount(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// ParseAmount converts a decimal string such as "12.50" to cents.
func ParseAmount(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid amount %q", ErrValidation, s)
	}
	return d.Shift(2).Round(0).IntPart(), nil
}
