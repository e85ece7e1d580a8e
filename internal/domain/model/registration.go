package model

import (
	"sort"
	"time"
)

// Event is a recurring sign-up occurrence with bounded capacity.
type Event struct {
	ID        int64
	Title     string
	Capacity  int
	StartsAt  time.Time
	Settled   bool
	CreatedAt time.Time
}

// Registration is one participant slot on an event. Guest slots carry the
// guest's name but are billed to the account holder in UserID.
type Registration struct {
	ID        int64
	EventID   int64
	UserID    int64
	GuestName string
	Paid      bool
	CreatedAt time.Time
}

// IsGuest reports whether the slot was created for a guest of UserID.
func (r Registration) IsGuest() bool {
	return r.GuestName != ""
}

// SortByRank orders registrations by creation time, breaking ties by
// insertion id. The input slice is not modified.
func SortByRank(regs []Registration) []Registration {
	sorted := make([]Registration, len(regs))
	copy(sorted, regs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

// Partition splits registrations into the active set (the first capacity
// by rank) and the waitlist. It is recomputed on every call; no stored flag
// is trusted.
func Partition(regs []Registration, capacity int) (active, waitlisted []Registration) {
	sorted := SortByRank(regs)
	if capacity < 0 {
		capacity = 0
	}
	if capacity > len(sorted) {
		capacity = len(sorted)
	}
	return sorted[:capacity], sorted[capacity:]
}

// AllActivePaid reports whether an event with the given registrations and
// capacity is settled. An event with no active registrations is not settled.
func AllActivePaid(regs []Registration, capacity int) bool {
	active, _ := Partition(regs, capacity)
	if len(active) == 0 {
		return false
	}
	for _, r := range active {
		if !r.Paid {
			return false
		}
	}
	return true
}
