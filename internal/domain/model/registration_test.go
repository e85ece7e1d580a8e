package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type regSpec struct {
	id     int64
	offset int
	paid   bool
}

func regsAt(base time.Time, specs ...regSpec) []Registration {
	regs := make([]Registration, 0, len(specs))
	for _, s := range specs {
		regs = append(regs, Registration{ID: s.id, CreatedAt: base.Add(time.Duration(s.offset) * time.Minute), Paid: s.paid})
	}
	return regs
}

func TestPartition(t *testing.T) {
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	regs := regsAt(base,
		regSpec{id: 3, offset: 2},
		regSpec{id: 1, offset: 0},
		regSpec{id: 4, offset: 2},
		regSpec{id: 2, offset: 1},
	)

	tests := []struct {
		name         string
		capacity     int
		wantActive   []int64
		wantWaitlist []int64
	}{
		{"capacity below count", 2, []int64{1, 2}, []int64{3, 4}},
		{"ties broken by id", 3, []int64{1, 2, 3}, []int64{4}},
		{"capacity above count", 10, []int64{1, 2, 3, 4}, nil},
		{"zero capacity", 0, nil, []int64{1, 2, 3, 4}},
	}

	ids := func(rs []Registration) []int64 {
		var out []int64
		for _, r := range rs {
			out = append(out, r.ID)
		}
		return out
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			active, waitlisted := Partition(regs, tt.capacity)
			assert.Equal(t, tt.wantActive, ids(active))
			assert.Equal(t, tt.wantWaitlist, ids(waitlisted))
			assert.Equal(t, len(regs), len(active)+len(waitlisted))
		})
	}

	assert.Equal(t, int64(3), regs[0].ID, "input order is untouched")
}

func TestAllActivePaid(t *testing.T) {
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	t.Run("waitlist does not block", func(t *testing.T) {
		regs := regsAt(base, regSpec{id: 1, paid: true}, regSpec{id: 2, offset: 1, paid: true}, regSpec{id: 3, offset: 2})
		assert.True(t, AllActivePaid(regs, 2))
	})

	t.Run("unpaid active blocks", func(t *testing.T) {
		regs := regsAt(base, regSpec{id: 1, paid: true}, regSpec{id: 2, offset: 1})
		assert.False(t, AllActivePaid(regs, 2))
	})

	t.Run("empty active set is not settled", func(t *testing.T) {
		assert.False(t, AllActivePaid(nil, 5))
	})
}
