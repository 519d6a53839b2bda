package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func pay(amount int64, paidAt time.Time) Payment {
	return Payment{Amount: amount, PaidAt: paidAt}
}

func TestRecompute(t *testing.T) {
	base := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)

	t.Run("no payments", func(t *testing.T) {
		snap := Recompute(100_00, nil)
		assert.Equal(t, int64(0), snap.AmountPaid)
		assert.Equal(t, int64(100_00), snap.Balance)
		assert.Equal(t, StatusUnsettled, snap.Status)
		assert.Nil(t, snap.LastPaymentAt)
	})

	t.Run("partial", func(t *testing.T) {
		snap := Recompute(100_00, []Payment{pay(40_00, base)})
		assert.Equal(t, int64(40_00), snap.AmountPaid)
		assert.Equal(t, int64(60_00), snap.Balance)
		assert.Equal(t, StatusPartial, snap.Status)
		assert.Equal(t, base, *snap.LastPaymentAt)
	})

	t.Run("settled", func(t *testing.T) {
		later := base.Add(48 * time.Hour)
		snap := Recompute(100_00, []Payment{pay(40_00, later), pay(60_00, base)})
		assert.Equal(t, int64(0), snap.Balance)
		assert.Equal(t, StatusSettled, snap.Status)
		assert.Equal(t, later, *snap.LastPaymentAt, "latest paid_at wins regardless of order")
	})

	t.Run("replay is idempotent", func(t *testing.T) {
		payments := []Payment{pay(25_00, base), pay(25_00, base.Add(time.Hour))}
		first := Recompute(100_00, payments)
		second := Recompute(100_00, payments)
		assert.Equal(t, first, second)
	})
}

func TestClassify(t *testing.T) {
	due := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	open := Snapshot{Balance: 50_00, Status: StatusPartial}

	t.Run("settled is never overdue", func(t *testing.T) {
		settled := Snapshot{Balance: 0, Status: StatusSettled}
		overdue, days := Classify(settled, due, due.Add(90*24*time.Hour))
		assert.False(t, overdue)
		assert.Zero(t, days)
	})

	t.Run("not past due at the exact instant", func(t *testing.T) {
		overdue, days := Classify(open, due, due)
		assert.False(t, overdue)
		assert.Zero(t, days)
	})

	t.Run("any time past due is day one", func(t *testing.T) {
		overdue, days := Classify(open, due, due.Add(time.Minute))
		assert.True(t, overdue)
		assert.Equal(t, 1, days)
	})
}

func TestDaysOverdue(t *testing.T) {
	due := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		now  time.Time
		want int
	}{
		{"before due", due.Add(-time.Hour), 0},
		{"at due", due, 0},
		{"one second after", due.Add(time.Second), 1},
		{"exactly one day", due.Add(24 * time.Hour), 1},
		{"one day and one hour", due.Add(25 * time.Hour), 2},
		{"ten days", due.Add(10 * 24 * time.Hour), 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DaysOverdue(due, tc.now))
		})
	}
}
