package domain

import "time"

// Recompute derives the settlement snapshot from the complete payment
// set. It is a full recompute, never an incremental delta, so replaying
// it over the same payments always yields the same answer.
func Recompute(amountTotal int64, payments []Payment) Snapshot {
	var paid int64
	var last *time.Time
	for i := range payments {
		paid += payments[i].Amount
		if last == nil || payments[i].PaidAt.After(*last) {
			t := payments[i].PaidAt
			last = &t
		}
	}

	snap := Snapshot{
		AmountPaid:    paid,
		Balance:       amountTotal - paid,
		LastPaymentAt: last,
	}
	switch {
	case snap.Balance == 0:
		snap.Status = StatusSettled
	case paid > 0:
		snap.Status = StatusPartial
	default:
		snap.Status = StatusUnsettled
	}
	return snap
}

// Classify derives the overdue flag and days overdue from a snapshot and
// the current time. A settled invoice is never overdue, regardless of
// its due date.
func Classify(snap Snapshot, dueDate time.Time, now time.Time) (bool, int) {
	if snap.Balance <= 0 || snap.Status == StatusSettled {
		return false, 0
	}
	if !now.After(dueDate) {
		return false, 0
	}
	return true, DaysOverdue(dueDate, now)
}

// DaysOverdue returns the ceiling of the elapsed time past the due date
// in whole days. Both instants are compared in UTC.
func DaysOverdue(dueDate time.Time, now time.Time) int {
	elapsed := now.UTC().Sub(dueDate.UTC())
	if elapsed <= 0 {
		return 0
	}
	days := int(elapsed / (24 * time.Hour))
	if elapsed%(24*time.Hour) != 0 {
		days++
	}
	return days
}
