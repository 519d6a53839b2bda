package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTierFor_Boundaries(t *testing.T) {
	cfg := AutomationConfig{
		FirstReminderDays:  7,
		SecondReminderDays: 15,
		FinalNoticeDays:    30,
	}

	assert.Equal(t, TierFirst, TierFor(1, cfg))
	assert.Equal(t, TierFirst, TierFor(7, cfg))
	assert.Equal(t, TierSecond, TierFor(8, cfg))
	assert.Equal(t, TierSecond, TierFor(15, cfg))
	assert.Equal(t, TierFinal, TierFor(16, cfg))
	assert.Equal(t, TierFinal, TierFor(20, cfg))
	assert.Equal(t, TierFinal, TierFor(90, cfg))
}

func TestValidateThresholds(t *testing.T) {
	valid := AutomationConfig{FirstReminderDays: 7, SecondReminderDays: 15, FinalNoticeDays: 30, CooldownDays: 3}
	assert.NoError(t, ValidateThresholds(valid))

	cases := []AutomationConfig{
		{FirstReminderDays: 0, SecondReminderDays: 15, FinalNoticeDays: 30},
		{FirstReminderDays: 7, SecondReminderDays: 7, FinalNoticeDays: 30},
		{FirstReminderDays: 7, SecondReminderDays: 5, FinalNoticeDays: 30},
		{FirstReminderDays: 7, SecondReminderDays: 15, FinalNoticeDays: 15},
		{FirstReminderDays: 7, SecondReminderDays: 15, FinalNoticeDays: 30, CooldownDays: -1},
	}
	for _, cfg := range cases {
		assert.ErrorIs(t, ValidateThresholds(cfg), ErrInvalidThresholds)
	}
}

func TestRender(t *testing.T) {
	rc := RenderContext{
		CompanyName:   "Acme Ltd",
		InvoiceNumber: "INV-42",
		Currency:      "USD",
		AmountDue:     15050,
		DueDate:       "2026-03-08",
		DaysOverdue:   4,
	}

	out := Render("{{company_name}}: invoice {{invoice_number}} is {{days_overdue}} days overdue, {{currency}} {{amount_due}} due since {{due_date}}.", rc)
	assert.Equal(t, "Acme Ltd: invoice INV-42 is 4 days overdue, USD 150.50 due since 2026-03-08.", out)

	// Unknown placeholders survive so template typos are visible.
	assert.Equal(t, "hello {{nope}}", Render("hello {{nope}}", rc))
}
