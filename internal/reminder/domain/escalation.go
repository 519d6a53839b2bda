package domain

import (
	"strconv"
	"strings"
)

// TierFor maps days overdue onto an escalation tier. The boundary rule
// is inclusive on the lower tiers: exactly FirstReminderDays overdue is
// still FIRST, exactly SecondReminderDays is still SECOND.
func TierFor(daysOverdue int, cfg AutomationConfig) Tier {
	switch {
	case daysOverdue <= cfg.FirstReminderDays:
		return TierFirst
	case daysOverdue <= cfg.SecondReminderDays:
		return TierSecond
	default:
		return TierFinal
	}
}

// ValidateThresholds enforces strictly increasing reminder days, all at
// least one, and a non-negative cooldown.
func ValidateThresholds(cfg AutomationConfig) error {
	if cfg.FirstReminderDays < 1 {
		return ErrInvalidThresholds
	}
	if cfg.SecondReminderDays <= cfg.FirstReminderDays {
		return ErrInvalidThresholds
	}
	if cfg.FinalNoticeDays <= cfg.SecondReminderDays {
		return ErrInvalidThresholds
	}
	if cfg.CooldownDays < 0 {
		return ErrInvalidThresholds
	}
	return nil
}

// RenderContext carries the values substituted into template
// placeholders.
type RenderContext struct {
	CompanyName   string
	InvoiceNumber string
	Currency      string
	AmountDue     int64
	DueDate       string
	DaysOverdue   int
}

// Render substitutes {{name}} placeholders. Unknown placeholders are
// left in place rather than erased, so a template typo is visible in
// the rendered output instead of silently vanishing.
func Render(content string, rc RenderContext) string {
	replacer := strings.NewReplacer(
		"{{company_name}}", rc.CompanyName,
		"{{invoice_number}}", rc.InvoiceNumber,
		"{{currency}}", rc.Currency,
		"{{amount_due}}", formatMinorUnits(rc.AmountDue),
		"{{due_date}}", rc.DueDate,
		"{{days_overdue}}", strconv.Itoa(rc.DaysOverdue),
	)
	return replacer.Replace(content)
}

func formatMinorUnits(amount int64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}
	out := strconv.FormatInt(amount/100, 10) + "." + pad2(amount%100)
	if negative {
		return "-" + out
	}
	return out
}

func pad2(v int64) string {
	if v < 10 {
		return "0" + strconv.FormatInt(v, 10)
	}
	return strconv.FormatInt(v, 10)
}
