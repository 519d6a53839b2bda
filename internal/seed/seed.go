// Package seed bootstraps a default company so a fresh install is
// usable without any manual setup.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	companydomain "github.com/duetrack/duetrack/internal/company/domain"
	"github.com/duetrack/duetrack/internal/config"
	reminderdomain "github.com/duetrack/duetrack/internal/reminder/domain"
)

const (
	defaultCompanyName  = "Main"
	defaultCompanyEmail = "billing@duetrack.local"
)

var defaultTemplates = []struct {
	tier    reminderdomain.Tier
	subject string
	body    string
}{
	{
		tier:    reminderdomain.TierFirst,
		subject: "Payment reminder for invoice {{invoice_number}}",
		body:    "Hi {{company_name}},\n\nInvoice {{invoice_number}} for {{currency}} {{amount_due}} was due on {{due_date}} and is now {{days_overdue}} day(s) overdue. Please arrange payment at your earliest convenience.\n",
	},
	{
		tier:    reminderdomain.TierSecond,
		subject: "Second reminder: invoice {{invoice_number}} is overdue",
		body:    "Hi {{company_name}},\n\nThis is a second reminder that invoice {{invoice_number}} for {{currency}} {{amount_due}} is {{days_overdue}} day(s) past its due date of {{due_date}}.\n",
	},
	{
		tier:    reminderdomain.TierFinal,
		subject: "Final notice: invoice {{invoice_number}}",
		body:    "Hi {{company_name}},\n\nDespite previous reminders, invoice {{invoice_number}} for {{currency}} {{amount_due}} remains unpaid {{days_overdue}} day(s) after {{due_date}}. Please settle the outstanding balance to avoid further action.\n",
	},
}

// EnsureDefaultCompany seeds the default company, its reminder
// templates, and an automation config derived from the application
// defaults. The seed is idempotent and safe to run on every startup.
func EnsureDefaultCompany(db *gorm.DB, defaults config.AutomationDefaults) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		company, err := ensureCompanyTx(ctx, tx, node)
		if err != nil {
			return err
		}
		if err := ensureTemplatesTx(ctx, tx, node, company.ID); err != nil {
			return err
		}
		return ensureAutomationConfigTx(ctx, tx, company.ID, defaults)
	})
}

func ensureCompanyTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node) (companydomain.Company, error) {
	var company companydomain.Company
	err := tx.WithContext(ctx).Where("name = ?", defaultCompanyName).First(&company).Error
	if err == nil {
		return company, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return companydomain.Company{}, err
	}

	now := time.Now().UTC()
	company = companydomain.Company{
		ID:           node.Generate(),
		Name:         defaultCompanyName,
		ContactEmail: defaultCompanyEmail,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := tx.WithContext(ctx).Create(&company).Error; err != nil {
		return companydomain.Company{}, err
	}
	return company, nil
}

func ensureTemplatesTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, companyID snowflake.ID) error {
	for _, tpl := range defaultTemplates {
		var count int64
		err := tx.WithContext(ctx).
			Model(&reminderdomain.ReminderTemplate{}).
			Where("company_id = ? AND tier = ?", companyID, tpl.tier).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			continue
		}

		now := time.Now().UTC()
		record := reminderdomain.ReminderTemplate{
			ID:        node.Generate(),
			CompanyID: companyID,
			Tier:      tpl.tier,
			Subject:   tpl.subject,
			Body:      tpl.body,
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.WithContext(ctx).Create(&record).Error; err != nil {
			return err
		}
	}
	return nil
}

func ensureAutomationConfigTx(ctx context.Context, tx *gorm.DB, companyID snowflake.ID, defaults config.AutomationDefaults) error {
	var count int64
	err := tx.WithContext(ctx).
		Model(&reminderdomain.AutomationConfig{}).
		Where("company_id = ?", companyID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	record := reminderdomain.AutomationConfig{
		CompanyID:          companyID,
		Enabled:            defaults.Enabled,
		FirstReminderDays:  defaults.FirstReminderDays,
		SecondReminderDays: defaults.SecondReminderDays,
		FinalNoticeDays:    defaults.FinalNoticeDays,
		CooldownDays:       defaults.CooldownDays,
		UpdatedAt:          time.Now().UTC(),
	}
	return tx.WithContext(ctx).Create(&record).Error
}
