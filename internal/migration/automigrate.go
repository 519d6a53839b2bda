package migration

import (
	"errors"

	"gorm.io/gorm"

	auditdomain "github.com/duetrack/duetrack/internal/audit/domain"
	companydomain "github.com/duetrack/duetrack/internal/company/domain"
	invoicedomain "github.com/duetrack/duetrack/internal/invoice/domain"
	reminderdomain "github.com/duetrack/duetrack/internal/reminder/domain"
)

// AutoMigrate builds the schema from the gorm models for database
// targets the versioned migrations do not cover.
func AutoMigrate(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}

	return conn.AutoMigrate(
		&companydomain.Company{},
		&invoicedomain.Invoice{},
		&invoicedomain.Payment{},
		&reminderdomain.ReminderTemplate{},
		&reminderdomain.AutomationConfig{},
		&reminderdomain.DispatchAttempt{},
		&auditdomain.AuditLog{},
	)
}
