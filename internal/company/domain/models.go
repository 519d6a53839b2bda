// Package domain contains the company registry models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Company owns invoices and the automation settings applied to them.
// ContactEmail is the default recipient for reminders when an invoice
// carries no contact of its own.
type Company struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	Name         string       `gorm:"type:text;not null"`
	ContactEmail string       `gorm:"type:text"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Company) TableName() string { return "companies" }
