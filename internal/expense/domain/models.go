package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Expense struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID    `gorm:"not null;index" json:"organization_id"`
	ProjectID   snowflake.ID    `gorm:"not null;index" json:"project_id"`
	Amount      decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"amount"`
	Currency    string          `gorm:"type:text;not null" json:"currency"`
	Category    string          `gorm:"type:text;not null" json:"category"`
	Description string          `gorm:"type:text" json:"description"`
	ReceiptURL  *string         `gorm:"type:text" json:"receipt_url"`
	IncurredOn  time.Time       `gorm:"not null;index" json:"incurred_on"`
	InvoiceID   *snowflake.ID   `gorm:"index" json:"invoice_id"`
	CreatedBy   *snowflake.ID   `json:"created_by"`
	CreatedAt   time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"not null" json:"updated_at"`
}

func (Expense) TableName() string { return "expenses" }

type Filter struct {
	ProjectID    *snowflake.ID
	UnbilledOnly bool
	Start        *time.Time
	End          *time.Time
}
