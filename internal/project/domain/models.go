package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Project is written by the organization service; this engine reads it and owns
// only the finance fields (budget_amount, notes).
type Project struct {
	ID           snowflake.ID     `gorm:"primaryKey" json:"id"`
	OrgID        snowflake.ID     `gorm:"not null;index" json:"organization_id"`
	ClientID     *snowflake.ID    `gorm:"index" json:"client_id,omitempty"`
	Name         string           `gorm:"type:text;not null" json:"name"`
	Currency     string           `gorm:"type:text" json:"currency,omitempty"`
	ClientName   *string          `gorm:"type:text" json:"client_name,omitempty"`
	ClientEmail  *string          `gorm:"type:text" json:"client_email,omitempty"`
	BudgetAmount *decimal.Decimal `gorm:"type:numeric(18,2)" json:"budget_amount"`
	Notes        *string          `gorm:"type:text" json:"notes"`
	CreatedAt    time.Time        `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time        `gorm:"not null" json:"updated_at"`
}

func (Project) TableName() string { return "projects" }

// FinanceUpdate carries the project fields owned by finance users.
type FinanceUpdate struct {
	BudgetAmount *decimal.Decimal
	ClearBudget  bool
	Notes        *string
}
