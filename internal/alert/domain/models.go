package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindBudgetExceeded Kind = "budget_exceeded"
	KindNegativeMargin Kind = "negative_margin"
	KindOverpayment    Kind = "overpayment"
)

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is raised by the finance engine and stays open until acknowledged.
type Alert struct {
	ID             snowflake.ID     `gorm:"primaryKey" json:"id"`
	OrgID          snowflake.ID     `gorm:"not null;index" json:"organization_id"`
	Kind           Kind             `gorm:"type:text;not null;index" json:"type"`
	Severity       Severity         `gorm:"type:text;not null" json:"severity"`
	ProjectID      *snowflake.ID    `gorm:"index" json:"project_id"`
	UserID         *snowflake.ID    `gorm:"index" json:"user_id"`
	Message        string           `gorm:"type:text;not null" json:"message"`
	Amount         *decimal.Decimal `gorm:"type:numeric(18,4)" json:"amount"`
	Currency       string           `gorm:"type:text" json:"currency,omitempty"`
	AcknowledgedAt *time.Time       `json:"acknowledged_at"`
	AcknowledgedBy *snowflake.ID    `json:"acknowledged_by"`
	CreatedAt      time.Time        `gorm:"not null;index" json:"created_at"`
	UpdatedAt      time.Time        `gorm:"not null" json:"updated_at"`
}

func (Alert) TableName() string { return "finance_alerts" }

func (a Alert) Acknowledged() bool {
	return a.AcknowledgedAt != nil
}

type ListFilter struct {
	Kind         Kind
	ProjectID    *snowflake.ID
	UserID       *snowflake.ID
	IncludeAcked bool
	Limit        int
}
