package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Payout is money owed to a freelancer. Completed and failed payouts are immutable.
type Payout struct {
	ID               snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrgID            snowflake.ID    `gorm:"not null;index" json:"organization_id"`
	FreelancerUserID snowflake.ID    `gorm:"not null;index" json:"freelancer_user_id"`
	ProjectID        *snowflake.ID   `gorm:"index" json:"project_id"`
	Amount           decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"amount"`
	Currency         string          `gorm:"type:text;not null" json:"currency"`
	PayoutMethod     string          `gorm:"type:text;not null" json:"payout_method"`
	Status           Status          `gorm:"type:text;not null;index" json:"status"`
	PayoutReference  *string         `gorm:"type:text" json:"payout_reference"`
	ScheduledFor     *time.Time      `json:"scheduled_for"`
	PaidAt           *time.Time      `json:"paid_at"`
	FailedAt         *time.Time      `json:"failed_at,omitempty"`
	FailureReason    *string         `gorm:"type:text" json:"failure_reason,omitempty"`
	Notes            *string         `gorm:"type:text" json:"notes,omitempty"`
	CreatedBy        *snowflake.ID   `json:"created_by,omitempty"`
	CreatedAt        time.Time       `gorm:"not null;index" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"not null" json:"updated_at"`
}

func (Payout) TableName() string { return "payouts" }

// EffectiveAt is the instant a payout counts toward a reporting window: paid_at once
// completed, otherwise scheduled_for, otherwise creation.
func (p Payout) EffectiveAt() time.Time {
	if p.Status == StatusCompleted && p.PaidAt != nil {
		return *p.PaidAt
	}
	if p.ScheduledFor != nil {
		return *p.ScheduledFor
	}
	return p.CreatedAt
}

type ListFilter struct {
	FreelancerUserID *snowflake.ID
	ProjectID        *snowflake.ID
	Status           Status
	Limit            int
	Offset           int
}

// FinanceSummary reconciles a freelancer's tracked cost against payouts.
type FinanceSummary struct {
	UserID              snowflake.ID    `json:"user_id"`
	Currency            string          `json:"currency"`
	TotalHours          decimal.Decimal `json:"total_hours"`
	TotalCost           decimal.Decimal `json:"total_cost"`
	PaidTotal           decimal.Decimal `json:"paid_total"`
	PendingPayoutTotal  decimal.Decimal `json:"pending_payout_total"`
	DueTotal            decimal.Decimal `json:"due_total"`
	Overpaid            bool            `json:"overpaid"`
	OverpaidAmount      decimal.Decimal `json:"overpaid_amount"`
	UnpricedCostEntries int             `json:"unpriced_cost_entries"`
}
