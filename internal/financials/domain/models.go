package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// ProjectFinancials is the materialized rollup of a project's entries, rates and
// expenses. Stale marks a snapshot whose inputs changed after it was computed.
type ProjectFinancials struct {
	ProjectID           snowflake.ID     `gorm:"primaryKey;autoIncrement:false" json:"project_id"`
	OrgID               snowflake.ID     `gorm:"not null;index" json:"organization_id"`
	Currency            string           `gorm:"type:text" json:"currency"`
	Revenue             decimal.Decimal  `gorm:"type:numeric(18,4);not null" json:"revenue"`
	FreelancerCost      decimal.Decimal  `gorm:"type:numeric(18,4);not null" json:"freelancer_cost"`
	Expenses            decimal.Decimal  `gorm:"type:numeric(18,4);not null" json:"expenses"`
	Profit              decimal.Decimal  `gorm:"type:numeric(18,4);not null" json:"profit"`
	MarginPercent       *decimal.Decimal `gorm:"type:numeric(18,4)" json:"margin_percent"`
	BillableHours       decimal.Decimal  `gorm:"type:numeric(18,4);not null" json:"billable_hours"`
	BudgetAmount        *decimal.Decimal `gorm:"type:numeric(18,2)" json:"budget_amount"`
	Notes               *string          `gorm:"type:text" json:"notes"`
	UnpricedCostEntries int              `gorm:"not null;default:0" json:"unpriced_cost_entries"`
	LastUpdated         time.Time        `gorm:"not null" json:"last_updated"`
	Version             int64            `gorm:"not null;default:0" json:"version"`
	ComputedAt          time.Time        `gorm:"not null;index" json:"-"`
	Stale               bool             `gorm:"not null;default:false;index" json:"-"`
}

func (ProjectFinancials) TableName() string { return "project_financials" }

// SameFigures reports whether two snapshots carry identical computed values.
func (p ProjectFinancials) SameFigures(other ProjectFinancials) bool {
	return p.ProjectID == other.ProjectID &&
		p.Currency == other.Currency &&
		p.Revenue.Equal(other.Revenue) &&
		p.FreelancerCost.Equal(other.FreelancerCost) &&
		p.Expenses.Equal(other.Expenses) &&
		p.Profit.Equal(other.Profit) &&
		decimalPtrEqual(p.MarginPercent, other.MarginPercent) &&
		p.BillableHours.Equal(other.BillableHours) &&
		decimalPtrEqual(p.BudgetAmount, other.BudgetAmount) &&
		stringPtrEqual(p.Notes, other.Notes) &&
		p.UnpricedCostEntries == other.UnpricedCostEntries
}

func decimalPtrEqual(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func stringPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// UserCostLine is one user's share of a project's tracked time.
type UserCostLine struct {
	UserID              snowflake.ID    `json:"user_id"`
	Hours               decimal.Decimal `json:"hours"`
	BillableHours       decimal.Decimal `json:"billable_hours"`
	Revenue             decimal.Decimal `json:"revenue"`
	Cost                decimal.Decimal `json:"cost"`
	UnpricedCostEntries int             `json:"unpriced_cost_entries"`
}

type ProjectCostSummary struct {
	ProjectID     snowflake.ID    `json:"project_id"`
	Currency      string          `json:"currency"`
	TotalHours    decimal.Decimal `json:"total_hours"`
	BillableHours decimal.Decimal `json:"billable_hours"`
	Revenue       decimal.Decimal `json:"revenue"`
	Cost          decimal.Decimal `json:"cost"`
	Users         []UserCostLine  `json:"users"`
}

// UserCost totals a user's tracked hours priced at their internal rate across all projects.
type UserCost struct {
	UserID              snowflake.ID
	Currency            string
	TotalHours          decimal.Decimal
	TotalCost           decimal.Decimal
	UnpricedCostEntries int
}
