package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type GetFinancialsRequest struct {
	ProjectID string
}

type RecomputeRequest struct {
	ProjectID string
}

type UpdateProjectFinanceRequest struct {
	ProjectID    string
	BudgetAmount *decimal.Decimal
	ClearBudget  bool
	Notes        *string
}

type ProjectCostSummaryRequest struct {
	ProjectID string
	Start     *time.Time
	End       *time.Time
}

type UserCostRequest struct {
	OrgID  snowflake.ID
	UserID snowflake.ID
	Start  *time.Time
	End    *time.Time
}

type Service interface {
	// Get serves the stored snapshot while it is fresh and recomputes otherwise.
	Get(ctx context.Context, req GetFinancialsRequest) (ProjectFinancials, error)
	Recompute(ctx context.Context, req RecomputeRequest) (ProjectFinancials, error)
	UpdateProjectFinance(ctx context.Context, req UpdateProjectFinanceRequest) (ProjectFinancials, error)
	ProjectCostSummary(ctx context.Context, req ProjectCostSummaryRequest) (ProjectCostSummary, error)
	UserCost(ctx context.Context, db *gorm.DB, req UserCostRequest) (UserCost, error)
	// RefreshStale recomputes up to limit stale snapshots across organizations.
	RefreshStale(ctx context.Context, limit int) (int, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidID           = errors.New("invalid_id")
	ErrProjectNotFound     = errors.New("project_not_found")
	ErrCurrencyMismatch    = errors.New("currency_mismatch")
	ErrInvalidBudget       = errors.New("invalid_budget_amount")
	ErrInvalidTimeRange    = errors.New("invalid_time_range")
	ErrConcurrentRecompute = errors.New("concurrent_recompute")
)
