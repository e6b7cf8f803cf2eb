package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type CreatePayoutRequest struct {
	FreelancerUserID string
	ProjectID        string
	Amount           decimal.Decimal
	Currency         string
	PayoutMethod     string
	ScheduledFor     *time.Time
	Notes            *string
}

type MarkCompletedRequest struct {
	ID              string
	PayoutReference string
	PaidAt          *time.Time
}

type MarkFailedRequest struct {
	ID     string
	Reason string
}

type ListPayoutRequest struct {
	FreelancerUserID string
	ProjectID        string
	Status           string
	PageSize         int
	Page             int
}

type ListPayoutResponse struct {
	Payouts []Payout `json:"payouts"`
}

type FinanceSummaryRequest struct {
	UserID string
	Start  *time.Time
	End    *time.Time
}

type Export struct {
	Filename    string
	ContentType string
	Data        []byte
}

type Service interface {
	Create(ctx context.Context, req CreatePayoutRequest) (Payout, error)
	MarkCompleted(ctx context.Context, req MarkCompletedRequest) (Payout, error)
	MarkFailed(ctx context.Context, req MarkFailedRequest) (Payout, error)
	Get(ctx context.Context, id string) (Payout, error)
	List(ctx context.Context, req ListPayoutRequest) (ListPayoutResponse, error)
	ExportCSV(ctx context.Context, req ListPayoutRequest) (Export, error)
	FinanceSummary(ctx context.Context, req FinanceSummaryRequest) (FinanceSummary, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidUser         = errors.New("invalid_user")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidCurrency     = errors.New("invalid_currency")
	ErrInvalidMethod       = errors.New("invalid_payout_method")
	ErrInvalidReference    = errors.New("invalid_payout_reference")
	ErrInvalidStatus       = errors.New("invalid_status")
	ErrInvalidTimeRange    = errors.New("invalid_time_range")
	ErrNotFound            = errors.New("payout_not_found")
	ErrProjectNotFound     = errors.New("project_not_found")
	ErrInvalidState        = errors.New("invalid_state")
	ErrCurrencyMismatch    = errors.New("currency_mismatch")
)
