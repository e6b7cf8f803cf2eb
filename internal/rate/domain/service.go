package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type CreateRateRequest struct {
	Scope         string
	ScopeID       string
	ProjectID     string
	RateType      string
	Currency      string
	HourlyRate    decimal.Decimal
	EffectiveFrom *time.Time
	EffectiveTo   *time.Time
}

type CreateRateResponse struct {
	Rate Rate `json:"rate"`
	// Superseded lists rates whose effective_to was closed by this creation.
	Superseded []Rate `json:"superseded,omitempty"`
}

type ListRateRequest struct {
	Scope    string
	ScopeID  string
	RateType string
	Currency string
	ActiveAt *time.Time
}

type ResolveRateRequest struct {
	ProjectID string
	ForUserID string
	RateType  string
	At        *time.Time
	Currency  string
}

type Service interface {
	Create(ctx context.Context, req CreateRateRequest) (CreateRateResponse, error)
	List(ctx context.Context, req ListRateRequest) ([]Rate, error)
	Resolve(ctx context.Context, req ResolveRateRequest) (ResolvedRate, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidScope        = errors.New("invalid_scope")
	ErrInvalidScopeID      = errors.New("invalid_scope_id")
	ErrInvalidRateType     = errors.New("invalid_rate_type")
	ErrInvalidCurrency     = errors.New("invalid_currency")
	ErrInvalidHourlyRate   = errors.New("invalid_hourly_rate")
	ErrInvalidWindow       = errors.New("invalid_effective_window")
	ErrRateOverlap         = errors.New("rate_window_overlap")
	ErrProjectNotFound     = errors.New("project_not_found")
)
