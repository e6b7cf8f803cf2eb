package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type RaiseRequest struct {
	OrgID     snowflake.ID
	Kind      Kind
	Severity  Severity
	ProjectID *snowflake.ID
	UserID    *snowflake.ID
	Message   string
	Amount    *decimal.Decimal
	Currency  string
}

type ListAlertRequest struct {
	Kind         string
	ProjectID    string
	UserID       string
	IncludeAcked bool
	Limit        int
}

type AcknowledgeRequest struct {
	ID string
}

type Service interface {
	// Raise records an alert inside tx. An open alert with the same kind and
	// target is refreshed instead of duplicated.
	Raise(ctx context.Context, tx *gorm.DB, req RaiseRequest) (Alert, error)
	List(ctx context.Context, req ListAlertRequest) ([]Alert, error)
	Acknowledge(ctx context.Context, req AcknowledgeRequest) (Alert, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidKind         = errors.New("invalid_alert_type")
	ErrNotFound            = errors.New("alert_not_found")
	ErrAlreadyAcknowledged = errors.New("alert_already_acknowledged")
)
