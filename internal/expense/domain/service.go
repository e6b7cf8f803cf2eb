package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type CreateExpenseRequest struct {
	ProjectID   string
	Amount      decimal.Decimal
	Currency    string
	Category    string
	Description string
	ReceiptURL  string
	IncurredOn  *time.Time
}

type UpdateExpenseRequest struct {
	ID          string
	Amount      *decimal.Decimal
	Currency    *string
	Category    *string
	Description *string
	ReceiptURL  *string
	IncurredOn  *time.Time
}

type ListExpenseRequest struct {
	ProjectID string
	Category  string
	PageSize  int
	Page      int
}

type ExpenseRequest struct {
	ID string
}

type Service interface {
	Create(ctx context.Context, req CreateExpenseRequest) (Expense, error)
	List(ctx context.Context, req ListExpenseRequest) ([]Expense, error)
	Get(ctx context.Context, req ExpenseRequest) (Expense, error)
	Update(ctx context.Context, req UpdateExpenseRequest) (Expense, error)
	Delete(ctx context.Context, req ExpenseRequest) error
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidProject      = errors.New("invalid_project")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidCurrency     = errors.New("invalid_currency")
	ErrNotFound            = errors.New("expense_not_found")
	ErrProjectNotFound     = errors.New("project_not_found")
	ErrExpenseLocked       = errors.New("expense_locked")
)
