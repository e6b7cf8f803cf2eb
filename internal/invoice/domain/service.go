package domain

import (
	"context"
	"errors"
	"time"
)

type DraftInvoiceRequest struct {
	ProjectID   string
	Start       *time.Time
	End         *time.Time
	ClientName  *string
	ClientEmail *string
	DueDate     *time.Time
	// IncludeExpenses defaults to true.
	IncludeExpenses *bool
	SendNow         bool
}

type SendInvoiceRequest struct {
	ID      string
	ToEmail string
}

type SendInvoiceResponse struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
}

type CancelInvoiceRequest struct {
	ID     string
	Reason string
}

type MarkPaidRequest struct {
	ID     string
	PaidAt *time.Time
}

type ListInvoiceRequest struct {
	ProjectID string
	Status    string
	PageSize  int
	Page      int
}

type ListInvoiceResponse struct {
	Invoices []Invoice `json:"invoices"`
}

// Document is a rendered export of an invoice.
type Document struct {
	Filename    string
	ContentType string
	Data        []byte
}

type Service interface {
	// Draft creates a draft from unbilled entries and expenses. When SendNow is set and
	// delivery fails, the draft is returned together with ErrDeliveryFailed.
	Draft(ctx context.Context, req DraftInvoiceRequest) (Invoice, error)
	Send(ctx context.Context, req SendInvoiceRequest) (SendInvoiceResponse, error)
	Cancel(ctx context.Context, req CancelInvoiceRequest) (Invoice, error)
	MarkPaid(ctx context.Context, req MarkPaidRequest) (Invoice, error)
	Get(ctx context.Context, id string) (Invoice, error)
	List(ctx context.Context, req ListInvoiceRequest) (ListInvoiceResponse, error)
	ExportPDF(ctx context.Context, id string) (Document, error)
	// MarkOverdue moves past-due sent invoices of every organization to overdue.
	MarkOverdue(ctx context.Context, limit int) (int, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidTimeRange    = errors.New("invalid_time_range")
	ErrInvalidStatus       = errors.New("invalid_status")
	ErrInvalidEmail        = errors.New("invalid_email")
	ErrMissingRecipient    = errors.New("missing_recipient")
	ErrNotFound            = errors.New("invoice_not_found")
	ErrProjectNotFound     = errors.New("project_not_found")
	ErrNothingToInvoice    = errors.New("nothing_to_invoice")
	ErrSelectionChanged    = errors.New("invoice_selection_changed")
	ErrCurrencyMismatch    = errors.New("currency_mismatch")
	ErrInvalidState        = errors.New("invalid_state")
	ErrDeliveryFailed      = errors.New("delivery_failed")
)
