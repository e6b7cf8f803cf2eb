// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Status represents invoice lifecycle states.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusPaid      Status = "paid"
	StatusOverdue   Status = "overdue"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusPaid, StatusOverdue, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusCancelled
}

type LineKind string

const (
	LineKindTime    LineKind = "time"
	LineKindExpense LineKind = "expense"
)

// Invoice is a billing document drafted from a project's unbilled work.
type Invoice struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID    `gorm:"not null;index;uniqueIndex:ux_invoices_org_sequence,priority:1" json:"organization_id"`
	ProjectID   snowflake.ID    `gorm:"not null;index" json:"project_id"`
	Sequence    int64           `gorm:"not null;uniqueIndex:ux_invoices_org_sequence,priority:2" json:"-"`
	Number      string          `gorm:"type:text;not null" json:"number"`
	Currency    string          `gorm:"type:text;not null" json:"currency"`
	Status      Status          `gorm:"type:text;not null;index" json:"status"`
	DueDate     *time.Time      `json:"due_date"`
	ClientName  *string         `gorm:"type:text" json:"client_name"`
	ClientEmail *string         `gorm:"type:text" json:"client_email"`
	Total       decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"total"`
	PeriodStart *time.Time      `json:"period_start,omitempty"`
	PeriodEnd   *time.Time      `json:"period_end,omitempty"`
	SentAt      *time.Time      `json:"sent_at,omitempty"`
	PaidAt      *time.Time      `json:"paid_at,omitempty"`
	CancelledAt *time.Time      `json:"cancelled_at,omitempty"`
	CreatedBy   *snowflake.ID   `json:"created_by,omitempty"`
	CreatedAt   time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"not null" json:"updated_at"`

	Lines []Line `gorm:"foreignKey:InvoiceID" json:"lines"`
}

func (Invoice) TableName() string { return "invoices" }

// Overdue reports whether a sent invoice is past its due date at now.
func (i Invoice) Overdue(now time.Time) bool {
	return i.Status == StatusSent && i.DueDate != nil && now.After(*i.DueDate)
}

// Line is one row of an invoice. Expense lines carry zero hours and rate.
type Line struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID    `gorm:"not null;index" json:"-"`
	InvoiceID   snowflake.ID    `gorm:"not null;index" json:"invoice_id"`
	Position    int             `gorm:"not null" json:"-"`
	Kind        LineKind        `gorm:"type:text;not null" json:"kind"`
	Description string          `gorm:"type:text;not null" json:"description"`
	Hours       decimal.Decimal `gorm:"type:numeric(18,4);not null" json:"hours"`
	Rate        decimal.Decimal `gorm:"type:numeric(18,4);not null" json:"rate"`
	Amount      decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"amount"`
	CreatedAt   time.Time       `gorm:"not null" json:"-"`
}

func (Line) TableName() string { return "invoice_lines" }

type ListFilter struct {
	ProjectID *snowflake.ID
	Status    Status
	Limit     int
	Offset    int
}
