package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert writes the invoice and its lines.
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Invoice, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Invoice, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListFilter) ([]Invoice, error)
	NextSequence(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (int64, error)
	// Transition moves the invoice to "to" only when its current status is one of from.
	Transition(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, from []Status, to Status, fields map[string]any) (bool, error)
	// MarkOverdue flips sent invoices due before now and returns the ids it changed.
	MarkOverdue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]snowflake.ID, error)
}
