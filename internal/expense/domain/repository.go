package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository serves the read paths the aggregator and invoicing share.
type Repository interface {
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter Filter) ([]Expense, error)
	MarkBilled(ctx context.Context, db *gorm.DB, orgID snowflake.ID, ids []snowflake.ID, invoiceID snowflake.ID) (int64, error)
	ReleaseInvoice(ctx context.Context, db *gorm.DB, orgID, invoiceID snowflake.ID) (int64, error)
}
