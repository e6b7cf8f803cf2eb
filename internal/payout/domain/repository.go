package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payout *Payout) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Payout, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListFilter) ([]Payout, error)
	// Settle moves a pending payout to a terminal status; false means it was not pending.
	Settle(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, to Status, fields map[string]any) (bool, error)
}
