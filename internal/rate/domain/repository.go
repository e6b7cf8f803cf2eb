package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	Scope    Scope
	ScopeID  *snowflake.ID
	RateType RateType
	Currency string
	// ActiveAt keeps only rates covering the instant.
	ActiveAt *time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, rate *Rate) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Rate, error)
	// FindByKeyForUpdate locks every row under key on dialects that support row locks.
	FindByKeyForUpdate(ctx context.Context, db *gorm.DB, key ScopeKey) ([]Rate, error)
	FindByKey(ctx context.Context, db *gorm.DB, key ScopeKey) ([]Rate, error)
	ListByOrg(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]Rate, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListFilter) ([]Rate, error)
	CloseWindow(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, effectiveTo time.Time) error
}
