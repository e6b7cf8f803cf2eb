package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByProject(ctx context.Context, db *gorm.DB, orgID, projectID snowflake.ID) (*ProjectFinancials, error)
	Insert(ctx context.Context, db *gorm.DB, snapshot *ProjectFinancials) error
	// Save overwrites the snapshot only if its stored version still equals expectedVersion.
	Save(ctx context.Context, db *gorm.DB, snapshot *ProjectFinancials, expectedVersion int64) (bool, error)
	MarkFresh(ctx context.Context, db *gorm.DB, orgID, projectID snowflake.ID, version int64, computedAt time.Time) (bool, error)
	MarkStale(ctx context.Context, db *gorm.DB, orgID, projectID snowflake.ID) error
	MarkOrgStale(ctx context.Context, db *gorm.DB, orgID snowflake.ID) error
	// ListStale returns snapshots flagged stale or computed before olderThan, oldest first.
	ListStale(ctx context.Context, db *gorm.DB, olderThan time.Time, limit int) ([]ProjectFinancials, error)
}

// Invalidator flags snapshots whose inputs changed. Writers call it inside the
// transaction that changes the inputs.
type Invalidator interface {
	InvalidateProject(ctx context.Context, db *gorm.DB, orgID, projectID snowflake.ID) error
	InvalidateOrg(ctx context.Context, db *gorm.DB, orgID snowflake.ID) error
}
