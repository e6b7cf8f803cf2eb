package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, alert *Alert) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Alert, error)
	// FindOpen returns the unacknowledged alert of kind for the project/user pair.
	FindOpen(ctx context.Context, db *gorm.DB, orgID snowflake.ID, kind Kind, projectID, userID *snowflake.ID) (*Alert, error)
	Refresh(ctx context.Context, db *gorm.DB, alert *Alert) error
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListFilter) ([]Alert, error)
	// Acknowledge stamps an open alert; it reports false when the alert was already acknowledged.
	Acknowledge(ctx context.Context, db *gorm.DB, orgID, id, userID snowflake.ID, at time.Time) (bool, error)
}
