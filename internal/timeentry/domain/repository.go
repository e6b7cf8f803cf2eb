package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	ProjectID *snowflake.ID
	UserID    *snowflake.ID
	Start     *time.Time
	End       *time.Time
	Billable  *bool
	Unbilled  bool
	Cursor    *EntryCursor
	Limit     int
}

type EntryCursor struct {
	ID      snowflake.ID
	StartTS time.Time
}

// FinalizedFilter selects stopped entries by start_ts within [Start, End).
type FinalizedFilter struct {
	ProjectID    *snowflake.ID
	UserID       *snowflake.ID
	BillableOnly bool
	UnbilledOnly bool
	Start        *time.Time
	End          *time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *TimeEntry) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*TimeEntry, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*TimeEntry, error)
	FindOpenByUser(ctx context.Context, db *gorm.DB, orgID, userID snowflake.ID) (*TimeEntry, error)
	FindByIdempotencyKey(ctx context.Context, db *gorm.DB, orgID, userID snowflake.ID, key string, since time.Time) (*TimeEntry, error)
	// FindOverlapping returns one entry of the user intersecting [start, end); open entries extend to openUntil.
	FindOverlapping(ctx context.Context, db *gorm.DB, orgID, userID snowflake.ID, start, end, openUntil time.Time, excludeIDs []snowflake.ID) (*TimeEntry, error)
	// Update writes entry when its stored version equals expectedVersion.
	Update(ctx context.Context, db *gorm.DB, entry *TimeEntry, expectedVersion int64) (bool, error)
	Delete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) error
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListFilter) ([]*TimeEntry, error)
	ListFinalized(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter FinalizedFilter) ([]TimeEntry, error)
	// MarkBilled stamps invoiceID on the given unbilled entries and returns how many were stamped.
	MarkBilled(ctx context.Context, db *gorm.DB, orgID snowflake.ID, ids []snowflake.ID, invoiceID snowflake.ID) (int64, error)
	ReleaseInvoice(ctx context.Context, db *gorm.DB, orgID, invoiceID snowflake.ID) (int64, error)
	InsertHeartbeat(ctx context.Context, db *gorm.DB, heartbeat *Heartbeat) error
	ListHeartbeats(ctx context.Context, db *gorm.DB, orgID, entryID snowflake.ID) ([]time.Time, error)
}
