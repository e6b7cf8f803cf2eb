package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/timeledger/internal/timeentry/domain"
	pkgdb "github.com/smallbiznis/timeledger/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.TimeEntry) error {
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.TimeEntry, error) {
	return first(db.WithContext(ctx).Where("org_id = ? AND id = ?", orgID, id))
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.TimeEntry, error) {
	return first(pkgdb.ForUpdate(db.WithContext(ctx)).Where("org_id = ? AND id = ?", orgID, id))
}

func (r *repo) FindOpenByUser(ctx context.Context, db *gorm.DB, orgID, userID snowflake.ID) (*domain.TimeEntry, error) {
	return first(db.WithContext(ctx).
		Where("org_id = ? AND user_id = ? AND end_ts IS NULL", orgID, userID).
		Order("start_ts desc"))
}

func (r *repo) FindByIdempotencyKey(ctx context.Context, db *gorm.DB, orgID, userID snowflake.ID, key string, since time.Time) (*domain.TimeEntry, error) {
	return first(db.WithContext(ctx).
		Where("org_id = ? AND user_id = ? AND idempotency_key = ? AND created_at >= ?", orgID, userID, key, since).
		Order("created_at desc"))
}

func (r *repo) FindOverlapping(ctx context.Context, db *gorm.DB, orgID, userID snowflake.ID, start, end, openUntil time.Time, excludeIDs []snowflake.ID) (*domain.TimeEntry, error) {
	q := db.WithContext(ctx).
		Where("org_id = ? AND user_id = ?", orgID, userID).
		Where("start_ts < ?", end)
	if openUntil.After(start) {
		q = q.Where("(end_ts > ? OR end_ts IS NULL)", start)
	} else {
		q = q.Where("end_ts > ?", start)
	}
	if len(excludeIDs) > 0 {
		q = q.Where("id NOT IN ?", excludeIDs)
	}
	return first(q.Order("start_ts asc"))
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, entry *domain.TimeEntry, expectedVersion int64) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.TimeEntry{}).
		Where("org_id = ? AND id = ? AND version = ?", entry.OrgID, entry.ID, expectedVersion).
		Updates(map[string]any{
			"project_id":                entry.ProjectID,
			"task_id":                   entry.TaskID,
			"description":               entry.Description,
			"start_ts":                  entry.StartTS,
			"end_ts":                    entry.EndTS,
			"duration_seconds":          entry.DurationSeconds,
			"billable":                  entry.Billable,
			"paused_intervals":          entry.PausedIntervals,
			"idle_suggestion":           entry.IdleSuggestion,
			"idle_trim_applied_seconds": entry.IdleTrimAppliedSeconds,
			"last_heartbeat_at":         entry.LastHeartbeatAt,
			"version":                   entry.Version,
			"updated_at":                entry.UpdatedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) error {
	res := db.WithContext(ctx).
		Where("org_id = ? AND id = ? AND invoice_id IS NULL", orgID, id).
		Delete(&domain.TimeEntry{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrEntryLocked
	}
	return db.WithContext(ctx).
		Where("org_id = ? AND entry_id = ?", orgID, id).
		Delete(&domain.Heartbeat{}).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListFilter) ([]*domain.TimeEntry, error) {
	q := db.WithContext(ctx).Where("org_id = ?", orgID)
	if filter.ProjectID != nil {
		q = q.Where("project_id = ?", *filter.ProjectID)
	}
	if filter.UserID != nil {
		q = q.Where("user_id = ?", *filter.UserID)
	}
	if filter.Start != nil {
		q = q.Where("start_ts >= ?", *filter.Start)
	}
	if filter.End != nil {
		q = q.Where("start_ts < ?", *filter.End)
	}
	if filter.Billable != nil {
		q = q.Where("billable = ?", *filter.Billable)
	}
	if filter.Unbilled {
		q = q.Where("invoice_id IS NULL")
	}
	if filter.Cursor != nil {
		q = q.Where("(start_ts < ? OR (start_ts = ? AND id < ?))",
			filter.Cursor.StartTS, filter.Cursor.StartTS, filter.Cursor.ID)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var entries []*domain.TimeEntry
	if err := q.Order("start_ts desc, id desc").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) ListFinalized(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.FinalizedFilter) ([]domain.TimeEntry, error) {
	q := db.WithContext(ctx).Where("org_id = ? AND end_ts IS NOT NULL", orgID)
	if filter.ProjectID != nil {
		q = q.Where("project_id = ?", *filter.ProjectID)
	}
	if filter.UserID != nil {
		q = q.Where("user_id = ?", *filter.UserID)
	}
	if filter.BillableOnly {
		q = q.Where("billable = ?", true)
	}
	if filter.UnbilledOnly {
		q = q.Where("invoice_id IS NULL")
	}
	if filter.Start != nil {
		q = q.Where("start_ts >= ?", *filter.Start)
	}
	if filter.End != nil {
		q = q.Where("start_ts < ?", *filter.End)
	}

	var entries []domain.TimeEntry
	if err := q.Order("start_ts asc, id asc").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) MarkBilled(ctx context.Context, db *gorm.DB, orgID snowflake.ID, ids []snowflake.ID, invoiceID snowflake.ID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).
		Model(&domain.TimeEntry{}).
		Where("org_id = ? AND id IN ? AND invoice_id IS NULL", orgID, ids).
		Updates(map[string]any{
			"invoice_id": invoiceID,
			"version":    gorm.Expr("version + 1"),
		})
	return res.RowsAffected, res.Error
}

func (r *repo) ReleaseInvoice(ctx context.Context, db *gorm.DB, orgID, invoiceID snowflake.ID) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.TimeEntry{}).
		Where("org_id = ? AND invoice_id = ?", orgID, invoiceID).
		Updates(map[string]any{
			"invoice_id": nil,
			"version":    gorm.Expr("version + 1"),
		})
	return res.RowsAffected, res.Error
}

func (r *repo) InsertHeartbeat(ctx context.Context, db *gorm.DB, heartbeat *domain.Heartbeat) error {
	return db.WithContext(ctx).Create(heartbeat).Error
}

func (r *repo) ListHeartbeats(ctx context.Context, db *gorm.DB, orgID, entryID snowflake.ID) ([]time.Time, error) {
	var at []time.Time
	err := db.WithContext(ctx).
		Model(&domain.Heartbeat{}).
		Where("org_id = ? AND entry_id = ?", orgID, entryID).
		Order("at asc").
		Pluck("at", &at).Error
	return at, err
}

func first(q *gorm.DB) (*domain.TimeEntry, error) {
	var entry domain.TimeEntry
	if err := q.Limit(1).Find(&entry).Error; err != nil {
		return nil, err
	}
	if entry.ID == 0 {
		return nil, nil
	}
	return &entry, nil
}
