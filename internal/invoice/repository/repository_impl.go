package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/timeledger/internal/invoice/domain"
	pkgdb "github.com/smallbiznis/timeledger/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Create(invoice).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Invoice, error) {
	return first(db.WithContext(ctx), orgID, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Invoice, error) {
	return first(pkgdb.ForUpdate(db.WithContext(ctx)), orgID, id)
}

func first(q *gorm.DB, orgID, id snowflake.ID) (*domain.Invoice, error) {
	var items []domain.Invoice
	if err := withLines(q).
		Where("org_id = ? AND id = ?", orgID, id).
		Limit(1).
		Find(&items).Error; err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func withLines(q *gorm.DB) *gorm.DB {
	return q.Preload("Lines", func(db *gorm.DB) *gorm.DB {
		return db.Order("position asc")
	})
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListFilter) ([]domain.Invoice, error) {
	q := withLines(db.WithContext(ctx)).Where("org_id = ?", orgID)
	if filter.ProjectID != nil {
		q = q.Where("project_id = ?", *filter.ProjectID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var items []domain.Invoice
	if err := q.Order("sequence desc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) NextSequence(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (int64, error) {
	var next int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(sequence), 0) + 1
		 FROM invoices
		 WHERE org_id = ?`,
		orgID,
	).Scan(&next).Error
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (r *repo) Transition(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, from []domain.Status, to domain.Status, fields map[string]any) (bool, error) {
	updates := map[string]any{"status": to}
	for key, value := range fields {
		updates[key] = value
	}
	res := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("org_id = ? AND id = ? AND status IN ?", orgID, id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) MarkOverdue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	q := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("status = ? AND due_date IS NOT NULL AND due_date < ?", domain.StatusSent, now).
		Order("due_date asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	if err := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("id IN ? AND status = ?", ids, domain.StatusSent).
		Updates(map[string]any{"status": domain.StatusOverdue, "updated_at": now}).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
