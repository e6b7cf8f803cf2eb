package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/timeledger/internal/rate/domain"
	"github.com/smallbiznis/timeledger/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, rate *domain.Rate) error {
	return db.WithContext(ctx).Create(rate).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Rate, error) {
	var rate domain.Rate
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		Limit(1).
		Find(&rate).Error
	if err != nil {
		return nil, err
	}
	if rate.ID == 0 {
		return nil, nil
	}
	return &rate, nil
}

func (r *repo) FindByKeyForUpdate(ctx context.Context, tx *gorm.DB, key domain.ScopeKey) ([]domain.Rate, error) {
	return r.findByKey(db.ForUpdate(tx.WithContext(ctx)), key)
}

func (r *repo) FindByKey(ctx context.Context, tx *gorm.DB, key domain.ScopeKey) ([]domain.Rate, error) {
	return r.findByKey(tx.WithContext(ctx), key)
}

func (r *repo) findByKey(q *gorm.DB, key domain.ScopeKey) ([]domain.Rate, error) {
	q = q.Where("org_id = ? AND scope = ? AND rate_type = ?", key.OrgID, key.Scope, key.RateType)
	if key.ScopeID == 0 {
		q = q.Where("scope_id IS NULL")
	} else {
		q = q.Where("scope_id = ?", key.ScopeID)
	}
	if key.ProjectID == 0 {
		q = q.Where("project_id IS NULL")
	} else {
		q = q.Where("project_id = ?", key.ProjectID)
	}

	var rates []domain.Rate
	if err := q.Order("id asc").Find(&rates).Error; err != nil {
		return nil, err
	}
	return rates, nil
}

func (r *repo) ListByOrg(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]domain.Rate, error) {
	var rates []domain.Rate
	err := db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("id asc").
		Find(&rates).Error
	return rates, err
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListFilter) ([]domain.Rate, error) {
	q := db.WithContext(ctx).Where("org_id = ?", orgID)
	if filter.Scope != "" {
		q = q.Where("scope = ?", filter.Scope)
	}
	if filter.ScopeID != nil {
		q = q.Where("scope_id = ?", *filter.ScopeID)
	}
	if filter.RateType != "" {
		q = q.Where("rate_type = ?", filter.RateType)
	}
	if filter.Currency != "" {
		q = q.Where("currency = ?", filter.Currency)
	}
	if filter.ActiveAt != nil {
		at := *filter.ActiveAt
		q = q.Where("(effective_from IS NULL OR effective_from <= ?) AND (effective_to IS NULL OR effective_to > ?)", at, at)
	}

	var rates []domain.Rate
	if err := q.Order("scope asc, effective_from asc, id asc").Find(&rates).Error; err != nil {
		return nil, err
	}
	return rates, nil
}

func (r *repo) CloseWindow(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, effectiveTo time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Rate{}).
		Where("org_id = ? AND id = ? AND effective_to IS NULL", orgID, id).
		Updates(map[string]any{
			"effective_to": effectiveTo,
			"updated_at":   time.Now().UTC(),
		}).Error
}
