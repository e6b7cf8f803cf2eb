package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/timeledger/internal/financials/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByProject(ctx context.Context, db *gorm.DB, orgID, projectID snowflake.ID) (*domain.ProjectFinancials, error) {
	var snapshot domain.ProjectFinancials
	err := db.WithContext(ctx).
		Where("org_id = ? AND project_id = ?", orgID, projectID).
		Limit(1).
		Find(&snapshot).Error
	if err != nil {
		return nil, err
	}
	if snapshot.ProjectID == 0 {
		return nil, nil
	}
	return &snapshot, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, snapshot *domain.ProjectFinancials) error {
	return db.WithContext(ctx).Create(snapshot).Error
}

func (r *repo) Save(ctx context.Context, db *gorm.DB, snapshot *domain.ProjectFinancials, expectedVersion int64) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.ProjectFinancials{}).
		Where("org_id = ? AND project_id = ? AND version = ?", snapshot.OrgID, snapshot.ProjectID, expectedVersion).
		Updates(map[string]any{
			"currency":              snapshot.Currency,
			"revenue":               snapshot.Revenue,
			"freelancer_cost":       snapshot.FreelancerCost,
			"expenses":              snapshot.Expenses,
			"profit":                snapshot.Profit,
			"margin_percent":        snapshot.MarginPercent,
			"billable_hours":        snapshot.BillableHours,
			"budget_amount":         snapshot.BudgetAmount,
			"notes":                 snapshot.Notes,
			"unpriced_cost_entries": snapshot.UnpricedCostEntries,
			"last_updated":          snapshot.LastUpdated,
			"version":               snapshot.Version,
			"computed_at":           snapshot.ComputedAt,
			"stale":                 false,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) MarkFresh(ctx context.Context, db *gorm.DB, orgID, projectID snowflake.ID, version int64, computedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.ProjectFinancials{}).
		Where("org_id = ? AND project_id = ? AND version = ?", orgID, projectID, version).
		Updates(map[string]any{
			"computed_at": computedAt,
			"stale":       false,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) MarkStale(ctx context.Context, db *gorm.DB, orgID, projectID snowflake.ID) error {
	return db.WithContext(ctx).
		Model(&domain.ProjectFinancials{}).
		Where("org_id = ? AND project_id = ?", orgID, projectID).
		Update("stale", true).Error
}

func (r *repo) MarkOrgStale(ctx context.Context, db *gorm.DB, orgID snowflake.ID) error {
	return db.WithContext(ctx).
		Model(&domain.ProjectFinancials{}).
		Where("org_id = ?", orgID).
		Update("stale", true).Error
}

func (r *repo) ListStale(ctx context.Context, db *gorm.DB, olderThan time.Time, limit int) ([]domain.ProjectFinancials, error) {
	var snapshots []domain.ProjectFinancials
	err := db.WithContext(ctx).
		Where("(stale = ? OR computed_at < ?)", true, olderThan).
		Order("computed_at asc, project_id asc").
		Limit(limit).
		Find(&snapshots).Error
	return snapshots, err
}
