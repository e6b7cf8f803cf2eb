package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/timeledger/internal/project/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Project, error) {
	var project domain.Project
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		Limit(1).
		Find(&project).Error
	if err != nil {
		return nil, err
	}
	if project.ID == 0 {
		return nil, nil
	}
	return &project, nil
}

func (r *repo) ListIDs(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).
		Model(&domain.Project{}).
		Where("org_id = ?", orgID).
		Order("id asc").
		Pluck("id", &ids).Error
	return ids, err
}

func (r *repo) UpdateFinance(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, update domain.FinanceUpdate) error {
	values := map[string]any{}
	switch {
	case update.ClearBudget:
		values["budget_amount"] = nil
	case update.BudgetAmount != nil:
		values["budget_amount"] = *update.BudgetAmount
	}
	if update.Notes != nil {
		values["notes"] = *update.Notes
	}
	if len(values) == 0 {
		return nil
	}
	values["updated_at"] = gorm.Expr("CURRENT_TIMESTAMP")

	res := db.WithContext(ctx).
		Model(&domain.Project{}).
		Where("org_id = ? AND id = ?", orgID, id).
		Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
