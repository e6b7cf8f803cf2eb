package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/timeledger/internal/alert/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, alert *domain.Alert) error {
	return db.WithContext(ctx).Create(alert).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Alert, error) {
	var alert domain.Alert
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		Limit(1).
		Find(&alert).Error
	if err != nil {
		return nil, err
	}
	if alert.ID == 0 {
		return nil, nil
	}
	return &alert, nil
}

func (r *repo) FindOpen(ctx context.Context, db *gorm.DB, orgID snowflake.ID, kind domain.Kind, projectID, userID *snowflake.ID) (*domain.Alert, error) {
	q := db.WithContext(ctx).
		Where("org_id = ? AND kind = ? AND acknowledged_at IS NULL", orgID, kind)
	if projectID == nil {
		q = q.Where("project_id IS NULL")
	} else {
		q = q.Where("project_id = ?", *projectID)
	}
	if userID == nil {
		q = q.Where("user_id IS NULL")
	} else {
		q = q.Where("user_id = ?", *userID)
	}

	var alert domain.Alert
	if err := q.Order("id desc").Limit(1).Find(&alert).Error; err != nil {
		return nil, err
	}
	if alert.ID == 0 {
		return nil, nil
	}
	return &alert, nil
}

func (r *repo) Refresh(ctx context.Context, db *gorm.DB, alert *domain.Alert) error {
	return db.WithContext(ctx).
		Model(&domain.Alert{}).
		Where("org_id = ? AND id = ?", alert.OrgID, alert.ID).
		Updates(map[string]any{
			"severity":   alert.Severity,
			"message":    alert.Message,
			"amount":     alert.Amount,
			"currency":   alert.Currency,
			"updated_at": alert.UpdatedAt,
		}).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListFilter) ([]domain.Alert, error) {
	q := db.WithContext(ctx).Where("org_id = ?", orgID)
	if filter.Kind != "" {
		q = q.Where("kind = ?", filter.Kind)
	}
	if filter.ProjectID != nil {
		q = q.Where("project_id = ?", *filter.ProjectID)
	}
	if filter.UserID != nil {
		q = q.Where("user_id = ?", *filter.UserID)
	}
	if !filter.IncludeAcked {
		q = q.Where("acknowledged_at IS NULL")
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var alerts []domain.Alert
	if err := q.Order("created_at desc, id desc").Find(&alerts).Error; err != nil {
		return nil, err
	}
	return alerts, nil
}

func (r *repo) Acknowledge(ctx context.Context, db *gorm.DB, orgID, id, userID snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Alert{}).
		Where("org_id = ? AND id = ? AND acknowledged_at IS NULL", orgID, id).
		Updates(map[string]any{
			"acknowledged_at": at,
			"acknowledged_by": userID,
			"updated_at":      at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
