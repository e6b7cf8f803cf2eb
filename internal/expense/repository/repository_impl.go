package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/timeledger/internal/expense/domain"
	pkgrepo "github.com/smallbiznis/timeledger/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// ProvideStore exposes the generic CRUD store used by the expense service.
func ProvideStore(db *gorm.DB) pkgrepo.Repository[domain.Expense] {
	return pkgrepo.ProvideStore[domain.Expense](db)
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.Filter) ([]domain.Expense, error) {
	q := db.WithContext(ctx).Where("org_id = ?", orgID)
	if filter.ProjectID != nil {
		q = q.Where("project_id = ?", *filter.ProjectID)
	}
	if filter.UnbilledOnly {
		q = q.Where("invoice_id IS NULL")
	}
	if filter.Start != nil {
		q = q.Where("incurred_on >= ?", *filter.Start)
	}
	if filter.End != nil {
		q = q.Where("incurred_on < ?", *filter.End)
	}

	var expenses []domain.Expense
	if err := q.Order("incurred_on asc, id asc").Find(&expenses).Error; err != nil {
		return nil, err
	}
	return expenses, nil
}

func (r *repo) MarkBilled(ctx context.Context, db *gorm.DB, orgID snowflake.ID, ids []snowflake.ID, invoiceID snowflake.ID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).
		Model(&domain.Expense{}).
		Where("org_id = ? AND id IN ? AND invoice_id IS NULL", orgID, ids).
		Update("invoice_id", invoiceID)
	return res.RowsAffected, res.Error
}

func (r *repo) ReleaseInvoice(ctx context.Context, db *gorm.DB, orgID, invoiceID snowflake.ID) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Expense{}).
		Where("org_id = ? AND invoice_id = ?", orgID, invoiceID).
		Update("invoice_id", nil)
	return res.RowsAffected, res.Error
}
