package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("project_not_found")

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Project, error)
	ListIDs(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]snowflake.ID, error)
	UpdateFinance(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, update FinanceUpdate) error
}
