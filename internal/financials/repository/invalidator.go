package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/timeledger/internal/financials/domain"
	"gorm.io/gorm"
)

type invalidator struct {
	repo domain.Repository
}

func ProvideInvalidator(repo domain.Repository) domain.Invalidator {
	return &invalidator{repo: repo}
}

func (i *invalidator) InvalidateProject(ctx context.Context, db *gorm.DB, orgID, projectID snowflake.ID) error {
	if orgID == 0 || projectID == 0 {
		return nil
	}
	return i.repo.MarkStale(ctx, db, orgID, projectID)
}

func (i *invalidator) InvalidateOrg(ctx context.Context, db *gorm.DB, orgID snowflake.ID) error {
	if orgID == 0 {
		return nil
	}
	return i.repo.MarkOrgStale(ctx, db, orgID)
}
