package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/timeledger/internal/cache"
	"github.com/smallbiznis/timeledger/internal/rate/domain"
	"gorm.io/gorm"
)

// cachedSource reads rates per scope key through a short-lived cache.
type cachedSource struct {
	db    *gorm.DB
	repo  domain.Repository
	cache cache.Cache[domain.ScopeKey, []domain.Rate]
	ttl   time.Duration
}

func (c *cachedSource) Rates(ctx context.Context, key domain.ScopeKey) ([]domain.Rate, error) {
	if rates, ok := c.cache.Get(key); ok {
		return rates, nil
	}
	rates, err := c.repo.FindByKey(ctx, c.db, key)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, rates, c.ttl)
	return rates, nil
}

func (c *cachedSource) invalidateOrg(orgID snowflake.ID) {
	c.cache.DeleteFunc(func(key domain.ScopeKey) bool {
		return key.OrgID == orgID
	})
}
