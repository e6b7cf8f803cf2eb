// Package testutil builds the in-memory database and shared collaborators the
// service tests run against.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	alertdomain "github.com/smallbiznis/timeledger/internal/alert/domain"
	alertrepository "github.com/smallbiznis/timeledger/internal/alert/repository"
	alertservice "github.com/smallbiznis/timeledger/internal/alert/service"
	auditdomain "github.com/smallbiznis/timeledger/internal/audit/domain"
	auditrepository "github.com/smallbiznis/timeledger/internal/audit/repository"
	auditservice "github.com/smallbiznis/timeledger/internal/audit/service"
	"github.com/smallbiznis/timeledger/internal/clock"
	"github.com/smallbiznis/timeledger/internal/config"
	financialsdomain "github.com/smallbiznis/timeledger/internal/financials/domain"
	financialsrepository "github.com/smallbiznis/timeledger/internal/financials/repository"
	"github.com/smallbiznis/timeledger/internal/lock"
	"github.com/smallbiznis/timeledger/internal/migration"
	"github.com/smallbiznis/timeledger/internal/orgcontext"
	projectdomain "github.com/smallbiznis/timeledger/internal/project/domain"
	ratedomain "github.com/smallbiznis/timeledger/internal/rate/domain"
	timeentrydomain "github.com/smallbiznis/timeledger/internal/timeentry/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Epoch is the fake clock's starting instant.
var Epoch = time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)

type Env struct {
	DB          *gorm.DB
	Log         *zap.Logger
	Node        *snowflake.Node
	Clock       *clock.FakeClock
	Cfg         config.Config
	Locker      lock.Locker
	Audit       auditdomain.Service
	Alerts      alertdomain.Service
	Financials  financialsdomain.Repository
	Invalidator financialsdomain.Invalidator

	OrgID  snowflake.ID
	UserID snowflake.ID
}

func New(t testing.TB) *Env {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(db))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	log := zaptest.NewLogger(t)
	fake := clock.NewFakeClock(Epoch)
	financialsRepo := financialsrepository.Provide()

	env := &Env{
		DB:    db,
		Log:   log,
		Node:  node,
		Clock: fake,
		Cfg: config.Config{
			Timer: config.TimerConfig{
				IdleGapThreshold:  5 * time.Minute,
				IdempotencyWindow: 24 * time.Hour,
			},
			Finance: config.FinanceConfig{
				FreshnessThreshold: 5 * time.Minute,
				RateCacheTTL:       30 * time.Second,
				LockTTL:            5 * time.Second,
				LockWait:           time.Second,
			},
			Scheduler: config.SchedulerConfig{BatchSize: 50},
		},
		Locker:      lock.NewLocalLocker(),
		Financials:  financialsRepo,
		Invalidator: financialsrepository.ProvideInvalidator(financialsRepo),
		OrgID:       node.Generate(),
		UserID:      node.Generate(),
	}
	env.Audit = auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: fake,
		Repo:  auditrepository.Provide(),
	})
	env.Alerts = alertservice.New(alertservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: fake,
		Repo:  alertrepository.Provide(),
	})
	return env
}

// Context carries the env's organization and user.
func (e *Env) Context() context.Context {
	return e.ContextAs(e.UserID)
}

func (e *Env) ContextAs(userID snowflake.ID) context.Context {
	ctx := orgcontext.WithOrgID(context.Background(), e.OrgID.Int64())
	return orgcontext.WithUserID(ctx, userID.Int64())
}

// SeedProject inserts a project the way the organization service would.
func (e *Env) SeedProject(t testing.TB, name, currency string, opts ...func(*projectdomain.Project)) projectdomain.Project {
	t.Helper()
	now := e.Clock.Now()
	project := projectdomain.Project{
		ID:        e.Node.Generate(),
		OrgID:     e.OrgID,
		Name:      name,
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, opt := range opts {
		opt(&project)
	}
	require.NoError(t, e.DB.Create(&project).Error)
	return project
}

// SeedRate inserts an open-ended rate effective from the epoch.
func (e *Env) SeedRate(t testing.TB, scope ratedomain.Scope, scopeID *snowflake.ID, rateType ratedomain.RateType, currency, amount string) ratedomain.Rate {
	t.Helper()
	now := e.Clock.Now()
	rate := ratedomain.Rate{
		ID:         e.Node.Generate(),
		OrgID:      e.OrgID,
		Scope:      scope,
		ScopeID:    scopeID,
		RateType:   rateType,
		Currency:   currency,
		HourlyRate: decimal.RequireFromString(amount),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, e.DB.Create(&rate).Error)
	return rate
}

// SeedEntry inserts a stopped entry of the given length starting at start.
func (e *Env) SeedEntry(t testing.TB, userID, projectID snowflake.ID, start time.Time, length time.Duration, billable bool) timeentrydomain.TimeEntry {
	t.Helper()
	end := start.Add(length)
	entry := timeentrydomain.TimeEntry{
		ID:              e.Node.Generate(),
		OrgID:           e.OrgID,
		UserID:          userID,
		ProjectID:       projectID,
		StartTS:         start,
		EndTS:           &end,
		Billable:        billable,
		PausedIntervals: datatypes.JSONSlice[timeentrydomain.PausedInterval]{},
		IdleSuggestion:  datatypes.NewJSONType[*timeentrydomain.IdleSuggestion](nil),
		Source:          timeentrydomain.SourceManual,
		Version:         1,
		CreatedAt:       e.Clock.Now(),
		UpdatedAt:       e.Clock.Now(),
	}
	entry.Recalculate()
	require.NoError(t, e.DB.Create(&entry).Error)
	return entry
}

func Ptr[T any](v T) *T { return &v }
