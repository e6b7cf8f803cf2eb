package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	alertdomain "github.com/smallbiznis/timeledger/internal/alert/domain"
	"github.com/smallbiznis/timeledger/internal/config"
	expensedomain "github.com/smallbiznis/timeledger/internal/expense/domain"
	expenserepository "github.com/smallbiznis/timeledger/internal/expense/repository"
	"github.com/smallbiznis/timeledger/internal/financials/domain"
	projectdomain "github.com/smallbiznis/timeledger/internal/project/domain"
	projectrepository "github.com/smallbiznis/timeledger/internal/project/repository"
	ratedomain "github.com/smallbiznis/timeledger/internal/rate/domain"
	raterepository "github.com/smallbiznis/timeledger/internal/rate/repository"
	"github.com/smallbiznis/timeledger/internal/testutil"
	timeentryrepository "github.com/smallbiznis/timeledger/internal/timeentry/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, policy *config.AlertPolicyHolder) (*testutil.Env, domain.Service, projectdomain.Project) {
	t.Helper()
	env := testutil.New(t)
	project := env.SeedProject(t, "Checkout Revamp", "USD")
	svc := New(Params{
		DB:            env.DB,
		Log:           env.Log,
		Clock:         env.Clock,
		Cfg:           env.Cfg,
		Repo:          env.Financials,
		Invalidator:   env.Invalidator,
		ProjectRepo:   projectrepository.Provide(),
		TimeEntryRepo: timeentryrepository.Provide(),
		ExpenseRepo:   expenserepository.Provide(),
		RateRepo:      raterepository.Provide(),
		Locker:        env.Locker,
		AlertSvc:      env.Alerts,
		Policy:        policy,
	})
	return env, svc, project
}

func ago(h float64) time.Time {
	return testutil.Epoch.Add(-time.Duration(h * float64(time.Hour)))
}

func TestRecomputeRollsUpProjectFinances(t *testing.T) {
	env, svc, project := newTestService(t, nil)
	ctx := env.Context()
	env.SeedRate(t, ratedomain.ScopeDefault, nil, ratedomain.RateTypeBillable, "USD", "40")
	env.SeedRate(t, ratedomain.ScopeProject, testutil.Ptr(project.ID), ratedomain.RateTypeBillable, "USD", "60")
	env.SeedRate(t, ratedomain.ScopeUser, testutil.Ptr(env.UserID), ratedomain.RateTypeInternal, "USD", "25")
	env.SeedEntry(t, env.UserID, project.ID, ago(8), 3*time.Hour, true)
	env.SeedEntry(t, env.UserID, project.ID, ago(4), 2*time.Hour, false)
	addExpense(t, env, project, "30")

	snapshot, err := svc.Recompute(ctx, domain.RecomputeRequest{ProjectID: project.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, "USD", snapshot.Currency)
	assert.True(t, decimal.NewFromInt(180).Equal(snapshot.Revenue), snapshot.Revenue.String())
	assert.True(t, decimal.NewFromInt(125).Equal(snapshot.FreelancerCost), snapshot.FreelancerCost.String())
	assert.True(t, decimal.NewFromInt(30).Equal(snapshot.Expenses))
	assert.True(t, decimal.NewFromInt(25).Equal(snapshot.Profit))
	assert.True(t, decimal.NewFromInt(3).Equal(snapshot.BillableHours))
	require.NotNil(t, snapshot.MarginPercent)
	assert.True(t, decimal.RequireFromString("0.1389").Equal(*snapshot.MarginPercent), snapshot.MarginPercent.String())
	assert.Zero(t, snapshot.UnpricedCostEntries)
	assert.Equal(t, int64(1), snapshot.Version)

	again, err := svc.Recompute(ctx, domain.RecomputeRequest{ProjectID: project.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, int64(1), again.Version, "unchanged figures keep the version")
	assert.True(t, snapshot.SameFigures(again))

	addExpense(t, env, project, "10")
	changed, err := svc.Recompute(ctx, domain.RecomputeRequest{ProjectID: project.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, int64(2), changed.Version)
	assert.True(t, decimal.NewFromInt(15).Equal(changed.Profit))

	alerts, err := env.Alerts.List(ctx, alertdomain.ListAlertRequest{})
	require.NoError(t, err)
	assert.Empty(t, alerts)

	_, err = svc.Recompute(ctx, domain.RecomputeRequest{ProjectID: env.Node.Generate().String()})
	assert.ErrorIs(t, err, domain.ErrProjectNotFound)
	_, err = svc.Recompute(ctx, domain.RecomputeRequest{ProjectID: "nope"})
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}

func TestGetServesFreshSnapshotUntilInvalidated(t *testing.T) {
	env, svc, project := newTestService(t, nil)
	ctx := env.Context()
	env.SeedRate(t, ratedomain.ScopeDefault, nil, ratedomain.RateTypeBillable, "USD", "40")
	env.SeedEntry(t, env.UserID, project.ID, ago(10), 3*time.Hour, true)
	req := domain.GetFinancialsRequest{ProjectID: project.ID.String()}

	first, err := svc.Get(ctx, req)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(120).Equal(first.Revenue))
	assert.Equal(t, 1, first.UnpricedCostEntries)

	// Written behind the service's back: the snapshot stays fresh.
	env.SeedEntry(t, env.UserID, project.ID, ago(6), time.Hour, true)
	cached, err := svc.Get(ctx, req)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(120).Equal(cached.Revenue))

	env.Clock.Advance(6 * time.Minute)
	expired, err := svc.Get(ctx, req)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(160).Equal(expired.Revenue))
	assert.Equal(t, int64(2), expired.Version)

	env.SeedEntry(t, env.UserID, project.ID, ago(4), time.Hour, true)
	require.NoError(t, env.Invalidator.InvalidateProject(ctx, env.DB, env.OrgID, project.ID))
	invalidated, err := svc.Get(ctx, req)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(200).Equal(invalidated.Revenue))
	assert.False(t, invalidated.Stale)
}

func TestLossWithoutRevenueRaisesAlert(t *testing.T) {
	env, svc, project := newTestService(t, nil)
	ctx := env.Context()
	env.SeedRate(t, ratedomain.ScopeUser, testutil.Ptr(env.UserID), ratedomain.RateTypeInternal, "USD", "25")
	env.SeedEntry(t, env.UserID, project.ID, ago(5), 2*time.Hour, false)

	snapshot, err := svc.Recompute(ctx, domain.RecomputeRequest{ProjectID: project.ID.String()})
	require.NoError(t, err)
	assert.True(t, snapshot.Revenue.IsZero())
	assert.Nil(t, snapshot.MarginPercent)
	assert.True(t, decimal.NewFromInt(-50).Equal(snapshot.Profit))

	alerts, err := env.Alerts.List(ctx, alertdomain.ListAlertRequest{Kind: string(alertdomain.KindNegativeMargin)})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.NotNil(t, alerts[0].Amount)
	assert.True(t, decimal.NewFromInt(50).Equal(*alerts[0].Amount))
	assert.Contains(t, alerts[0].Message, "running at a loss of 50.00 USD")
	require.NotNil(t, alerts[0].ProjectID)
	assert.Equal(t, project.ID, *alerts[0].ProjectID)
}

func TestRecomputeRejectsMixedCurrencies(t *testing.T) {
	env, svc, project := newTestService(t, nil)
	ctx := env.Context()
	env.SeedRate(t, ratedomain.ScopeDefault, nil, ratedomain.RateTypeBillable, "EUR", "40")
	env.SeedEntry(t, env.UserID, project.ID, ago(5), time.Hour, true)

	_, err := svc.Recompute(ctx, domain.RecomputeRequest{ProjectID: project.ID.String()})
	assert.ErrorIs(t, err, domain.ErrCurrencyMismatch)

	stored, err := env.Financials.FindByProject(ctx, env.DB, env.OrgID, project.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestUpdateProjectFinanceAppliesAlertPolicy(t *testing.T) {
	policy := config.NewStaticAlertPolicyHolder(config.AlertPolicy{BudgetUsagePercent: 80, MarginFloorPercent: 30})
	env, svc, project := newTestService(t, policy)
	ctx := env.Context()
	env.SeedRate(t, ratedomain.ScopeDefault, nil, ratedomain.RateTypeBillable, "USD", "40")
	env.SeedRate(t, ratedomain.ScopeUser, testutil.Ptr(env.UserID), ratedomain.RateTypeInternal, "USD", "25")
	env.SeedEntry(t, env.UserID, project.ID, ago(5), 3*time.Hour, true)
	addExpense(t, env, project, "10")

	snapshot, err := svc.UpdateProjectFinance(ctx, domain.UpdateProjectFinanceRequest{
		ProjectID:    project.ID.String(),
		BudgetAmount: testutil.Ptr(decimal.NewFromInt(100)),
		Notes:        testutil.Ptr("  fixed bid  "),
	})
	require.NoError(t, err)
	require.NotNil(t, snapshot.BudgetAmount)
	assert.True(t, decimal.NewFromInt(100).Equal(*snapshot.BudgetAmount))
	require.NotNil(t, snapshot.Notes)
	assert.Equal(t, "fixed bid", *snapshot.Notes)
	assert.True(t, decimal.NewFromInt(35).Equal(snapshot.Profit))

	budget, err := env.Alerts.List(ctx, alertdomain.ListAlertRequest{Kind: string(alertdomain.KindBudgetExceeded)})
	require.NoError(t, err)
	require.Len(t, budget, 1)
	assert.Equal(t, alertdomain.SeverityCritical, budget[0].Severity)
	assert.True(t, decimal.NewFromInt(85).Equal(*budget[0].Amount))

	margin, err := env.Alerts.List(ctx, alertdomain.ListAlertRequest{Kind: string(alertdomain.KindNegativeMargin)})
	require.NoError(t, err)
	require.Len(t, margin, 1)
	assert.Contains(t, margin[0].Message, "below 30.00%")

	cleared, err := svc.UpdateProjectFinance(ctx, domain.UpdateProjectFinanceRequest{ProjectID: project.ID.String(), ClearBudget: true})
	require.NoError(t, err)
	assert.Nil(t, cleared.BudgetAmount)
	assert.Equal(t, snapshot.Version+1, cleared.Version)

	_, err = svc.UpdateProjectFinance(ctx, domain.UpdateProjectFinanceRequest{
		ProjectID: project.ID.String(), BudgetAmount: testutil.Ptr(decimal.NewFromInt(-1)),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidBudget)
	_, err = svc.UpdateProjectFinance(ctx, domain.UpdateProjectFinanceRequest{ProjectID: env.Node.Generate().String()})
	assert.ErrorIs(t, err, domain.ErrProjectNotFound)
}

func TestRefreshStaleRecomputesOutdatedSnapshots(t *testing.T) {
	env, svc, project := newTestService(t, nil)
	ctx := env.Context()
	env.SeedRate(t, ratedomain.ScopeDefault, nil, ratedomain.RateTypeBillable, "USD", "40")
	env.SeedEntry(t, env.UserID, project.ID, ago(5), time.Hour, true)

	_, err := svc.Recompute(ctx, domain.RecomputeRequest{ProjectID: project.ID.String()})
	require.NoError(t, err)

	refreshed, err := svc.RefreshStale(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, refreshed)

	env.SeedEntry(t, env.UserID, project.ID, ago(3), time.Hour, true)
	require.NoError(t, env.Invalidator.InvalidateProject(ctx, env.DB, env.OrgID, project.ID))
	refreshed, err = svc.RefreshStale(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed)

	stored, err := env.Financials.FindByProject(ctx, env.DB, env.OrgID, project.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.False(t, stored.Stale)
	assert.True(t, decimal.NewFromInt(80).Equal(stored.Revenue))

	env.Clock.Advance(10 * time.Minute)
	refreshed, err = svc.RefreshStale(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed)
}

func TestProjectCostSummaryBreaksDownByUser(t *testing.T) {
	env, svc, project := newTestService(t, nil)
	ctx := env.Context()
	colleague := env.Node.Generate()
	env.SeedRate(t, ratedomain.ScopeDefault, nil, ratedomain.RateTypeBillable, "USD", "40")
	env.SeedRate(t, ratedomain.ScopeUser, testutil.Ptr(env.UserID), ratedomain.RateTypeInternal, "USD", "20")
	env.SeedEntry(t, env.UserID, project.ID, ago(8), 2*time.Hour, true)
	env.SeedEntry(t, colleague, project.ID, ago(8), time.Hour, true)

	summary, err := svc.ProjectCostSummary(ctx, domain.ProjectCostSummaryRequest{ProjectID: project.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, "USD", summary.Currency)
	assert.True(t, decimal.NewFromInt(3).Equal(summary.TotalHours))
	assert.True(t, decimal.NewFromInt(120).Equal(summary.Revenue))
	assert.True(t, decimal.NewFromInt(40).Equal(summary.Cost))
	require.Len(t, summary.Users, 2)

	byUser := map[string]domain.UserCostLine{}
	for _, line := range summary.Users {
		byUser[line.UserID.String()] = line
	}
	assert.Zero(t, byUser[env.UserID.String()].UnpricedCostEntries)
	assert.True(t, decimal.NewFromInt(40).Equal(byUser[env.UserID.String()].Cost))
	assert.Equal(t, 1, byUser[colleague.String()].UnpricedCostEntries)
	assert.True(t, byUser[colleague.String()].Cost.IsZero())

	start := ago(1)
	windowed, err := svc.ProjectCostSummary(ctx, domain.ProjectCostSummaryRequest{ProjectID: project.ID.String(), Start: &start})
	require.NoError(t, err)
	assert.Empty(t, windowed.Users)
	assert.True(t, windowed.TotalHours.IsZero())

	end := ago(2)
	_, err = svc.ProjectCostSummary(ctx, domain.ProjectCostSummaryRequest{ProjectID: project.ID.String(), Start: &start, End: &end})
	assert.ErrorIs(t, err, domain.ErrInvalidTimeRange)
}

func TestUserCostSpansProjects(t *testing.T) {
	env, svc, project := newTestService(t, nil)
	other := env.SeedProject(t, "Support Retainer", "USD")
	env.SeedRate(t, ratedomain.ScopeUser, testutil.Ptr(env.UserID), ratedomain.RateTypeInternal, "USD", "30")
	env.SeedEntry(t, env.UserID, project.ID, ago(8), 2*time.Hour, true)
	env.SeedEntry(t, env.UserID, other.ID, ago(4), time.Hour, false)

	cost, err := svc.UserCost(env.Context(), nil, domain.UserCostRequest{OrgID: env.OrgID, UserID: env.UserID})
	require.NoError(t, err)
	assert.Equal(t, "USD", cost.Currency)
	assert.True(t, decimal.NewFromInt(3).Equal(cost.TotalHours))
	assert.True(t, decimal.NewFromInt(90).Equal(cost.TotalCost))

	_, err = svc.UserCost(env.Context(), nil, domain.UserCostRequest{UserID: env.UserID})
	assert.ErrorIs(t, err, domain.ErrInvalidOrganization)
}

func addExpense(t *testing.T, env *testutil.Env, project projectdomain.Project, amount string) {
	t.Helper()
	now := env.Clock.Now()
	require.NoError(t, env.DB.Create(&expensedomain.Expense{
		ID:         env.Node.Generate(),
		OrgID:      env.OrgID,
		ProjectID:  project.ID,
		Amount:     decimal.RequireFromString(amount),
		Currency:   "USD",
		Category:   "general",
		IncurredOn: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}).Error)
}
