package service

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	alertdomain "github.com/smallbiznis/timeledger/internal/alert/domain"
	expenserepository "github.com/smallbiznis/timeledger/internal/expense/repository"
	financialsservice "github.com/smallbiznis/timeledger/internal/financials/service"
	"github.com/smallbiznis/timeledger/internal/payout/domain"
	"github.com/smallbiznis/timeledger/internal/payout/repository"
	projectdomain "github.com/smallbiznis/timeledger/internal/project/domain"
	projectrepository "github.com/smallbiznis/timeledger/internal/project/repository"
	ratedomain "github.com/smallbiznis/timeledger/internal/rate/domain"
	raterepository "github.com/smallbiznis/timeledger/internal/rate/repository"
	"github.com/smallbiznis/timeledger/internal/testutil"
	timeentryrepository "github.com/smallbiznis/timeledger/internal/timeentry/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*testutil.Env, domain.Service, projectdomain.Project) {
	t.Helper()
	env := testutil.New(t)
	project := env.SeedProject(t, "Mobile App", "USD")
	projectRepo := projectrepository.Provide()

	financials := financialsservice.New(financialsservice.Params{
		DB:            env.DB,
		Log:           env.Log,
		Clock:         env.Clock,
		Cfg:           env.Cfg,
		Repo:          env.Financials,
		Invalidator:   env.Invalidator,
		ProjectRepo:   projectRepo,
		TimeEntryRepo: timeentryrepository.Provide(),
		ExpenseRepo:   expenserepository.Provide(),
		RateRepo:      raterepository.Provide(),
		Locker:        env.Locker,
		AlertSvc:      env.Alerts,
	})
	svc := New(Params{
		DB:            env.DB,
		Log:           env.Log,
		GenID:         env.Node,
		Clock:         env.Clock,
		Repo:          repository.Provide(),
		ProjectRepo:   projectRepo,
		FinancialsSvc: financials,
		AlertSvc:      env.Alerts,
		AuditSvc:      env.Audit,
	})
	return env, svc, project
}

func create(t *testing.T, env *testutil.Env, svc domain.Service, amount string) domain.Payout {
	t.Helper()
	payout, err := svc.Create(env.Context(), domain.CreatePayoutRequest{
		FreelancerUserID: env.UserID.String(),
		Amount:           decimal.RequireFromString(amount),
		Currency:         "usd",
		PayoutMethod:     "bank_transfer",
	})
	require.NoError(t, err)
	return payout
}

func TestCreateValidates(t *testing.T) {
	env, svc, project := newTestService(t)
	ctx := env.Context()
	valid := domain.CreatePayoutRequest{
		FreelancerUserID: env.UserID.String(),
		ProjectID:        project.ID.String(),
		Amount:           decimal.RequireFromString("120.456"),
		Currency:         "usd",
		PayoutMethod:     "wise",
	}

	payout, err := svc.Create(ctx, valid)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, payout.Status)
	assert.Equal(t, "USD", payout.Currency)
	assert.True(t, decimal.RequireFromString("120.46").Equal(payout.Amount))
	require.NotNil(t, payout.CreatedBy)

	cases := map[string]struct {
		mutate func(*domain.CreatePayoutRequest)
		err    error
	}{
		"zero amount":     {func(r *domain.CreatePayoutRequest) { r.Amount = decimal.Zero }, domain.ErrInvalidAmount},
		"bad currency":    {func(r *domain.CreatePayoutRequest) { r.Currency = "dollars" }, domain.ErrInvalidCurrency},
		"missing method":  {func(r *domain.CreatePayoutRequest) { r.PayoutMethod = " " }, domain.ErrInvalidMethod},
		"missing user":    {func(r *domain.CreatePayoutRequest) { r.FreelancerUserID = "" }, domain.ErrInvalidUser},
		"unknown project": {func(r *domain.CreatePayoutRequest) { r.ProjectID = env.Node.Generate().String() }, domain.ErrProjectNotFound},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := valid
			tc.mutate(&req)
			_, err := svc.Create(ctx, req)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestSettleIsOneWay(t *testing.T) {
	env, svc, _ := newTestService(t)
	ctx := env.Context()
	payout := create(t, env, svc, "200")

	_, err := svc.MarkCompleted(ctx, domain.MarkCompletedRequest{ID: payout.ID.String()})
	assert.ErrorIs(t, err, domain.ErrInvalidReference)

	completed, err := svc.MarkCompleted(ctx, domain.MarkCompletedRequest{ID: payout.ID.String(), PayoutReference: "TRX-991"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, completed.Status)
	require.NotNil(t, completed.PayoutReference)
	assert.Equal(t, "TRX-991", *completed.PayoutReference)
	assert.NotNil(t, completed.PaidAt)

	_, err = svc.MarkCompleted(ctx, domain.MarkCompletedRequest{ID: payout.ID.String(), PayoutReference: "TRX-992"})
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = svc.MarkFailed(ctx, domain.MarkFailedRequest{ID: payout.ID.String(), Reason: "bounced"})
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	stored, err := svc.Get(ctx, payout.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "TRX-991", *stored.PayoutReference)

	failed := create(t, env, svc, "50")
	failed, err = svc.MarkFailed(ctx, domain.MarkFailedRequest{ID: failed.ID.String(), Reason: "account closed"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, failed.Status)
	require.NotNil(t, failed.FailureReason)
	assert.Equal(t, "account closed", *failed.FailureReason)

	_, err = svc.Get(ctx, env.Node.Generate().String())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFinanceSummaryReconcilesCostAndPayouts(t *testing.T) {
	env, svc, project := newTestService(t)
	ctx := env.Context()
	env.SeedRate(t, ratedomain.ScopeUser, testutil.Ptr(env.UserID), ratedomain.RateTypeInternal, "USD", "25")
	env.SeedEntry(t, env.UserID, project.ID, testutil.Epoch.Add(-6*time.Hour), 4*time.Hour, true)

	paid := create(t, env, svc, "60")
	_, err := svc.MarkCompleted(ctx, domain.MarkCompletedRequest{ID: paid.ID.String(), PayoutReference: "TRX-1"})
	require.NoError(t, err)
	create(t, env, svc, "30")
	failed := create(t, env, svc, "500")
	_, err = svc.MarkFailed(ctx, domain.MarkFailedRequest{ID: failed.ID.String()})
	require.NoError(t, err)

	summary, err := svc.FinanceSummary(ctx, domain.FinanceSummaryRequest{UserID: env.UserID.String()})
	require.NoError(t, err)
	assert.Equal(t, "USD", summary.Currency)
	assert.True(t, decimal.NewFromInt(4).Equal(summary.TotalHours), summary.TotalHours.String())
	assert.True(t, decimal.NewFromInt(100).Equal(summary.TotalCost), summary.TotalCost.String())
	assert.True(t, decimal.NewFromInt(60).Equal(summary.PaidTotal))
	assert.True(t, decimal.NewFromInt(30).Equal(summary.PendingPayoutTotal))
	assert.True(t, decimal.NewFromInt(10).Equal(summary.DueTotal))
	assert.False(t, summary.Overpaid)

	create(t, env, svc, "50")
	summary, err = svc.FinanceSummary(ctx, domain.FinanceSummaryRequest{UserID: env.UserID.String()})
	require.NoError(t, err)
	assert.True(t, summary.Overpaid)
	assert.True(t, summary.DueTotal.IsZero())
	assert.True(t, decimal.NewFromInt(40).Equal(summary.OverpaidAmount), summary.OverpaidAmount.String())

	alerts, err := env.Alerts.List(ctx, alertdomain.ListAlertRequest{Kind: string(alertdomain.KindOverpayment)})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.NotNil(t, alerts[0].UserID)
	assert.Equal(t, env.UserID, *alerts[0].UserID)

	// A second overpaid reading refreshes the open alert.
	_, err = svc.FinanceSummary(ctx, domain.FinanceSummaryRequest{UserID: env.UserID.String()})
	require.NoError(t, err)
	alerts, err = env.Alerts.List(ctx, alertdomain.ListAlertRequest{Kind: string(alertdomain.KindOverpayment)})
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestFinanceSummaryWindowsPayoutsByEffectiveDate(t *testing.T) {
	env, svc, _ := newTestService(t)
	ctx := env.Context()

	early := create(t, env, svc, "70")
	_, err := svc.MarkCompleted(ctx, domain.MarkCompletedRequest{
		ID:              early.ID.String(),
		PayoutReference: "TRX-EARLY",
		PaidAt:          testutil.Ptr(testutil.Epoch.Add(-30 * 24 * time.Hour)),
	})
	require.NoError(t, err)
	create(t, env, svc, "20")

	start := testutil.Epoch.Add(-24 * time.Hour)
	end := testutil.Epoch.Add(24 * time.Hour)
	summary, err := svc.FinanceSummary(ctx, domain.FinanceSummaryRequest{UserID: env.UserID.String(), Start: &start, End: &end})
	require.NoError(t, err)
	assert.True(t, summary.PaidTotal.IsZero())
	assert.True(t, decimal.NewFromInt(20).Equal(summary.PendingPayoutTotal))

	_, err = svc.FinanceSummary(ctx, domain.FinanceSummaryRequest{UserID: env.UserID.String(), Start: &end, End: &start})
	assert.ErrorIs(t, err, domain.ErrInvalidTimeRange)
}

func TestExportCSV(t *testing.T) {
	env, svc, _ := newTestService(t)
	ctx := env.Context()
	create(t, env, svc, "75.5")
	create(t, env, svc, "10")

	export, err := svc.ExportCSV(ctx, domain.ListPayoutRequest{Status: "pending"})
	require.NoError(t, err)
	assert.Equal(t, "payouts-2024-03-04-pending.csv", export.Filename)
	assert.Equal(t, "text/csv", export.ContentType)

	rows, err := csv.NewReader(bytes.NewReader(export.Data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, csvHeader, rows[0])
	assert.ElementsMatch(t, []string{"75.50", "10.00"}, []string{rows[1][3], rows[2][3]})

	_, err = svc.ExportCSV(ctx, domain.ListPayoutRequest{Status: "bounced"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}
