package service_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/timeledger/internal/alert/domain"
	"github.com/smallbiznis/timeledger/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRaiseRefreshesOpenAlert(t *testing.T) {
	env := testutil.New(t)
	svc := env.Alerts
	ctx := env.Context()
	projectID := env.Node.Generate()

	first, err := svc.Raise(ctx, nil, domain.RaiseRequest{
		OrgID:     env.OrgID,
		Kind:      domain.KindBudgetExceeded,
		ProjectID: &projectID,
		Message:   "over by 10",
		Amount:    testutil.Ptr(decimal.NewFromInt(110)),
		Currency:  "USD",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SeverityWarning, first.Severity)

	env.Clock.Advance(time.Minute)
	second, err := svc.Raise(ctx, env.DB, domain.RaiseRequest{
		OrgID:     env.OrgID,
		Kind:      domain.KindBudgetExceeded,
		Severity:  domain.SeverityCritical,
		ProjectID: &projectID,
		Message:   "over by 40",
		Amount:    testutil.Ptr(decimal.NewFromInt(140)),
		Currency:  "USD",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	alerts, err := svc.List(ctx, domain.ListAlertRequest{ProjectID: projectID.String()})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "over by 40", alerts[0].Message)
	assert.Equal(t, domain.SeverityCritical, alerts[0].Severity)
	assert.True(t, decimal.NewFromInt(140).Equal(*alerts[0].Amount))

	// A different target is a separate alert.
	userID := env.Node.Generate()
	_, err = svc.Raise(ctx, nil, domain.RaiseRequest{OrgID: env.OrgID, Kind: domain.KindOverpayment, UserID: &userID, Message: "overpaid"})
	require.NoError(t, err)
	all, err := svc.List(ctx, domain.ListAlertRequest{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = svc.Raise(ctx, nil, domain.RaiseRequest{OrgID: env.OrgID, Kind: "late_invoice"})
	assert.ErrorIs(t, err, domain.ErrInvalidKind)
	_, err = svc.Raise(ctx, nil, domain.RaiseRequest{Kind: domain.KindOverpayment})
	assert.ErrorIs(t, err, domain.ErrInvalidOrganization)
}

func TestAcknowledgeClosesAlert(t *testing.T) {
	env := testutil.New(t)
	svc := env.Alerts
	ctx := env.Context()
	projectID := env.Node.Generate()
	raise := func(message string) domain.Alert {
		t.Helper()
		alert, err := svc.Raise(ctx, nil, domain.RaiseRequest{
			OrgID: env.OrgID, Kind: domain.KindNegativeMargin, ProjectID: &projectID, Message: message,
		})
		require.NoError(t, err)
		return alert
	}

	open := raise("margin 4%")
	acked, err := svc.Acknowledge(ctx, domain.AcknowledgeRequest{ID: open.ID.String()})
	require.NoError(t, err)
	assert.True(t, acked.Acknowledged())
	require.NotNil(t, acked.AcknowledgedBy)
	assert.Equal(t, env.UserID, *acked.AcknowledgedBy)

	_, err = svc.Acknowledge(ctx, domain.AcknowledgeRequest{ID: open.ID.String()})
	assert.ErrorIs(t, err, domain.ErrAlreadyAcknowledged)

	// The condition returning opens a fresh alert.
	reopened := raise("margin 2%")
	assert.NotEqual(t, open.ID, reopened.ID)

	visible, err := svc.List(ctx, domain.ListAlertRequest{})
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, reopened.ID, visible[0].ID)

	history, err := svc.List(ctx, domain.ListAlertRequest{IncludeAcked: true})
	require.NoError(t, err)
	assert.Len(t, history, 2)

	_, err = svc.Acknowledge(ctx, domain.AcknowledgeRequest{ID: env.Node.Generate().String()})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.Acknowledge(ctx, domain.AcknowledgeRequest{ID: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}
