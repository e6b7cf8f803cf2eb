package service_test

import (
	"testing"

	auditdomain "github.com/smallbiznis/timeledger/internal/audit/domain"
	"github.com/smallbiznis/timeledger/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordMasksSensitiveMetadata(t *testing.T) {
	env := testutil.New(t)
	ctx := env.Context()
	target := env.Node.Generate()

	require.NoError(t, env.Audit.Record(ctx, nil, auditdomain.Entry{
		Action:     "payout.completed",
		TargetType: "payout",
		TargetID:   target,
		Metadata: map[string]any{
			"payout_reference": "ach_987654321",
			"to":               "billing@acme.test",
			"amount":           "500.00",
		},
	}))

	var stored auditdomain.AuditLog
	require.NoError(t, env.DB.Where("action = ?", "payout.completed").First(&stored).Error)
	require.NotNil(t, stored.OrgID)
	assert.Equal(t, env.OrgID, *stored.OrgID)
	require.NotNil(t, stored.TargetID)
	assert.Equal(t, target.String(), *stored.TargetID)
	assert.Equal(t, "ach_****4321", stored.Metadata["payout_reference"])
	assert.Equal(t, "b****@acme.test", stored.Metadata["to"])
	assert.Equal(t, "500.00", stored.Metadata["amount"])
}

func TestRecordRequiresAction(t *testing.T) {
	env := testutil.New(t)
	err := env.Audit.Record(env.Context(), nil, auditdomain.Entry{Action: " "})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}
