package authorization

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*ServiceImpl, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Exec(
		`CREATE TABLE IF NOT EXISTS organization_members (
			id INTEGER PRIMARY KEY,
			org_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			role TEXT NOT NULL
		)`,
	).Error)

	enforcer, err := NewEnforcer(db)
	require.NoError(t, err)
	return &ServiceImpl{db: db, log: zap.NewNop(), enforcer: enforcer}, db
}

func insertMember(t *testing.T, db *gorm.DB, orgID, userID int64, role string) {
	t.Helper()
	require.NoError(t, db.Exec(
		`INSERT INTO organization_members (id, org_id, user_id, role) VALUES (?, ?, ?, ?)`,
		userID, orgID, userID, role,
	).Error)
}

func TestAuthorizeFinanceRoleCanWrite(t *testing.T) {
	svc, db := newTestService(t)
	insertMember(t, db, 1, 10, "FINANCE")

	assert.NoError(t, svc.Authorize(context.Background(), "user:10", "1", ObjectPayout, ActionFinanceWrite))
	assert.NoError(t, svc.Authorize(context.Background(), "user:10", "1", ObjectTimeEntry, ActionTimeTrack))
}

func TestAuthorizeMemberCannotWriteFinance(t *testing.T) {
	svc, db := newTestService(t)
	insertMember(t, db, 1, 11, "member")

	assert.NoError(t, svc.Authorize(context.Background(), "user:11", "1", ObjectTimeEntry, ActionTimeTrack))
	assert.NoError(t, svc.Authorize(context.Background(), "user:11", "1", ObjectRate, ActionFinanceRead))
	assert.ErrorIs(t, svc.Authorize(context.Background(), "user:11", "1", ObjectRate, ActionFinanceWrite), ErrForbidden)
	assert.ErrorIs(t, svc.Authorize(context.Background(), "user:11", "1", ObjectFinancials, ActionFinanceRead), ErrForbidden)
}

func TestAuthorizeDeniesCrossOrg(t *testing.T) {
	svc, db := newTestService(t)
	insertMember(t, db, 1, 12, "admin")

	assert.ErrorIs(t, svc.Authorize(context.Background(), "user:12", "2", ObjectInvoice, ActionFinanceWrite), ErrForbidden)
}

func TestAuthorizeFollowsRoleChange(t *testing.T) {
	svc, db := newTestService(t)
	insertMember(t, db, 1, 13, "admin")
	require.NoError(t, svc.Authorize(context.Background(), "user:13", "1", ObjectPayout, ActionFinanceWrite))

	require.NoError(t, db.Exec(`UPDATE organization_members SET role = 'member' WHERE user_id = 13`).Error)
	assert.ErrorIs(t, svc.Authorize(context.Background(), "user:13", "1", ObjectPayout, ActionFinanceWrite), ErrForbidden)
}

func TestAuthorizeSystem(t *testing.T) {
	svc, _ := newTestService(t)

	assert.NoError(t, svc.Authorize(context.Background(), "system", "3", ObjectInvoice, ActionFinanceWrite))
	assert.ErrorIs(t, svc.Authorize(context.Background(), "system", "3", ObjectPayout, ActionFinanceWrite), ErrForbidden)
}

func TestAuthorizeValidatesInput(t *testing.T) {
	svc, _ := newTestService(t)

	assert.ErrorIs(t, svc.Authorize(context.Background(), "", "1", ObjectRate, ActionFinanceRead), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(context.Background(), "bot:1", "1", ObjectRate, ActionFinanceRead), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(context.Background(), "user:1", "x", ObjectRate, ActionFinanceRead), ErrInvalidOrganization)
	assert.ErrorIs(t, svc.Authorize(context.Background(), "user:1", "1", "", ActionFinanceRead), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(context.Background(), "user:1", "1", ObjectRate, ""), ErrInvalidAction)
}
