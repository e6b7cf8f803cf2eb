package migration

import (
	"io/fs"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestAutoMigrateCreatesSchema(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	// Idempotent.
	require.NoError(t, AutoMigrate(db))

	for _, table := range []string{
		"organization_members", "projects", "audit_logs", "rates", "time_entries",
		"time_entry_heartbeats", "expenses", "project_financials", "finance_alerts",
		"invoices", "invoice_lines", "payouts",
	} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
}

func TestOpenEntryIndexAllowsOneOpenEntryPerUser(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	now := time.Now().UTC()
	insert := func(id int64, end *time.Time) error {
		return db.Exec(
			`INSERT INTO time_entries (id, org_id, user_id, project_id, start_ts, end_ts, source,
			  paused_intervals, idle_suggestion, created_at, updated_at)
			 VALUES (?, 1, 7, 1, ?, ?, 'timer', '[]', 'null', ?, ?)`,
			id, now, end, now, now,
		).Error
	}

	require.NoError(t, insert(1, nil))
	assert.Error(t, insert(2, nil))
	require.NoError(t, insert(3, &now))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(embeddedMigrations, migrationsDir+"/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(embeddedMigrations, migrationsDir+"/*.down.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))
}
