package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	alertdomain "github.com/smallbiznis/timeledger/internal/alert/domain"
	auditdomain "github.com/smallbiznis/timeledger/internal/audit/domain"
	expensedomain "github.com/smallbiznis/timeledger/internal/expense/domain"
	financialsdomain "github.com/smallbiznis/timeledger/internal/financials/domain"
	invoicedomain "github.com/smallbiznis/timeledger/internal/invoice/domain"
	payoutdomain "github.com/smallbiznis/timeledger/internal/payout/domain"
	projectdomain "github.com/smallbiznis/timeledger/internal/project/domain"
	ratedomain "github.com/smallbiznis/timeledger/internal/rate/domain"
	timeentrydomain "github.com/smallbiznis/timeledger/internal/timeentry/domain"
	"gorm.io/gorm"
)

// RunMigrations applies the embedded PostgreSQL migrations.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// OrganizationMember mirrors the membership table owned by the organization service.
// Only role lookups read it.
type OrganizationMember struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false"`
	OrgID     int64     `gorm:"not null;uniqueIndex:ux_organization_members_org_user,priority:1"`
	UserID    int64     `gorm:"not null;uniqueIndex:ux_organization_members_org_user,priority:2"`
	Role      string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (OrganizationMember) TableName() string { return "organization_members" }

// Models lists every table this service owns, in dependency order.
func Models() []any {
	return []any{
		&OrganizationMember{},
		&projectdomain.Project{},
		&auditdomain.AuditLog{},
		&ratedomain.Rate{},
		&timeentrydomain.TimeEntry{},
		&timeentrydomain.Heartbeat{},
		&expensedomain.Expense{},
		&financialsdomain.ProjectFinancials{},
		&alertdomain.Alert{},
		&invoicedomain.Invoice{},
		&invoicedomain.Line{},
		&payoutdomain.Payout{},
	}
}

// AutoMigrate creates the schema through gorm for dialects without SQL migrations
// (sqlite in tests and local runs, mysql). The single-open-timer index is partial and
// therefore only created where the dialect supports it.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return err
	}
	if db.Dialector.Name() == "mysql" {
		return nil
	}
	return db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_time_entries_open_per_user
		 ON time_entries (user_id) WHERE end_ts IS NULL`,
	).Error
}
