package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/timeledger/internal/alert"
	"github.com/smallbiznis/timeledger/internal/audit"
	"github.com/smallbiznis/timeledger/internal/clock"
	"github.com/smallbiznis/timeledger/internal/config"
	"github.com/smallbiznis/timeledger/internal/expense"
	"github.com/smallbiznis/timeledger/internal/financials"
	"github.com/smallbiznis/timeledger/internal/invoice"
	"github.com/smallbiznis/timeledger/internal/lock"
	"github.com/smallbiznis/timeledger/internal/observability"
	"github.com/smallbiznis/timeledger/internal/project"
	"github.com/smallbiznis/timeledger/internal/providers"
	"github.com/smallbiznis/timeledger/internal/rate"
	"github.com/smallbiznis/timeledger/internal/scheduler"
	"github.com/smallbiznis/timeledger/internal/timeentry"
	"github.com/smallbiznis/timeledger/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		lock.Module,

		// Domain services the jobs drive
		scheduler.Module,
		invoice.Module,
		financials.Module,

		// Transitive dependencies (invoice and financials read entries, rates and expenses)
		audit.Module,
		alert.Module,
		project.Module,
		rate.Module,
		timeentry.Module,
		expense.Module,
		providers.Module,

		// No server module!
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
