package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/timeledger/internal/clock"
	"github.com/smallbiznis/timeledger/internal/config"
	"github.com/smallbiznis/timeledger/internal/migration"
	"github.com/smallbiznis/timeledger/internal/observability"
	"github.com/smallbiznis/timeledger/internal/server"
	"github.com/smallbiznis/timeledger/pkg/db"
	"go.uber.org/fx"
)

// API-only replicas; background jobs run in apps/scheduler.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		server.Module,
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
