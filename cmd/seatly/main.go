package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/seatly/internal/clock"
	"github.com/smallbiznis/seatly/internal/config"
	"github.com/smallbiznis/seatly/internal/migration"
	"github.com/smallbiznis/seatly/internal/observability"
	"github.com/smallbiznis/seatly/internal/scheduler"
	"github.com/smallbiznis/seatly/internal/server"
	"github.com/smallbiznis/seatly/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Schema and catalog must be ready before routes serve traffic.
		migration.Module,
		server.Module,
		scheduler.Module,
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
