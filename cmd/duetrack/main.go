package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/duetrack/duetrack/internal/clock"
	"github.com/duetrack/duetrack/internal/config"
	"github.com/duetrack/duetrack/internal/migration"
	"github.com/duetrack/duetrack/internal/observability"
	"github.com/duetrack/duetrack/internal/server"
	"github.com/duetrack/duetrack/pkg/db"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// HTTP surface plus the domain modules and background jobs it wires in
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
