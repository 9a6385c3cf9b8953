package main

import (
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/affiliora/internal/clock"
	"github.com/smallbiznis/affiliora/internal/config"
	"github.com/smallbiznis/affiliora/internal/migration"
	"github.com/smallbiznis/affiliora/internal/observability"
	"github.com/smallbiznis/affiliora/internal/scheduler"
	"github.com/smallbiznis/affiliora/internal/server"
	"github.com/smallbiznis/affiliora/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Schema first so the HTTP layer starts against current tables.
		migration.Module,
		server.Module,
		scheduler.Module,
	)
	app.Run()
}

// RegisterSnowflake uses SNOWFLAKE_NODE so replicas mint disjoint ids.
func RegisterSnowflake() (*snowflake.Node, error) {
	nodeID := int64(1)
	if raw := os.Getenv("SNOWFLAKE_NODE"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, err
		}
		nodeID = parsed
	}
	return snowflake.NewNode(nodeID)
}
