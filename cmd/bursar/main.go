package main

import (
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/bursarhq/bursar/internal/audit"
	"github.com/bursarhq/bursar/internal/clock"
	"github.com/bursarhq/bursar/internal/config"
	"github.com/bursarhq/bursar/internal/discount"
	"github.com/bursarhq/bursar/internal/feecatalog"
	"github.com/bursarhq/bursar/internal/invoice"
	"github.com/bursarhq/bursar/internal/migration"
	"github.com/bursarhq/bursar/internal/observability"
	"github.com/bursarhq/bursar/internal/payment"
	"github.com/bursarhq/bursar/internal/refund"
	"github.com/bursarhq/bursar/internal/scheduler"
	"github.com/bursarhq/bursar/internal/sequence"
	"github.com/bursarhq/bursar/internal/server"
	"github.com/bursarhq/bursar/pkg/db"
	"github.com/bursarhq/bursar/pkg/log"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		log.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Billing domains
		audit.Module,
		sequence.Module,
		feecatalog.Module,
		discount.Module,
		invoice.Module,
		payment.Module,
		refund.Module,
		scheduler.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() (*snowflake.Node, error) {
	nodeID := int64(1)
	if raw := os.Getenv("SNOWFLAKE_NODE_ID"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, err
		}
		nodeID = parsed
	}
	return snowflake.NewNode(nodeID)
}
