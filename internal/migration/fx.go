package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	auditdomain "github.com/bursarhq/bursar/internal/audit/domain"
	"github.com/bursarhq/bursar/internal/config"
	discdomain "github.com/bursarhq/bursar/internal/discount/domain"
	feedomain "github.com/bursarhq/bursar/internal/feecatalog/domain"
	invdomain "github.com/bursarhq/bursar/internal/invoice/domain"
	paydomain "github.com/bursarhq/bursar/internal/payment/domain"
	refdomain "github.com/bursarhq/bursar/internal/refund/domain"
	seqdomain "github.com/bursarhq/bursar/internal/sequence/domain"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// Versioned SQL migrations target Postgres; local sqlite and
			// mysql setups get their schema from the models directly.
			return conn.AutoMigrate(
				&seqdomain.DocumentCounter{},
				&feedomain.FeeStructure{},
				&discdomain.Discount{},
				&invdomain.Invoice{},
				&invdomain.LineItem{},
				&invdomain.AppliedDiscount{},
				&paydomain.Payment{},
				&refdomain.Refund{},
				&auditdomain.AuditLog{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
