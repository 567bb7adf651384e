package observability

import (
	"go.uber.org/fx"
	gormlogger "gorm.io/gorm/logger"

	"github.com/bursarhq/bursar/internal/config"
)

var Module = fx.Module("observability",
	fx.Provide(
		provideMetricsConfig,
		NewProvider,
		NewMetrics,
		fx.Annotate(NewGormLogger, fx.As(new(gormlogger.Interface))),
	),
)

func provideMetricsConfig(cfg config.Config) MetricsConfig {
	return MetricsConfig{
		Enabled:          cfg.MetricsEnabled,
		ExporterEndpoint: cfg.OTLPEndpoint,
		ExporterProtocol: cfg.MetricsExporter,
		ServiceName:      cfg.AppName,
		Environment:      cfg.Environment,
	}
}
