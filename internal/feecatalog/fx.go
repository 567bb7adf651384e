package feecatalog

import (
	"go.uber.org/fx"

	"github.com/bursarhq/bursar/internal/feecatalog/service"
)

var Module = fx.Module("feecatalog.service",
	fx.Provide(service.NewService),
)
