package invoice

import (
	"go.uber.org/fx"

	"github.com/bursarhq/bursar/internal/invoice/render"
	"github.com/bursarhq/bursar/internal/invoice/service"
)

var Module = fx.Module("invoice.service",
	fx.Provide(service.NewService),
	fx.Provide(render.NewRenderer),
)
