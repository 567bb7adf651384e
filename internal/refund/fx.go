package refund

import (
	"go.uber.org/fx"

	"github.com/bursarhq/bursar/internal/refund/service"
)

var Module = fx.Module("refund.service",
	fx.Provide(service.NewService),
)
