package payment

import (
	"go.uber.org/fx"

	"github.com/bursarhq/bursar/internal/payment/service"
)

var Module = fx.Module("payment.service",
	fx.Provide(service.NewService),
)
