package audit

import (
	"go.uber.org/fx"

	"github.com/bursarhq/bursar/internal/audit/repository"
	"github.com/bursarhq/bursar/internal/audit/service"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
