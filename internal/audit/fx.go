package audit

import (
	"github.com/duetrack/duetrack/internal/audit/repository"
	"github.com/duetrack/duetrack/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
