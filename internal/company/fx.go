package company

import (
	"github.com/duetrack/duetrack/internal/company/repository"
	"github.com/duetrack/duetrack/internal/company/service"
	"go.uber.org/fx"
)

var Module = fx.Module("company.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
