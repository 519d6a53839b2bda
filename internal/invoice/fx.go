package invoice

import (
	"github.com/duetrack/duetrack/internal/invoice/repository"
	"github.com/duetrack/duetrack/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
