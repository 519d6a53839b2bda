package reminder

import (
	"github.com/duetrack/duetrack/internal/reminder/repository"
	"github.com/duetrack/duetrack/internal/reminder/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reminder.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
