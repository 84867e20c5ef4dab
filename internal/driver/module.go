package driver

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/go-discord-voice/internal/config"
)

// Module provides the scheduler shared by every driver in the process.
var Module = fx.Module("driver",
	fx.Provide(func(cfg *config.Config, logger *zap.Logger) *Scheduler {
		return NewScheduler(cfg.Scheduler, logger)
	}),
)
