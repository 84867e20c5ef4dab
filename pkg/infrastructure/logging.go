// Package infrastructure provides logging plumbing shared by the driver's
// binaries: zap logger construction and the fx lifecycle adapter.
package infrastructure

import (
	"fmt"

	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// FxLogger routes fx lifecycle events into the application's zap logger. It
// covers the events a single-binary driver app actually produces: provides,
// invokes, start/stop hooks, and rollback on a failed start.
type FxLogger struct {
	logger *zap.Logger
}

// NewFxLoggerAdapter wraps a zap logger for fx.WithLogger.
func NewFxLoggerAdapter(logger *zap.Logger) fxevent.Logger {
	return &FxLogger{logger: logger}
}

// LogEvent implements fxevent.Logger.
func (l *FxLogger) LogEvent(event fxevent.Event) {
	switch e := event.(type) {
	case *fxevent.Provided:
		if e.Err != nil {
			l.logger.Error("Provide failed", zap.Error(e.Err))
			return
		}
		l.logger.Debug("Provided", zap.Strings("types", e.OutputTypeNames))
	case *fxevent.Invoking:
		l.logger.Debug("Invoking", zap.String("function", e.FunctionName))
	case *fxevent.Invoked:
		if e.Err != nil {
			l.logger.Error("Invoke failed",
				zap.String("function", e.FunctionName),
				zap.Error(e.Err))
		}
	case *fxevent.OnStartExecuting:
		l.logger.Debug("OnStart hook executing", zap.String("callee", e.FunctionName))
	case *fxevent.OnStartExecuted:
		l.hookDone("OnStart", e.FunctionName, e.Err)
	case *fxevent.OnStopExecuting:
		l.logger.Debug("OnStop hook executing", zap.String("callee", e.FunctionName))
	case *fxevent.OnStopExecuted:
		l.hookDone("OnStop", e.FunctionName, e.Err)
	case *fxevent.Started:
		if e.Err != nil {
			l.logger.Error("Start failed", zap.Error(e.Err))
			return
		}
		l.logger.Info("Started")
	case *fxevent.Stopping:
		l.logger.Info("Stopping", zap.String("signal", e.Signal.String()))
	case *fxevent.Stopped:
		if e.Err != nil {
			l.logger.Error("Stop failed", zap.Error(e.Err))
		}
	case *fxevent.RollingBack:
		l.logger.Error("Start failed, rolling back", zap.Error(e.StartErr))
	case *fxevent.RolledBack:
		if e.Err != nil {
			l.logger.Error("Rollback failed", zap.Error(e.Err))
		}
	case *fxevent.LoggerInitialized:
		if e.Err != nil {
			l.logger.Error("Logger initialization failed", zap.Error(e.Err))
		}
	default:
		l.logger.Debug("fx event", zap.String("type", fmt.Sprintf("%T", event)))
	}
}

func (l *FxLogger) hookDone(hook, callee string, err error) {
	if err != nil {
		l.logger.Error(hook+" hook failed",
			zap.String("callee", callee),
			zap.Error(err))
		return
	}
	l.logger.Debug(hook+" hook executed", zap.String("callee", callee))
}
