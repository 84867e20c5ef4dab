package infrastructure_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Raikerian/go-discord-voice/pkg/infrastructure"
)

func newObservedAdapter() (fxevent.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return infrastructure.NewFxLoggerAdapter(zap.New(core)), logs
}

func TestAdapterImplementsFxEventLogger(t *testing.T) {
	adapter, _ := newObservedAdapter()
	var _ fxevent.Logger = adapter
	require.NotNil(t, adapter)
}

func TestHookFailureLogsError(t *testing.T) {
	adapter, logs := newObservedAdapter()

	adapter.LogEvent(&fxevent.OnStartExecuted{
		FunctionName: "driver.New()",
		Err:          errors.New("no such device"),
	})

	entries := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, entries, 1)
	assert.Equal(t, "OnStart hook failed", entries[0].Message)
}

func TestLifecycleEventsLogQuietly(t *testing.T) {
	adapter, logs := newObservedAdapter()

	adapter.LogEvent(&fxevent.Provided{OutputTypeNames: []string{"*driver.Scheduler"}})
	adapter.LogEvent(&fxevent.Invoking{FunctionName: "main.run()"})
	adapter.LogEvent(&fxevent.Invoked{FunctionName: "main.run()"})
	adapter.LogEvent(&fxevent.Started{})

	assert.Empty(t, logs.FilterLevelExact(zapcore.ErrorLevel).All())
	assert.Len(t, logs.FilterLevelExact(zapcore.InfoLevel).All(), 1, "only Started is loud")
}

func TestRollbackLogsStartError(t *testing.T) {
	adapter, logs := newObservedAdapter()

	adapter.LogEvent(&fxevent.RollingBack{StartErr: errors.New("bind: address in use")})

	entries := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Start failed, rolling back", entries[0].Message)
}

func TestUnknownEventsAreDebugOnly(t *testing.T) {
	adapter, logs := newObservedAdapter()

	adapter.LogEvent(&fxevent.Supplied{TypeName: "string"})

	assert.Empty(t, logs.FilterLevelExact(zapcore.ErrorLevel).All())
	assert.NotEmpty(t, logs.FilterLevelExact(zapcore.DebugLevel).All())
}
