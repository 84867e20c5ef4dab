// Command play streams a local audio file to a Discord voice UDP endpoint
// whose session parameters were obtained out of band. It exists to exercise
// the driver end to end without a gateway in the loop.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/Raikerian/go-discord-voice/internal/config"
	"github.com/Raikerian/go-discord-voice/internal/driver"
	"github.com/Raikerian/go-discord-voice/internal/input"
	"github.com/Raikerian/go-discord-voice/internal/tracks"
	"github.com/Raikerian/go-discord-voice/pkg/infrastructure"
)

var (
	configPath = flag.String("config", "config.yaml", "path to the YAML configuration file")
	filePath   = flag.String("file", "", "audio file to play (dca1, wav, raw pcm)")
	endpoint   = flag.String("endpoint", "", "voice server UDP address, host:port")
	ssrc       = flag.Uint("ssrc", 0, "session SSRC")
	secretHex  = flag.String("key", "", "64 hex chars of session secret key")
)

func main() {
	flag.Parse()
	if *filePath == "" || *endpoint == "" || *secretHex == "" {
		flag.Usage()
		os.Exit(2)
	}

	app := fx.New(
		fx.Provide(
			loadConfig,
			newLogger,
		),
		driver.Module,
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return infrastructure.NewFxLoggerAdapter(logger)
		}),
		fx.Invoke(run),
	)
	app.Run()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(*configPath)
	if os.IsNotExist(err) {
		return config.Default(), nil
	}
	return cfg, err
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return infrastructure.NewLogger(cfg.LogLevel, cfg.LogFile)
}

func run(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg *config.Config, sched *driver.Scheduler, logger *zap.Logger) {
	var d *driver.Driver

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			info, err := connectionInfo()
			if err != nil {
				return err
			}

			d, err = driver.New(cfg, sched, logger)
			if err != nil {
				return err
			}
			if err := d.Connect(ctx, info, nil); err != nil {
				return err
			}

			handle, err := d.Play(input.NewLazy(input.NewFile(*filePath)))
			if err != nil {
				return err
			}
			logger.Info("Playing",
				zap.String("file", *filePath),
				zap.String("track_id", handle.UUID().String()))

			return d.AddEvent(tracks.OnTrack(tracks.TrackEnd), tracks.HandlerFunc(func(*tracks.Context) bool {
				logger.Info("Track finished")
				_ = shutdowner.Shutdown()
				return true
			}))
		},
		OnStop: func(context.Context) error {
			if d != nil {
				return d.Close()
			}
			return nil
		},
	})
}

func connectionInfo() (driver.ConnectionInfo, error) {
	var info driver.ConnectionInfo
	key, err := hex.DecodeString(*secretHex)
	if err != nil || len(key) != len(info.SecretKey) {
		return info, fmt.Errorf("key must be %d hex-encoded bytes", len(info.SecretKey))
	}
	copy(info.SecretKey[:], key)
	info.Endpoint = *endpoint
	info.SSRC = uint32(*ssrc)
	return info, nil
}
