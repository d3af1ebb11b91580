package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/genricoloni/nowplaying/internal/config"
	"github.com/genricoloni/nowplaying/internal/display"
	"github.com/genricoloni/nowplaying/internal/engine"
	"github.com/genricoloni/nowplaying/internal/metrics"
	"github.com/genricoloni/nowplaying/internal/processor"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// AppOptions is the daemon dependency graph
var AppOptions = fx.Options(
	fx.Provide(
		newLogger,
		config.NewAppConfig,
		newClock,
		metrics.New,
		metrics.NewServer,
		newFetcher,
		processor.NewArtProcessor,
		newArtworkCache,
		newAggregator,
		newPollSource,
		newPushSource,
		newRenderBuilder,
		fx.Annotate(display.NewLogDisplay, fx.As(new(engine.Display))),
		newEngine,
	),

	fx.Invoke(registerHooks),
)

func main() {
	app := fx.New(
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		AppOptions,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		os.Exit(1)
	}

	<-ctx.Done()

	if err := app.Stop(context.Background()); err != nil {
		os.Exit(1)
	}
}

// newLogger creates the process logger. NOWPLAYING_DEBUG switches to a
// human readable development logger at debug level.
func newLogger() (*zap.Logger, error) {
	if os.Getenv("NOWPLAYING_DEBUG") != "" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
