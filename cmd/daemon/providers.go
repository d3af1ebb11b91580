package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/genricoloni/nowplaying/internal/aggregator"
	"github.com/genricoloni/nowplaying/internal/artwork"
	"github.com/genricoloni/nowplaying/internal/config"
	"github.com/genricoloni/nowplaying/internal/domain"
	"github.com/genricoloni/nowplaying/internal/engine"
	"github.com/genricoloni/nowplaying/internal/fetcher"
	"github.com/genricoloni/nowplaying/internal/metrics"
	"github.com/genricoloni/nowplaying/internal/monitor"
	"github.com/genricoloni/nowplaying/internal/processor"
	"github.com/genricoloni/nowplaying/internal/render"
	"github.com/genricoloni/nowplaying/internal/scroll"
	"github.com/genricoloni/nowplaying/internal/source"
	"github.com/genricoloni/nowplaying/internal/source/spotify"
	"github.com/genricoloni/nowplaying/internal/source/ytm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// sourceOut registers one adapter and the watchers of its credentials
type sourceOut struct {
	fx.Out

	Adapter  source.Adapter             `group:"adapters"`
	Watchers []*source.CredentialWatcher `group:"watchers,flatten"`
}

func newClock() clock.Clock {
	return clock.New()
}

func newFetcher(logger *zap.Logger, cfg *config.Config) domain.Fetcher {
	return fetcher.NewHTTPFetcherWithTimeout(logger, time.Duration(cfg.Artwork.FetchTimeoutSeconds)*time.Second)
}

func newArtworkCache(logger *zap.Logger, cfg *config.Config, f domain.Fetcher, p *processor.ArtProcessor, clk clock.Clock, m *metrics.Metrics) *artwork.Cache {
	return artwork.New(logger.Named("artwork"), f, p, clk, m, artwork.Options{
		Size:         cfg.Display.Height,
		MaxEntries:   cfg.MaxArtworkCacheEntries,
		Workers:      cfg.Artwork.Workers,
		Cooldown:     time.Duration(cfg.Artwork.CooldownSeconds) * time.Second,
		FetchTimeout: time.Duration(cfg.Artwork.FetchTimeoutSeconds) * time.Second,
	})
}

func newAggregator(logger *zap.Logger, cfg *config.Config, clk clock.Clock, m *metrics.Metrics, cache *artwork.Cache) *aggregator.Aggregator {
	return aggregator.New(logger.Named("aggregator"), clk, m, cache, aggregator.Options{
		Preferred:        cfg.Preferred(),
		PollInterval:     cfg.PollInterval(),
		FailureThreshold: cfg.FailureThreshold,
	})
}

// newPollSource wires the Spotify client into a polling adapter
func newPollSource(logger *zap.Logger, cfg *config.Config, clk clock.Clock, agg *aggregator.Aggregator) sourceOut {
	timeout := time.Duration(cfg.Spotify.TimeoutSeconds) * time.Second
	client := spotify.NewClient(logger.Named("spotify"), clk, cfg.Spotify.APIURL, cfg.Spotify.TokenFile, timeout)
	poller := source.NewPoller(logger, client, agg, clk, cfg.PollInterval(), timeout)

	return sourceOut{
		Adapter:  poller,
		Watchers: []*source.CredentialWatcher{source.NewCredentialWatcher(logger, clk, cfg.Spotify.TokenFile, poller)},
	}
}

// newPushSource wires the configured push backend into a push adapter
func newPushSource(logger *zap.Logger, cfg *config.Config, clk clock.Clock, m *metrics.Metrics, agg *aggregator.Aggregator) (sourceOut, error) {
	var (
		client    domain.EventClient
		tokenFile string
	)

	switch cfg.Push.Backend {
	case "ytm":
		// a silent socket must fail before the aggregator's staleness bound
		client = ytm.NewClient(logger.Named("ytm"), clk, cfg.YTM.URL, cfg.YTM.TokenFile, 3*cfg.PollInterval())
		tokenFile = cfg.YTM.TokenFile
	case "mpris":
		client = monitor.NewMprisMonitor(logger.Named("mpris"), clk, cfg.MPRIS.Player)
	default:
		return sourceOut{}, fmt.Errorf("unknown push backend %q", cfg.Push.Backend)
	}

	pusher := source.NewPusher(logger, client, agg, clk, m, cfg.PollInterval(), cfg.Push.QueueSize)

	out := sourceOut{Adapter: pusher}
	if tokenFile != "" {
		out.Watchers = append(out.Watchers, source.NewCredentialWatcher(logger, clk, tokenFile, pusher))
	}
	return out, nil
}

func newRenderBuilder(logger *zap.Logger, cfg *config.Config, agg *aggregator.Aggregator, cache *artwork.Cache) *render.Builder {
	return render.NewBuilder(logger.Named("render"), agg, cache, render.NewDefaultMeasurer(), render.Options{
		Width:        cfg.Display.Width,
		Height:       cfg.Display.Height,
		ShowArtwork:  cfg.ShowAlbumArt,
		ShowProgress: cfg.ShowProgressBar,
		ScrollStep:   scroll.StepFor(cfg.ScrollSpeed, cfg.FrameInterval()),
	})
}

func newEngine(logger *zap.Logger, cfg *config.Config, clk clock.Clock, builder *render.Builder, d engine.Display, m *metrics.Metrics) *engine.Engine {
	return engine.NewEngine(logger.Named("engine"), clk, builder, d, m, engine.Options{
		FrameInterval:   cfg.FrameInterval(),
		DisplayDuration: cfg.DisplayDuration(),
	})
}

type hookParams struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Logger     *zap.Logger
	Config     *config.Config
	Metrics    *metrics.Server
	Cache      *artwork.Cache
	Aggregator *aggregator.Aggregator
	Adapters   []source.Adapter             `group:"adapters"`
	Watchers   []*source.CredentialWatcher `group:"watchers"`
	Engine     *engine.Engine
}

// registerHooks starts every worker under one errgroup on start and cancels
// them, bounded by the shutdown timeout, on stop
func registerHooks(p hookParams) {
	var (
		cancel context.CancelFunc
		group  *errgroup.Group
	)

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if err := p.Metrics.Start(); err != nil {
				return err
			}
			p.Cache.Start()

			var runCtx context.Context
			runCtx, cancel = context.WithCancel(context.Background())
			group, runCtx = errgroup.WithContext(runCtx)

			group.Go(func() error { return p.Aggregator.Run(runCtx) })
			for _, a := range p.Adapters {
				a := a
				group.Go(func() error { return a.Run(runCtx) })
			}
			for _, w := range p.Watchers {
				w := w
				group.Go(func() error { return w.Run(runCtx) })
			}
			group.Go(func() error { return p.Engine.Run(runCtx) })

			p.Logger.Info("Now playing daemon started",
				zap.String("preferred", p.Config.PreferredSource),
				zap.String("pushBackend", p.Config.Push.Backend),
				zap.Int("adapters", len(p.Adapters)))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			p.Logger.Info("Shutting down")

			ctx, stop := context.WithTimeout(ctx, p.Config.ShutdownTimeout())
			defer stop()

			cancel()

			done := make(chan error, 1)
			go func() { done <- group.Wait() }()

			var errs []error
			select {
			case err := <-done:
				if err != nil && !errors.Is(err, context.Canceled) {
					errs = append(errs, err)
				}
			case <-ctx.Done():
				p.Logger.Warn("Workers did not stop in time", zap.Duration("timeout", p.Config.ShutdownTimeout()))
			}

			if err := p.Cache.Close(ctx); err != nil {
				p.Logger.Warn("Artwork workers did not stop in time", zap.Error(err))
			}
			if err := p.Metrics.Stop(ctx); err != nil {
				errs = append(errs, err)
			}
			return errors.Join(errs...)
		},
	})
}
