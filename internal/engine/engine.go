package engine

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/genricoloni/nowplaying/internal/metrics"
	"github.com/genricoloni/nowplaying/internal/render"
	"go.uber.org/zap"
)

// logThrottle limits "now playing" lines while only the artist or play state changes
const logThrottle = 5 * time.Second

// FrameBuilder produces frames from the current state
type FrameBuilder interface {
	Build(now time.Time) render.Frame
	ResetScroll()
}

// Display receives every rendered frame
type Display interface {
	Show(frame render.Frame) error
}

// Options configures the render loop
type Options struct {
	FrameInterval time.Duration
	// DisplayDuration is the length of a display cycle; each cycle starts
	// with a full refresh
	DisplayDuration time.Duration
}

type trackKey struct {
	nothing bool
	title   string
	artist  string
	playing bool
}

// Engine drives the display at a fixed tick. It reads the aggregator state
// through the builder and never blocks on sources or artwork.
type Engine struct {
	logger  *zap.Logger
	clock   clock.Clock
	builder FrameBuilder
	display Display
	metrics *metrics.Metrics
	opts    Options

	cycleStart time.Time
	cycles     int

	lastGen    uint64
	genSeen    bool
	logged     trackKey
	loggedAt   time.Time
	hasLogged  bool
	pending    bool
	lastErrLog time.Time
}

// NewEngine creates a new render engine
func NewEngine(
	logger *zap.Logger,
	clk clock.Clock,
	builder FrameBuilder,
	display Display,
	m *metrics.Metrics,
	opts Options,
) *Engine {
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = 50 * time.Millisecond
	}
	return &Engine{
		logger:  logger,
		clock:   clk,
		builder: builder,
		display: display,
		metrics: m,
		opts:    opts,
	}
}

// Run renders a frame every FrameInterval until ctx is done
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("Engine starting...",
		zap.Duration("frameInterval", e.opts.FrameInterval),
		zap.Duration("displayDuration", e.opts.DisplayDuration))

	ticker := e.clock.Ticker(e.opts.FrameInterval)
	defer ticker.Stop()

	e.renderFrame(e.clock.Now())

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Engine loop stopped", zap.Int("cycles", e.cycles))
			return nil
		case <-ticker.C:
			e.renderFrame(e.clock.Now())
		}
	}
}

// renderFrame builds and shows one frame
func (e *Engine) renderFrame(now time.Time) {
	if e.cycles == 0 || (e.opts.DisplayDuration > 0 && now.Sub(e.cycleStart) >= e.opts.DisplayDuration) {
		e.builder.ResetScroll()
		e.cycleStart = now
		e.cycles++
		e.logger.Debug("Display cycle started, full refresh", zap.Int("cycle", e.cycles))
	}

	frame := e.builder.Build(now)
	e.logChange(now, frame)

	if err := e.display.Show(frame); err != nil {
		if now.Sub(e.lastErrLog) >= logThrottle {
			e.logger.Warn("Display rejected frame", zap.Error(err))
			e.lastErrLog = now
		}
		return
	}

	if e.metrics != nil {
		e.metrics.FramesRendered.Inc()
	}
}

// logChange reports track changes. A new title is always logged; other
// changes are logged at most once per logThrottle.
func (e *Engine) logChange(now time.Time, frame render.Frame) {
	if e.genSeen && frame.Generation == e.lastGen && !e.pending {
		return
	}
	e.lastGen = frame.Generation
	e.genSeen = true
	e.pending = false

	key := trackKey{
		nothing: frame.NothingPlaying,
		title:   frame.Title,
		artist:  frame.Artist,
		playing: frame.Playing,
	}
	if e.hasLogged && key == e.logged {
		return
	}

	titleChanged := !e.hasLogged || key.title != e.logged.title || key.nothing != e.logged.nothing
	if !titleChanged && now.Sub(e.loggedAt) < logThrottle {
		// re-checked on later frames until the window passes
		e.pending = true
		return
	}

	if key.nothing {
		e.logger.Info("Nothing playing")
	} else {
		e.logger.Info("Now playing",
			zap.String("title", frame.Title),
			zap.String("artist", frame.Artist),
			zap.String("album", frame.Album),
			zap.Bool("playing", frame.Playing),
			zap.Uint64("generation", frame.Generation))
	}

	e.logged = key
	e.loggedAt = now
	e.hasLogged = true
}
