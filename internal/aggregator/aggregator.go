package aggregator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/genricoloni/nowplaying/internal/domain"
	"github.com/genricoloni/nowplaying/internal/metrics"
	"go.uber.org/zap"
)

// staleFactor is the number of poll intervals after which a silent source is considered gone
const staleFactor = 3

// Options configures the failover policy
type Options struct {
	Preferred        domain.Source
	PollInterval     time.Duration
	FailureThreshold int
}

// SourceStatus is a diagnostic view of one source
type SourceStatus struct {
	Health              domain.Health
	ConsecutiveFailures int
	LastSuccess         time.Time
	LastError           string
	AuthRequired        bool
}

type sourceState struct {
	health      domain.Health
	failures    int
	lastSuccess time.Time
	lastErr     string
	auth        bool
	// retained is the last valid snapshot, kept for promotion
	retained    domain.TrackSnapshot
	hasRetained bool
}

// Aggregator merges the snapshots of both sources into the single current
// snapshot. All state is guarded by one lock that is never held across I/O.
type Aggregator struct {
	logger     *zap.Logger
	clock      clock.Clock
	metrics    *metrics.Metrics
	prefetcher domain.Prefetcher

	preferred domain.Source
	interval  time.Duration
	grace     time.Duration
	threshold int
	startedAt time.Time

	mu         sync.RWMutex
	current    domain.TrackSnapshot
	active     domain.Source
	generation uint64
	sources    map[domain.Source]*sourceState
}

// New creates an aggregator. prefetcher and m may be nil.
func New(logger *zap.Logger, clk clock.Clock, m *metrics.Metrics, prefetcher domain.Prefetcher, opts Options) *Aggregator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.FailureThreshold < 1 {
		opts.FailureThreshold = 3
	}
	if opts.Preferred == domain.SourceNone {
		opts.Preferred = domain.SourcePoll
	}

	return &Aggregator{
		logger:     logger,
		clock:      clk,
		metrics:    m,
		prefetcher: prefetcher,
		preferred:  opts.Preferred,
		interval:   opts.PollInterval,
		grace:      staleFactor * opts.PollInterval,
		threshold:  opts.FailureThreshold,
		startedAt:  clk.Now(),
		current:    domain.NothingPlaying(),
		sources: map[domain.Source]*sourceState{
			domain.SourcePoll: {},
			domain.SourcePush: {},
		},
	}
}

// Submit reports the outcome of one adapter attempt: a snapshot when err is
// nil, a failure otherwise. It is safe for concurrent use.
func (a *Aggregator) Submit(src domain.Source, snap domain.TrackSnapshot, err error) {
	if errors.Is(err, domain.ErrNoUpdate) {
		return
	}

	a.mu.Lock()
	st, ok := a.sources[src]
	if !ok {
		a.mu.Unlock()
		a.logger.Error("Update from unknown source ignored", zap.Stringer("source", src))
		return
	}

	now := a.clock.Now()

	if err != nil {
		a.recordFailureLocked(src, st, err)
		a.mu.Unlock()
		return
	}

	snap = snap.Normalize()
	if !snap.IsNothing() {
		snap.Source = src
	}
	if snap.CapturedAt.IsZero() {
		snap.CapturedAt = now
	}

	a.recordSuccessLocked(src, st, snap, now)

	var prefetch string
	switch {
	case src == a.preferred:
		prefetch = a.acceptLocked(src, snap)
	case src == a.active:
		prefetch = a.acceptLocked(src, snap)
	case a.preferredDownLocked(now):
		prefetch = a.acceptLocked(src, snap)
	default:
		if a.metrics != nil {
			a.metrics.SnapshotsIgnored.WithLabelValues(src.String()).Inc()
		}
	}
	a.mu.Unlock()

	a.prefetch(prefetch)
}

// CurrentSnapshot returns a copy of the current snapshot and its generation
func (a *Aggregator) CurrentSnapshot() (domain.TrackSnapshot, uint64) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current, a.generation
}

// Generation returns the change counter
func (a *Aggregator) Generation() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.generation
}

// ActiveSource returns the source whose snapshot is current
func (a *Aggregator) ActiveSource() domain.Source {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.active
}

// Preferred returns the configured preferred source
func (a *Aggregator) Preferred() domain.Source {
	return a.preferred
}

// SourceStatus returns the health view of src
func (a *Aggregator) SourceStatus(src domain.Source) SourceStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()

	st, ok := a.sources[src]
	if !ok {
		return SourceStatus{}
	}
	return SourceStatus{
		Health:              st.health,
		ConsecutiveFailures: st.failures,
		LastSuccess:         st.lastSuccess,
		LastError:           st.lastErr,
		AuthRequired:        st.auth,
	}
}

// Run sweeps for stale state every poll interval until ctx is done
func (a *Aggregator) Run(ctx context.Context) error {
	ticker := a.clock.Ticker(a.interval)
	defer ticker.Stop()

	a.logger.Info("Aggregator started",
		zap.Stringer("preferred", a.preferred),
		zap.Duration("grace", a.grace))

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Aggregator stopped")
			return nil
		case <-ticker.C:
			a.Sweep()
		}
	}
}

// Sweep expires a stale current snapshot and promotes the alternate source
// when the preferred one is down. Push sources only emit on change, so the
// alternate's retained snapshot is used for promotion.
func (a *Aggregator) Sweep() {
	a.mu.Lock()
	now := a.clock.Now()

	if a.active != domain.SourceNone {
		st := a.sources[a.active]
		if st.health != domain.HealthHealthy && now.Sub(a.lastSuccessLocked(st)) >= a.grace {
			a.logger.Warn("Active source stale, falling back to nothing playing",
				zap.Stringer("source", a.active),
				zap.Stringer("health", st.health),
				zap.Duration("silentFor", now.Sub(a.lastSuccessLocked(st))))
			a.acceptLocked(domain.SourceNone, domain.NothingPlaying())
		}
	}

	var prefetch string
	alt := a.preferred.Alternate()
	altSt := a.sources[alt]
	if a.active != alt && altSt.health == domain.HealthHealthy && altSt.hasRetained && a.preferredDownLocked(now) {
		a.logger.Info("Promoting alternate source", zap.Stringer("source", alt))
		prefetch = a.acceptLocked(alt, altSt.retained)
	}
	a.mu.Unlock()

	a.prefetch(prefetch)
}

// acceptLocked installs snap as current and returns an artwork URL to warm
func (a *Aggregator) acceptLocked(src domain.Source, snap domain.TrackSnapshot) string {
	prev := a.current
	prevActive := a.active

	a.current = snap
	a.active = src

	if a.metrics != nil && src != domain.SourceNone {
		a.metrics.SnapshotsAccepted.WithLabelValues(src.String()).Inc()
	}

	if prevActive != src {
		a.logger.Info("Active source changed",
			zap.Stringer("from", prevActive),
			zap.Stringer("to", src))
		if a.metrics != nil {
			a.metrics.Failovers.Inc()
		}
	}

	if prev.Equal(snap) && prevActive == src {
		return ""
	}

	a.generation++
	if a.metrics != nil {
		a.metrics.Generation.Set(float64(a.generation))
	}

	if snap.ArtworkURL != "" && snap.ArtworkURL != prev.ArtworkURL {
		return snap.ArtworkURL
	}
	return ""
}

func (a *Aggregator) recordSuccessLocked(src domain.Source, st *sourceState, snap domain.TrackSnapshot, now time.Time) {
	if st.health != domain.HealthHealthy {
		a.logger.Info("Source healthy",
			zap.Stringer("source", src),
			zap.Stringer("previous", st.health))
	}
	st.health = domain.HealthHealthy
	st.failures = 0
	st.lastSuccess = now
	st.lastErr = ""
	st.auth = false
	st.retained = snap
	st.hasRetained = true
	a.observeHealthLocked(src, st)
}

func (a *Aggregator) recordFailureLocked(src domain.Source, st *sourceState, err error) {
	kind := domain.Classify(err)
	prev := st.health

	st.failures++
	st.lastErr = err.Error()
	st.auth = kind == domain.KindAuthRequired
	if st.failures > a.threshold {
		st.health = domain.HealthFailing
	} else {
		st.health = domain.HealthDegraded
	}

	if a.metrics != nil {
		a.metrics.SourceFailures.WithLabelValues(src.String(), kind.String()).Inc()
	}
	a.observeHealthLocked(src, st)

	if st.health != prev {
		a.logger.Warn("Source health changed",
			zap.Stringer("source", src),
			zap.Stringer("health", st.health),
			zap.Int("failures", st.failures),
			zap.Stringer("kind", kind),
			zap.Error(err))
	} else {
		a.logger.Debug("Source failure",
			zap.Stringer("source", src),
			zap.Int("failures", st.failures),
			zap.Error(err))
	}
}

// preferredDownLocked reports whether the preferred source has been unhealthy
// for at least the grace window, counted from startup when it never succeeded.
// DEGRADED counts as well as FAILING: an auth-suspended adapter reports once
// and never reaches FAILING, yet must still fail over.
func (a *Aggregator) preferredDownLocked(now time.Time) bool {
	st := a.sources[a.preferred]
	if st.health == domain.HealthHealthy {
		return false
	}
	return now.Sub(a.lastSuccessLocked(st)) >= a.grace
}

func (a *Aggregator) lastSuccessLocked(st *sourceState) time.Time {
	if st.lastSuccess.IsZero() {
		return a.startedAt
	}
	return st.lastSuccess
}

func (a *Aggregator) observeHealthLocked(src domain.Source, st *sourceState) {
	if a.metrics != nil {
		a.metrics.SourceHealth.WithLabelValues(src.String()).Set(float64(st.health))
	}
}

func (a *Aggregator) prefetch(uri string) {
	if uri != "" && a.prefetcher != nil {
		a.prefetcher.Prefetch(uri)
	}
}
