package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gammazero/deque"
	"github.com/genricoloni/nowplaying/internal/domain"
	"github.com/genricoloni/nowplaying/internal/metrics"
	"go.uber.org/zap"
)

var errConnectionClosed = errors.New("event stream closed")

// Pusher keeps an EventClient connected and forwards its events through a
// bounded queue that drops the oldest event when full
type Pusher struct {
	logger   *zap.Logger
	client   domain.EventClient
	sink     Sink
	clock    clock.Clock
	metrics  *metrics.Metrics
	source   domain.Source
	base     time.Duration
	capacity int

	mu              sync.Mutex
	cond            *sync.Cond
	queue           *deque.Deque[domain.TrackSnapshot]
	closed          bool
	dropped         uint64
	lastDropWarning time.Time

	resume chan struct{}
	status statusBox
}

// NewPusher creates a push adapter. base is the reconnect backoff base.
func NewPusher(logger *zap.Logger, client domain.EventClient, sink Sink, clk clock.Clock, m *metrics.Metrics, base time.Duration, capacity int) *Pusher {
	if capacity < 1 {
		capacity = 1
	}
	p := &Pusher{
		logger:   logger.With(zap.String("adapter", "push")),
		client:   client,
		sink:     sink,
		clock:    clk,
		metrics:  m,
		source:   domain.SourcePush,
		base:     base,
		capacity: capacity,
		queue:    deque.New[domain.TrackSnapshot](),
		resume:   make(chan struct{}, 1),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *Pusher) Source() domain.Source { return p.source }

func (p *Pusher) Status() Status { return p.status.get() }

// Resume wakes the pusher after credentials were refreshed
func (p *Pusher) Resume() {
	select {
	case p.resume <- struct{}{}:
	default:
	}
}

// Dropped returns how many events were discarded by the full queue
func (p *Pusher) Dropped() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Run connects, reconnects with backoff and drains events until ctx is done.
// Run may be called again after it returns; events left from a previous run
// are discarded.
func (p *Pusher) Run(ctx context.Context) error {
	p.mu.Lock()
	p.closed = false
	p.queue.Clear()
	p.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.drain()
	}()

	b := newBackoff(p.base)
	failures := 0

	p.logger.Info("Pusher started", zap.Int("queue", p.capacity))
	defer func() {
		p.mu.Lock()
		p.closed = true
		p.cond.Broadcast()
		p.mu.Unlock()
		wg.Wait()
		p.status.set(StateStopped, failures, time.Time{})
		p.logger.Info("Pusher stopped")
	}()

	for {
		p.status.set(StateRunning, failures, time.Time{})

		var gotEvent atomic.Bool
		err := p.client.Stream(ctx, func(snap domain.TrackSnapshot) {
			gotEvent.Store(true)
			p.enqueue(snap)
		})

		if ctx.Err() != nil {
			return nil
		}
		if gotEvent.Load() {
			failures = 0
		}
		if err == nil {
			err = fmt.Errorf("%w: %w", domain.ErrTransient, errConnectionClosed)
		}

		failures++
		p.sink.Submit(p.source, domain.TrackSnapshot{}, err)

		if domain.Classify(err) == domain.KindAuthRequired {
			p.logger.Warn("Credentials rejected, reconnects suspended", zap.Error(err))
			p.status.set(StateAuthRequired, failures, time.Time{})
			select {
			case <-ctx.Done():
				return nil
			case <-p.resume:
				p.logger.Info("Credentials refreshed, reconnecting")
				failures = 0
				continue
			}
		}

		delay := b.ForAttempt(float64(failures))
		p.logger.Info("Event stream disconnected, reconnecting",
			zap.Int("failures", failures),
			zap.Duration("delay", delay),
			zap.Error(err))
		p.status.set(StateBackoff, failures, p.clock.Now().Add(delay))

		timer := p.clock.Timer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// enqueue never blocks the client's read loop
func (p *Pusher) enqueue(snap domain.TrackSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	if p.queue.Len() >= p.capacity {
		p.queue.PopFront()
		p.dropped++
		if p.metrics != nil {
			p.metrics.PushDropped.Inc()
		}
		now := p.clock.Now()
		if now.Sub(p.lastDropWarning) > 5*time.Second {
			p.logger.Warn("Event queue full, dropping oldest event",
				zap.Uint64("dropped", p.dropped))
			p.lastDropWarning = now
		}
	}

	p.queue.PushBack(snap)
	p.cond.Signal()
}

func (p *Pusher) drain() {
	for {
		p.mu.Lock()
		for p.queue.Len() == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.closed {
			p.mu.Unlock()
			return
		}
		snap := p.queue.PopFront()
		p.mu.Unlock()

		p.sink.Submit(p.source, snap, nil)
	}
}
