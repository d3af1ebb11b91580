package source

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/genricoloni/nowplaying/internal/domain"
	"go.uber.org/zap"
)

// Poller drives a PollingClient on a fixed interval
type Poller struct {
	logger   *zap.Logger
	client   domain.PollingClient
	sink     Sink
	clock    clock.Clock
	source   domain.Source
	interval time.Duration
	timeout  time.Duration

	resume chan struct{}
	status statusBox
}

// NewPoller creates a polling adapter. timeout bounds each fetch.
func NewPoller(logger *zap.Logger, client domain.PollingClient, sink Sink, clk clock.Clock, interval, timeout time.Duration) *Poller {
	if timeout <= 0 || timeout > interval*10 {
		timeout = 5 * time.Second
	}
	return &Poller{
		logger:   logger.With(zap.String("adapter", "poll")),
		client:   client,
		sink:     sink,
		clock:    clk,
		source:   domain.SourcePoll,
		interval: interval,
		timeout:  timeout,
		resume:   make(chan struct{}, 1),
	}
}

func (p *Poller) Source() domain.Source { return p.source }

func (p *Poller) Status() Status { return p.status.get() }

// Resume wakes the poller after credentials were refreshed
func (p *Poller) Resume() {
	select {
	case p.resume <- struct{}{}:
	default:
	}
}

// Run polls until ctx is done
func (p *Poller) Run(ctx context.Context) error {
	b := newBackoff(p.interval)
	failures := 0

	p.logger.Info("Poller started", zap.Duration("interval", p.interval))
	defer func() {
		p.status.set(StateStopped, failures, time.Time{})
		p.logger.Info("Poller stopped")
	}()

	for {
		p.status.set(StateRunning, failures, time.Time{})

		fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
		snap, err := p.client.FetchCurrentTrack(fetchCtx)
		cancel()

		if ctx.Err() != nil {
			return nil
		}

		delay := p.interval
		switch {
		case err == nil:
			failures = 0
			p.sink.Submit(p.source, snap, nil)

		case errors.Is(err, domain.ErrNoUpdate):
			failures = 0

		case domain.Classify(err) == domain.KindAuthRequired:
			failures++
			p.sink.Submit(p.source, domain.TrackSnapshot{}, err)
			p.logger.Warn("Credentials rejected, polling suspended", zap.Error(err))
			p.status.set(StateAuthRequired, failures, time.Time{})

			select {
			case <-ctx.Done():
				return nil
			case <-p.resume:
				p.logger.Info("Credentials refreshed, resuming")
				failures = 0
				continue
			}

		default:
			failures++
			p.sink.Submit(p.source, domain.TrackSnapshot{}, err)
			delay = b.ForAttempt(float64(failures))
			p.logger.Debug("Poll failed, backing off",
				zap.Int("failures", failures),
				zap.Duration("delay", delay),
				zap.Error(err))
			p.status.set(StateBackoff, failures, p.clock.Now().Add(delay))
		}

		timer := p.clock.Timer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}
