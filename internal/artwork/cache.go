package artwork

import (
	"context"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gammazero/deque"
	"github.com/genricoloni/nowplaying/internal/domain"
	"github.com/genricoloni/nowplaying/internal/metrics"
	"go.uber.org/zap"
)

// Processor converts raw artwork into a size x size image
type Processor interface {
	Process(data []byte, size int) (*image.NRGBA, error)
}

type entryState int

const (
	statePending entryState = iota
	stateReady
	stateFailed
)

// Image is a read-only handle on decoded artwork
type Image struct {
	img *image.NRGBA
}

// NewImage wraps an already processed image
func NewImage(img *image.NRGBA) *Image {
	return &Image{img: img}
}

func (i *Image) ColorModel() color.Model { return i.img.ColorModel() }
func (i *Image) Bounds() image.Rectangle { return i.img.Bounds() }
func (i *Image) At(x, y int) color.Color { return i.img.At(x, y) }

// Options tunes the cache
type Options struct {
	// Size is the edge of the square images stored in the cache
	Size         int
	MaxEntries   int
	Workers      int
	Cooldown     time.Duration
	FetchTimeout time.Duration
}

type entry struct {
	state    entryState
	img      *Image
	failedAt time.Time
	// access is a logical timestamp for LRU ordering
	access uint64
}

// Cache holds processed artwork keyed by URI. Lookups never block on the
// network: unknown URIs are queued for the worker pool and reported as not ready.
type Cache struct {
	logger    *zap.Logger
	fetcher   domain.Fetcher
	processor Processor
	clock     clock.Clock
	metrics   *metrics.Metrics
	opts      Options

	mu      sync.Mutex
	cond    *sync.Cond
	entries map[string]*entry
	queue   *deque.Deque[string]
	tick    uint64
	closed  bool
	started bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a cache. Call Start to launch the fetch workers.
func New(logger *zap.Logger, fetcher domain.Fetcher, processor Processor, clk clock.Clock, m *metrics.Metrics, opts Options) *Cache {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxEntries < 1 {
		opts.MaxEntries = 1
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		logger:    logger,
		fetcher:   fetcher,
		processor: processor,
		clock:     clk,
		metrics:   m,
		opts:      opts,
		entries:   make(map[string]*entry),
		queue:     deque.New[string](),
		ctx:       ctx,
		cancel:    cancel,
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Start launches the worker pool
func (c *Cache) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.closed {
		return
	}
	c.started = true

	c.logger.Info("Artwork cache started",
		zap.Int("workers", c.opts.Workers),
		zap.Int("maxEntries", c.opts.MaxEntries),
		zap.Duration("cooldown", c.opts.Cooldown))

	for i := 0; i < c.opts.Workers; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}
}

// Close cancels in-flight fetches and waits for the workers, bounded by ctx
func (c *Cache) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.cond.Broadcast()
	c.mu.Unlock()
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Artwork cache stopped")
		return nil
	case <-ctx.Done():
		c.logger.Warn("Artwork workers did not stop in time")
		return ctx.Err()
	}
}

// Get returns the artwork for uri when it is ready. An unknown uri is queued
// for loading; a failed uri is retried only after the cool-down.
func (c *Cache) Get(uri string) (*Image, bool) {
	if uri == "" {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[uri]
	if !ok {
		c.lookup("miss")
		c.addPendingLocked(uri)
		return nil, false
	}

	c.tick++
	e.access = c.tick

	switch e.state {
	case stateReady:
		c.lookup("hit")
		return e.img, true
	case stateFailed:
		if c.clock.Since(e.failedAt) < c.opts.Cooldown {
			c.lookup("cooldown")
			return nil, false
		}
		c.lookup("retry")
		c.addPendingLocked(uri)
		return nil, false
	default:
		c.lookup("pending")
		return nil, false
	}
}

// Prefetch registers uri for loading without waiting for it
func (c *Cache) Prefetch(uri string) {
	c.Get(uri)
}

// Len returns the number of resident entries
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// addPendingLocked replaces any entry for uri with a fresh PENDING one and queues it
func (c *Cache) addPendingLocked(uri string) {
	c.tick++
	c.entries[uri] = &entry{state: statePending, access: c.tick}
	c.queue.PushBack(uri)
	c.cond.Signal()
	c.evictLocked()
}

// evictLocked drops least-recently-accessed settled entries until the bound holds.
// PENDING entries are never evicted, so the count may exceed the bound while
// more than MaxEntries fetches are outstanding.
func (c *Cache) evictLocked() {
	for len(c.entries) > c.opts.MaxEntries {
		var victim string
		var oldest uint64
		found := false
		for uri, e := range c.entries {
			if e.state == statePending {
				continue
			}
			if !found || e.access < oldest {
				victim, oldest, found = uri, e.access, true
			}
		}
		if !found {
			break
		}
		delete(c.entries, victim)
		c.logger.Debug("Artwork evicted", zap.String("uri", victim))
	}
	if c.metrics != nil {
		c.metrics.ArtworkEntries.Set(float64(len(c.entries)))
	}
}

func (c *Cache) worker(id int) {
	defer c.wg.Done()

	for {
		c.mu.Lock()
		for c.queue.Len() == 0 && !c.closed {
			c.cond.Wait()
		}
		if c.closed {
			c.mu.Unlock()
			return
		}
		uri := c.queue.PopFront()
		e, ok := c.entries[uri]
		c.mu.Unlock()

		// dropped by eviction or superseded before we got to it
		if !ok || e.state != statePending {
			continue
		}

		img, err := c.load(uri)
		c.complete(uri, e, img, err, id)
	}
}

func (c *Cache) load(uri string) (*Image, error) {
	ctx, cancel := context.WithTimeout(c.ctx, c.opts.FetchTimeout)
	defer cancel()

	data, err := c.fetcher.Fetch(ctx, uri)
	if err != nil {
		return nil, err
	}
	nrgba, err := c.processor.Process(data, c.opts.Size)
	if err != nil {
		return nil, err
	}
	return NewImage(nrgba), nil
}

// complete swaps the pending entry for its settled replacement
func (c *Cache) complete(uri string, pending *entry, img *Image, err error, worker int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	// the entry may have been evicted or replaced meanwhile; keep the newer one
	if cur, ok := c.entries[uri]; ok && cur != pending {
		return
	}

	next := &entry{access: pending.access}
	if err != nil {
		next.state = stateFailed
		next.failedAt = c.clock.Now()
		c.fetched("failed")
		c.logger.Warn("Artwork fetch failed",
			zap.String("uri", uri),
			zap.String("kind", domain.Classify(err).String()),
			zap.Int("worker", worker),
			zap.Error(err))
	} else {
		next.state = stateReady
		next.img = img
		c.fetched("ok")
		c.logger.Debug("Artwork ready", zap.String("uri", uri), zap.Int("worker", worker))
	}

	c.entries[uri] = next
	c.evictLocked()
}

func (c *Cache) lookup(result string) {
	if c.metrics != nil {
		c.metrics.ArtworkLookups.WithLabelValues(result).Inc()
	}
}

func (c *Cache) fetched(result string) {
	if c.metrics != nil {
		c.metrics.ArtworkFetches.WithLabelValues(result).Inc()
	}
}
