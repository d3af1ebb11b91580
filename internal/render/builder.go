package render

import (
	"image"
	"time"

	"github.com/genricoloni/nowplaying/internal/artwork"
	"github.com/genricoloni/nowplaying/internal/domain"
	"github.com/genricoloni/nowplaying/internal/scroll"
	"go.uber.org/zap"
)

// NothingPlayingMessage is drawn centered when there is no track
const NothingPlayingMessage = "Nothing Playing"

// SnapshotSource exposes the authoritative track state (the aggregator)
type SnapshotSource interface {
	CurrentSnapshot() (domain.TrackSnapshot, uint64)
}

// ArtworkSource returns processed artwork without blocking (the artwork cache)
type ArtworkSource interface {
	Get(uri string) (*artwork.Image, bool)
}

// Frame is everything a display needs to draw one refresh
type Frame struct {
	Title  string
	Artist string
	Album  string

	TitleOffset  int
	ArtistOffset int
	AlbumOffset  int

	// Artwork is nil when the image is not ready; draw a placeholder
	Artwork image.Image

	Progress   float64
	PositionMs int64
	DurationMs int64
	Playing    bool

	NothingPlaying bool
	// MessageX/MessageY place NothingPlayingMessage
	MessageX int
	MessageY int

	ShowArtwork  bool
	ShowProgress bool
	ShowAlbum    bool

	Generation uint64
	Layout     Layout
}

// Options configures a Builder
type Options struct {
	Width        int
	Height       int
	ShowArtwork  bool
	ShowProgress bool
	// ScrollStep is the time each scroll unit stays on screen
	ScrollStep time.Duration
}

type widths struct {
	title, artist, album int
}

// Builder derives frames from the aggregator state. It is owned by the
// render loop and is not safe for concurrent use.
type Builder struct {
	logger   *zap.Logger
	source   SnapshotSource
	artwork  ArtworkSource
	measurer Measurer
	opts     Options
	layout   Layout

	title  *scroll.State
	artist *scroll.State
	album  *scroll.State

	// text widths only change with the generation
	measured    bool
	measuredGen uint64
	widths      widths
	messageW    int
}

// NewBuilder creates a builder. art may be nil to render without artwork.
func NewBuilder(logger *zap.Logger, source SnapshotSource, art ArtworkSource, measurer Measurer, opts Options) *Builder {
	if measurer == nil {
		measurer = NewDefaultMeasurer()
	}
	separator := measurer.Width(scrollGap)

	return &Builder{
		logger:   logger,
		source:   source,
		artwork:  art,
		measurer: measurer,
		opts:     opts,
		layout:   ComputeLayout(opts.Width, opts.Height, opts.ShowArtwork, opts.ShowProgress),
		title:    scroll.New(opts.ScrollStep, separator),
		artist:   scroll.New(opts.ScrollStep, separator),
		album:    scroll.New(opts.ScrollStep, separator),
		messageW: measurer.Width(NothingPlayingMessage),
	}
}

// Layout returns the geometry shared by every frame
func (b *Builder) Layout() Layout {
	return b.layout
}

// Build produces the frame for now. Progress is extrapolated from the
// snapshot capture time while playing.
func (b *Builder) Build(now time.Time) Frame {
	snap, gen := b.source.CurrentSnapshot()

	frame := Frame{
		Generation: gen,
		Layout:     b.layout,
	}

	if snap.IsNothing() {
		b.ResetScroll()
		b.measured = false
		frame.NothingPlaying = true
		frame.MessageX = max(0, (b.layout.Width-b.messageW)/2)
		frame.MessageY = max(0, b.layout.Height/2-4)
		return frame
	}

	if !b.measured || b.measuredGen != gen {
		b.widths = widths{
			title:  b.measurer.Width(snap.Title),
			artist: b.measurer.Width(snap.Artist),
			album:  b.measurer.Width(snap.Album),
		}
		b.measured = true
		b.measuredGen = gen
		b.logger.Debug("Measured track text",
			zap.Uint64("generation", gen),
			zap.Int("title", b.widths.title),
			zap.Int("artist", b.widths.artist),
			zap.Int("album", b.widths.album),
			zap.Int("available", b.layout.TextWidth))
	}

	avail := b.layout.TextWidth

	frame.Title = snap.Title
	frame.Artist = snap.Artist
	frame.Album = snap.Album
	frame.TitleOffset = b.title.Tick(snap.Title, avail, b.widths.title, now)
	frame.ArtistOffset = b.artist.Tick(snap.Artist, avail, b.widths.artist, now)

	frame.ShowAlbum = b.layout.AlbumFits && snap.Album != ""
	if frame.ShowAlbum {
		frame.AlbumOffset = b.album.Tick(snap.Album, avail, b.widths.album, now)
	} else {
		b.album.Reset()
	}

	frame.Playing = snap.Playing
	frame.PositionMs = snap.PositionAt(now)
	frame.DurationMs = snap.DurationMs
	frame.Progress = snap.Progress(now)
	frame.ShowProgress = b.opts.ShowProgress && snap.DurationMs > 0

	frame.ShowArtwork = b.opts.ShowArtwork
	if b.opts.ShowArtwork && b.artwork != nil && snap.ArtworkURL != "" {
		if img, ok := b.artwork.Get(snap.ArtworkURL); ok && img != nil {
			frame.Artwork = img
		}
	}

	return frame
}

// ResetScroll returns every field to its start position
func (b *Builder) ResetScroll() {
	b.title.Reset()
	b.artist.Reset()
	b.album.Reset()
}
