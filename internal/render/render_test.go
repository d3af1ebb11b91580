package render

import (
	"image"
	"strings"
	"testing"
	"time"

	"github.com/genricoloni/nowplaying/internal/artwork"
	"github.com/genricoloni/nowplaying/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/image/font/basicfont"
)

type fakeSource struct {
	snap domain.TrackSnapshot
	gen  uint64
}

func (f *fakeSource) CurrentSnapshot() (domain.TrackSnapshot, uint64) {
	return f.snap, f.gen
}

func (f *fakeSource) set(snap domain.TrackSnapshot) {
	f.snap = snap
	f.gen++
}

type fakeArtwork struct {
	images map[string]*artwork.Image
	calls  int
}

func (f *fakeArtwork) Get(uri string) (*artwork.Image, bool) {
	f.calls++
	img, ok := f.images[uri]
	return img, ok
}

// countingMeasurer gives every rune 4 pixels and counts measurements
type countingMeasurer struct {
	calls map[string]int
}

func (m *countingMeasurer) Width(text string) int {
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[text]++
	return len([]rune(text)) * 4
}

var t0 = time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)

func track(title string) domain.TrackSnapshot {
	return domain.TrackSnapshot{
		Source:     domain.SourcePoll,
		Title:      title,
		Artist:     "Artist",
		Album:      "Album",
		ArtworkURL: "https://img/cover.jpg",
		PositionMs: 10_000,
		DurationMs: 20_000,
		Playing:    true,
		CapturedAt: t0,
	}
}

func defaultOptions() Options {
	return Options{
		Width:        64,
		Height:       32,
		ShowArtwork:  true,
		ShowProgress: true,
		ScrollStep:   100 * time.Millisecond,
	}
}

func TestComputeLayout(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		showArt       bool
		showProgress  bool
		want          Layout
	}{
		{
			name: "64x32", width: 64, height: 32, showArt: true, showProgress: true,
			want: Layout{
				Width: 64, Height: 32,
				Art:   image.Rect(0, 0, 32, 32),
				TextX: 34, TextWidth: 29,
				TitleY: 1, ArtistY: 16, AlbumY: 25, LineHeight: 7, AlbumFits: true,
				Bar: image.Rect(34, 28, 63, 31),
			},
		},
		{
			name: "128x64", width: 128, height: 64, showArt: true, showProgress: true,
			want: Layout{
				Width: 128, Height: 64,
				Art:   image.Rect(0, 0, 64, 64),
				TextX: 66, TextWidth: 61,
				TitleY: 1, ArtistY: 28, AlbumY: 45, LineHeight: 8, AlbumFits: true,
				Bar: image.Rect(66, 59, 127, 63),
			},
		},
		{
			name: "256x128", width: 256, height: 128, showArt: true, showProgress: true,
			want: Layout{
				Width: 256, Height: 128,
				Art:   image.Rect(0, 0, 128, 128),
				TextX: 130, TextWidth: 125,
				TitleY: 3, ArtistY: 67, AlbumY: 100, LineHeight: 16, AlbumFits: true,
				Bar: image.Rect(130, 120, 255, 127),
			},
		},
		{
			name: "short display hides album", width: 64, height: 16, showArt: true, showProgress: false,
			want: Layout{
				Width: 64, Height: 16,
				Art:   image.Rect(0, 0, 16, 16),
				TextX: 18, TextWidth: 45,
				TitleY: 1, ArtistY: 11, AlbumY: 15, LineHeight: 7, AlbumFits: false,
			},
		},
		{
			name: "no artwork", width: 64, height: 32, showArt: false, showProgress: true,
			want: Layout{
				Width: 64, Height: 32,
				TextX: 1, TextWidth: 62,
				TitleY: 1, ArtistY: 16, AlbumY: 25, LineHeight: 7, AlbumFits: true,
				Bar: image.Rect(1, 28, 63, 31),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeLayout(tt.width, tt.height, tt.showArt, tt.showProgress)
			if got != tt.want {
				t.Errorf("layout mismatch:\nwant %+v\ngot  %+v", tt.want, got)
			}
		})
	}
}

func TestFaceMeasurer(t *testing.T) {
	m := NewFaceMeasurer(basicfont.Face7x13)
	if got := m.Width("abc"); got != 21 {
		t.Errorf("expected 21px for three glyphs, got %d", got)
	}
	if got := m.Width(""); got != 0 {
		t.Errorf("expected 0 for empty text, got %d", got)
	}
}

func TestBuild_ExtrapolatesProgress(t *testing.T) {
	src := &fakeSource{}
	src.set(track("Song"))
	b := NewBuilder(zap.NewNop(), src, nil, &countingMeasurer{}, defaultOptions())

	frame := b.Build(t0.Add(3 * time.Second))

	if frame.Progress < 0.6499 || frame.Progress > 0.6501 {
		t.Errorf("expected progress 0.65, got %f", frame.Progress)
	}
	if frame.PositionMs != 13_000 {
		t.Errorf("expected position 13000, got %d", frame.PositionMs)
	}
	if !frame.ShowProgress {
		t.Error("expected progress bar")
	}

	paused := track("Song")
	paused.Playing = false
	src.set(paused)
	if frame := b.Build(t0.Add(3 * time.Second)); frame.Progress != 0.5 {
		t.Errorf("expected paused progress to stay 0.5, got %f", frame.Progress)
	}
}

func TestBuild_ProgressHiddenWithoutDuration(t *testing.T) {
	src := &fakeSource{}
	snap := track("Live Stream")
	snap.DurationMs = 0
	src.set(snap)
	b := NewBuilder(zap.NewNop(), src, nil, &countingMeasurer{}, defaultOptions())

	frame := b.Build(t0)
	if frame.ShowProgress || frame.Progress != 0 {
		t.Errorf("expected no progress for unknown duration, got %+v", frame)
	}
}

func TestBuild_MeasuresOncePerGeneration(t *testing.T) {
	src := &fakeSource{}
	src.set(track("Song"))
	m := &countingMeasurer{}
	b := NewBuilder(zap.NewNop(), src, nil, m, defaultOptions())

	for i := 0; i < 5; i++ {
		b.Build(t0.Add(time.Duration(i) * 50 * time.Millisecond))
	}
	if m.calls["Song"] != 1 {
		t.Errorf("expected one measurement for the generation, got %d", m.calls["Song"])
	}

	// same text, new generation
	next := track("Song")
	next.PositionMs = 11_000
	src.set(next)
	b.Build(t0)
	if m.calls["Song"] != 2 {
		t.Errorf("expected remeasurement after generation change, got %d", m.calls["Song"])
	}
}

func TestBuild_ScrollsLongTitle(t *testing.T) {
	src := &fakeSource{}
	src.set(track(strings.Repeat("x", 20)))
	b := NewBuilder(zap.NewNop(), src, nil, &countingMeasurer{}, defaultOptions())

	if got := b.Build(t0).TitleOffset; got != 0 {
		t.Fatalf("expected first frame at offset 0, got %d", got)
	}

	at := t0.Add(100 * time.Millisecond)
	if got := b.Build(at).TitleOffset; got != 1 {
		t.Fatalf("expected offset 1 after one step, got %d", got)
	}
	if got := b.Build(at).TitleOffset; got != 1 {
		t.Errorf("expected repeated build at the same instant to be stable, got %d", got)
	}

	frame := b.Build(at)
	if frame.ArtistOffset != 0 || frame.AlbumOffset != 0 {
		t.Errorf("short fields must not scroll, got artist %d album %d", frame.ArtistOffset, frame.AlbumOffset)
	}
}

func TestBuild_NothingPlayingResetsScroll(t *testing.T) {
	src := &fakeSource{}
	long := track(strings.Repeat("y", 20))
	src.set(long)
	b := NewBuilder(zap.NewNop(), src, nil, &countingMeasurer{}, defaultOptions())

	b.Build(t0)
	b.Build(t0.Add(100 * time.Millisecond))
	if got := b.Build(t0.Add(200 * time.Millisecond)).TitleOffset; got != 2 {
		t.Fatalf("expected offset 2, got %d", got)
	}

	src.set(domain.NothingPlaying())
	frame := b.Build(t0.Add(300 * time.Millisecond))
	if !frame.NothingPlaying {
		t.Fatal("expected nothing playing frame")
	}
	if frame.Title != "" || frame.Artwork != nil || frame.ShowProgress {
		t.Errorf("nothing playing frame must be empty, got %+v", frame)
	}
	if frame.MessageY != 12 {
		t.Errorf("expected message row 12, got %d", frame.MessageY)
	}

	src.set(long)
	if got := b.Build(t0.Add(400 * time.Millisecond)).TitleOffset; got != 0 {
		t.Errorf("expected scroll to restart after nothing playing, got %d", got)
	}
}

func TestBuild_Artwork(t *testing.T) {
	ready := artwork.NewImage(image.NewNRGBA(image.Rect(0, 0, 32, 32)))

	tests := []struct {
		name        string
		showArtwork bool
		images      map[string]*artwork.Image
		wantImage   bool
		wantCalls   int
	}{
		{
			name:        "ready",
			showArtwork: true,
			images:      map[string]*artwork.Image{"https://img/cover.jpg": ready},
			wantImage:   true,
			wantCalls:   1,
		},
		{
			name:        "not ready uses placeholder",
			showArtwork: true,
			images:      map[string]*artwork.Image{},
			wantCalls:   1,
		},
		{
			name:        "disabled",
			showArtwork: false,
			images:      map[string]*artwork.Image{"https://img/cover.jpg": ready},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{}
			src.set(track("Song"))
			art := &fakeArtwork{images: tt.images}
			opts := defaultOptions()
			opts.ShowArtwork = tt.showArtwork

			frame := NewBuilder(zap.NewNop(), src, art, &countingMeasurer{}, opts).Build(t0)

			if (frame.Artwork != nil) != tt.wantImage {
				t.Errorf("artwork present = %v, want %v", frame.Artwork != nil, tt.wantImage)
			}
			if frame.ShowArtwork != tt.showArtwork {
				t.Errorf("ShowArtwork = %v, want %v", frame.ShowArtwork, tt.showArtwork)
			}
			if art.calls != tt.wantCalls {
				t.Errorf("expected %d lookups, got %d", tt.wantCalls, art.calls)
			}
		})
	}
}

func TestBuild_AlbumHiddenOnShortDisplay(t *testing.T) {
	src := &fakeSource{}
	src.set(track("Song"))
	opts := defaultOptions()
	opts.Height = 16

	frame := NewBuilder(zap.NewNop(), src, nil, &countingMeasurer{}, opts).Build(t0)
	if frame.ShowAlbum {
		t.Error("album must be hidden when the display is too short")
	}
	if frame.Generation != 1 {
		t.Errorf("expected generation 1, got %d", frame.Generation)
	}
}
