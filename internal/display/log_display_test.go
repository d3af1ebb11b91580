package display

import (
	"image"
	"testing"

	"github.com/genricoloni/nowplaying/internal/render"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogDisplay_LogsScreenChanges(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	d := NewLogDisplay(zap.New(core))

	frames := []render.Frame{
		{NothingPlaying: true},
		{NothingPlaying: true},
		{Title: "Song", Artist: "Artist", Album: "LP", ShowAlbum: true, Generation: 1},
		// scrolling alone does not change the screen
		{Title: "Song", Artist: "Artist", Album: "LP", ShowAlbum: true, TitleOffset: 3, Generation: 1},
		// artwork arrived
		{Title: "Song", Artist: "Artist", Album: "LP", ShowAlbum: true, Artwork: image.NewNRGBA(image.Rect(0, 0, 1, 1)), Generation: 1},
	}

	for _, f := range frames {
		if err := d.Show(f); err != nil {
			t.Fatalf("Show: %v", err)
		}
	}

	entries := logs.FilterMessage("Screen updated").AllUntimed()
	if len(entries) != 3 {
		t.Fatalf("expected 3 screen updates, got %d", len(entries))
	}

	if got := entries[0].ContextMap()["message"]; got != render.NothingPlayingMessage {
		t.Errorf("expected nothing playing message, got %v", got)
	}
	if got := entries[1].ContextMap()["album"]; got != "LP" {
		t.Errorf("expected album field, got %v", got)
	}
	if got := entries[2].ContextMap()["artwork"]; got != true {
		t.Errorf("expected artwork flag, got %v", got)
	}
}

func TestLogDisplay_DebugFrames(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	d := NewLogDisplay(zap.New(core))

	for i := 0; i < 3; i++ {
		_ = d.Show(render.Frame{Title: "Song", TitleOffset: i})
	}

	if got := logs.FilterMessage("Frame").Len(); got != 3 {
		t.Errorf("expected every frame at debug level, got %d", got)
	}
}
