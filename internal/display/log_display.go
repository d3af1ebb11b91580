// Package display holds the frame sinks used by the daemon.
package display

import (
	"github.com/genricoloni/nowplaying/internal/render"
	"go.uber.org/zap"
)

// LogDisplay writes frames to the log. Every frame is logged at debug
// level; a change of what is on screen is logged at info level.
type LogDisplay struct {
	logger *zap.Logger

	shown bool
	last  screen
}

// screen is the part of a frame that changes what a viewer reads
type screen struct {
	nothing  bool
	title    string
	artist   string
	album    string
	hasArt   bool
	showAlb  bool
	progress bool
}

func NewLogDisplay(logger *zap.Logger) *LogDisplay {
	return &LogDisplay{logger: logger.Named("display")}
}

// Show implements engine.Display
func (d *LogDisplay) Show(frame render.Frame) error {
	cur := screen{
		nothing:  frame.NothingPlaying,
		title:    frame.Title,
		artist:   frame.Artist,
		album:    frame.Album,
		hasArt:   frame.Artwork != nil,
		showAlb:  frame.ShowAlbum,
		progress: frame.ShowProgress,
	}

	if ce := d.logger.Check(zap.DebugLevel, "Frame"); ce != nil {
		ce.Write(
			zap.Uint64("generation", frame.Generation),
			zap.Int("titleOffset", frame.TitleOffset),
			zap.Int("artistOffset", frame.ArtistOffset),
			zap.Int("albumOffset", frame.AlbumOffset),
			zap.Float64("progress", frame.Progress))
	}

	if d.shown && cur == d.last {
		return nil
	}
	d.shown = true
	d.last = cur

	if cur.nothing {
		d.logger.Info("Screen updated", zap.String("message", render.NothingPlayingMessage))
		return nil
	}

	fields := []zap.Field{
		zap.String("title", frame.Title),
		zap.String("artist", frame.Artist),
		zap.Bool("artwork", cur.hasArt),
	}
	if frame.ShowAlbum {
		fields = append(fields, zap.String("album", frame.Album))
	}
	if frame.ShowProgress {
		fields = append(fields, zap.Float64("progress", frame.Progress))
	}
	d.logger.Info("Screen updated", fields...)
	return nil
}
