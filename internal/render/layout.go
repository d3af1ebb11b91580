// Package render turns the aggregator state into display-ready frames.
package render

import "image"

// Layout is the pixel geometry of a frame. It depends only on the display
// size and the artwork/progress toggles, so it is computed once.
type Layout struct {
	Width  int
	Height int

	// Art is empty when artwork is disabled
	Art image.Rectangle

	TextX     int
	TextWidth int

	TitleY     int
	ArtistY    int
	AlbumY     int
	LineHeight int
	// AlbumFits reports whether the display is tall enough for the album line
	AlbumFits bool

	// Bar is empty when the progress bar is disabled
	Bar image.Rectangle
}

// ComputeLayout places the artwork square on the left edge, the three text
// lines to its right and the progress bar along the bottom of the text area.
// Vertical positions scale with the display height.
func ComputeLayout(width, height int, showArt, showProgress bool) Layout {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}

	l := Layout{Width: width, Height: height}

	textX := 1
	if showArt {
		l.Art = image.Rect(0, 0, height, height)
		textX = height + 2
	}
	l.TextX = textX
	l.TextWidth = max(0, width-textX-1)

	var baselineShift int
	switch {
	case height <= 32:
		l.LineHeight, baselineShift = 7, 6
	case height <= 64:
		l.LineHeight, baselineShift = 8, 7
	default:
		l.LineHeight = max(8, int(float64(height)*0.125))
		baselineShift = max(6, int(float64(height)*0.19))
	}

	l.TitleY = max(1, int(float64(height)*0.03))
	l.ArtistY = int(float64(height)*0.34) + baselineShift
	l.AlbumY = int(float64(height)*0.60) + baselineShift
	l.AlbumFits = height-l.AlbumY >= l.LineHeight

	if showProgress {
		barH := barHeight(height)
		barY := height - barH - 1
		l.Bar = image.Rect(textX, barY, textX+l.TextWidth, barY+barH)
	}

	return l
}

func barHeight(height int) int {
	switch {
	case height <= 32:
		return 3
	case height <= 64:
		return 4
	default:
		return max(4, int(float64(height)*0.06))
	}
}
