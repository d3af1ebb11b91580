package render

import (
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

// scrollGap separates the end of a scrolling line from its wrapped start
const scrollGap = "   "

// Measurer reports the rendered width of a string in pixels
type Measurer interface {
	Width(text string) int
}

// FaceMeasurer measures text with a font face
type FaceMeasurer struct {
	face font.Face
}

func NewFaceMeasurer(face font.Face) *FaceMeasurer {
	return &FaceMeasurer{face: face}
}

// NewDefaultMeasurer uses the fixed 7x13 face, close to the small matrix fonts
func NewDefaultMeasurer() *FaceMeasurer {
	return NewFaceMeasurer(basicfont.Face7x13)
}

func (m *FaceMeasurer) Width(text string) int {
	if text == "" {
		return 0
	}
	return font.MeasureString(m.face, text).Round()
}
