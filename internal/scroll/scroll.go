// Package scroll tracks the horizontal scroll position of one text field.
package scroll

import (
	"time"

	"github.com/cespare/xxhash/v2"
)

// State is the scroll position of a single displayed field. It is not safe
// for concurrent use; the render loop owns it.
type State struct {
	stepEvery time.Duration
	separator int

	offset   int
	hash     uint64
	seen     bool
	lastTick time.Time
}

// New creates a state advancing one unit every stepEvery. separator is the
// width of the gap inserted before the text wraps around.
func New(stepEvery time.Duration, separator int) *State {
	if stepEvery <= 0 {
		stepEvery = time.Millisecond
	}
	if separator < 0 {
		separator = 0
	}
	return &State{stepEvery: stepEvery, separator: separator}
}

// Tick observes text at now and returns the offset to draw it with.
// Calling it again with the same now never advances the offset.
func (s *State) Tick(text string, availableWidth, textWidth int, now time.Time) int {
	h := xxhash.Sum64String(text)

	if textWidth <= availableWidth {
		s.offset = 0
		s.hash = h
		s.seen = true
		s.lastTick = now
		return 0
	}

	if !s.seen || h != s.hash {
		s.offset = 0
		s.hash = h
		s.seen = true
		s.lastTick = now
		return 0
	}

	period := textWidth + s.separator
	if now.Sub(s.lastTick) >= s.stepEvery {
		s.offset = (s.offset + 1) % period
		s.lastTick = now
	} else if s.offset >= period {
		s.offset %= period
	}

	return s.offset
}

// Offset returns the last computed offset
func (s *State) Offset() int {
	return s.offset
}

// Reset forgets the observed text so the next Tick starts from zero
func (s *State) Reset() {
	s.offset = 0
	s.hash = 0
	s.seen = false
	s.lastTick = time.Time{}
}

// StepFor converts a scroll speed setting into the per-unit step duration.
// Smaller speeds scroll faster.
func StepFor(speed int, frame time.Duration) time.Duration {
	if speed < 1 {
		speed = 1
	}
	return time.Duration(speed) * frame
}
