package domain

import "time"

// Source identifies where a snapshot came from
type Source int

const (
	// SourceNone marks the "nothing playing" sentinel
	SourceNone Source = iota
	// SourcePoll is the pull-polled source (Spotify Web API)
	SourcePoll
	// SourcePush is the event-push source (YouTube Music companion or MPRIS)
	SourcePush
)

// String returns the configuration name of the source
func (s Source) String() string {
	switch s {
	case SourcePoll:
		return "poll"
	case SourcePush:
		return "push"
	default:
		return "none"
	}
}

// Alternate returns the other real source; SourceNone has no alternate
func (s Source) Alternate() Source {
	switch s {
	case SourcePoll:
		return SourcePush
	case SourcePush:
		return SourcePoll
	default:
		return SourceNone
	}
}

// Health is the failover state of a single source
type Health int

const (
	// HealthUnknown means the source has not reported yet
	HealthUnknown Health = iota
	// HealthHealthy means the last report was a success
	HealthHealthy
	// HealthDegraded means at least one consecutive failure
	HealthDegraded
	// HealthFailing means consecutive failures exceeded the threshold
	HealthFailing
)

func (h Health) String() string {
	switch h {
	case HealthHealthy:
		return "healthy"
	case HealthDegraded:
		return "degraded"
	case HealthFailing:
		return "failing"
	default:
		return "unknown"
	}
}

// TrackSnapshot is one immutable capture of what is currently playing.
// The zero value is the "nothing playing" sentinel.
type TrackSnapshot struct {
	// Source that produced the snapshot
	Source Source
	// Player is a human-readable label of the producing player (diagnostics only)
	Player string
	// Title of the current track
	Title string
	// Artist name(s)
	Artist string
	// Album name
	Album string
	// ArtworkURL is the URL of the album artwork, empty if unknown
	ArtworkURL string
	// PositionMs is the playback position at CapturedAt
	PositionMs int64
	// DurationMs is the track length, 0 when unknown
	DurationMs int64
	// Playing is true while playback advances
	Playing bool
	// CapturedAt is when the position was sampled (carries the monotonic clock reading)
	CapturedAt time.Time
}

// NothingPlaying returns the sentinel snapshot
func NothingPlaying() TrackSnapshot {
	return TrackSnapshot{}
}

// IsNothing reports whether s is the "nothing playing" sentinel
func (s TrackSnapshot) IsNothing() bool {
	return s.Source == SourceNone
}

// Normalize enforces the snapshot invariants: a SourceNone snapshot collapses
// to the sentinel, negative values become zero and the position never exceeds
// a known duration.
func (s TrackSnapshot) Normalize() TrackSnapshot {
	if s.Source == SourceNone {
		return NothingPlaying()
	}
	if s.DurationMs < 0 {
		s.DurationMs = 0
	}
	if s.PositionMs < 0 {
		s.PositionMs = 0
	}
	if s.DurationMs > 0 && s.PositionMs > s.DurationMs {
		s.PositionMs = s.DurationMs
	}
	return s
}

// PositionAt extrapolates the playback position to now. Paused snapshots are frozen.
func (s TrackSnapshot) PositionAt(now time.Time) int64 {
	pos := s.PositionMs
	if s.Playing && !s.CapturedAt.IsZero() {
		if elapsed := now.Sub(s.CapturedAt).Milliseconds(); elapsed > 0 {
			pos += elapsed
		}
	}
	if s.DurationMs > 0 && pos > s.DurationMs {
		pos = s.DurationMs
	}
	return pos
}

// Progress returns the fraction of the track played at now, in [0,1].
// It is 0 when the duration is unknown.
func (s TrackSnapshot) Progress(now time.Time) float64 {
	if s.DurationMs <= 0 {
		return 0
	}
	p := float64(s.PositionAt(now)) / float64(s.DurationMs)
	if p > 1 {
		return 1
	}
	if p < 0 {
		return 0
	}
	return p
}

// Equal compares every field except CapturedAt
func (s TrackSnapshot) Equal(o TrackSnapshot) bool {
	s.CapturedAt = time.Time{}
	o.CapturedAt = time.Time{}
	return s == o
}

// SameTrack reports whether only progress differs between s and o
func (s TrackSnapshot) SameTrack(o TrackSnapshot) bool {
	return s.Source == o.Source &&
		s.Title == o.Title &&
		s.Artist == o.Artist &&
		s.ArtworkURL == o.ArtworkURL &&
		s.Playing == o.Playing
}
