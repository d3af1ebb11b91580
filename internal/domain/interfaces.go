package domain

import "context"

// PollingClient is the pull-side external collaborator (e.g. Spotify Web API)
//
//go:generate mockgen -destination=mocks/clients_mock.go -package=mocks github.com/genricoloni/nowplaying/internal/domain PollingClient,EventClient
type PollingClient interface {
	// FetchCurrentTrack returns the current snapshot, or an error wrapping
	// ErrTransient / ErrAuthRequired, or ErrNoUpdate when nothing changed.
	// Implementations must honor ctx cancellation.
	FetchCurrentTrack(ctx context.Context) (TrackSnapshot, error)
}

// EventClient is the push-side external collaborator (companion socket, MPRIS)
type EventClient interface {
	// Stream connects and delivers snapshots to onEvent until the connection
	// drops or ctx is cancelled. It blocks for the lifetime of the connection.
	// onEvent must not block.
	Stream(ctx context.Context, onEvent func(TrackSnapshot)) error
}

// Fetcher defines the interface for retrieving album artwork
type Fetcher interface {
	// Fetch downloads image data from a URL
	// Returns the raw image bytes or an error
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Prefetcher warms the artwork cache when the current track changes
type Prefetcher interface {
	// Prefetch registers uri for background loading. It never blocks.
	Prefetch(uri string)
}
