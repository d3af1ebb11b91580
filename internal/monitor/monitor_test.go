package monitor

import (
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/genricoloni/nowplaying/internal/domain"
	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

func propertiesChanged(sender string, props map[string]dbus.Variant) *dbus.Signal {
	return &dbus.Signal{
		Name:   "org.freedesktop.DBus.Properties.PropertiesChanged",
		Sender: sender,
		Body:   []interface{}{playerInterface, props, []string{}},
	}
}

// TestHandleSignal_HappyPath verifies that a valid signal produces a snapshot.
func TestHandleSignal_HappyPath(t *testing.T) {
	mon, events := newTestMonitor(&noopDBusClient{}, "")
	mon.playerNames = map[string]string{":1.100": "org.mpris.MediaPlayer2.spotify"}

	signal := propertiesChanged(":1.100", map[string]dbus.Variant{
		"Metadata": dbus.MakeVariant(map[string]dbus.Variant{
			"xesam:title":  dbus.MakeVariant("Bohemian Rhapsody"),
			"xesam:artist": dbus.MakeVariant([]string{"Queen"}),
			"mpris:artUrl": dbus.MakeVariant("https://example.com/cover.jpg"),
			"mpris:length": dbus.MakeVariant(uint64(354_000_000)),
		}),
		"PlaybackStatus": dbus.MakeVariant("Playing"),
	})

	go mon.handleSignal(signal)

	select {
	case event := <-events:
		if event.Title != "Bohemian Rhapsody" || event.Artist != "Queen" {
			t.Errorf("unexpected track %q / %q", event.Title, event.Artist)
		}
		if !event.Playing {
			t.Error("expected playing")
		}
		if event.Player != "spotify" {
			t.Errorf("expected player spotify, got %q", event.Player)
		}
		if event.DurationMs != 354_000 {
			t.Errorf("expected duration 354000ms, got %d", event.DurationMs)
		}
		if event.ArtworkURL != "https://example.com/cover.jpg" {
			t.Errorf("unexpected artwork %q", event.ArtworkURL)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout: Event was not emitted")
	}
}

// TestHandleSignal_EdgeCases covers signals that must be ignored.
func TestHandleSignal_EdgeCases(t *testing.T) {
	tests := []struct {
		name   string
		signal *dbus.Signal
	}{
		{
			name: "Wrong Signal Name",
			signal: &dbus.Signal{
				Name: "org.freedesktop.DBus.SomeOtherSignal",
				Body: []interface{}{},
			},
		},
		{
			name: "Wrong Interface",
			signal: &dbus.Signal{
				Name: "org.freedesktop.DBus.Properties.PropertiesChanged",
				Body: []interface{}{"org.mpris.MediaPlayer2", map[string]dbus.Variant{}, []string{}},
			},
		},
		{
			name: "Short Body",
			signal: &dbus.Signal{
				Name: "org.freedesktop.DBus.Properties.PropertiesChanged",
				Body: []interface{}{playerInterface},
			},
		},
		{
			name:   "Unrelated Property",
			signal: propertiesChanged(":1.5", map[string]dbus.Variant{"Volume": dbus.MakeVariant(0.5)}),
		},
		{
			name:   "Invalid Metadata Type (Int instead of Map)",
			signal: propertiesChanged(":1.5", map[string]dbus.Variant{"Metadata": dbus.MakeVariant(12345)}),
		},
		{
			name: "Invalid PlaybackStatus Type (Array instead of String)",
			signal: propertiesChanged(":1.5", map[string]dbus.Variant{
				"PlaybackStatus": dbus.MakeVariant([]string{"Playing"}),
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mon, events := newTestMonitor(&noopDBusClient{}, "")

			mon.handleSignal(tt.signal)

			select {
			case <-events:
				t.Error("Should NOT emit event for invalid input")
			case <-time.After(50 * time.Millisecond):
			}
		})
	}
}

// TestHandleSignal_DataVariations tests parsing of non-uniform player data.
func TestHandleSignal_DataVariations(t *testing.T) {
	tests := []struct {
		name  string
		props map[string]dbus.Variant
		check func(*testing.T, domain.TrackSnapshot)
	}{
		{
			name: "Artist as String (Non-compliant)",
			props: map[string]dbus.Variant{
				"Metadata": dbus.MakeVariant(map[string]dbus.Variant{
					"xesam:title":  dbus.MakeVariant("Song"),
					"xesam:artist": dbus.MakeVariant("Single Artist"),
				}),
				"PlaybackStatus": dbus.MakeVariant("Playing"),
			},
			check: func(t *testing.T, e domain.TrackSnapshot) {
				if e.Artist != "Single Artist" {
					t.Errorf("Expected 'Single Artist', got '%s'", e.Artist)
				}
			},
		},
		{
			name: "Empty Art URL",
			props: map[string]dbus.Variant{
				"Metadata": dbus.MakeVariant(map[string]dbus.Variant{
					"mpris:artUrl": dbus.MakeVariant(""),
					"xesam:title":  dbus.MakeVariant("Song"),
				}),
				"PlaybackStatus": dbus.MakeVariant("Playing"),
			},
			check: func(t *testing.T, e domain.TrackSnapshot) {
				if e.ArtworkURL != "" {
					t.Errorf("Expected empty artwork, got '%s'", e.ArtworkURL)
				}
			},
		},
		{
			name: "Status Paused",
			props: map[string]dbus.Variant{
				"Metadata": dbus.MakeVariant(map[string]dbus.Variant{
					"xesam:title": dbus.MakeVariant("Song"),
				}),
				"PlaybackStatus": dbus.MakeVariant("Paused"),
			},
			check: func(t *testing.T, e domain.TrackSnapshot) {
				if e.IsNothing() || e.Playing {
					t.Errorf("Expected paused track, got %+v", e)
				}
			},
		},
		{
			name: "Status Stopped",
			props: map[string]dbus.Variant{
				"Metadata": dbus.MakeVariant(map[string]dbus.Variant{
					"xesam:title": dbus.MakeVariant("Song"),
				}),
				"PlaybackStatus": dbus.MakeVariant("Stopped"),
			},
			check: func(t *testing.T, e domain.TrackSnapshot) {
				if !e.IsNothing() {
					t.Errorf("Expected nothing playing, got %+v", e)
				}
			},
		},
		{
			name: "Missing Title",
			props: map[string]dbus.Variant{
				"Metadata": dbus.MakeVariant(map[string]dbus.Variant{
					"xesam:artist": dbus.MakeVariant([]string{"Someone"}),
				}),
				"PlaybackStatus": dbus.MakeVariant("Playing"),
			},
			check: func(t *testing.T, e domain.TrackSnapshot) {
				if !e.IsNothing() {
					t.Errorf("Expected nothing playing, got %+v", e)
				}
			},
		},
		{
			name: "Status Only Without Readable Metadata",
			props: map[string]dbus.Variant{
				"PlaybackStatus": dbus.MakeVariant("Playing"),
			},
			check: func(t *testing.T, e domain.TrackSnapshot) {
				if !e.IsNothing() {
					t.Errorf("Expected nothing playing, got %+v", e)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mon, events := newTestMonitor(&noopDBusClient{}, "")

			go mon.handleSignal(propertiesChanged(":1.99", tt.props))

			select {
			case event := <-events:
				tt.check(t, event)
			case <-time.After(1 * time.Second):
				t.Fatal("Timeout waiting for event")
			}
		})
	}
}

func TestHandleSignal_PlayerFilter(t *testing.T) {
	mon, events := newTestMonitor(&noopDBusClient{}, "spotify")
	mon.playerNames = map[string]string{
		":1.100": "org.mpris.MediaPlayer2.spotify",
		":1.200": "org.mpris.MediaPlayer2.vlc",
	}

	props := map[string]dbus.Variant{
		"Metadata": dbus.MakeVariant(map[string]dbus.Variant{
			"xesam:title": dbus.MakeVariant("Song"),
		}),
		"PlaybackStatus": dbus.MakeVariant("Playing"),
	}

	mon.handleSignal(propertiesChanged(":1.200", props))
	if len(events) != 0 {
		t.Fatalf("expected vlc to be filtered out, got %d events", len(events))
	}

	mon.handleSignal(propertiesChanged(":1.100", props))
	if len(events) != 1 {
		t.Fatalf("expected spotify event, got %d events", len(events))
	}
}

// TestHandleNameOwnerChanged verifies player lifecycle tracking
func TestHandleNameOwnerChanged(t *testing.T) {
	tests := []struct {
		name         string
		signalBody   []interface{}
		premapped    bool
		expectMapped bool
		expectedName string
		targetUnique string
	}{
		{
			name: "New Player Appears",
			signalBody: []interface{}{
				"org.mpris.MediaPlayer2.spotify",
				"",
				":1.50",
			},
			expectMapped: true,
			expectedName: "org.mpris.MediaPlayer2.spotify",
			targetUnique: ":1.50",
		},
		{
			name: "Player Disappears",
			signalBody: []interface{}{
				"org.mpris.MediaPlayer2.spotify",
				":1.50",
				"",
			},
			premapped:    true,
			targetUnique: ":1.50",
		},
		{
			name: "Ownership Moves",
			signalBody: []interface{}{
				"org.mpris.MediaPlayer2.spotify",
				":1.50",
				":1.51",
			},
			premapped:    true,
			expectMapped: true,
			expectedName: "org.mpris.MediaPlayer2.spotify",
			targetUnique: ":1.51",
		},
		{
			name: "Non-MPRIS Service Ignored",
			signalBody: []interface{}{
				"com.example.service",
				"",
				":1.99",
			},
			targetUnique: ":1.99",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mon, _ := newTestMonitor(&noopDBusClient{}, "")
			if tt.premapped {
				mon.playerNames[":1.50"] = "org.mpris.MediaPlayer2.spotify"
			}

			mon.handleNameOwnerChanged(&dbus.Signal{
				Name: "org.freedesktop.DBus.NameOwnerChanged",
				Body: tt.signalBody,
			})

			mon.mu.RLock()
			val, exists := mon.playerNames[tt.targetUnique]
			mon.mu.RUnlock()

			if exists != tt.expectMapped {
				t.Fatalf("mapped = %v, want %v", exists, tt.expectMapped)
			}
			if tt.expectMapped && val != tt.expectedName {
				t.Errorf("Expected name %s, got %s", tt.expectedName, val)
			}
		})
	}
}

func TestHandleNameOwnerChanged_CurrentPlayerGone(t *testing.T) {
	mon, events := newTestMonitor(&noopDBusClient{}, "")
	mon.playerNames[":1.50"] = "org.mpris.MediaPlayer2.spotify"
	mon.lastPlayer = "org.mpris.MediaPlayer2.spotify"

	mon.handleNameOwnerChanged(&dbus.Signal{
		Name: "org.freedesktop.DBus.NameOwnerChanged",
		Body: []interface{}{"org.mpris.MediaPlayer2.vlc", ":1.60", ""},
	})
	if len(events) != 0 {
		t.Fatal("removing another player must not report anything")
	}

	mon.handleNameOwnerChanged(&dbus.Signal{
		Name: "org.freedesktop.DBus.NameOwnerChanged",
		Body: []interface{}{"org.mpris.MediaPlayer2.spotify", ":1.50", ""},
	})

	select {
	case ev := <-events:
		if !ev.IsNothing() {
			t.Errorf("expected nothing playing, got %+v", ev)
		}
	default:
		t.Fatal("expected nothing playing after current player exited")
	}
	if mon.lastPlayer != "" {
		t.Errorf("expected last player cleared, got %q", mon.lastPlayer)
	}
}

func TestParseMetadata_CapturesClock(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	mon := NewMprisMonitor(zap.NewNop(), clk, "")

	snap := mon.parseMetadata("org.mpris.MediaPlayer2.vlc", map[string]dbus.Variant{
		"xesam:title":  dbus.MakeVariant("Clip"),
		"xesam:album":  dbus.MakeVariant("Album"),
		"mpris:length": dbus.MakeVariant(int64(90_000_000)),
	}, "Playing", 12_000)

	if !snap.CapturedAt.Equal(clk.Now()) {
		t.Errorf("expected capture at %v, got %v", clk.Now(), snap.CapturedAt)
	}
	if snap.PositionMs != 12_000 || snap.DurationMs != 90_000 || snap.Album != "Album" {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestGetPlayerName(t *testing.T) {
	mon := NewMprisMonitor(zap.NewNop(), clock.NewMock(), "")
	mon.playerNames = map[string]string{
		":1.100": "org.mpris.MediaPlayer2.spotify",
	}

	tests := []struct {
		input    string
		expected string
	}{
		{":1.100", "org.mpris.MediaPlayer2.spotify"},
		{":1.999", ":1.999"},
	}

	for _, tt := range tests {
		if got := mon.getPlayerName(tt.input); got != tt.expected {
			t.Errorf("getPlayerName(%s): expected %s, got %s", tt.input, tt.expected, got)
		}
	}
}

// noopDBusClient stands in where the code calls GetProperty/ListNames but
// the test has no expectations about them.
type noopDBusClient struct{}

func (n *noopDBusClient) Close() error                             { return nil }
func (n *noopDBusClient) AddMatchSignal(...dbus.MatchOption) error { return nil }
func (n *noopDBusClient) Signal(chan<- *dbus.Signal)               {}
func (n *noopDBusClient) ListNames() ([]string, error)             { return []string{}, nil }
func (n *noopDBusClient) GetNameOwner(string) (string, error)      { return "", fmt.Errorf("noop") }
func (n *noopDBusClient) GetProperty(string, string, string) (dbus.Variant, error) {
	return dbus.MakeVariant(""), fmt.Errorf("noop")
}
