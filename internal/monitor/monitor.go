package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/genricoloni/nowplaying/internal/domain"
	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

const (
	mprisPrefix     = "org.mpris.MediaPlayer2."
	mprisPath       = "/org/mpris/MediaPlayer2"
	playerInterface = "org.mpris.MediaPlayer2.Player"
	propMetadata    = playerInterface + ".Metadata"
	propStatus      = playerInterface + ".PlaybackStatus"
	propPosition    = playerInterface + ".Position"
)

var errBusClosed = errors.New("session bus connection lost")

// MprisMonitor reports local media players over the D-Bus MPRIS interface.
// It implements domain.EventClient.
type MprisMonitor struct {
	logger *zap.Logger
	clock  clock.Clock
	// filter restricts events to players whose name starts with it (e.g. "spotify")
	filter string
	dial   func() (DBusClient, error)

	mu          sync.RWMutex
	conn        DBusClient
	emit        func(domain.TrackSnapshot)
	playerNames map[string]string // unique bus name (:1.45) -> well-known name
	lastPlayer  string            // well-known name behind the last emitted snapshot
}

// NewMprisMonitor creates a monitor. player may be empty to follow every player.
func NewMprisMonitor(logger *zap.Logger, clk clock.Clock, player string) *MprisMonitor {
	return &MprisMonitor{
		logger:      logger,
		clock:       clk,
		filter:      strings.ToLower(strings.TrimSpace(player)),
		dial:        dialSessionBus,
		playerNames: make(map[string]string),
	}
}

// Stream connects to the session bus and reports player changes until ctx is
// done or the bus connection drops
func (m *MprisMonitor) Stream(ctx context.Context, onEvent func(domain.TrackSnapshot)) error {
	conn, err := m.dial()
	if err != nil {
		return fmt.Errorf("session bus connection failed: %w: %v", domain.ErrTransient, err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			m.logger.Warn("Failed to close D-Bus connection", zap.Error(err))
		}
	}()

	m.mu.Lock()
	m.conn = conn
	m.emit = onEvent
	m.playerNames = make(map[string]string)
	m.lastPlayer = ""
	m.mu.Unlock()

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(mprisPath),
		dbus.WithMatchInterface("org.freedesktop.DBus.Properties"),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		return fmt.Errorf("failed to add match signal: %w: %v", domain.ErrTransient, err)
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameOwnerChanged"),
	); err != nil {
		// non-fatal, players started later are simply missed
		m.logger.Warn("Failed to add NameOwnerChanged match signal", zap.Error(err))
	}

	signals := make(chan *dbus.Signal, 10)
	conn.Signal(signals)

	if err := m.detectExistingPlayers(); err != nil {
		m.logger.Warn("Failed to detect existing players", zap.Error(err))
	}

	m.logger.Info("MPRIS monitor connected", zap.String("filter", m.filter))

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("MPRIS monitor stopped")
			return ctx.Err()
		case sig, ok := <-signals:
			if !ok {
				return fmt.Errorf("%w: %w", domain.ErrTransient, errBusClosed)
			}
			if sig == nil {
				continue
			}
			if sig.Name == "org.freedesktop.DBus.NameOwnerChanged" {
				m.handleNameOwnerChanged(sig)
			} else {
				m.handleSignal(sig)
			}
		}
	}
}

// detectExistingPlayers maps and reports the players already on the bus
func (m *MprisMonitor) detectExistingPlayers() error {
	names, err := m.conn.ListNames()
	if err != nil {
		return fmt.Errorf("failed to list bus names: %w", err)
	}

	playerCount := 0
	for _, name := range names {
		if !strings.HasPrefix(name, mprisPrefix) || !m.accepts(name) {
			continue
		}
		playerCount++
		m.logger.Info("Detected MPRIS player", zap.String("name", name))

		if uniqueName, err := m.conn.GetNameOwner(name); err == nil {
			m.mu.Lock()
			m.playerNames[uniqueName] = name
			m.mu.Unlock()
		}

		if err := m.fetchPlayerMetadata(name); err != nil {
			m.logger.Warn("Failed to fetch initial metadata",
				zap.String("player", name),
				zap.Error(err))
		}
	}

	m.logger.Info("Player detection complete", zap.Int("count", playerCount))
	return nil
}

// fetchPlayerMetadata reads the full state of one player and reports it
func (m *MprisMonitor) fetchPlayerMetadata(playerName string) error {
	variant, err := m.conn.GetProperty(playerName, mprisPath, propMetadata)
	if err != nil {
		return fmt.Errorf("failed to get metadata: %w", err)
	}

	// players with nothing loaded may return an empty or odd variant
	metadata, ok := variant.Value().(map[string]dbus.Variant)
	if !ok {
		m.logger.Debug("Metadata variant is not a map, skipping", zap.String("player", playerName))
		return nil
	}

	statusVariant, err := m.conn.GetProperty(playerName, mprisPath, propStatus)
	if err != nil {
		return fmt.Errorf("failed to get playback status: %w", err)
	}
	status, ok := statusVariant.Value().(string)
	if !ok {
		return fmt.Errorf("invalid playback status format")
	}

	position := m.fetchPosition(playerName)
	m.report(playerName, m.parseMetadata(playerName, metadata, status, position))
	return nil
}

// handleNameOwnerChanged tracks players appearing and disappearing
func (m *MprisMonitor) handleNameOwnerChanged(sig *dbus.Signal) {
	if len(sig.Body) < 3 {
		return
	}

	name, ok := sig.Body[0].(string)
	if !ok || !strings.HasPrefix(name, mprisPrefix) || !m.accepts(name) {
		return
	}

	oldOwner, _ := sig.Body[1].(string)
	newOwner, _ := sig.Body[2].(string)

	switch {
	case newOwner != "" && oldOwner == "":
		m.mu.Lock()
		m.playerNames[newOwner] = name
		m.mu.Unlock()

		m.logger.Info("New MPRIS player detected",
			zap.String("player", name),
			zap.String("unique", newOwner))

		if err := m.fetchPlayerMetadata(name); err != nil {
			m.logger.Warn("Failed to fetch metadata from new player",
				zap.String("player", name),
				zap.Error(err))
		}

	case newOwner == "" && oldOwner != "":
		m.mu.Lock()
		delete(m.playerNames, oldOwner)
		wasCurrent := m.lastPlayer == name
		m.mu.Unlock()

		m.logger.Info("MPRIS player removed",
			zap.String("player", name),
			zap.String("unique", oldOwner))

		if wasCurrent {
			m.report(name, domain.NothingPlaying())
		}

	case newOwner != "" && oldOwner != "":
		m.mu.Lock()
		delete(m.playerNames, oldOwner)
		m.playerNames[newOwner] = name
		m.mu.Unlock()

		m.logger.Debug("MPRIS player ownership changed",
			zap.String("player", name),
			zap.String("oldUnique", oldOwner),
			zap.String("newUnique", newOwner))
	}
}

// handleSignal processes PropertiesChanged(interface, changed, invalidated)
func (m *MprisMonitor) handleSignal(sig *dbus.Signal) {
	if sig.Name != "org.freedesktop.DBus.Properties.PropertiesChanged" {
		return
	}
	if len(sig.Body) < 2 {
		return
	}

	interfaceName, ok := sig.Body[0].(string)
	if !ok || interfaceName != playerInterface {
		return
	}

	changedProps, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return
	}

	playerName := m.getPlayerName(sig.Sender)
	if !m.accepts(playerName) {
		return
	}

	metadataVariant, hasMetadata := changedProps["Metadata"]
	statusVariant, hasStatus := changedProps["PlaybackStatus"]
	if !hasMetadata && !hasStatus {
		return
	}

	var metadata map[string]dbus.Variant
	var status string

	if hasMetadata {
		metadata, ok = metadataVariant.Value().(map[string]dbus.Variant)
		if !ok {
			m.logger.Warn("Invalid metadata format in signal, ignoring")
			return
		}
	} else {
		variant, err := m.conn.GetProperty(sig.Sender, mprisPath, propMetadata)
		if err == nil {
			if md, ok := variant.Value().(map[string]dbus.Variant); ok {
				metadata = md
			}
		}
	}

	if hasStatus {
		status, ok = statusVariant.Value().(string)
		if !ok {
			m.logger.Warn("Invalid playback status format in signal, ignoring")
			return
		}
	} else {
		variant, err := m.conn.GetProperty(sig.Sender, mprisPath, propStatus)
		if err == nil {
			if s, ok := variant.Value().(string); ok {
				status = s
			}
		}
	}

	snap := m.parseMetadata(playerName, metadata, status, m.fetchPosition(sig.Sender))

	m.logger.Debug("Media change detected",
		zap.String("player", playerName),
		zap.String("title", snap.Title),
		zap.String("artist", snap.Artist),
		zap.String("status", status))

	m.report(playerName, snap)
}

// fetchPosition returns the playback position in ms, 0 when unsupported
func (m *MprisMonitor) fetchPosition(busName string) int64 {
	variant, err := m.conn.GetProperty(busName, mprisPath, propPosition)
	if err != nil {
		return 0
	}
	us, ok := toInt64(variant.Value())
	if !ok {
		return 0
	}
	return us / 1000
}

// parseMetadata converts MPRIS metadata to a snapshot. Stopped players and
// tracks without a title report nothing playing.
func (m *MprisMonitor) parseMetadata(playerName string, metadata map[string]dbus.Variant, status string, positionMs int64) domain.TrackSnapshot {
	if status == "Stopped" || status == "" || metadata == nil {
		return domain.NothingPlaying()
	}

	snap := domain.TrackSnapshot{
		Source:     domain.SourcePush,
		Player:     strings.TrimPrefix(playerName, mprisPrefix),
		Playing:    status == "Playing",
		PositionMs: positionMs,
		CapturedAt: m.clock.Now(),
	}

	if v, ok := metadata["xesam:title"]; ok {
		snap.Title, _ = v.Value().(string)
	}

	// xesam:artist is a list; some players send a bare string
	if v, ok := metadata["xesam:artist"]; ok {
		switch artists := v.Value().(type) {
		case []string:
			snap.Artist = strings.Join(artists, ", ")
		case string:
			snap.Artist = artists
		default:
			m.logger.Debug("Unexpected artist type in metadata",
				zap.String("type", fmt.Sprintf("%T", v.Value())))
		}
	}

	if v, ok := metadata["xesam:album"]; ok {
		snap.Album, _ = v.Value().(string)
	}

	if v, ok := metadata["mpris:artUrl"]; ok {
		snap.ArtworkURL, _ = v.Value().(string)
	}

	// mpris:length is in microseconds
	if v, ok := metadata["mpris:length"]; ok {
		if us, ok := toInt64(v.Value()); ok {
			snap.DurationMs = us / 1000
		}
	}

	if snap.Title == "" {
		return domain.NothingPlaying()
	}
	return snap.Normalize()
}

func (m *MprisMonitor) report(playerName string, snap domain.TrackSnapshot) {
	m.mu.Lock()
	emit := m.emit
	if !snap.IsNothing() {
		m.lastPlayer = playerName
	} else if m.lastPlayer == playerName {
		m.lastPlayer = ""
	}
	m.mu.Unlock()

	if emit != nil {
		emit(snap)
	}
}

// accepts applies the optional player filter to a well-known or unique name
func (m *MprisMonitor) accepts(name string) bool {
	if m.filter == "" {
		return true
	}
	// unmapped unique names cannot be filtered, let them through
	if strings.HasPrefix(name, ":") {
		return true
	}
	return strings.HasPrefix(strings.ToLower(name), mprisPrefix+m.filter)
}

// getPlayerName returns the well-known player name for a unique bus name,
// falling back to the unique name
func (m *MprisMonitor) getPlayerName(uniqueName string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if wellKnown, ok := m.playerNames[uniqueName]; ok {
		return wellKnown
	}
	return uniqueName
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint32:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
