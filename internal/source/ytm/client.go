package ytm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/genricoloni/nowplaying/internal/domain"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	trackStatePlaying = 1

	defaultReadTimeout = 30 * time.Second
)

type state struct {
	Video *struct {
		Title           string   `json:"title"`
		Author          string   `json:"author"`
		Album           string   `json:"album"`
		DurationSeconds *float64 `json:"durationSeconds"`
		Thumbnails      []struct {
			URL string `json:"url"`
		} `json:"thumbnails"`
	} `json:"video"`
	Player *struct {
		TrackState    int      `json:"trackState"`
		VideoProgress *float64 `json:"videoProgress"`
		AdPlaying     bool     `json:"adPlaying"`
	} `json:"player"`
}

// message accepts both a bare state and one wrapped in an envelope
type message struct {
	state
	Data *state `json:"data"`
}

type token struct {
	Token string `yaml:"token"`
}

// Client streams playback state from the YouTube Music desktop companion socket
type Client struct {
	logger    *zap.Logger
	clock     clock.Clock
	url       string
	tokenFile string
	dialer    *websocket.Dialer
	// readTimeout bounds the silence tolerated on the socket; pings are
	// sent at half of it so a live but idle companion keeps the link up
	readTimeout time.Duration
}

// NewClient creates a client for the companion endpoint at url. A
// connection silent for readTimeout is treated as lost.
func NewClient(logger *zap.Logger, clk clock.Clock, url, tokenFile string, readTimeout time.Duration) *Client {
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}
	return &Client{
		logger:      logger,
		clock:       clk,
		url:         url,
		tokenFile:   tokenFile,
		dialer:      websocket.DefaultDialer,
		readTimeout: readTimeout,
	}
}

// Stream implements domain.EventClient. Only changed states are delivered.
func (c *Client) Stream(ctx context.Context, onEvent func(domain.TrackSnapshot)) error {
	header, err := c.authHeader()
	if err != nil {
		return err
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return fmt.Errorf("ytm handshake status %d: %w", resp.StatusCode, domain.ErrAuthRequired)
		}
		return fmt.Errorf("ytm dial: %w: %v", domain.ErrTransient, err)
	}

	var once sync.Once
	closeConn := func() { once.Do(func() { _ = conn.Close() }) }
	defer closeConn()

	// socket deadlines are wall-clock, independent of the injected clock
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	})

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ping := time.NewTicker(c.readTimeout / 2)
		defer ping.Stop()
		for {
			select {
			case <-ctx.Done():
				closeConn()
				return
			case <-stop:
				return
			case <-ping.C:
				deadline := time.Now().Add(c.readTimeout / 2)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					c.logger.Debug("Companion ping failed", zap.Error(err))
				}
			}
		}
	}()

	c.logger.Info("Connected to YouTube Music companion", zap.String("url", c.url))

	var last domain.TrackSnapshot
	first := true
	for {
		if err := conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return fmt.Errorf("ytm deadline: %w: %v", domain.ErrTransient, err)
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("ytm read: %w: %v", domain.ErrTransient, err)
		}

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Debug("Ignoring malformed companion message", zap.Error(err))
			continue
		}
		st := msg.state
		if msg.Data != nil {
			st = *msg.Data
		}

		snap := toSnapshot(st, c.clock)
		if !first && snap.Equal(last) {
			continue
		}
		first = false
		last = snap
		onEvent(snap)
	}
}

// toSnapshot maps a companion state; ads and incomplete metadata mean nothing playing
func toSnapshot(st state, clk clock.Clock) domain.TrackSnapshot {
	if st.Video == nil || st.Player == nil {
		return domain.NothingPlaying()
	}
	if st.Player.AdPlaying || st.Video.Title == "" || st.Video.Author == "" {
		return domain.NothingPlaying()
	}

	var art string
	if len(st.Video.Thumbnails) > 0 {
		art = st.Video.Thumbnails[0].URL
	}

	var duration, position int64
	if st.Video.DurationSeconds != nil {
		duration = int64(*st.Video.DurationSeconds * 1000)
	}
	if st.Player.VideoProgress != nil {
		position = int64(*st.Player.VideoProgress * 1000)
	}

	return domain.TrackSnapshot{
		Source:     domain.SourcePush,
		Player:     "youtube-music",
		Title:      st.Video.Title,
		Artist:     st.Video.Author,
		Album:      st.Video.Album,
		ArtworkURL: art,
		PositionMs: position,
		DurationMs: duration,
		Playing:    st.Player.TrackState == trackStatePlaying,
		CapturedAt: clk.Now(),
	}.Normalize()
}

// authHeader reads the companion token; a missing file connects without one
func (c *Client) authHeader() (http.Header, error) {
	header := http.Header{}
	if c.tokenFile == "" {
		return header, nil
	}

	data, err := os.ReadFile(c.tokenFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return header, nil
		}
		return nil, fmt.Errorf("ytm token file: %w: %v", domain.ErrTransient, err)
	}

	var tok token
	if err := yaml.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("ytm token file unreadable: %w: %v", domain.ErrAuthRequired, err)
	}
	if tok.Token != "" {
		header.Set("Authorization", tok.Token)
	}
	return header, nil
}
