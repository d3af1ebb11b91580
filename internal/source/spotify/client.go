package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/genricoloni/nowplaying/internal/domain"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const currentlyPlayingPath = "/v1/me/player/currently-playing"

// token is the on-disk credential written by an external OAuth helper.
// JSON files parse as well since JSON is valid YAML.
type token struct {
	AccessToken string `yaml:"access_token"`
	// ExpiresAt is a unix timestamp in seconds; 0 means no expiry recorded
	ExpiresAt int64 `yaml:"expires_at"`
}

type currentlyPlaying struct {
	IsPlaying  bool   `json:"is_playing"`
	ProgressMs int64  `json:"progress_ms"`
	Type       string `json:"currently_playing_type"`
	Item       *struct {
		Name       string `json:"name"`
		DurationMs int64  `json:"duration_ms"`
		Artists    []struct {
			Name string `json:"name"`
		} `json:"artists"`
		Album struct {
			Name   string `json:"name"`
			Images []struct {
				URL string `json:"url"`
			} `json:"images"`
		} `json:"album"`
	} `json:"item"`
}

// Client reads the current playback state from the Spotify Web API
type Client struct {
	logger    *zap.Logger
	http      *http.Client
	clock     clock.Clock
	baseURL   string
	tokenFile string
}

// NewClient creates a client. timeout bounds each request in addition to the caller's context.
func NewClient(logger *zap.Logger, clk clock.Clock, baseURL, tokenFile string, timeout time.Duration) *Client {
	return &Client{
		logger:    logger,
		http:      &http.Client{Timeout: timeout},
		clock:     clk,
		baseURL:   strings.TrimRight(baseURL, "/"),
		tokenFile: tokenFile,
	}
}

// FetchCurrentTrack implements domain.PollingClient
func (c *Client) FetchCurrentTrack(ctx context.Context) (domain.TrackSnapshot, error) {
	tok, err := c.loadToken()
	if err != nil {
		return domain.TrackSnapshot{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+currentlyPlayingPath, nil)
	if err != nil {
		return domain.TrackSnapshot{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	req.Header.Set("Accept", "application/json")

	sent := c.clock.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return domain.TrackSnapshot{}, fmt.Errorf("spotify request: %w: %v", domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return domain.NothingPlaying(), nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.TrackSnapshot{}, fmt.Errorf("spotify status %d: %w", resp.StatusCode, domain.ErrAuthRequired)
	case resp.StatusCode != http.StatusOK:
		return domain.TrackSnapshot{}, fmt.Errorf("spotify status %d: %w", resp.StatusCode, domain.ErrTransient)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.TrackSnapshot{}, fmt.Errorf("spotify read: %w: %v", domain.ErrTransient, err)
	}
	if len(body) == 0 {
		return domain.NothingPlaying(), nil
	}

	var cp currentlyPlaying
	if err := json.Unmarshal(body, &cp); err != nil {
		return domain.TrackSnapshot{}, fmt.Errorf("spotify malformed body: %w: %v", domain.ErrTransient, err)
	}

	return c.toSnapshot(cp, sent), nil
}

func (c *Client) toSnapshot(cp currentlyPlaying, capturedAt time.Time) domain.TrackSnapshot {
	if cp.Item == nil || cp.Item.Name == "" || cp.Type == "ad" {
		return domain.NothingPlaying()
	}

	artists := make([]string, 0, len(cp.Item.Artists))
	for _, a := range cp.Item.Artists {
		if a.Name != "" {
			artists = append(artists, a.Name)
		}
	}

	var art string
	if len(cp.Item.Album.Images) > 0 {
		art = cp.Item.Album.Images[0].URL
	}

	return domain.TrackSnapshot{
		Source:     domain.SourcePoll,
		Player:     "spotify",
		Title:      cp.Item.Name,
		Artist:     strings.Join(artists, ", "),
		Album:      cp.Item.Album.Name,
		ArtworkURL: art,
		PositionMs: cp.ProgressMs,
		DurationMs: cp.Item.DurationMs,
		Playing:    cp.IsPlaying,
		CapturedAt: capturedAt,
	}.Normalize()
}

// loadToken re-reads the token file on every call so a refreshed token is
// picked up without restarting
func (c *Client) loadToken() (token, error) {
	data, err := os.ReadFile(c.tokenFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return token{}, fmt.Errorf("spotify token file %s missing: %w", c.tokenFile, domain.ErrAuthRequired)
		}
		return token{}, fmt.Errorf("spotify token file: %w: %v", domain.ErrTransient, err)
	}

	var tok token
	if err := yaml.Unmarshal(data, &tok); err != nil {
		return token{}, fmt.Errorf("spotify token file unreadable: %w: %v", domain.ErrAuthRequired, err)
	}
	if tok.AccessToken == "" {
		return token{}, fmt.Errorf("spotify token file has no access_token: %w", domain.ErrAuthRequired)
	}
	if tok.ExpiresAt > 0 && !c.clock.Now().Before(time.Unix(tok.ExpiresAt, 0)) {
		return token{}, fmt.Errorf("spotify token expired: %w", domain.ErrAuthRequired)
	}
	return tok, nil
}
