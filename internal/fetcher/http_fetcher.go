package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/genricoloni/nowplaying/internal/domain"
	"go.uber.org/zap"
)

const (
	_maxImageSize   = 10 * 1024 * 1024 // 10 MB
	_defaultTimeout = 5 * time.Second
)

// HTTPFetcher handles downloading artwork from HTTP/HTTPS URLs
type HTTPFetcher struct {
	logger *zap.Logger
	client *http.Client
}

// NewHTTPFetcher creates a fetcher bounded by the default artwork timeout
func NewHTTPFetcher(logger *zap.Logger) *HTTPFetcher {
	return NewHTTPFetcherWithTimeout(logger, _defaultTimeout)
}

// NewHTTPFetcherWithTimeout creates a fetcher with a custom request timeout
func NewHTTPFetcherWithTimeout(logger *zap.Logger, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		logger: logger,
		client: &http.Client{Timeout: timeout},
	}
}

// Fetch downloads image data from url. Network failures and server errors
// wrap domain.ErrTransient; a non-image response wraps domain.ErrDecode.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("unsupported protocol in %q: %w", url, domain.ErrDecode)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "nowplayingDaemon/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("network error: %w: %v", domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d: %w", resp.StatusCode, domain.ErrTransient)
	}

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("url is not an image: %s: %w", ct, domain.ErrDecode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, _maxImageSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w: %v", domain.ErrTransient, err)
	}

	f.logger.Debug("Image fetched successfully", zap.Int("bytes", len(data)), zap.String("url", url))
	return data, nil
}
