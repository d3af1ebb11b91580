package source

import (
	"context"
	"path/filepath"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const credentialDebounce = 100 * time.Millisecond

// Resumer is woken when its credentials change on disk
type Resumer interface {
	Resume()
}

// CredentialWatcher resumes an adapter whenever its token file is written.
// Bursts of events (truncate then write) resume once, after the file has
// been quiet for credentialDebounce.
type CredentialWatcher struct {
	logger *zap.Logger
	clock  clock.Clock
	path   string
	target Resumer
}

// NewCredentialWatcher watches path on behalf of target
func NewCredentialWatcher(logger *zap.Logger, clk clock.Clock, path string, target Resumer) *CredentialWatcher {
	return &CredentialWatcher{
		logger: logger.With(zap.String("file", path)),
		clock:  clk,
		path:   filepath.Clean(path),
		target: target,
	}
}

// Run watches the token file's directory until ctx is done. A missing
// directory disables the watcher without failing the daemon.
func (w *CredentialWatcher) Run(ctx context.Context) error {
	if w.path == "" || w.path == "." {
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("Credential watcher unavailable", zap.Error(err))
		return nil
	}
	defer fw.Close()

	// editors replace files by rename, so watch the directory
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		w.logger.Warn("Cannot watch credential directory", zap.Error(err))
		return nil
	}

	w.logger.Debug("Watching credentials")

	var (
		timer *clock.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.matches(event) {
				continue
			}
			if timer == nil {
				timer = w.clock.Timer(credentialDebounce)
			} else {
				timer.Stop()
				timer.Reset(credentialDebounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.logger.Info("Credentials changed, resuming adapter")
			w.target.Resume()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Credential watcher error", zap.Error(err))
		}
	}
}

// matches reports whether event touched the token file
func (w *CredentialWatcher) matches(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	return filepath.Clean(event.Name) == w.path
}
