package script

import (
	"context"
	"fmt"
	"os"
	"time"

	"pianomirror/debug"
)

// DefaultWatchInterval is how often the script file is checked
const DefaultWatchInterval = 5 * time.Second

// Watcher reloads the current script when its file changes
type Watcher struct {
	host     *Host
	interval time.Duration

	// OnReload is called after every reload attempt. err is nil on success.
	OnReload func(path string, err error)

	path     string
	baseline time.Time
	seen     bool
}

// NewWatcher polls host's script every interval
func NewWatcher(host *Host, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	return &Watcher{host: host, interval: interval}
}

// Run polls until ctx is done (blocking - run in goroutine)
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Check()
		}
	}
}

// Check runs one poll cycle. The first look at a file only records its
// modification time; later changes trigger a reload.
func (w *Watcher) Check() (bool, error) {
	cur := w.host.Current()
	if cur == nil {
		w.seen = false
		return false, nil
	}
	if cur.Path != w.path {
		w.path = cur.Path
		w.seen = false
	}

	info, err := os.Stat(w.path)
	if err != nil {
		debug.LogEvery(12, "watch", "stat %s: %v", w.path, err)
		return false, fmt.Errorf("watch script: %w", err)
	}

	if !w.seen {
		w.baseline = info.ModTime()
		w.seen = true
		return false, nil
	}
	if info.ModTime().Equal(w.baseline) {
		return false, nil
	}

	w.baseline = info.ModTime()
	_, err = w.host.Load(w.path)
	if err != nil {
		w.host.log.Error("script reload failed, keeping previous version", "path", w.path, "err", err)
	} else {
		w.host.log.Info("script reloaded", "path", w.path)
	}
	if w.OnReload != nil {
		w.OnReload(w.path, err)
	}
	return err == nil, err
}
