package config

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/platformbuilds/sentinel-gate/internal/models"
	"github.com/platformbuilds/sentinel-gate/pkg/logger"
)

// TierOverrides is the shape of the hot-reloadable tier-override file.
// Only the tiers present in the file are replaced.
type TierOverrides struct {
	Tiers map[string]TierLimits `yaml:"tiers"`
}

// OverrideWatcher watches the tier-override file and notifies registered
// callbacks when a valid new table is read. Invalid files are logged and
// ignored; the previous table stays in force.
type OverrideWatcher struct {
	path     string
	logger   logger.Logger
	mu       sync.RWMutex
	current  map[string]TierLimits
	watchers []func(map[string]TierLimits)
	stopCh   chan struct{}
}

func NewOverrideWatcher(path string, log logger.Logger) *OverrideWatcher {
	return &OverrideWatcher{
		path:     path,
		logger:   log,
		watchers: make([]func(map[string]TierLimits), 0),
		stopCh:   make(chan struct{}),
	}
}

// RegisterWatcher adds a callback invoked with the new tier table on reload.
func (w *OverrideWatcher) RegisterWatcher(callback func(map[string]TierLimits)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.watchers = append(w.watchers, callback)
}

// Current returns the last successfully loaded override table.
func (w *OverrideWatcher) Current() map[string]TierLimits {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Start begins watching for override file changes. Blocks until ctx is
// cancelled or Stop is called.
func (w *OverrideWatcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.path); err != nil {
		return fmt.Errorf("failed to watch override file: %w", err)
	}

	// Prime the table so callers see the on-disk state without waiting
	// for the first write event.
	if err := w.reload(); err != nil {
		w.logger.Warn("Initial tier override load failed", "path", w.path, "error", err)
	}

	w.logger.Info("Tier override watcher started", "path", w.path)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Write == fsnotify.Write {
				w.logger.Info("Tier override file changed, reloading", "file", event.Name)
				if err := w.reload(); err != nil {
					w.logger.Error("Failed to reload tier overrides", "error", err)
					continue
				}
				w.notifyWatchers()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("Tier override watcher error", "error", err)

		case <-ctx.Done():
			w.logger.Info("Tier override watcher stopping")
			return nil

		case <-w.stopCh:
			w.logger.Info("Tier override watcher stopped")
			return nil
		}
	}
}

// Stop stops the watcher.
func (w *OverrideWatcher) Stop() {
	close(w.stopCh)
}

func (w *OverrideWatcher) reload() error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return err
	}

	var overrides TierOverrides
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("failed to parse tier overrides: %w", err)
	}

	for name, limits := range overrides.Tiers {
		if err := validateTierLimits(models.Tier(name), limits); err != nil {
			return err
		}
	}

	w.mu.Lock()
	w.current = overrides.Tiers
	w.mu.Unlock()

	w.logger.Info("Tier overrides reloaded", "tiers", len(overrides.Tiers))
	return nil
}

func (w *OverrideWatcher) notifyWatchers() {
	w.mu.RLock()
	table := w.current
	watchers := make([]func(map[string]TierLimits), len(w.watchers))
	copy(watchers, w.watchers)
	w.mu.RUnlock()

	for _, notify := range watchers {
		go func(fn func(map[string]TierLimits)) {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error("Tier override watcher callback panicked", "panic", r)
				}
			}()
			fn(table)
		}(notify)
	}
}
