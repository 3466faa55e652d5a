package file

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/parley-cli/internal/core/ports/driving"
	"github.com/custodia-labs/parley-cli/internal/logger"
)

// debounceDelay coalesces the burst of events an editor save produces.
const debounceDelay = 250 * time.Millisecond

// Watcher reloads the config store and the adapter registry when the
// config file changes on disk.
type Watcher struct {
	store    *ConfigStore
	registry driving.AdapterRegistry
	fsw      *fsnotify.Watcher
}

// NewWatcher creates a watcher over the store's config file.
// Run must be called to start processing events.
func NewWatcher(store *ConfigStore, registry driving.AdapterRegistry) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory, not the file: editors replace files on save and
	// a file watch dies with the old inode.
	if err := fsw.Add(filepath.Dir(store.Path())); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{store: store, registry: registry, fsw: fsw}, nil
}

// Run processes file events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fsw.Close()

	var timer *time.Timer
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Name != w.store.Path() {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceDelay)
			} else {
				timer.Reset(debounceDelay)
			}
			pending = timer.C
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("config watcher: %v", err)
		case <-pending:
			pending = nil
			w.reload(ctx)
		}
	}
}

// reload re-reads the config file and reloads every enabled configuration
// into the registry, unloading configs that disappeared.
func (w *Watcher) reload(ctx context.Context) {
	logger.Info("config file changed, reloading")
	if err := w.store.Reload(); err != nil {
		logger.Warn("config reload: %v", err)
		return
	}

	configs, err := w.store.List()
	if err != nil {
		logger.Warn("config reload: %v", err)
		return
	}

	current := make(map[string]bool, len(configs))
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		current[cfg.ID] = true
		if err := w.registry.Reload(ctx, cfg); err != nil {
			logger.Warn("reload adapter %s: %v", cfg.ID, err)
		}
	}
	for _, id := range w.registry.ListActive() {
		if !current[id] {
			if err := w.registry.Unload(id); err != nil {
				logger.Warn("unload adapter %s: %v", id, err)
			}
		}
	}
}
