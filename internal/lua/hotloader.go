package lua

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/zot/ui-data/internal/config"
)

// Loader is what the hot loader drives; *Runtime implements it.
type Loader interface {
	LoadFile(path string) (*Module, error)
	Unload(name string) bool
}

// HotLoader watches the lua directory and reloads changed scripts, so their
// quark functions are re-registered without a restart. Removed scripts are
// unloaded.
type HotLoader struct {
	config  *config.Config
	luaDir  string
	loader  Loader
	watcher *fsnotify.Watcher

	// Debouncing: path -> (time of last event, removed)
	pending       map[string]pendingChange
	debounceMu    sync.Mutex
	debounceDelay time.Duration

	// onReload is called after each processed change (tests)
	onReload func(path string, removed bool, err error)

	done     chan struct{}
	stopOnce sync.Once
}

type pendingChange struct {
	at      time.Time
	removed bool
}

// NewHotLoader creates a hot loader for luaDir. Call Start to begin watching.
func NewHotLoader(cfg *config.Config, luaDir string, loader Loader) (*HotLoader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &HotLoader{
		config:        cfg,
		luaDir:        filepath.Clean(luaDir),
		loader:        loader,
		watcher:       watcher,
		pending:       make(map[string]pendingChange),
		debounceDelay: 100 * time.Millisecond,
		done:          make(chan struct{}),
	}, nil
}

// Start begins watching for file changes.
func (h *HotLoader) Start() error {
	if err := h.watcher.Add(h.luaDir); err != nil {
		return err
	}

	go h.eventLoop()
	go h.debounceLoop()

	h.config.Log(1, "HotLoader: watching %s for changes", h.luaDir)
	return nil
}

// Stop stops the hot loader.
func (h *HotLoader) Stop() error {
	var err error
	h.stopOnce.Do(func() {
		close(h.done)
		err = h.watcher.Close()
	})
	return err
}

// eventLoop processes file system events.
func (h *HotLoader) eventLoop() {
	for {
		select {
		case <-h.done:
			return
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			h.handleEvent(event)
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.config.Log(1, "HotLoader: watcher error: %v", err)
		}
	}
}

// handleEvent queues a reload or an unload for a script event.
func (h *HotLoader) handleEvent(event fsnotify.Event) {
	if !strings.HasSuffix(event.Name, ".lua") {
		return
	}
	h.config.Log(3, "HotLoader: event %s on %s", event.Op, event.Name)

	switch {
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		h.queue(event.Name, true)
	case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
		h.queue(event.Name, false)
	}
}

// queue records a change; the latest event for a path wins.
func (h *HotLoader) queue(path string, removed bool) {
	h.debounceMu.Lock()
	h.pending[path] = pendingChange{at: time.Now(), removed: removed}
	h.debounceMu.Unlock()
}

// debounceLoop processes pending changes after the debounce delay.
func (h *HotLoader) debounceLoop() {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.processPending()
		}
	}
}

// processPending applies changes that have been quiet for debounceDelay.
func (h *HotLoader) processPending() {
	h.debounceMu.Lock()
	now := time.Now()
	ready := make(map[string]bool)
	for path, change := range h.pending {
		if now.Sub(change.at) >= h.debounceDelay {
			ready[path] = change.removed
			delete(h.pending, path)
		}
	}
	h.debounceMu.Unlock()

	for path, removed := range ready {
		h.apply(path, removed)
	}
}

// apply reloads or unloads one script, recovering from panics so a bad
// script cannot take the server down.
func (h *HotLoader) apply(path string, removed bool) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			h.config.Log(0, "HotLoader: PANIC reloading %s: %v", path, r)
		}
		if h.onReload != nil {
			h.onReload(path, removed, err)
		}
	}()

	if removed {
		if h.loader.Unload(ScriptName(path)) {
			h.config.Log(1, "HotLoader: unloaded %s", path)
		}
		return
	}

	h.config.Log(1, "HotLoader: reloading %s", path)
	if _, err = h.loader.LoadFile(path); err != nil {
		h.config.Log(1, "HotLoader: error reloading %s: %v", path, err)
	}
}
