package file

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/statekit/statekit/lib/storage"
)

// itemSuffix distinguishes value files from temp files and foreign content
// in the directory.
const itemSuffix = ".kv"

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewFileBackend creates a durable backend storing one file per key inside
// dir. The directory is created if missing. Writes are atomic
// (temp file + rename), so watchers in other processes never observe a
// half-written value.
func NewFileBackend(dir string) (storage.Backend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file backend: %w", err)
	}
	return &fileBackendImpl{
		dir:        dir,
		subs:       make(map[uint64]func(storage.ChangeEvent)),
		lastSeen:   make(map[string]string),
		ownWrites:  make(map[string]string),
		ownRemoves: make(map[string]struct{}),
	}, nil
}

type fileBackendImpl struct {
	dir string

	// mu guards subscription state, the watcher lifecycle and the
	// own-write suppression bookkeeping.
	mu         sync.Mutex
	subs       map[uint64]func(storage.ChangeEvent)
	nextSub    uint64
	watcher    *fsnotify.Watcher
	wg         sync.WaitGroup
	lastSeen   map[string]string
	ownWrites  map[string]string
	ownRemoves map[string]struct{}
	closed     bool
}

// --------------------------------------------------------------------------
// Path Mapping
// --------------------------------------------------------------------------

// keyToFile encodes a key into a filesystem-safe file name.
func (b *fileBackendImpl) keyToFile(key string) string {
	return filepath.Join(b.dir, base64.RawURLEncoding.EncodeToString([]byte(key))+itemSuffix)
}

// fileToKey reverses keyToFile. The boolean is false for files that are not
// value files (temp files, foreign content).
func fileToKey(name string) (string, bool) {
	base := filepath.Base(name)
	if !strings.HasSuffix(base, itemSuffix) {
		return "", false
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(base, itemSuffix))
	if err != nil {
		return "", false
	}
	return string(raw), true
}

// --------------------------------------------------------------------------
// Interface Methods (docu see storage.Backend)
// --------------------------------------------------------------------------

func (b *fileBackendImpl) GetItem(key string) (string, bool, error) {
	raw, err := os.ReadFile(b.keyToFile(key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("file backend: %w", err)
	}
	return string(raw), true, nil
}

func (b *fileBackendImpl) SetItem(key string, value string) error {
	path := b.keyToFile(key)
	tmp := path + ".tmp"

	// Record the write before it lands so the watcher goroutine can
	// classify the resulting fsnotify event as our own.
	b.mu.Lock()
	b.ownWrites[key] = value
	b.mu.Unlock()

	if err := os.WriteFile(tmp, []byte(value), 0o644); err != nil {
		b.clearOwnWrite(key)
		return fmt.Errorf("file backend: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		b.clearOwnWrite(key)
		return fmt.Errorf("file backend: %w", err)
	}
	return nil
}

func (b *fileBackendImpl) RemoveItem(key string) error {
	b.mu.Lock()
	b.ownRemoves[key] = struct{}{}
	b.mu.Unlock()

	if err := os.Remove(b.keyToFile(key)); err != nil && !os.IsNotExist(err) {
		b.mu.Lock()
		delete(b.ownRemoves, key)
		b.mu.Unlock()
		return fmt.Errorf("file backend: %w", err)
	}
	return nil
}

func (b *fileBackendImpl) Keys() ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("file backend: %w", err)
	}
	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		if key, ok := fileToKey(entry.Name()); ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (b *fileBackendImpl) Len() (int, error) {
	keys, err := b.Keys()
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

func (b *fileBackendImpl) Watch(fn func(storage.ChangeEvent)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("file backend: closed")
	}

	// Lazily start the single directory watcher with the first subscriber.
	if b.watcher == nil {
		if err := b.startWatcherLocked(); err != nil {
			return nil, err
		}
	}

	b.nextSub++
	id := b.nextSub
	b.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			var watcher *fsnotify.Watcher
			if len(b.subs) == 0 {
				watcher = b.watcher
				b.watcher = nil
			}
			b.mu.Unlock()

			// Signal only, never wait: the cancel may run on the watch
			// goroutine itself when a subscriber unsubscribes from inside
			// its callback. Close joins the goroutine.
			if watcher != nil {
				_ = watcher.Close()
			}
		})
	}, nil
}

func (b *fileBackendImpl) SupportsFeature(feature storage.Feature) bool {
	supported := storage.FeatureGet |
		storage.FeatureSet |
		storage.FeatureRemove |
		storage.FeatureKeys |
		storage.FeatureWatch |
		storage.FeaturePersistent
	return supported&feature == feature
}

func (b *fileBackendImpl) Info() storage.BackendInfo {
	return storage.BackendInfo{
		Type:  storage.ImplFile,
		Scope: storage.ScopeLocal,
		SupportedFeatures: []storage.Feature{
			storage.FeatureGet, storage.FeatureSet, storage.FeatureRemove,
			storage.FeatureKeys, storage.FeatureWatch, storage.FeaturePersistent,
		},
		Metadata: &struct {
			Dir string `json:"dir"`
		}{Dir: b.dir},
	}
}

func (b *fileBackendImpl) Close() error {
	b.mu.Lock()
	b.closed = true
	b.subs = make(map[uint64]func(storage.ChangeEvent))
	watcher := b.watcher
	b.watcher = nil
	b.mu.Unlock()

	if watcher != nil {
		_ = watcher.Close()
	}
	// Waits for any watch loop, including one already signaled by a cancel.
	b.wg.Wait()
	return nil
}

// --------------------------------------------------------------------------
// Watcher
// --------------------------------------------------------------------------

// startWatcherLocked seeds the last-seen snapshot and starts the fsnotify
// event loop. Caller must hold b.mu.
func (b *fileBackendImpl) startWatcherLocked() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("file backend: %w", err)
	}
	if err := watcher.Add(b.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("file backend: %w", err)
	}

	// Snapshot current values so removals and overwrites can report an
	// old value.
	b.lastSeen = make(map[string]string)
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		_ = watcher.Close()
		return fmt.Errorf("file backend: %w", err)
	}
	for _, entry := range entries {
		key, ok := fileToKey(entry.Name())
		if !ok {
			continue
		}
		if raw, err := os.ReadFile(filepath.Join(b.dir, entry.Name())); err == nil {
			b.lastSeen[key] = string(raw)
		}
	}

	b.watcher = watcher
	b.wg.Add(1)
	go b.watchLoop(watcher)
	return nil
}

// watchLoop turns fsnotify events into ChangeEvents, suppressing this
// backend's own writes and removals.
func (b *fileBackendImpl) watchLoop(watcher *fsnotify.Watcher) {
	defer b.wg.Done()
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			key, isItem := fileToKey(ev.Name)
			if !isItem {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				raw, err := os.ReadFile(ev.Name)
				if err != nil {
					// Racing a removal, the Remove event follows.
					continue
				}
				b.handleUpsert(key, string(raw))
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				b.handleRemove(key)
			}
		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (b *fileBackendImpl) handleUpsert(key, value string) {
	b.mu.Lock()

	old, hadOld := b.lastSeen[key]
	b.lastSeen[key] = value

	if own, ok := b.ownWrites[key]; ok && own == value {
		delete(b.ownWrites, key)
		b.mu.Unlock()
		return
	}

	ev := storage.ChangeEvent{Key: key, NewValue: &value}
	if hadOld {
		ev.OldValue = &old
	}
	targets := b.snapshotSubsLocked()
	b.mu.Unlock()

	for _, fn := range targets {
		fn(ev)
	}
}

func (b *fileBackendImpl) handleRemove(key string) {
	b.mu.Lock()

	old, hadOld := b.lastSeen[key]
	delete(b.lastSeen, key)

	if _, ok := b.ownRemoves[key]; ok {
		delete(b.ownRemoves, key)
		b.mu.Unlock()
		return
	}

	ev := storage.ChangeEvent{Key: key}
	if hadOld {
		ev.OldValue = &old
	}
	targets := b.snapshotSubsLocked()
	b.mu.Unlock()

	for _, fn := range targets {
		fn(ev)
	}
}

// snapshotSubsLocked copies the subscriber set. Caller must hold b.mu.
func (b *fileBackendImpl) snapshotSubsLocked() []func(storage.ChangeEvent) {
	targets := make([]func(storage.ChangeEvent), 0, len(b.subs))
	for _, fn := range b.subs {
		targets = append(targets, fn)
	}
	return targets
}

func (b *fileBackendImpl) clearOwnWrite(key string) {
	b.mu.Lock()
	delete(b.ownWrites, key)
	b.mu.Unlock()
}
