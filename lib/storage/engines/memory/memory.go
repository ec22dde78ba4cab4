package memory

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/statekit/statekit/lib/storage"
)

// defaultEventBuffer bounds the dispatch queue. Writers block once the
// watcher side falls this far behind.
const defaultEventBuffer = 1024

// --------------------------------------------------------------------------
// Hub
// --------------------------------------------------------------------------

// HubOptions configures a Hub during initialization.
type HubOptions struct {
	MaxBytes int // Total payload capacity in bytes (0 = unlimited)
}

// Hub is session-scoped shared storage. Every Handle created from one hub
// reads and writes the same data; change events made through one handle are
// dispatched, in order, to watchers on every other handle.
//
// A Hub is explicitly constructed and owned by its caller. There is no
// package-level instance.
type Hub struct {
	data *xsync.MapOf[string, string]

	// mu serializes writes so quota accounting and event ordering stay
	// consistent. Reads go through the lock-free map directly.
	mu        sync.Mutex
	usedBytes int
	maxBytes  int

	subMu   sync.Mutex
	subs    map[uint64]*hubSub
	nextSub uint64

	events chan storage.ChangeEvent
	done   chan struct{}
	closed atomic.Bool
	wg     sync.WaitGroup
}

type hubSub struct {
	origin string
	fn     func(storage.ChangeEvent)
}

// NewHub creates a hub and starts its event dispatcher.
//
// Thread-safety: the returned hub and all handles derived from it are safe
// for concurrent use.
func NewHub(opts *HubOptions) *Hub {
	if opts == nil {
		opts = &HubOptions{}
	}

	h := &Hub{
		data:     xsync.NewMapOf[string, string](),
		maxBytes: opts.MaxBytes,
		subs:     make(map[uint64]*hubSub),
		events:   make(chan storage.ChangeEvent, defaultEventBuffer),
		done:     make(chan struct{}),
	}

	h.wg.Add(1)
	go h.dispatch()

	return h
}

// Handle creates a new storage context over this hub. Each handle has its
// own origin identity: its writes are never delivered back to its own
// watchers.
func (h *Hub) Handle() storage.Backend {
	return &handleImpl{
		hub:    h,
		origin: uuid.NewString(),
		subIDs: make(map[uint64]struct{}),
	}
}

// Close stops event dispatch. Data stays readable; no further events are
// delivered.
func (h *Hub) Close() error {
	if h.closed.CompareAndSwap(false, true) {
		close(h.done)
		h.wg.Wait()
	}
	return nil
}

// dispatch delivers events to all subscriptions except the writer's own,
// preserving commit order.
func (h *Hub) dispatch() {
	defer h.wg.Done()
	for {
		select {
		case ev := <-h.events:
			h.subMu.Lock()
			targets := make([]*hubSub, 0, len(h.subs))
			for _, sub := range h.subs {
				if sub.origin != ev.Origin {
					targets = append(targets, sub)
				}
			}
			h.subMu.Unlock()

			for _, sub := range targets {
				sub.fn(ev)
			}
		case <-h.done:
			return
		}
	}
}

// emit queues an event for dispatch. Events after Close are dropped.
func (h *Hub) emit(ev storage.ChangeEvent) {
	if h.closed.Load() {
		return
	}
	select {
	case h.events <- ev:
	case <-h.done:
	}
}

func (h *Hub) addSub(origin string, fn func(storage.ChangeEvent)) uint64 {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	h.nextSub++
	id := h.nextSub
	h.subs[id] = &hubSub{origin: origin, fn: fn}
	return id
}

func (h *Hub) removeSub(id uint64) {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	delete(h.subs, id)
}

// --------------------------------------------------------------------------
// Handle (implements storage.Backend)
// --------------------------------------------------------------------------

type handleImpl struct {
	hub    *Hub
	origin string

	mu     sync.Mutex
	subIDs map[uint64]struct{}
}

func (b *handleImpl) GetItem(key string) (string, bool, error) {
	value, ok := b.hub.data.Load(key)
	return value, ok, nil
}

func (b *handleImpl) SetItem(key string, value string) error {
	h := b.hub
	h.mu.Lock()

	old, loaded := h.data.Load(key)
	delta := len(value)
	if loaded {
		delta -= len(old)
	} else {
		delta += len(key)
	}

	if h.maxBytes > 0 && h.usedBytes+delta > h.maxBytes {
		h.mu.Unlock()
		return storage.ErrQuotaExceeded
	}

	h.data.Store(key, value)
	h.usedBytes += delta

	ev := storage.ChangeEvent{Key: key, NewValue: &value, Origin: b.origin}
	if loaded {
		ev.OldValue = &old
	}
	h.mu.Unlock()

	h.emit(ev)
	return nil
}

func (b *handleImpl) RemoveItem(key string) error {
	h := b.hub
	h.mu.Lock()

	old, loaded := h.data.Load(key)
	if !loaded {
		h.mu.Unlock()
		return nil
	}

	h.data.Delete(key)
	h.usedBytes -= len(key) + len(old)
	h.mu.Unlock()

	h.emit(storage.ChangeEvent{Key: key, OldValue: &old, Origin: b.origin})
	return nil
}

func (b *handleImpl) Keys() ([]string, error) {
	keys := make([]string, 0, b.hub.data.Size())
	b.hub.data.Range(func(key string, _ string) bool {
		keys = append(keys, key)
		return true
	})
	return keys, nil
}

func (b *handleImpl) Len() (int, error) {
	return b.hub.data.Size(), nil
}

func (b *handleImpl) Watch(fn func(storage.ChangeEvent)) (func(), error) {
	id := b.hub.addSub(b.origin, fn)

	b.mu.Lock()
	b.subIDs[id] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.hub.removeSub(id)
			b.mu.Lock()
			delete(b.subIDs, id)
			b.mu.Unlock()
		})
	}, nil
}

func (b *handleImpl) SupportsFeature(feature storage.Feature) bool {
	supported := storage.FeatureGet |
		storage.FeatureSet |
		storage.FeatureRemove |
		storage.FeatureKeys |
		storage.FeatureWatch
	return supported&feature == feature
}

func (b *handleImpl) Info() storage.BackendInfo {
	b.hub.mu.Lock()
	used := b.hub.usedBytes
	b.hub.mu.Unlock()

	return storage.BackendInfo{
		Type:  storage.ImplMemory,
		Scope: storage.ScopeSession,
		SupportedFeatures: []storage.Feature{
			storage.FeatureGet, storage.FeatureSet, storage.FeatureRemove,
			storage.FeatureKeys, storage.FeatureWatch,
		},
		Metadata: &struct {
			UsedBytes int `json:"used_bytes"`
			MaxBytes  int `json:"max_bytes"`
		}{UsedBytes: used, MaxBytes: b.hub.maxBytes},
	}
}

// Close detaches this handle's watchers. The hub itself stays usable.
func (b *handleImpl) Close() error {
	b.mu.Lock()
	ids := make([]uint64, 0, len(b.subIDs))
	for id := range b.subIDs {
		ids = append(ids, id)
	}
	b.subIDs = make(map[uint64]struct{})
	b.mu.Unlock()

	for _, id := range ids {
		b.hub.removeSub(id)
	}
	return nil
}
