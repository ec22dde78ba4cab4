package vstore

import (
	"fmt"

	"github.com/statekit/statekit/lib/storage"
	"github.com/statekit/statekit/lib/store"
)

// attachWatcher subscribes the store to the backend's change broadcast.
// Called with the first local subscriber; a backend without FeatureWatch
// simply leaves cross-context changes unobserved.
func (s *storeImpl[T]) attachWatcher() {
	if !s.cfg.Backend.SupportsFeature(storage.FeatureWatch) {
		return
	}

	cancel, err := s.cfg.Backend.Watch(s.handleForeignChange)
	if err != nil {
		s.report(store.NewError(store.KindEnvironment, s.cfg.Key, err))
		return
	}

	s.subMu.Lock()
	if len(s.subs) == 0 {
		// All subscribers vanished while we were attaching.
		s.subMu.Unlock()
		cancel()
		return
	}
	s.unwatch = cancel
	s.subMu.Unlock()
}

// handleForeignChange runs a change made by another context through the
// read pipeline and notifies subscribers. Unlike a local read there is no
// default-value fallback and no self-healing delete: this context does not
// own the write. Failures are swallowed after reporting.
func (s *storeImpl[T]) handleForeignChange(ev storage.ChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			s.report(store.NewError(store.KindDeserialization, s.cfg.Key, fmt.Errorf("foreign change handler panicked: %v", r)))
		}
	}()

	if ev.Key != s.cfg.Key {
		return
	}

	if ev.NewValue == nil {
		var zero T
		s.notify(zero, false)
		return
	}

	value, ok := s.pipeline(*ev.NewValue, false)
	if !ok {
		return
	}
	s.notify(value, true)
}
