package testing

import (
	"testing"
	"time"

	"github.com/statekit/statekit/lib/storage"
)

// BackendFactory creates two storage contexts over the same underlying
// storage, so cross-context change delivery can be exercised. Cleanup is the
// factory's responsibility (use t.Cleanup).
type BackendFactory func(t *testing.T) (a, b storage.Backend)

// RunBackendTests runs the conformance test suite for a Backend
// implementation.
func RunBackendTests(t *testing.T, name string, factory BackendFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory)
		})

		t.Run("Remove", func(t *testing.T) {
			testRemove(t, factory)
		})

		t.Run("Keys&Len", func(t *testing.T) {
			testKeysLen(t, factory)
		})

		t.Run("SharedData", func(t *testing.T) {
			testSharedData(t, factory)
		})

		t.Run("WatchUpsert", func(t *testing.T) {
			testWatchUpsert(t, factory)
		})

		t.Run("WatchRemove", func(t *testing.T) {
			testWatchRemove(t, factory)
		})

		t.Run("WatchOwnWriteSuppressed", func(t *testing.T) {
			testWatchOwnWriteSuppressed(t, factory)
		})

		t.Run("WatchCancel", func(t *testing.T) {
			testWatchCancel(t, factory)
		})

		t.Run("Features", func(t *testing.T) {
			testFeatures(t, factory)
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

const eventTimeout = 3 * time.Second

// requireFeature skips the test if the backend does not support the feature.
func requireFeature(t testing.TB, backend storage.Backend, feature storage.Feature) {
	t.Helper()
	if !backend.SupportsFeature(feature) {
		t.Skip()
	}
}

// watchInto registers a watcher that forwards events into a channel.
func watchInto(t *testing.T, backend storage.Backend) <-chan storage.ChangeEvent {
	t.Helper()
	events := make(chan storage.ChangeEvent, 16)
	cancel, err := backend.Watch(func(ev storage.ChangeEvent) {
		events <- ev
	})
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	t.Cleanup(cancel)
	return events
}

// awaitEvent waits for the next event for the given key.
func awaitEvent(t *testing.T, events <-chan storage.ChangeEvent, key string) storage.ChangeEvent {
	t.Helper()
	deadline := time.After(eventTimeout)
	for {
		select {
		case ev := <-events:
			if ev.Key == key {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for change event for key %q", key)
		}
	}
}

// expectNoEvent asserts that no event for the given key arrives within the
// grace window.
func expectNoEvent(t *testing.T, events <-chan storage.ChangeEvent, key string, grace time.Duration) {
	t.Helper()
	deadline := time.After(grace)
	for {
		select {
		case ev := <-events:
			if ev.Key == key {
				t.Fatalf("unexpected change event for key %q: %+v", key, ev)
			}
		case <-deadline:
			return
		}
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, factory BackendFactory) {
	backend, _ := factory(t)
	requireFeature(t, backend, storage.FeatureSet|storage.FeatureGet)

	if _, ok, err := backend.GetItem("missing"); err != nil || ok {
		t.Errorf("expected absent key, got ok=%v err=%v", ok, err)
	}

	if err := backend.SetItem("k", "v1"); err != nil {
		t.Fatalf("SetItem failed: %v", err)
	}

	value, ok, err := backend.GetItem("k")
	if err != nil || !ok || value != "v1" {
		t.Errorf("expected v1, got value=%q ok=%v err=%v", value, ok, err)
	}

	// Overwrite
	if err := backend.SetItem("k", "v2"); err != nil {
		t.Fatalf("SetItem failed: %v", err)
	}
	value, ok, _ = backend.GetItem("k")
	if !ok || value != "v2" {
		t.Errorf("expected v2 after overwrite, got value=%q ok=%v", value, ok)
	}
}

func testRemove(t *testing.T, factory BackendFactory) {
	backend, _ := factory(t)
	requireFeature(t, backend, storage.FeatureSet|storage.FeatureRemove)

	if err := backend.SetItem("k", "v"); err != nil {
		t.Fatalf("SetItem failed: %v", err)
	}
	if err := backend.RemoveItem("k"); err != nil {
		t.Fatalf("RemoveItem failed: %v", err)
	}
	if _, ok, _ := backend.GetItem("k"); ok {
		t.Errorf("expected key to be gone after RemoveItem")
	}

	// Removing an absent key is not an error.
	if err := backend.RemoveItem("never-existed"); err != nil {
		t.Errorf("RemoveItem on absent key failed: %v", err)
	}
}

func testKeysLen(t *testing.T, factory BackendFactory) {
	backend, _ := factory(t)
	requireFeature(t, backend, storage.FeatureSet|storage.FeatureKeys)

	for _, key := range []string{"a", "b", "c"} {
		if err := backend.SetItem(key, "v"); err != nil {
			t.Fatalf("SetItem failed: %v", err)
		}
	}

	keys, err := backend.Keys()
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 3 {
		t.Errorf("expected 3 keys, got %v", keys)
	}

	count, err := backend.Len()
	if err != nil || count != 3 {
		t.Errorf("expected Len 3, got %d (err=%v)", count, err)
	}
}

func testSharedData(t *testing.T, factory BackendFactory) {
	a, b := factory(t)
	requireFeature(t, a, storage.FeatureSet|storage.FeatureGet)

	if err := a.SetItem("shared", "from-a"); err != nil {
		t.Fatalf("SetItem failed: %v", err)
	}

	value, ok, err := b.GetItem("shared")
	if err != nil || !ok || value != "from-a" {
		t.Errorf("expected write through a to be visible through b, got value=%q ok=%v err=%v", value, ok, err)
	}
}

func testWatchUpsert(t *testing.T, factory BackendFactory) {
	a, b := factory(t)
	requireFeature(t, a, storage.FeatureWatch)

	events := watchInto(t, b)

	if err := a.SetItem("watched", "v1"); err != nil {
		t.Fatalf("SetItem failed: %v", err)
	}

	ev := awaitEvent(t, events, "watched")
	if ev.NewValue == nil || *ev.NewValue != "v1" {
		t.Errorf("expected NewValue v1, got %+v", ev)
	}
}

func testWatchRemove(t *testing.T, factory BackendFactory) {
	a, b := factory(t)
	requireFeature(t, a, storage.FeatureWatch)

	if err := a.SetItem("doomed", "v"); err != nil {
		t.Fatalf("SetItem failed: %v", err)
	}

	events := watchInto(t, b)
	// Drain events caused by the setup write before removing.
	drainEvents(t, events)

	if err := a.RemoveItem("doomed"); err != nil {
		t.Fatalf("RemoveItem failed: %v", err)
	}

	ev := awaitEvent(t, events, "doomed")
	if ev.NewValue != nil {
		t.Errorf("expected removal event (nil NewValue), got %+v", ev)
	}
}

// drainEvents discards events caused by setup writes.
func drainEvents(t *testing.T, events <-chan storage.ChangeEvent) {
	t.Helper()
	deadline := time.After(500 * time.Millisecond)
	for {
		select {
		case <-events:
		case <-deadline:
			return
		}
	}
}

func testWatchOwnWriteSuppressed(t *testing.T, factory BackendFactory) {
	a, _ := factory(t)
	requireFeature(t, a, storage.FeatureWatch)

	events := watchInto(t, a)

	if err := a.SetItem("own", "v"); err != nil {
		t.Fatalf("SetItem failed: %v", err)
	}

	expectNoEvent(t, events, "own", time.Second)
}

func testWatchCancel(t *testing.T, factory BackendFactory) {
	a, b := factory(t)
	requireFeature(t, a, storage.FeatureWatch)

	events := make(chan storage.ChangeEvent, 16)
	cancel, err := b.Watch(func(ev storage.ChangeEvent) {
		events <- ev
	})
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	cancel()
	cancel() // idempotent

	if err := a.SetItem("after-cancel", "v"); err != nil {
		t.Fatalf("SetItem failed: %v", err)
	}

	expectNoEvent(t, events, "after-cancel", time.Second)
}

func testFeatures(t *testing.T, factory BackendFactory) {
	backend, _ := factory(t)

	base := storage.FeatureGet | storage.FeatureSet | storage.FeatureRemove | storage.FeatureKeys
	if !backend.SupportsFeature(base) {
		t.Errorf("backend must support the base feature set")
	}

	info := backend.Info()
	if info.Type == "" || info.Scope == "" {
		t.Errorf("Info must report type and scope, got %+v", info)
	}
}
