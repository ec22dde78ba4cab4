package memory

import (
	"errors"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"github.com/statekit/statekit/lib/storage"
	storagetest "github.com/statekit/statekit/lib/storage/testing"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestMemoryBackend(t *testing.T) {
	storagetest.RunBackendTests(t, "Memory", func(t *testing.T) (storage.Backend, storage.Backend) {
		hub := NewHub(nil)
		t.Cleanup(func() { _ = hub.Close() })
		return hub.Handle(), hub.Handle()
	})
}

func TestQuota(t *testing.T) {
	hub := NewHub(&HubOptions{MaxBytes: 16})
	defer hub.Close()

	backend := hub.Handle()

	if err := backend.SetItem("k", "12345"); err != nil {
		t.Fatalf("write within quota failed: %v", err)
	}

	err := backend.SetItem("other", "this value is far too large for the quota")
	if !errors.Is(err, storage.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}

	// Overwriting with a value of equal size stays within quota.
	if err := backend.SetItem("k", "54321"); err != nil {
		t.Errorf("same-size overwrite failed: %v", err)
	}

	// Removing frees the accounted bytes.
	if err := backend.RemoveItem("k"); err != nil {
		t.Fatalf("RemoveItem failed: %v", err)
	}
	if err := backend.SetItem("k2", "1234567890"); err != nil {
		t.Errorf("write after free failed: %v", err)
	}
}

func TestHandleCloseDetachesWatchers(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	a := hub.Handle()
	b := hub.Handle()

	var mu sync.Mutex
	var got []storage.ChangeEvent
	if _, err := b.Watch(func(ev storage.ChangeEvent) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	}); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := a.SetItem("k", "v"); err != nil {
		t.Fatalf("SetItem failed: %v", err)
	}

	// The hub still accepts the write, data remains shared.
	if value, ok, _ := b.GetItem("k"); !ok || value != "v" {
		t.Errorf("expected data to stay readable after handle Close")
	}

	mu.Lock()
	count := len(got)
	mu.Unlock()
	if count != 0 {
		t.Errorf("expected no deliveries after handle Close, got %d", count)
	}
}

func TestWritesAfterHubCloseDropEvents(t *testing.T) {
	hub := NewHub(nil)
	backend := hub.Handle()

	if err := hub.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Writes still work, just without dispatch.
	if err := backend.SetItem("k", "v"); err != nil {
		t.Errorf("SetItem after hub Close failed: %v", err)
	}
}
