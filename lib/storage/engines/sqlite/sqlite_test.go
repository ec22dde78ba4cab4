package sqlite

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/statekit/statekit/lib/storage"
	storagetest "github.com/statekit/statekit/lib/storage/testing"
)

// A short poll interval keeps the watch tests fast.
const testPollInterval = 25 * time.Millisecond

func TestSQLiteBackend(t *testing.T) {
	storagetest.RunBackendTests(t, "SQLite", func(t *testing.T) (storage.Backend, storage.Backend) {
		path := filepath.Join(t.TempDir(), "state.db")

		a, err := NewSQLiteBackend(path, &Options{PollInterval: testPollInterval})
		if err != nil {
			t.Fatalf("NewSQLiteBackend failed: %v", err)
		}
		b, err := NewSQLiteBackend(path, &Options{PollInterval: testPollInterval})
		if err != nil {
			t.Fatalf("NewSQLiteBackend failed: %v", err)
		}

		t.Cleanup(func() {
			_ = a.Close()
			_ = b.Close()
		})
		return a, b
	})
}

func TestValuesSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	backend, err := NewSQLiteBackend(path, nil)
	if err != nil {
		t.Fatalf("NewSQLiteBackend failed: %v", err)
	}
	if err := backend.SetItem("persisted", "value"); err != nil {
		t.Fatalf("SetItem failed: %v", err)
	}
	if err := backend.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewSQLiteBackend(path, nil)
	if err != nil {
		t.Fatalf("NewSQLiteBackend failed: %v", err)
	}
	defer reopened.Close()

	value, ok, err := reopened.GetItem("persisted")
	if err != nil || !ok || value != "value" {
		t.Errorf("expected persisted value after reopen, got %q, %v, %v", value, ok, err)
	}
}

func TestCancelInsideCallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	a, err := NewSQLiteBackend(path, &Options{PollInterval: testPollInterval})
	if err != nil {
		t.Fatalf("NewSQLiteBackend failed: %v", err)
	}
	defer a.Close()

	b, err := NewSQLiteBackend(path, &Options{PollInterval: testPollInterval})
	if err != nil {
		t.Fatalf("NewSQLiteBackend failed: %v", err)
	}

	// A subscriber unsubscribing itself from inside its own callback runs
	// the cancel on the poll goroutine; it must return instead of waiting
	// for that goroutine to exit.
	cancelCh := make(chan func(), 1)
	done := make(chan struct{})
	var once sync.Once
	cancel, err := b.Watch(func(storage.ChangeEvent) {
		once.Do(func() {
			self := <-cancelCh
			self()
			self() // idempotent, also from the callback
			close(done)
		})
	})
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	cancelCh <- cancel

	if err := a.SetItem("k", "v"); err != nil {
		t.Fatalf("SetItem failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("cancel from inside the watch callback did not return")
	}

	// Close still joins the poll goroutine afterwards.
	closed := make(chan struct{})
	go func() {
		_ = b.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(3 * time.Second):
		t.Fatal("Close after in-callback cancel did not return")
	}
}

func TestCloseStopsWatcher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	backend, err := NewSQLiteBackend(path, &Options{PollInterval: testPollInterval})
	if err != nil {
		t.Fatalf("NewSQLiteBackend failed: %v", err)
	}

	if _, err := backend.Watch(func(storage.ChangeEvent) {}); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	// Close must stop the poller even with an active subscription.
	if err := backend.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}
