package file

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/statekit/statekit/lib/storage"
	storagetest "github.com/statekit/statekit/lib/storage/testing"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestFileBackend(t *testing.T) {
	storagetest.RunBackendTests(t, "File", func(t *testing.T) (storage.Backend, storage.Backend) {
		dir := t.TempDir()

		a, err := NewFileBackend(dir)
		if err != nil {
			t.Fatalf("NewFileBackend failed: %v", err)
		}
		b, err := NewFileBackend(dir)
		if err != nil {
			t.Fatalf("NewFileBackend failed: %v", err)
		}

		t.Cleanup(func() {
			_ = a.Close()
			_ = b.Close()
		})
		return a, b
	})
}

func TestKeyEncoding(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewFileBackend(dir)
	if err != nil {
		t.Fatalf("NewFileBackend failed: %v", err)
	}
	defer backend.Close()

	// Keys with path separators and unicode must not escape the directory.
	keys := []string{"plain", "with/slash", "with\\backslash", "../escape", "ünïcode"}
	for _, key := range keys {
		if err := backend.SetItem(key, "value of "+key); err != nil {
			t.Fatalf("SetItem(%q) failed: %v", key, err)
		}
	}

	for _, key := range keys {
		value, ok, err := backend.GetItem(key)
		if err != nil || !ok || value != "value of "+key {
			t.Errorf("GetItem(%q) = %q, %v, %v", key, value, ok, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != len(keys) {
		t.Errorf("expected %d files in %s, got %d", len(keys), dir, len(entries))
	}
	for _, entry := range entries {
		if filepath.Dir(filepath.Join(dir, entry.Name())) != dir {
			t.Errorf("file %q escaped the storage directory", entry.Name())
		}
	}
}

func TestValuesSurviveReopen(t *testing.T) {
	dir := t.TempDir()

	backend, err := NewFileBackend(dir)
	if err != nil {
		t.Fatalf("NewFileBackend failed: %v", err)
	}
	if err := backend.SetItem("persisted", "value"); err != nil {
		t.Fatalf("SetItem failed: %v", err)
	}
	if err := backend.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewFileBackend(dir)
	if err != nil {
		t.Fatalf("NewFileBackend failed: %v", err)
	}
	defer reopened.Close()

	value, ok, err := reopened.GetItem("persisted")
	if err != nil || !ok || value != "value" {
		t.Errorf("expected persisted value after reopen, got %q, %v, %v", value, ok, err)
	}
}

func TestCancelInsideCallback(t *testing.T) {
	dir := t.TempDir()

	a, err := NewFileBackend(dir)
	if err != nil {
		t.Fatalf("NewFileBackend failed: %v", err)
	}
	defer a.Close()

	b, err := NewFileBackend(dir)
	if err != nil {
		t.Fatalf("NewFileBackend failed: %v", err)
	}

	// A subscriber unsubscribing itself from inside its own callback runs
	// the cancel on the watch goroutine; it must return instead of waiting
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

	// Close still joins the watch goroutine afterwards.
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

func TestForeignFilesIgnored(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewFileBackend(dir)
	if err != nil {
		t.Fatalf("NewFileBackend failed: %v", err)
	}
	defer backend.Close()

	if err := os.WriteFile(filepath.Join(dir, "README.txt"), []byte("not a value"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := backend.SetItem("k", "v"); err != nil {
		t.Fatalf("SetItem failed: %v", err)
	}

	keys, err := backend.Keys()
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 1 || keys[0] != "k" {
		t.Errorf("expected only the value file to be listed, got %v", keys)
	}
}
