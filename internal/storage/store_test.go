package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

type failingStore struct {
	data map[string]string
	fail bool
}

func (f *failingStore) Get(key string) (string, bool) {
	v, ok := f.data[key]
	return v, ok
}

func (f *failingStore) Set(key, value string) error {
	if f.fail {
		return errors.New("quota exceeded")
	}
	if f.data == nil {
		f.data = make(map[string]string)
	}
	f.data[key] = value
	return nil
}

func (f *failingStore) Remove(key string) {
	delete(f.data, key)
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()

	if _, ok := store.Get("missing"); ok {
		t.Fatal("missing key reported present")
	}
	if err := store.Set("k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, ok := store.Get("k"); !ok || v != "v" {
		t.Fatalf("Get = %q/%v, want v/true", v, ok)
	}
	store.Remove("k")
	if _, ok := store.Get("k"); ok {
		t.Fatal("removed key reported present")
	}
}

func TestFallbackSwitchesToMemoryOnWriteFailure(t *testing.T) {
	primary := &failingStore{fail: true}
	fb := NewFallback(primary, zap.NewNop())

	if err := fb.Set("k", "v"); err != nil {
		t.Fatalf("fallback surfaced error: %v", err)
	}
	if !fb.Degraded() {
		t.Fatal("fallback not degraded after write failure")
	}
	if v, ok := fb.Get("k"); !ok || v != "v" {
		t.Fatalf("Get after degrade = %q/%v, want v/true", v, ok)
	}

	// The primary is never touched again, even if it recovers.
	primary.fail = false
	if err := fb.Set("k2", "v2"); err != nil {
		t.Fatalf("Set after degrade: %v", err)
	}
	if _, ok := primary.Get("k2"); ok {
		t.Fatal("degraded fallback wrote to primary")
	}
}

func TestFallbackUsesPrimaryWhileHealthy(t *testing.T) {
	primary := &failingStore{}
	fb := NewFallback(primary, zap.NewNop())

	if err := fb.Set("k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, ok := primary.Get("k"); !ok || v != "v" {
		t.Fatalf("primary Get = %q/%v, want v/true", v, ok)
	}
	if fb.Degraded() {
		t.Fatal("healthy fallback reports degraded")
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(path, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer store.Close()

	if _, ok := store.Get("missing"); ok {
		t.Fatal("missing key reported present")
	}
	if err := store.Set("k", "v1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Set("k", "v2"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	if v, ok := store.Get("k"); !ok || v != "v2" {
		t.Fatalf("Get = %q/%v, want v2/true", v, ok)
	}
	store.Remove("k")
	if _, ok := store.Get("k"); ok {
		t.Fatal("removed key reported present")
	}
}
