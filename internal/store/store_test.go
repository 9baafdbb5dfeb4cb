package store

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestStore_Latest_empty(t *testing.T) {
	s := newTestStore(t)

	_, ok := s.Latest()
	if ok {
		t.Error("expected no frame from empty store")
	}
}

func TestStore_Put_assignsMonotonicIDs(t *testing.T) {
	s := newTestStore(t)

	f1, err := s.Put([]byte("a"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	f2, err := s.Put([]byte("b"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	if f2.ID <= f1.ID {
		t.Errorf("ids not monotonic: %d then %d", f1.ID, f2.ID)
	}
	if f2.CapturedAt.Before(f1.CapturedAt) {
		t.Errorf("timestamps out of order: %v then %v", f1.CapturedAt, f2.CapturedAt)
	}
}

func TestStore_Latest_returnsNewest(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		if _, err := s.Put([]byte{byte(i)}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	last, err := s.Put([]byte("newest"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := s.Latest()
	if !ok {
		t.Fatal("Latest: no frame")
	}
	if got.ID != last.ID {
		t.Errorf("Latest: got id %d, want %d", got.ID, last.ID)
	}
}

func TestStore_Latest_tieBrokenByID(t *testing.T) {
	s := newTestStore(t)

	f1, _ := s.Put([]byte("a"))
	f2, _ := s.Put([]byte("b"))

	// Force identical timestamps; the higher id must win.
	s.mu.Lock()
	ts := time.Now().UTC()
	s.frames[0].CapturedAt = ts
	s.frames[1].CapturedAt = ts
	s.mu.Unlock()

	got, ok := s.Latest()
	if !ok {
		t.Fatal("Latest: no frame")
	}
	if got.ID != f2.ID {
		t.Errorf("Latest tie-break: got id %d, want %d (over %d)", got.ID, f2.ID, f1.ID)
	}
}

func TestStore_Read_roundTrip(t *testing.T) {
	s := newTestStore(t)

	want := []byte("not really a png")
	f, err := s.Put(want)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Read(f)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("Read: got %q, want %q", got, want)
	}
}

func TestStore_EvictExpired_removesOnlyExpired(t *testing.T) {
	s := newTestStore(t)

	old, _ := s.Put([]byte("old"))
	fresh, _ := s.Put([]byte("fresh"))

	// Age the first frame past the window.
	s.mu.Lock()
	s.frames[0].CapturedAt = time.Now().UTC().Add(-time.Hour)
	s.mu.Unlock()

	n := s.EvictExpired(time.Minute)
	if n != 1 {
		t.Fatalf("EvictExpired: evicted %d, want 1", n)
	}

	got, ok := s.Latest()
	if !ok || got.ID != fresh.ID {
		t.Errorf("Latest after eviction: ok=%v id=%d, want id %d", ok, got.ID, fresh.ID)
	}
	if _, err := os.Stat(old.Path); !os.IsNotExist(err) {
		t.Errorf("evicted frame file still exists: %v", err)
	}
	if _, err := os.Stat(fresh.Path); err != nil {
		t.Errorf("non-expired frame file removed: %v", err)
	}
}

func TestStore_EvictExpired_idempotent(t *testing.T) {
	s := newTestStore(t)

	s.Put([]byte("a"))
	s.Put([]byte("b"))
	s.mu.Lock()
	s.frames[0].CapturedAt = time.Now().UTC().Add(-time.Hour)
	s.mu.Unlock()

	first := s.EvictExpired(time.Minute)
	second := s.EvictExpired(time.Minute)

	if first != 1 || second != 0 {
		t.Errorf("EvictExpired: got %d then %d, want 1 then 0", first, second)
	}
	if s.Len() != 1 {
		t.Errorf("Len after double eviction: got %d, want 1", s.Len())
	}
}

func TestStore_EvictExpired_doesNotInvalidateSnapshotRead(t *testing.T) {
	s := newTestStore(t)

	f, _ := s.Put([]byte("payload"))
	data, err := s.Read(f)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	s.mu.Lock()
	s.frames[0].CapturedAt = time.Now().UTC().Add(-time.Hour)
	s.mu.Unlock()
	s.EvictExpired(time.Minute)

	// The snapshot taken before eviction stays valid.
	if string(data) != "payload" {
		t.Errorf("snapshot corrupted after eviction: %q", data)
	}
}

func TestStore_Latest_ignoresPartialWrites(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	f, _ := s.Put([]byte("complete"))

	// Simulate a capture mid-write: a temp file exists but was never renamed.
	if err := os.WriteFile(filepath.Join(dir, ".tmp-99"), []byte("partial"), 0o644); err != nil {
		t.Fatalf("write temp: %v", err)
	}

	got, ok := s.Latest()
	if !ok || got.ID != f.ID {
		t.Errorf("Latest: ok=%v id=%d, want the complete frame %d", ok, got.ID, f.ID)
	}
}

func TestOpen_purgesLeftoverFrames(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "frame-7.png")
	if err := os.WriteFile(stale, []byte("stale"), 0o644); err != nil {
		t.Fatalf("write stale: %v", err)
	}

	if _, err := Open(dir); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("Open should remove frame files from previous runs")
	}
}

func TestStore_concurrentPutAndEvict(t *testing.T) {
	s := newTestStore(t)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			s.Put([]byte{byte(i)})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			s.EvictExpired(time.Hour)
		}
	}()
	wg.Wait()

	if s.Len() != 50 {
		t.Errorf("Len: got %d, want 50 (nothing should expire with a 1h window)", s.Len())
	}
}
