package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

var (
	// ErrStorageFull is returned by Put when the backing medium rejects the
	// write for lack of space.
	ErrStorageFull = errors.New("storage full")

	// ErrStorageUnavailable is returned by Put for any other write failure
	// (permissions, missing directory, I/O error).
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Store owns a directory of captured frames and their in-memory metadata.
// Put, Latest, Read and EvictExpired are safe for concurrent use.
type Store struct {
	dir string

	mu     sync.RWMutex
	frames []Frame // in capture order
	nextID FrameID
}

// Open prepares dir as the store's exclusive frame directory, creating it if
// needed and removing frame files left over from a previous run.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create frame directory: %w", err)
	}

	// Leftovers from a crashed run have no metadata and would never be
	// evicted, so clear them up front.
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frame directory: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "frame-") || strings.HasPrefix(name, ".tmp-") {
			_ = os.Remove(filepath.Join(dir, name))
		}
	}

	return &Store{dir: dir, nextID: 1}, nil
}

// Put persists png as a new frame with a fresh id and the current timestamp.
// The bytes are written to a temporary name and renamed into place, so Latest
// never observes a partially written frame.
func (s *Store) Put(png []byte) (Frame, error) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.mu.Unlock()

	tmp := filepath.Join(s.dir, fmt.Sprintf(".tmp-%d", id))
	final := filepath.Join(s.dir, fmt.Sprintf("frame-%d.png", id))

	if err := os.WriteFile(tmp, png, 0o644); err != nil {
		_ = os.Remove(tmp)
		return Frame{}, classifyWriteError(err)
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return Frame{}, classifyWriteError(err)
	}

	f := Frame{ID: id, Path: final, CapturedAt: time.Now().UTC()}

	s.mu.Lock()
	s.frames = append(s.frames, f)
	s.mu.Unlock()

	return f, nil
}

// Latest returns the most recently captured, non-evicted frame. The second
// return is false if the store is empty.
func (s *Store) Latest() (Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.frames) == 0 {
		return Frame{}, false
	}

	best := s.frames[0]
	for _, f := range s.frames[1:] {
		if f.CapturedAt.After(best.CapturedAt) ||
			(f.CapturedAt.Equal(best.CapturedAt) && f.ID > best.ID) {
			best = f
		}
	}
	return best, true
}

// Read returns a snapshot of the frame's bytes. Callers read before starting
// extraction so a concurrent eviction cannot invalidate the image mid-read.
func (s *Store) Read(f Frame) ([]byte, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read frame %d: %w", f.ID, err)
	}
	return data, nil
}

// EvictExpired removes every frame whose age exceeds window and returns the
// number removed. It is idempotent and safe to call concurrently with Put.
func (s *Store) EvictExpired(window time.Duration) int {
	cutoff := time.Now().UTC().Add(-window)

	s.mu.Lock()
	kept := s.frames[:0]
	var expired []Frame
	for _, f := range s.frames {
		if f.CapturedAt.Before(cutoff) {
			expired = append(expired, f)
		} else {
			kept = append(kept, f)
		}
	}
	s.frames = kept
	s.mu.Unlock()

	// Unlink outside the lock; an in-flight reader holding the bytes (or an
	// open descriptor) is unaffected by the unlink.
	for _, f := range expired {
		_ = os.Remove(f.Path)
	}
	return len(expired)
}

// Len returns the number of non-evicted frames.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.frames)
}

// Sweep runs the eviction loop: every interval it evicts frames older than
// window until ctx is canceled. onEvict, if non-nil, is called with the count
// of each non-empty sweep (used for metrics).
func (s *Store) Sweep(ctx context.Context, interval, window time.Duration, log *slog.Logger, onEvict func(int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := s.EvictExpired(window)
			if n > 0 {
				log.Debug("frames evicted", slog.Int("count", n))
				if onEvict != nil {
					onEvict(n)
				}
			}
		}
	}
}

// classifyWriteError maps a filesystem error onto the store's error taxonomy.
func classifyWriteError(err error) error {
	if errors.Is(err, syscall.ENOSPC) {
		return fmt.Errorf("%w: %v", ErrStorageFull, err)
	}
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}
