package store

import "time"

// FrameID uniquely identifies a captured frame. IDs are assigned from a
// monotonic counter, so ordering by ID matches capture order.
type FrameID int64

// Frame is one captured screen image held in the store. A Frame is published
// atomically by Put and never mutated afterwards; eviction only unlinks the
// backing file, so a reader that already opened or copied it is unaffected.
type Frame struct {
	ID         FrameID
	Path       string
	CapturedAt time.Time
}
