package extract

import (
	"context"
	"time"

	"ocr-relay/internal/store"
)

// Status reports whether an extraction ran to completion.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Result is the outcome of extracting text from one frame. A Success with
// confidence 0 means the engine ran to completion but recognized nothing;
// a Failure means the engine itself could not run (bad image, engine error,
// or time budget exceeded) and carries the detail.
type Result struct {
	SourceFrame store.FrameID
	Text        string
	Confidence  float64 // in [0,1]
	Status      Status
	ErrorDetail string
}

// Engine recognizes text in a single encoded image. Implementations must be
// deterministic for identical bytes and identical engine configuration, and
// must never mutate the input.
type Engine interface {
	Extract(ctx context.Context, png []byte) (text string, confidence float64, err error)
}

// Run invokes the engine under a time budget and folds every failure mode
// into a Failure-status Result rather than an escaping error. The engine
// call is not preempted once started; on timeout its eventual result is
// discarded.
func Run(ctx context.Context, e Engine, id store.FrameID, png []byte, budget time.Duration) Result {
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	type outcome struct {
		text string
		conf float64
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		text, conf, err := e.Extract(ctx, png)
		done <- outcome{text, conf, err}
	}()

	select {
	case <-ctx.Done():
		return Result{SourceFrame: id, Status: StatusFailure, ErrorDetail: "extraction timed out"}
	case out := <-done:
		if out.err != nil {
			return Result{SourceFrame: id, Status: StatusFailure, ErrorDetail: out.err.Error()}
		}
		return Result{
			SourceFrame: id,
			Text:        out.text,
			Confidence:  clampConfidence(out.conf),
			Status:      StatusSuccess,
		}
	}
}

// clampConfidence forces a score into [0,1] regardless of the engine's
// native scale.
func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
