package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ocr-relay/internal/extract"
	"ocr-relay/internal/platform/metrics"
	"ocr-relay/internal/store"
)

// FrameSource is the slice of the image store the orchestrator needs.
// *store.Store satisfies it.
type FrameSource interface {
	Latest() (store.Frame, bool)
	Read(f store.Frame) ([]byte, error)
}

// Emitter delivers trigger outcomes and status transitions to a room.
// The relay hub satisfies it.
type Emitter interface {
	EmitResult(room, requestID string, res extract.Result)
	EmitError(room, requestID, reason string)
	EmitStatus(room, state string)
}

// Orchestrator answers trigger_ocr events: it reads the store's latest frame
// at the moment the trigger arrived, runs the extraction engine under its
// time budget, and emits the outcome. Triggers are serialized per room;
// a trigger arriving while the same room's previous one is still in flight
// is rejected as busy rather than queued, so a delivered result always
// reflects the triggering request, never a stale backlog entry.
type Orchestrator struct {
	frames  FrameSource
	engine  extract.Engine
	emitter Emitter
	budget  time.Duration

	log     *slog.Logger
	metrics *metrics.Metrics // may be nil

	mu   sync.Mutex
	busy map[string]bool
}

// New wires an orchestrator. budget bounds each extraction invocation.
func New(frames FrameSource, engine extract.Engine, emitter Emitter, budget time.Duration, log *slog.Logger, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		frames:  frames,
		engine:  engine,
		emitter: emitter,
		budget:  budget,
		log:     log,
		metrics: m,
		busy:    make(map[string]bool),
	}
}

// HandleTrigger implements the relay's TriggerHandler. It returns
// immediately; the extraction runs on its own goroutine so the event
// channel's read loop is never blocked.
func (o *Orchestrator) HandleTrigger(room, requestID string) {
	o.mu.Lock()
	if o.busy[room] {
		o.mu.Unlock()
		o.log.Info("trigger rejected, room busy",
			slog.String("room", room),
			slog.String("request_id", requestID))
		o.emitter.EmitError(room, requestID, "busy")
		return
	}
	o.busy[room] = true
	o.mu.Unlock()

	go func() {
		defer func() {
			o.mu.Lock()
			delete(o.busy, room)
			o.mu.Unlock()
		}()
		o.process(room, requestID)
	}()
}

func (o *Orchestrator) process(room, requestID string) {
	// Read the current latest frame relative to now, never a cached one.
	frame, ok := o.frames.Latest()
	if !ok {
		o.log.Info("no frame available for trigger", slog.String("request_id", requestID))
		o.emitter.EmitError(room, requestID, "no_image_available")
		return
	}

	// Snapshot the bytes up front so a concurrent eviction cannot touch the
	// extraction's input.
	png, err := o.frames.Read(frame)
	if err != nil {
		o.log.Warn("frame vanished before read",
			slog.Int64("frame", int64(frame.ID)),
			slog.String("error", err.Error()))
		o.emitter.EmitError(room, requestID, "no_image_available")
		return
	}

	res := extract.Run(context.Background(), o.engine, frame.ID, png, o.budget)
	if res.Status == extract.StatusFailure {
		o.log.Warn("extraction failed",
			slog.Int64("frame", int64(frame.ID)),
			slog.String("request_id", requestID),
			slog.String("detail", res.ErrorDetail))
		o.emitter.EmitError(room, requestID, res.ErrorDetail)
		return
	}

	o.log.Info("extraction complete",
		slog.Int64("frame", int64(frame.ID)),
		slog.String("request_id", requestID),
		slog.Int("chars", len(res.Text)),
		slog.Float64("confidence", res.Confidence))
	o.emitter.EmitResult(room, requestID, res)
}
