package relay

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"ocr-relay/internal/extract"
	"ocr-relay/internal/platform/metrics"
)

// TriggerHandler receives trigger_ocr events that arrived from a peer in a
// room. Implementations must not block the caller.
type TriggerHandler interface {
	HandleTrigger(room, requestID string)
}

// Hub owns the event channel: connected peers, room membership, and
// room-scoped delivery. Membership is mutated only by the join, leave, and
// unregister transitions, all under one lock.
type Hub struct {
	log     *slog.Logger
	metrics *metrics.Metrics // may be nil
	handler TriggerHandler

	upgrader websocket.Upgrader

	mu    sync.Mutex
	peers map[*Peer]struct{}
	rooms map[string]map[*Peer]struct{}
}

// NewHub returns an empty hub. SetTriggerHandler must be called before the
// hub serves connections.
func NewHub(log *slog.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		log:     log,
		metrics: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Peers are local-network mobile clients; origin policy is an
			// upstream concern.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		peers: make(map[*Peer]struct{}),
		rooms: make(map[string]map[*Peer]struct{}),
	}
}

// SetTriggerHandler wires the component that answers trigger_ocr events.
func (h *Hub) SetTriggerHandler(t TriggerHandler) {
	h.handler = t
}

// ServeWS upgrades an HTTP request to a WebSocket connection and runs the
// peer until it disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("upgrade failed", slog.String("error", err.Error()))
		return
	}

	p := &Peer{
		id:   uuid.New().String(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, 16),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.peers[p] = struct{}{}
	n := len(h.peers)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.SetConnectedPeers(n)
	}

	h.log.Info("peer connected", slog.String("peer", p.id), slog.String("remote", r.RemoteAddr))

	go p.writePump()
	h.sendTo(p, EventMessage, MessagePayload{
		Message:   "connected to capture relay",
		Timestamp: time.Now().UTC(),
	})
	p.readPump()
}

// join moves a peer into a room, leaving its previous room first.
func (h *Hub) join(p *Peer, room string) {
	h.mu.Lock()
	h.removeFromRoomLocked(p)
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Peer]struct{})
		h.rooms[room] = members
	}
	members[p] = struct{}{}
	p.room = room
	h.mu.Unlock()

	h.log.Info("peer joined room", slog.String("peer", p.id), slog.String("room", room))
	h.sendTo(p, EventMessage, MessagePayload{
		Message:   "joined room: " + room,
		Timestamp: time.Now().UTC(),
	})
}

// leave removes a peer from its room, if any.
func (h *Hub) leave(p *Peer) {
	h.mu.Lock()
	room := p.room
	h.removeFromRoomLocked(p)
	h.mu.Unlock()

	if room != "" {
		h.log.Info("peer left room", slog.String("peer", p.id), slog.String("room", room))
	}
}

// unregister removes a disconnected peer from the hub and its room.
func (h *Hub) unregister(p *Peer) {
	h.mu.Lock()
	if _, ok := h.peers[p]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.peers, p)
	h.removeFromRoomLocked(p)
	close(p.done)
	n := len(h.peers)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.SetConnectedPeers(n)
	}
	h.log.Info("peer disconnected", slog.String("peer", p.id))
}

// removeFromRoomLocked drops p from its room and deletes the room when its
// last member leaves. Caller holds h.mu.
func (h *Hub) removeFromRoomLocked(p *Peer) {
	if p.room == "" {
		return
	}
	if members, ok := h.rooms[p.room]; ok {
		delete(members, p)
		if len(members) == 0 {
			delete(h.rooms, p.room)
		}
	}
	p.room = ""
}

// trigger routes a trigger_ocr event from a peer. A peer that has not joined
// a room is not yet allowed to receive ocr_error, so its trigger is logged
// and dropped without emitting anything.
func (h *Hub) trigger(p *Peer, requestID string) {
	h.mu.Lock()
	room := p.room
	h.mu.Unlock()

	if room == "" {
		h.log.Info("ignoring trigger from peer outside any room",
			slog.String("peer", p.id),
			slog.String("request_id", requestID))
		return
	}

	if h.metrics != nil {
		h.metrics.IncTriggers()
	}
	h.log.Info("ocr trigger received",
		slog.String("peer", p.id),
		slog.String("room", room),
		slog.String("request_id", requestID))
	h.handler.HandleTrigger(room, requestID)
}

// Broadcast delivers an event to every peer in the given room. Peers outside
// the room never observe it.
func (h *Hub) Broadcast(room, event string, payload any) {
	msg, err := encodeEvent(event, payload)
	if err != nil {
		h.log.Error("encode event", slog.String("event", event), slog.String("error", err.Error()))
		return
	}

	h.mu.Lock()
	targets := make([]*Peer, 0, len(h.rooms[room]))
	for p := range h.rooms[room] {
		targets = append(targets, p)
	}
	h.mu.Unlock()

	for _, p := range targets {
		h.deliver(p, msg)
	}
}

// sendTo delivers an event to a single peer.
func (h *Hub) sendTo(p *Peer, event string, payload any) {
	msg, err := encodeEvent(event, payload)
	if err != nil {
		h.log.Error("encode event", slog.String("event", event), slog.String("error", err.Error()))
		return
	}
	h.deliver(p, msg)
}

// deliver enqueues a frame without blocking; a peer whose queue is full is
// disconnected rather than allowed to stall the hub.
func (h *Hub) deliver(p *Peer, msg []byte) {
	select {
	case <-p.done:
	case p.send <- msg:
	default:
		h.log.Warn("peer send queue full, dropping connection", slog.String("peer", p.id))
		p.conn.Close()
	}
}

// EmitResult broadcasts an ocr_result for a completed extraction.
func (h *Hub) EmitResult(room, requestID string, res extract.Result) {
	h.Broadcast(room, EventOCRResult, ResultPayload{
		RequestID:     requestID,
		Text:          res.Text,
		Confidence:    res.Confidence,
		Timestamp:     time.Now().UTC(),
		SourceImageID: int64(res.SourceFrame),
	})
}

// EmitError broadcasts an ocr_error with a reason.
func (h *Hub) EmitError(room, requestID, reason string) {
	if h.metrics != nil {
		h.metrics.IncTriggerErrors()
	}
	h.Broadcast(room, EventOCRError, ErrorPayload{RequestID: requestID, Reason: reason})
}

// EmitStatus broadcasts a processing_status transition.
func (h *Hub) EmitStatus(room, state string) {
	h.Broadcast(room, EventProcessingStatus, StatusPayload{State: state})
}

// PeerCount returns the number of connected peers.
func (h *Hub) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// ServerStatusLoop periodically broadcasts a health snapshot to room until
// ctx is canceled.
func (h *Hub) ServerStatusLoop(ctx context.Context, room string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Broadcast(room, EventServerStatus, ServerStatusPayload{
				Status:    "healthy",
				Clients:   h.PeerCount(),
				Timestamp: time.Now().UTC(),
			})
		}
	}
}

// Close disconnects every peer.
func (h *Hub) Close() {
	h.mu.Lock()
	peers := make([]*Peer, 0, len(h.peers))
	for p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.Unlock()

	for _, p := range peers {
		p.conn.Close()
	}
}
