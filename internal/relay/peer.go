package relay

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Peer is one connected remote client. Its state machine is
// connected -> joined(room) -> closed; the room field is owned by the hub
// and mutated only under the hub's lock through join/leave/disconnect.
type Peer struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	done chan struct{} // closed on unregister; send stays open so concurrent broadcasts never panic
	room string
}

// readPump consumes inbound events until the connection drops, then
// unregisters the peer (which removes any room membership).
func (p *Peer) readPump() {
	defer func() {
		p.hub.unregister(p)
		p.conn.Close()
	}()

	p.conn.SetReadLimit(maxMessageSize)
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		p.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				p.hub.log.Debug("peer read error", slog.String("peer", p.id), slog.String("error", err.Error()))
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			p.hub.log.Debug("invalid event frame", slog.String("peer", p.id), slog.String("error", err.Error()))
			continue
		}
		p.handle(env)
	}
}

// handle dispatches one inbound event according to the peer's state.
func (p *Peer) handle(env Envelope) {
	switch env.Event {
	case EventJoinRoom:
		var payload RoomPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil || payload.Room == "" {
			p.hub.log.Debug("invalid join_room payload", slog.String("peer", p.id))
			return
		}
		p.hub.join(p, payload.Room)

	case EventLeaveRoom:
		p.hub.leave(p)

	case EventTriggerOCR:
		var payload TriggerPayload
		if len(env.Data) > 0 {
			_ = json.Unmarshal(env.Data, &payload)
		}
		if payload.RequestID == "" {
			payload.RequestID = uuid.New().String()
		}
		p.hub.trigger(p, payload.RequestID)

	default:
		p.hub.log.Debug("unknown event", slog.String("peer", p.id), slog.String("event", env.Event))
	}
}

// writePump drains the peer's send queue and keeps the connection alive
// with pings.
func (p *Peer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case msg := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-p.done:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			p.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
