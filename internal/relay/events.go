package relay

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event names accepted from peers.
const (
	EventJoinRoom   = "join_room"
	EventLeaveRoom  = "leave_room"
	EventTriggerOCR = "trigger_ocr"
)

// Event names emitted to peers.
const (
	EventMessage          = "message"
	EventOCRResult        = "ocr_result"
	EventOCRError         = "ocr_error"
	EventProcessingStatus = "processing_status"
	EventServerStatus     = "server_status"
)

// Well-known ocr_error reasons.
const (
	ReasonNoImageAvailable = "no_image_available"
	ReasonBusy             = "busy"
)

// Envelope is the wire frame for every event in both directions:
// a name plus a structured payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// RoomPayload carries the room name for join_room and leave_room.
type RoomPayload struct {
	Room string `json:"room"`
}

// TriggerPayload is the inbound trigger_ocr payload. RequestID is optional;
// the server generates one when absent.
type TriggerPayload struct {
	RequestID string `json:"request_id,omitempty"`
}

// ResultPayload is the ocr_result payload.
type ResultPayload struct {
	RequestID     string    `json:"request_id,omitempty"`
	Text          string    `json:"text"`
	Confidence    float64   `json:"confidence"`
	Timestamp     time.Time `json:"timestamp"`
	SourceImageID int64     `json:"source_image_id"`
}

// ErrorPayload is the ocr_error payload.
type ErrorPayload struct {
	RequestID string `json:"request_id,omitempty"`
	Reason    string `json:"reason"`
}

// StatusPayload is the processing_status payload; State is "capturing" or
// "degraded".
type StatusPayload struct {
	State string `json:"state"`
}

// ServerStatusPayload is the periodic server_status broadcast.
type ServerStatusPayload struct {
	Status    string    `json:"status"`
	Clients   int       `json:"clients"`
	Timestamp time.Time `json:"timestamp"`
}

// MessagePayload is the informational message sent on connect and join.
type MessagePayload struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// encodeEvent marshals an event name and payload into a wire frame.
func encodeEvent(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}
