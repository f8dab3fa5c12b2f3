package hub

import "encoding/json"

// Event types emitted over the realtime stream. Client-relayed frames may
// carry any other type tag; the hub forwards them without interpretation.
const (
	EventCanvasState       = "canvas_state"
	EventCanvasUpdate      = "canvas_update"
	EventImageAdded        = "image_added"
	EventImageDeleted      = "image_deleted"
	EventImagesGrouped     = "images_grouped"
	EventImagesUngrouped   = "images_ungrouped"
	EventChatMessage       = "chat_message"
	EventUserJoined        = "user_joined"
	EventUserLeft          = "user_left"
	EventGenerationStarted = "generation_started"
	EventImageGenerated    = "image_generated"
	EventGenerationFailed  = "generation_failed"
)

// Envelope is the tagged wire frame sent to and received from clients.
// The payload stays opaque to the hub.
type Envelope struct {
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"data,omitempty"`
	CanvasID string          `json:"canvasId"`
}

// NewEnvelope marshals data into an envelope for the given canvas.
func NewEnvelope(eventType, canvasID string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: eventType, Data: raw, CanvasID: canvasID}, nil
}
