package events

import (
	"encoding/json"
)

// Envelope is the frame every socket event travels in, both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Marshal wraps payload in an envelope of the given outbound type.
func Marshal(eventType OutboundType, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		Type:    string(eventType),
		Payload: raw,
	})
}
