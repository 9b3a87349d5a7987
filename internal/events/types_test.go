package events

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func TestParseInboundCoversAllVariants(t *testing.T) {
	for _, want := range AllInbound() {
		got, ok := ParseInbound(string(want))
		if !ok {
			t.Fatalf("ParseInbound rejected %q", want)
		}
		if got != want {
			t.Fatalf("ParseInbound(%q) = %q", want, got)
		}
	}
}

func TestParseInboundRejectsUnknown(t *testing.T) {
	for _, raw := range []string{"", "send_message", "call-offer", "presence-changed"} {
		if _, ok := ParseInbound(raw); ok {
			t.Fatalf("ParseInbound accepted %q", raw)
		}
	}
}

func TestMarshalEnvelope(t *testing.T) {
	payload := TypingPayload{
		ConversationID: uuid.New(),
		UserID:         uuid.New(),
	}
	data, err := Marshal(OutboundTypingStart, payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.Type != string(OutboundTypingStart) {
		t.Fatalf("expected type %q, got %q", OutboundTypingStart, env.Type)
	}

	var got TypingPayload
	if err := json.Unmarshal(env.Payload, &got); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if got != payload {
		t.Fatalf("payload round trip mismatch: %+v != %+v", got, payload)
	}
}
