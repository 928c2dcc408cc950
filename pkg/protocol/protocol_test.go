package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeCallerUtterance(t *testing.T) {
	raw := []byte(`{"type":"caller_utterance","text":"hello there","is_final":true}`)

	event, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	msg, ok := event.(CallerUtterance)
	if !ok {
		t.Fatalf("Expected CallerUtterance, got %T", event)
	}
	if msg.Text != "hello there" {
		t.Errorf("Unexpected text: %q", msg.Text)
	}
	if !msg.IsFinal {
		t.Error("Expected is_final true")
	}
}

func TestDecodePartialUtterance(t *testing.T) {
	raw := []byte(`{"type":"caller_utterance","text":"hel","is_final":false}`)

	event, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if msg := event.(CallerUtterance); msg.IsFinal {
		t.Error("Expected is_final false")
	}
}

func TestDecodeInterruption(t *testing.T) {
	event, err := Decode([]byte(`{"type":"interruption"}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if _, ok := event.(Interruption); !ok {
		t.Fatalf("Expected Interruption, got %T", event)
	}
}

func TestDecodeCallEnd(t *testing.T) {
	event, err := Decode([]byte(`{"type":"call_end"}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if _, ok := event.(CallEnd); !ok {
		t.Fatalf("Expected CallEnd, got %T", event)
	}
}

func TestDecodePingPong(t *testing.T) {
	event, err := Decode([]byte(`{"type":"ping_pong","timestamp":1712345678901}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	msg, ok := event.(PingPong)
	if !ok {
		t.Fatalf("Expected PingPong, got %T", event)
	}
	if msg.Timestamp != 1712345678901 {
		t.Errorf("Unexpected timestamp: %d", msg.Timestamp)
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"invalid json", `{not json`},
		{"missing type", `{"text":"hi"}`},
		{"unknown type", `{"type":"dtmf"}`},
		{"final without text", `{"type":"caller_utterance","text":"","is_final":true}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.raw))
			var malformed *MalformedMessageError
			if !errors.As(err, &malformed) {
				t.Errorf("Expected MalformedMessageError, got %v", err)
			}
		})
	}
}

func TestEncodeResponseChunk(t *testing.T) {
	data, err := Encode(NewResponseChunk("turn-1", "hello"))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded["type"] != TypeResponseChunk {
		t.Errorf("Unexpected type: %v", decoded["type"])
	}
	if decoded["turn_id"] != "turn-1" {
		t.Errorf("Unexpected turn_id: %v", decoded["turn_id"])
	}
	if decoded["text"] != "hello" {
		t.Errorf("Unexpected text: %v", decoded["text"])
	}
}

func TestEncodeError(t *testing.T) {
	data, err := Encode(NewError("rate_limited"))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var decoded Error
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.Type != TypeError || decoded.ReasonCode != "rate_limited" {
		t.Errorf("Unexpected event: %+v", decoded)
	}
}

func TestPingPongRoundTrip(t *testing.T) {
	data, err := Encode(NewPingPong(42))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	event, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if msg := event.(PingPong); msg.Timestamp != 42 {
		t.Errorf("Expected timestamp echoed, got %d", msg.Timestamp)
	}
}
