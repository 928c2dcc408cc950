// Package protocol defines the wire messages exchanged with the calling
// platform and translates between raw frames and typed events.
//
// The translation is stateless and bidirectional. Frames of unrecognized
// shape fail with *MalformedMessageError; the caller's policy is to drop
// the frame and log, never to crash the connection.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Inbound event types.
const (
	TypeCallerUtterance = "caller_utterance"
	TypeInterruption    = "interruption"
	TypeCallEnd         = "call_end"
	TypePingPong        = "ping_pong"
)

// Outbound event types.
const (
	TypeResponseChunk = "response_chunk"
	TypeResponseEnd   = "response_end"
	TypeError         = "error"
)

// MalformedMessageError reports a frame that could not be decoded.
type MalformedMessageError struct {
	// Reason describes what was wrong with the frame.
	Reason string

	// Field names the offending field, if known.
	Field string
}

// Error implements the error interface.
func (e *MalformedMessageError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("protocol: malformed message: %s", e.Reason)
	}
	return fmt.Sprintf("protocol: malformed message: %s (%s)", e.Reason, e.Field)
}

func malformed(reason, field string) *MalformedMessageError {
	return &MalformedMessageError{Reason: reason, Field: field}
}

// CallerUtterance carries incremental caller speech. Non-final text
// replaces the trailing partial turn; a final utterance completes it.
type CallerUtterance struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

// Interruption signals the caller started talking over the agent.
type Interruption struct {
	Type string `json:"type"`
}

// CallEnd signals the platform is terminating the call.
type CallEnd struct {
	Type string `json:"type"`
}

// PingPong is a keep-alive frame, echoed back with the same timestamp.
type PingPong struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// ResponseChunk is a piece of streamed agent speech for one turn.
type ResponseChunk struct {
	Type   string `json:"type"`
	TurnID string `json:"turn_id"`
	Text   string `json:"text"`
}

// ResponseEnd closes an agent turn; no more chunks follow for it.
type ResponseEnd struct {
	Type   string `json:"type"`
	TurnID string `json:"turn_id"`
}

// Error reports a recoverable failure to the platform.
type Error struct {
	Type       string `json:"type"`
	ReasonCode string `json:"reason_code"`
}

// Decode parses a raw inbound frame into one of the typed inbound
// events: CallerUtterance, Interruption, CallEnd, or PingPong.
func Decode(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, malformed("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, malformed("missing type", "type")
	}

	switch typ {
	case TypeCallerUtterance:
		var msg CallerUtterance
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, malformed("invalid caller_utterance", "")
		}
		if msg.Text == "" && msg.IsFinal {
			return nil, malformed("caller_utterance.text is required when final", "text")
		}
		return msg, nil
	case TypeInterruption:
		var msg Interruption
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, malformed("invalid interruption", "")
		}
		return msg, nil
	case TypeCallEnd:
		var msg CallEnd
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, malformed("invalid call_end", "")
		}
		return msg, nil
	case TypePingPong:
		var msg PingPong
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, malformed("invalid ping_pong", "")
		}
		return msg, nil
	default:
		return nil, malformed("unsupported message type", "type")
	}
}

// NewResponseChunk builds an outbound response_chunk event.
func NewResponseChunk(turnID, text string) ResponseChunk {
	return ResponseChunk{Type: TypeResponseChunk, TurnID: turnID, Text: text}
}

// NewResponseEnd builds an outbound response_end event.
func NewResponseEnd(turnID string) ResponseEnd {
	return ResponseEnd{Type: TypeResponseEnd, TurnID: turnID}
}

// NewError builds an outbound error event.
func NewError(reasonCode string) Error {
	return Error{Type: TypeError, ReasonCode: reasonCode}
}

// NewPingPong builds an outbound ping_pong echo.
func NewPingPong(timestamp int64) PingPong {
	return PingPong{Type: TypePingPong, Timestamp: timestamp}
}

// Encode serializes an outbound event to a JSON frame.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode: %w", err)
	}
	return data, nil
}
