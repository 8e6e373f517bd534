// Package protocol defines the wire format of the chat event stream: the
// typed envelope taxonomy and the reader that extracts envelopes from a
// server-sent event body.
package protocol

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Kind classifies a message within a conversation.
type Kind string

const (
	KindUserInput        Kind = "user_input"
	KindText             Kind = "text"
	KindThinking         Kind = "thinking"
	KindAction           Kind = "action"
	KindObservation      Kind = "observation"
	KindErrorObservation Kind = "error_observation"
	KindError            Kind = "error"
)

// Message is a confirmed conversation record as the server emits it.
// CreatedAt is the server's timestamp string, passed through verbatim.
type Message struct {
	ID        int64          `json:"id"`
	Role      Role           `json:"role"`
	Kind      Kind           `json:"msg_type"`
	Content   string         `json:"content"`
	CreatedAt string         `json:"created_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// EnvelopeType discriminates between stream frame kinds.
type EnvelopeType string

const (
	EnvelopeTypeMessage   EnvelopeType = "message"
	EnvelopeTypeToken     EnvelopeType = "token"
	EnvelopeTypeTokenDone EnvelopeType = "token_done"
	EnvelopeTypeDone      EnvelopeType = "done"
	EnvelopeTypeError     EnvelopeType = "error"
)

// Envelope is the interface for stream frame discrimination.
type Envelope interface {
	EnvelopeType() EnvelopeType
}

// MessageEnvelope carries a complete confirmed message.
type MessageEnvelope struct {
	Message Message
}

// EnvelopeType returns the envelope type.
func (e MessageEnvelope) EnvelopeType() EnvelopeType { return EnvelopeTypeMessage }

// TokenEnvelope carries one incremental content fragment for an in-flight
// message.
type TokenEnvelope struct {
	MsgID   int64  `json:"msg_id"`
	Role    Role   `json:"role"`
	Kind    Kind   `json:"msg_type"`
	Content string `json:"content"`
}

// EnvelopeType returns the envelope type.
func (e TokenEnvelope) EnvelopeType() EnvelopeType { return EnvelopeTypeToken }

// TokenDoneEnvelope closes an in-flight message with its authoritative
// full content.
type TokenDoneEnvelope struct {
	MsgID       int64  `json:"msg_id"`
	FullContent string `json:"full_content"`
	CreatedAt   string `json:"created_at"`
}

// EnvelopeType returns the envelope type.
func (e TokenDoneEnvelope) EnvelopeType() EnvelopeType { return EnvelopeTypeTokenDone }

// DoneEnvelope terminates the stream. Title carries the server-assigned
// session title when one was generated during the turn.
type DoneEnvelope struct {
	Title string `json:"title"`
}

// EnvelopeType returns the envelope type.
func (e DoneEnvelope) EnvelopeType() EnvelopeType { return EnvelopeTypeDone }

// ErrorEnvelope reports a server-side stream failure.
type ErrorEnvelope struct {
	Detail string `json:"detail"`
}

// EnvelopeType returns the envelope type.
func (e ErrorEnvelope) EnvelopeType() EnvelopeType { return EnvelopeTypeError }

// ParseEnvelope decodes one frame payload into its typed envelope. Unknown
// envelope types return (nil, nil) and are skipped by callers. Frames
// without a type field fall back to the legacy bare-message form.
func ParseEnvelope(data []byte) (Envelope, error) {
	var frame struct {
		Type EnvelopeType    `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, err
	}

	if frame.Type == "" {
		return parseLegacyMessage(data)
	}

	switch frame.Type {
	case EnvelopeTypeMessage:
		var msg Message
		if err := json.Unmarshal(frame.Data, &msg); err != nil {
			return nil, err
		}
		return MessageEnvelope{Message: msg}, nil
	case EnvelopeTypeToken:
		var e TokenEnvelope
		if err := json.Unmarshal(frame.Data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case EnvelopeTypeTokenDone:
		var e TokenDoneEnvelope
		if err := json.Unmarshal(frame.Data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case EnvelopeTypeDone:
		var e DoneEnvelope
		if len(frame.Data) > 0 {
			if err := json.Unmarshal(frame.Data, &e); err != nil {
				return nil, err
			}
		}
		return e, nil
	case EnvelopeTypeError:
		var e ErrorEnvelope
		if err := json.Unmarshal(frame.Data, &e); err != nil {
			return nil, err
		}
		return e, nil
	default:
		log.Debug().Str("type", string(frame.Type)).Msg("skipping unknown envelope type")
		return nil, nil
	}
}

// parseLegacyMessage handles frames from servers that predate the typed
// envelope, where the payload is the message object itself. Only frames
// that expose both an id and a role are accepted; anything else is
// dropped as noise.
func parseLegacyMessage(data []byte) (Envelope, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == 0 || msg.Role == "" {
		log.Debug().Msg("dropping untyped frame without id and role")
		return nil, nil
	}
	return MessageEnvelope{Message: msg}, nil
}
