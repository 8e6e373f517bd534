// Package chat implements the client-side conversation state for one
// agent session. The Thread is the single source of truth for the
// ordered message list; the Typewriter reveals streamed tokens at a
// fixed cadence independent of arrival bursts; the Controller drives a
// stream's lifecycle from send to completion and reconciles optimistic
// messages with their authoritative echoes.
package chat

import (
	"time"

	"github.com/bazelment/quill/protocol"
)

// OptimisticID marks a locally inserted message the server has not yet
// confirmed. At most one optimistic message exists per pending send; it
// is removed when the authoritative user echo arrives.
const OptimisticID int64 = -1

// Message is one entry in the canonical thread. CreatedAt carries the
// server's timestamp string verbatim. Streaming is true while the
// typewriter is still revealing the content.
type Message struct {
	ID        int64
	Role      protocol.Role
	Kind      protocol.Kind
	Content   string
	CreatedAt string
	Metadata  map[string]any
	Streaming bool
}

// Optimistic returns true for a locally inserted, unconfirmed message.
func (m Message) Optimistic() bool {
	return m.ID == OptimisticID
}

// fromWire converts a confirmed wire message into a thread message.
func fromWire(m protocol.Message) Message {
	return Message{
		ID:        m.ID,
		Role:      m.Role,
		Kind:      m.Kind,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
		Metadata:  m.Metadata,
	}
}

// newOptimistic builds the placeholder inserted ahead of server
// confirmation. The timestamp is local and only for display; the
// authoritative echo replaces the whole record.
func newOptimistic(content string) Message {
	return Message{
		ID:        OptimisticID,
		Role:      protocol.RoleUser,
		Kind:      protocol.KindUserInput,
		Content:   content,
		CreatedAt: time.Now().Format("2006-01-02T15:04:05"),
	}
}

// deepCopyMessage clones the mutable metadata map so a snapshot is
// independent of later mutations.
func deepCopyMessage(m Message) Message {
	if m.Metadata != nil {
		meta := make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			meta[k] = v
		}
		m.Metadata = meta
	}
	return m
}

// --- Stream lifecycle ---------------------------------------------------------

// StreamState is the lifecycle state of the active session's stream.
type StreamState string

const (
	StreamIdle      StreamState = "idle"
	StreamStreaming StreamState = "streaming"
	StreamCompleted StreamState = "completed"
	StreamFailed    StreamState = "failed"
	StreamAborted   StreamState = "aborted"
)

// Terminal returns true if the state ends the current turn.
func (s StreamState) Terminal() bool {
	return s == StreamCompleted || s == StreamFailed || s == StreamAborted
}

// CanSend returns true if a new send may start from this state.
func (s StreamState) CanSend() bool {
	return s != StreamStreaming
}

// --- Observer / ThreadEvent ---------------------------------------------------

// Observer receives notifications when the thread mutates.
type Observer interface {
	OnThreadEvent(event ThreadEvent)
}

// ThreadEvent is the interface for thread mutation notifications.
type ThreadEvent interface {
	threadEvent() // sealed marker
}

// MessagesChanged fires when messages are appended, updated, revealed,
// or replaced.
type MessagesChanged struct{}

func (MessagesChanged) threadEvent() {}

// StateChanged fires when the stream lifecycle state moves.
type StateChanged struct {
	Old, New StreamState
}

func (StateChanged) threadEvent() {}

// TitleChanged fires when the server assigns a session title.
type TitleChanged struct {
	Title string
}

func (TitleChanged) threadEvent() {}

// TurnFailed fires when a stream ends in failure. Previously absorbed
// messages stay intact; the next send may retry.
type TurnFailed struct {
	Err error
}

func (TurnFailed) threadEvent() {}
