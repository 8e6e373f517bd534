package chat

import (
	"sync"

	"github.com/bazelment/quill/protocol"
)

// Thread is the canonical ordered message list for the active session.
// The write API is called by the Controller and Typewriter; the read
// API is called by the view. Confirmed messages are never reordered:
// absorption order is arrival order, which the stream reader guarantees
// matches server emission order.
type Thread struct {
	mu        sync.RWMutex
	msgs      []Message
	title     string
	state     StreamState
	err       error
	observers []Observer
}

// NewThread creates an empty thread in the Idle state.
func NewThread() *Thread {
	return &Thread{state: StreamIdle}
}

// --- Write API (called by Controller / Typewriter) ----------------------------

// AppendOptimistic inserts the local placeholder for a message the user
// just sent and returns its sentinel id. The placeholder is removed,
// not merged, when the authoritative echo arrives.
func (t *Thread) AppendOptimistic(content string) int64 {
	t.mu.Lock()
	t.msgs = append(t.msgs, newOptimistic(content))
	t.mu.Unlock()
	t.notify(MessagesChanged{})
	return OptimisticID
}

// RemoveOptimistic drops the pending placeholder, if any. Used when the
// send request itself fails before a stream ever opens.
func (t *Thread) RemoveOptimistic() {
	t.mu.Lock()
	removed := t.removeOptimisticLocked()
	t.mu.Unlock()
	if removed {
		t.notify(MessagesChanged{})
	}
}

// Absorb appends a confirmed message from the stream. A user echo first
// removes the optimistic placeholder so the user's message never
// appears twice. Everything else appends in arrival order.
func (t *Thread) Absorb(m protocol.Message) {
	t.mu.Lock()
	if m.Role == protocol.RoleUser && m.Kind == protocol.KindUserInput {
		t.removeOptimisticLocked()
	}
	t.msgs = append(t.msgs, fromWire(m))
	t.mu.Unlock()
	t.notify(MessagesChanged{})
}

// ReplaceAll swaps the thread contents for freshly fetched history.
func (t *Thread) ReplaceAll(msgs []protocol.Message) {
	converted := make([]Message, len(msgs))
	for i, m := range msgs {
		converted[i] = fromWire(m)
	}
	t.mu.Lock()
	t.msgs = converted
	t.mu.Unlock()
	t.notify(MessagesChanged{})
}

// BeginStreaming inserts the placeholder a token stream reveals into.
// The id is the authoritative wire id, so no reconciliation is needed
// when the message completes.
func (t *Thread) BeginStreaming(msgID int64, role protocol.Role, kind protocol.Kind) {
	t.mu.Lock()
	t.msgs = append(t.msgs, Message{ID: msgID, Role: role, Kind: kind, Streaming: true})
	t.mu.Unlock()
	t.notify(MessagesChanged{})
}

// RevealStreaming publishes the currently revealed prefix of an
// in-flight message. A no-op when the message is gone, which happens
// when the thread was reset under a retiring scheduler.
func (t *Thread) RevealStreaming(msgID int64, prefix string) {
	t.mu.Lock()
	changed := false
	for i := range t.msgs {
		if t.msgs[i].ID == msgID && t.msgs[i].Streaming {
			t.msgs[i].Content = prefix
			changed = true
			break
		}
	}
	t.mu.Unlock()
	if changed {
		t.notify(MessagesChanged{})
	}
}

// CompleteStreaming publishes the authoritative final content for an
// in-flight message and clears its streaming flag.
func (t *Thread) CompleteStreaming(msgID int64, content, createdAt string) {
	t.mu.Lock()
	changed := false
	for i := range t.msgs {
		if t.msgs[i].ID == msgID && t.msgs[i].Streaming {
			t.msgs[i].Content = content
			t.msgs[i].CreatedAt = createdAt
			t.msgs[i].Streaming = false
			changed = true
			break
		}
	}
	t.mu.Unlock()
	if changed {
		t.notify(MessagesChanged{})
	}
}

// SetTitle records the server-assigned session title.
func (t *Thread) SetTitle(title string) {
	t.mu.Lock()
	t.title = title
	t.mu.Unlock()
	t.notify(TitleChanged{Title: title})
}

// Reset clears messages, title, and any turn error, returning the
// thread to Idle. Used on session switch.
func (t *Thread) Reset() {
	t.mu.Lock()
	old := t.state
	t.msgs = nil
	t.title = ""
	t.err = nil
	t.state = StreamIdle
	t.mu.Unlock()
	t.notify(MessagesChanged{})
	if old != StreamIdle {
		t.notify(StateChanged{Old: old, New: StreamIdle})
	}
}

// setState moves the stream lifecycle state.
func (t *Thread) setState(state StreamState) {
	t.mu.Lock()
	old := t.state
	if old == state {
		t.mu.Unlock()
		return
	}
	t.state = state
	t.mu.Unlock()
	t.notify(StateChanged{Old: old, New: state})
}

// fail records a terminal turn error and moves to Failed. Absorbed
// messages are left intact.
func (t *Thread) fail(err error) {
	t.mu.Lock()
	old := t.state
	t.state = StreamFailed
	t.err = err
	t.mu.Unlock()
	t.notify(StateChanged{Old: old, New: StreamFailed})
	t.notify(TurnFailed{Err: err})
}

func (t *Thread) removeOptimisticLocked() bool {
	for i := range t.msgs {
		if t.msgs[i].ID == OptimisticID {
			t.msgs = append(t.msgs[:i], t.msgs[i+1:]...)
			return true
		}
	}
	return false
}

// --- Read API (called by view) ------------------------------------------------

// Messages returns a deep-copied snapshot of the thread.
func (t *Thread) Messages() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snap := make([]Message, len(t.msgs))
	for i, m := range t.msgs {
		snap[i] = deepCopyMessage(m)
	}
	return snap
}

// Title returns the session title, if the server has assigned one.
func (t *Thread) Title() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.title
}

// State returns the stream lifecycle state.
func (t *Thread) State() StreamState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Err returns the last turn's terminal error, if the state is Failed.
func (t *Thread) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.err
}

// --- Observer management ------------------------------------------------------

// AddObserver registers an observer notified on every thread mutation.
func (t *Thread) AddObserver(o Observer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, o)
}

// notify sends an event to all registered observers. Observers are
// called synchronously; keep handlers fast.
func (t *Thread) notify(event ThreadEvent) {
	t.mu.RLock()
	obs := t.observers
	t.mu.RUnlock()
	for _, o := range obs {
		o.OnThreadEvent(event)
	}
}
