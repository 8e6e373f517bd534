package app

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/bazelment/quill/chat"
)

// threadEventMsg wraps a thread event for the update loop.
type threadEventMsg struct {
	event chat.ThreadEvent
}

// threadListener forwards thread events into a channel the program
// drains with waitForEvent. Thread notifications are synchronous, so
// the forwarder must never block the typewriter's tick goroutine:
// coalescable repaint events are dropped when the buffer is full, the
// rare lifecycle events wait for room.
type threadListener struct {
	events chan chat.ThreadEvent
}

func newThreadListener() *threadListener {
	return &threadListener{events: make(chan chat.ThreadEvent, 256)}
}

func (l *threadListener) OnThreadEvent(event chat.ThreadEvent) {
	if _, coalescable := event.(chat.MessagesChanged); coalescable {
		select {
		case l.events <- event:
		default:
			// A repaint is already queued; the next one covers this.
		}
		return
	}
	l.events <- event
}

// waitForEvent returns a command that delivers the next thread event.
// The update loop re-arms it after every delivery.
func waitForEvent(events chan chat.ThreadEvent) tea.Cmd {
	return func() tea.Msg {
		return threadEventMsg{event: <-events}
	}
}
