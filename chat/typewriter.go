package chat

import (
	"sync"
	"time"

	"github.com/bazelment/quill/protocol"
)

// Reveal defaults. They shape the reveal trajectory only; final content
// always comes from the authoritative token_done payload.
const (
	DefaultRevealInterval = 20 * time.Millisecond
	DefaultRevealStep     = 3
)

// typewriterState tracks one in-flight message: the accumulated target,
// how much of it has been revealed, and the authoritative final content
// once token_done has arrived.
type typewriterState struct {
	target   []rune
	revealed int
	done     bool
	final    string
	finalAt  string
}

// Typewriter buffers token fragments per message id and reveals them at
// a fixed cadence, so display pace is independent of network bursts. It
// owns the accumulation state exclusively and pushes revealed prefixes
// into the thread; there is no pull API. The tick goroutine starts on
// the first token, retires itself when no state remains, and never
// mutates again after Stop.
type Typewriter struct {
	thread   *Thread
	interval time.Duration
	step     int

	mu      sync.Mutex
	states  map[int64]*typewriterState
	order   []int64
	running bool
	stopped bool
	stop    chan struct{}
}

// NewTypewriter creates a scheduler that mutates the given thread.
// Non-positive interval or step fall back to the defaults.
func NewTypewriter(thread *Thread, interval time.Duration, step int) *Typewriter {
	if interval <= 0 {
		interval = DefaultRevealInterval
	}
	if step <= 0 {
		step = DefaultRevealStep
	}
	return &Typewriter{
		thread:   thread,
		interval: interval,
		step:     step,
		states:   make(map[int64]*typewriterState),
	}
}

// OnToken accumulates one fragment. The first fragment for an id
// inserts the streaming placeholder into the thread and starts the
// shared tick if it is not already running.
func (w *Typewriter) OnToken(env protocol.TokenEnvelope) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	st, known := w.states[env.MsgID]
	if !known {
		st = &typewriterState{}
		w.states[env.MsgID] = st
		w.order = append(w.order, env.MsgID)
	}
	st.target = append(st.target, []rune(env.Content)...)

	startTick := !w.running
	if startTick {
		w.running = true
		w.stop = make(chan struct{})
	}
	stop := w.stop
	w.mu.Unlock()

	if !known {
		role := env.Role
		if role == "" {
			role = protocol.RoleAssistant
		}
		kind := env.Kind
		if kind == "" {
			kind = protocol.KindText
		}
		w.thread.BeginStreaming(env.MsgID, role, kind)
	}
	if startTick {
		go w.run(stop)
	}
}

// OnTokenDone marks a message finished and overwrites its target with
// the authoritative full content, guarding against dropped or
// duplicated fragments. The reveal keeps ticking until it catches up,
// then the completion is published and the state retired.
func (w *Typewriter) OnTokenDone(env protocol.TokenDoneEnvelope) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	st, known := w.states[env.MsgID]
	if !known {
		// A completion with no prior fragments still yields a message;
		// the tick reveals it like any other.
		st = &typewriterState{}
		w.states[env.MsgID] = st
		w.order = append(w.order, env.MsgID)
	}
	st.done = true
	st.target = []rune(env.FullContent)
	if st.revealed > len(st.target) {
		st.revealed = len(st.target)
	}
	st.final = env.FullContent
	st.finalAt = env.CreatedAt

	startTick := !w.running
	if startTick {
		w.running = true
		w.stop = make(chan struct{})
	}
	stop := w.stop
	w.mu.Unlock()

	if !known {
		w.thread.BeginStreaming(env.MsgID, protocol.RoleAssistant, protocol.KindText)
	}
	if startTick {
		go w.run(stop)
	}
}

// Flush publishes every state's full content immediately and retires
// all states. Used when the done frame arrives: nothing may stay
// half-revealed after the stream has completed.
func (w *Typewriter) Flush() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	type final struct {
		id      int64
		content string
		at      string
	}
	finals := make([]final, 0, len(w.order))
	for _, id := range w.order {
		st := w.states[id]
		content := st.final
		if !st.done {
			content = string(st.target)
		}
		finals = append(finals, final{id: id, content: content, at: st.finalAt})
	}
	w.states = make(map[int64]*typewriterState)
	w.order = nil
	if w.running {
		close(w.stop)
		w.running = false
	}
	w.mu.Unlock()

	for _, f := range finals {
		w.thread.CompleteStreaming(f.id, f.content, f.at)
	}
}

// Stop halts the scheduler for good. Idempotent; safe to call from any
// goroutine. After Stop the scheduler never mutates the thread again,
// so an aborted stream cannot leak ticks into a newer one.
func (w *Typewriter) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.states = make(map[int64]*typewriterState)
	w.order = nil
	if w.running {
		close(w.stop)
		w.running = false
	}
	w.mu.Unlock()
}

// run drives the shared tick until stopped or no state remains.
func (w *Typewriter) run(stop chan struct{}) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if w.tick() {
				return
			}
		}
	}
}

// tick advances every active state by one step and publishes the new
// prefixes. It reports true when no state remains and the goroutine
// should retire.
func (w *Typewriter) tick() bool {
	type publish struct {
		id      int64
		content string
		at      string
		final   bool
	}

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return true
	}
	var pubs []publish
	var live []int64
	for _, id := range w.order {
		st := w.states[id]
		advanced := false
		if st.revealed < len(st.target) {
			st.revealed += w.step
			if st.revealed > len(st.target) {
				st.revealed = len(st.target)
			}
			advanced = true
		}
		if st.done && st.revealed >= len(st.target) {
			pubs = append(pubs, publish{id: id, content: st.final, at: st.finalAt, final: true})
			delete(w.states, id)
			continue
		}
		live = append(live, id)
		if advanced {
			pubs = append(pubs, publish{id: id, content: string(st.target[:st.revealed])})
		}
	}
	w.order = live
	empty := len(w.states) == 0
	if empty {
		w.running = false
	}
	w.mu.Unlock()

	for _, p := range pubs {
		if p.final {
			w.thread.CompleteStreaming(p.id, p.content, p.at)
		} else {
			w.thread.RevealStreaming(p.id, p.content)
		}
	}
	return empty
}

// active returns the number of in-flight states. Test hook.
func (w *Typewriter) active() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.states)
}
