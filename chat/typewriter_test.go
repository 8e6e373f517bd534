package chat

import (
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bazelment/quill/protocol"
)

// revealRecorder captures every published content of one message so
// reveal trajectories can be asserted after the fact.
type revealRecorder struct {
	thread *Thread
	msgID  int64
	mu     sync.Mutex
	seen   []string
}

func (r *revealRecorder) OnThreadEvent(event ThreadEvent) {
	if _, ok := event.(MessagesChanged); !ok {
		return
	}
	for _, m := range r.thread.Messages() {
		if m.ID == r.msgID {
			r.mu.Lock()
			r.seen = append(r.seen, m.Content)
			r.mu.Unlock()
			return
		}
	}
}

func (r *revealRecorder) contents() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

func token(msgID int64, content string) protocol.TokenEnvelope {
	return protocol.TokenEnvelope{
		MsgID:   msgID,
		Role:    protocol.RoleAssistant,
		Kind:    protocol.KindText,
		Content: content,
	}
}

func tokenDone(msgID int64, full string) protocol.TokenDoneEnvelope {
	return protocol.TokenDoneEnvelope{
		MsgID:       msgID,
		FullContent: full,
		CreatedAt:   "2026-08-25T10:00:01",
	}
}

func messageByID(t *testing.T, th *Thread, id int64) Message {
	t.Helper()
	for _, m := range th.Messages() {
		if m.ID == id {
			return m
		}
	}
	t.Fatalf("message %d not in thread", id)
	return Message{}
}

func completed(th *Thread, id int64) func() bool {
	return func() bool {
		for _, m := range th.Messages() {
			if m.ID == id {
				return !m.Streaming
			}
		}
		return false
	}
}

func TestTypewriter_RevealsMonotonically(t *testing.T) {
	th := NewThread()
	rec := &revealRecorder{thread: th, msgID: 5}
	th.AddObserver(rec)
	tw := NewTypewriter(th, 2*time.Millisecond, 3)
	defer tw.Stop()

	tw.OnToken(token(5, "Hel"))
	tw.OnToken(token(5, "lo, wor"))
	tw.OnToken(token(5, "ld!"))
	tw.OnTokenDone(tokenDone(5, "Hello, world!"))

	require.Eventually(t, completed(th, 5), 2*time.Second, time.Millisecond)

	seen := rec.contents()
	require.NotEmpty(t, seen)
	assert.Equal(t, "Hello, world!", seen[len(seen)-1])
	for i := 1; i < len(seen); i++ {
		require.Truef(t, strings.HasPrefix(seen[i], seen[i-1]),
			"reveal went backwards: %q then %q", seen[i-1], seen[i])
		grew := utf8.RuneCountInString(seen[i]) - utf8.RuneCountInString(seen[i-1])
		require.LessOrEqualf(t, grew, 3, "reveal %d jumped by %d runes", i, grew)
	}
}

func TestTypewriter_FinalContentIsAuthoritative(t *testing.T) {
	th := NewThread()
	tw := NewTypewriter(th, 2*time.Millisecond, 3)
	defer tw.Stop()

	// Fragments disagree with the final payload; the final wins.
	tw.OnToken(token(5, "Hel"))
	tw.OnToken(token(5, "lo cru"))
	tw.OnTokenDone(tokenDone(5, "Hello"))

	require.Eventually(t, completed(th, 5), 2*time.Second, time.Millisecond)

	m := messageByID(t, th, 5)
	assert.Equal(t, "Hello", m.Content)
	assert.Equal(t, "2026-08-25T10:00:01", m.CreatedAt)
	assert.False(t, m.Streaming)
	assert.Zero(t, tw.active())
}

func TestTypewriter_MultibyteStepNeverSplitsRunes(t *testing.T) {
	th := NewThread()
	rec := &revealRecorder{thread: th, msgID: 5}
	th.AddObserver(rec)
	tw := NewTypewriter(th, 2*time.Millisecond, 2)
	defer tw.Stop()

	const full = "你好，世界！很高兴见到你"
	tw.OnToken(token(5, "你好，世"))
	tw.OnToken(token(5, "界！很高"))
	tw.OnToken(token(5, "兴见到你"))
	tw.OnTokenDone(tokenDone(5, full))

	require.Eventually(t, completed(th, 5), 2*time.Second, time.Millisecond)

	for _, s := range rec.contents() {
		require.Truef(t, utf8.ValidString(s), "invalid UTF-8 published: %q", s)
	}
	assert.Equal(t, full, messageByID(t, th, 5).Content)
}

func TestTypewriter_CompletionWithoutFragments(t *testing.T) {
	th := NewThread()
	tw := NewTypewriter(th, 2*time.Millisecond, 3)
	defer tw.Stop()

	// Some messages arrive only as a completion, with no token phase.
	tw.OnTokenDone(tokenDone(9, "tool output attached"))

	require.Eventually(t, completed(th, 9), 2*time.Second, time.Millisecond)
	assert.Equal(t, "tool output attached", messageByID(t, th, 9).Content)
}

func TestTypewriter_FlushPublishesEverything(t *testing.T) {
	th := NewThread()
	// An interval long enough that no tick fires during the test, so
	// everything observed comes from Flush alone.
	tw := NewTypewriter(th, time.Hour, 3)
	defer tw.Stop()

	tw.OnToken(token(5, "Hello, world!"))
	tw.OnTokenDone(tokenDone(5, "Hello, world!"))
	tw.OnToken(token(6, "partial thought"))

	tw.Flush()

	m5 := messageByID(t, th, 5)
	assert.Equal(t, "Hello, world!", m5.Content)
	assert.False(t, m5.Streaming)
	assert.Equal(t, "2026-08-25T10:00:01", m5.CreatedAt)

	// Never-completed message flushes with what it had accumulated.
	m6 := messageByID(t, th, 6)
	assert.Equal(t, "partial thought", m6.Content)
	assert.False(t, m6.Streaming)

	assert.Zero(t, tw.active())
}

func TestTypewriter_StopHaltsReveal(t *testing.T) {
	th := NewThread()
	tw := NewTypewriter(th, 2*time.Millisecond, 1)

	tw.OnToken(token(5, strings.Repeat("x", 500)))

	require.Eventually(t, func() bool {
		return messageByID(t, th, 5).Content != ""
	}, 2*time.Second, time.Millisecond)

	tw.Stop()
	// Let any tick already past the stop check drain.
	time.Sleep(10 * time.Millisecond)
	frozen := messageByID(t, th, 5).Content

	time.Sleep(30 * time.Millisecond)
	m := messageByID(t, th, 5)
	assert.Equal(t, frozen, m.Content)
	assert.True(t, m.Streaming, "stop must not fabricate a completion")
	assert.Zero(t, tw.active())

	// Stopped for good: new input is ignored.
	tw.OnToken(token(7, "late"))
	tw.Stop()
	assert.Zero(t, tw.active())
	assert.Len(t, th.Messages(), 1)
}

func TestTypewriter_RestartsAfterDraining(t *testing.T) {
	th := NewThread()
	tw := NewTypewriter(th, 2*time.Millisecond, 10)
	defer tw.Stop()

	tw.OnToken(token(1, "first"))
	tw.OnTokenDone(tokenDone(1, "first"))
	require.Eventually(t, completed(th, 1), 2*time.Second, time.Millisecond)
	require.Zero(t, tw.active())

	// The tick goroutine retired with the last state; a fresh token
	// must bring it back.
	tw.OnToken(token(2, "second"))
	tw.OnTokenDone(tokenDone(2, "second"))
	require.Eventually(t, completed(th, 2), 2*time.Second, time.Millisecond)
	assert.Equal(t, "second", messageByID(t, th, 2).Content)
}

func TestTypewriter_InterleavedMessages(t *testing.T) {
	th := NewThread()
	tw := NewTypewriter(th, 2*time.Millisecond, 5)
	defer tw.Stop()

	tw.OnToken(token(5, "thinking about "))
	tw.OnToken(protocol.TokenEnvelope{MsgID: 6, Role: protocol.RoleAssistant, Kind: protocol.KindThinking, Content: "the user wants"})
	tw.OnToken(token(5, "the answer"))
	tw.OnTokenDone(tokenDone(6, "the user wants a greeting"))
	tw.OnTokenDone(tokenDone(5, "thinking about the answer"))

	require.Eventually(t, completed(th, 5), 2*time.Second, time.Millisecond)
	require.Eventually(t, completed(th, 6), 2*time.Second, time.Millisecond)

	assert.Equal(t, "thinking about the answer", messageByID(t, th, 5).Content)
	m6 := messageByID(t, th, 6)
	assert.Equal(t, "the user wants a greeting", m6.Content)
	assert.Equal(t, protocol.KindThinking, m6.Kind)

	// Stream order is insertion order.
	ids := threadIDs(th)
	assert.Equal(t, []int64{5, 6}, ids)
}
