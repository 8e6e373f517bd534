package chat

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bazelment/quill/api"
	"github.com/bazelment/quill/protocol"
)

// Controller drives a Thread through the send/stream lifecycle. It
// owns the network side of a conversation: posting the user message,
// opening the event stream, and feeding envelopes into the thread via
// a Typewriter until the turn completes, fails, or is aborted.
//
// Every turn gets a generation number. Abort and Switch bump it, which
// turns any late work from a previous turn's read loop into a no-op.
type Controller struct {
	client *api.Client
	thread *Thread

	interval time.Duration
	step     int

	mu        sync.Mutex
	gen       uint64
	sessionID string
	active    bool
	tw        *Typewriter
	cancel    context.CancelFunc
}

// Option configures a Controller.
type Option func(*Controller)

// WithRevealInterval overrides how often streamed text is revealed.
func WithRevealInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithRevealStep overrides how many characters each reveal step shows.
func WithRevealStep(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.step = n
		}
	}
}

// NewController creates a controller bound to thread. Call Switch to
// attach a session before sending.
func NewController(client *api.Client, thread *Thread, opts ...Option) *Controller {
	c := &Controller{
		client:   client,
		thread:   thread,
		interval: DefaultRevealInterval,
		step:     DefaultRevealStep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Thread returns the thread this controller drives.
func (c *Controller) Thread() *Thread {
	return c.thread
}

// SessionID returns the attached session, or "" if none.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Switch aborts any in-flight turn, attaches sessionID, and replaces
// the thread contents with that session's history.
func (c *Controller) Switch(ctx context.Context, sessionID string) error {
	c.Abort()

	c.mu.Lock()
	c.sessionID = sessionID
	c.mu.Unlock()

	c.thread.Reset()
	return c.LoadHistory(ctx)
}

// LoadHistory fetches the attached session's messages and replaces the
// thread contents with them.
func (c *Controller) LoadHistory(ctx context.Context) error {
	c.mu.Lock()
	sessionID := c.sessionID
	c.mu.Unlock()
	if sessionID == "" {
		return ErrNoSession
	}

	msgs, err := c.client.ListMessages(ctx, sessionID)
	if err != nil {
		return err
	}
	c.thread.ReplaceAll(msgs)
	return nil
}

// Send posts content (and an optional attachment) to the attached
// session and starts streaming the reply. The user message appears in
// the thread immediately as an optimistic placeholder; if the post
// fails the placeholder is removed and the thread's prior contents are
// untouched. Returns ErrStreamActive while a previous turn is still
// streaming.
func (c *Controller) Send(ctx context.Context, content, attachmentPath string) error {
	c.mu.Lock()
	if c.sessionID == "" {
		c.mu.Unlock()
		return ErrNoSession
	}
	if c.active {
		c.mu.Unlock()
		return ErrStreamActive
	}
	c.active = true
	sessionID := c.sessionID
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	c.thread.setState(StreamStreaming)
	c.thread.AppendOptimistic(content)

	receipt, err := c.client.SendMessage(ctx, sessionID, content, attachmentPath)
	if err != nil {
		c.thread.RemoveOptimistic()
		c.fail(gen, nil, err)
		return err
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	tw := NewTypewriter(c.thread, c.interval, c.step)

	c.mu.Lock()
	if c.gen != gen {
		// Aborted or switched away while the post was in flight.
		c.mu.Unlock()
		cancel()
		tw.Stop()
		return nil
	}
	c.tw = tw
	c.cancel = cancel
	c.mu.Unlock()

	reader, err := c.client.OpenStream(streamCtx, sessionID, receipt.LastMsgID)
	if err != nil {
		c.fail(gen, tw, err)
		return err
	}

	go c.readLoop(gen, tw, reader)
	return nil
}

// Abort cancels the in-flight turn, if any. Revealed text stays in the
// thread as-is; no further mutation happens after the typewriter
// drains its current tick. Safe to call at any time, including when
// nothing is streaming.
func (c *Controller) Abort() {
	c.mu.Lock()
	c.gen++
	c.active = false
	tw := c.tw
	cancel := c.cancel
	c.tw = nil
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if tw != nil {
		tw.Stop()
	}
	if c.thread.State() == StreamStreaming {
		c.thread.setState(StreamAborted)
	}
}

// Close aborts any in-flight turn and releases the controller.
func (c *Controller) Close() {
	c.Abort()
}

// readLoop consumes the event stream until a terminal envelope, EOF,
// or a read error. It runs on its own goroutine, one per turn.
func (c *Controller) readLoop(gen uint64, tw *Typewriter, reader *protocol.Reader) {
	defer reader.Close()

	for {
		env, err := reader.Next()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				// Server closed cleanly without a done envelope.
				c.complete(gen, tw, "")
			case errors.Is(err, context.Canceled):
				// Preempted by Abort or Switch; they own cleanup.
			default:
				c.fail(gen, tw, &StreamError{Cause: err})
			}
			return
		}
		if env == nil {
			continue
		}

		switch e := env.(type) {
		case protocol.MessageEnvelope:
			if c.alive(gen) {
				c.thread.Absorb(e.Message)
			}
		case protocol.TokenEnvelope:
			tw.OnToken(e)
		case protocol.TokenDoneEnvelope:
			tw.OnTokenDone(e)
		case protocol.DoneEnvelope:
			c.complete(gen, tw, e.Title)
			return
		case protocol.ErrorEnvelope:
			c.fail(gen, tw, &StreamError{Detail: e.Detail})
			return
		}
	}
}

// complete finishes the turn: remaining streamed text is published in
// full, the stream is torn down, and the thread moves to Completed.
func (c *Controller) complete(gen uint64, tw *Typewriter, title string) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.active = false
	cancel := c.cancel
	c.cancel = nil
	c.tw = nil
	c.mu.Unlock()

	tw.Flush()
	if cancel != nil {
		cancel()
	}
	if title != "" {
		c.thread.SetTitle(title)
	}
	c.thread.setState(StreamCompleted)
}

// fail tears down the turn and moves the thread to Failed. Messages
// absorbed before the failure stay intact.
func (c *Controller) fail(gen uint64, tw *Typewriter, err error) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.active = false
	cancel := c.cancel
	c.cancel = nil
	c.tw = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if tw != nil {
		tw.Stop()
	}
	log.Debug().Err(err).Msg("turn failed")
	c.thread.fail(err)
}

func (c *Controller) alive(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}
