package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ergochat/readline"

	"github.com/bazelment/quill/api"
	"github.com/bazelment/quill/chat"
	"github.com/bazelment/quill/protocol"
)

// RunPlain starts the line-oriented interface: a readline prompt, raw
// streamed output, no alternate screen. Meant for dumb terminals,
// narrow SSH sessions, and piping transcripts.
func RunPlain(ctx context.Context, client *api.Client, ctrl *chat.Controller, historyFile string) error {
	printer := newPlainPrinter(os.Stdout, ctrl.Thread())
	ctrl.Thread().AddObserver(printer)

	rl, err := readline.NewFromConfig(&readline.Config{
		Prompt:      "you> ",
		HistoryFile: historyFile,
	})
	if err != nil {
		return fmt.Errorf("readline init: %w", err)
	}
	defer rl.Close()

	printer.syncExisting()
	printer.printRecent(5)
	fmt.Println("Connected. /help lists commands, ctrl+d exits.")

	for {
		line, err := rl.ReadLine()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			continue
		case errors.Is(err, io.EOF):
			ctrl.Close()
			return nil
		case err != nil:
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			quit := runPlainCommand(ctx, client, ctrl, printer, line)
			if quit {
				return nil
			}
			continue
		}

		if err := ctrl.Send(ctx, line, ""); err != nil {
			fmt.Fprintln(os.Stderr, "error: "+humanizeError(err))
			continue
		}
		printer.waitTurn(ctx, ctrl)
	}
}

// runPlainCommand handles a /command line. Returns true to exit.
func runPlainCommand(ctx context.Context, client *api.Client, ctrl *chat.Controller, printer *plainPrinter, line string) bool {
	fields := strings.Fields(line)
	fail := func(err error) {
		fmt.Fprintln(os.Stderr, "error: "+humanizeError(err))
	}

	switch fields[0] {
	case "/help":
		fmt.Println("commands: /sessions /switch <id> /new [title] /compact /attach <path> [message] /quit")

	case "/quit":
		ctrl.Close()
		return true

	case "/sessions":
		sessions, err := client.ListSessions(ctx)
		if err != nil {
			fail(err)
			return false
		}
		if len(sessions) == 0 {
			fmt.Println("no sessions; /new to start one")
			return false
		}
		for _, s := range sessions {
			title := s.Title
			if title == "" {
				title = "(untitled)"
			}
			fmt.Printf("%s  %s\n", s.ID, title)
		}

	case "/switch":
		if len(fields) < 2 {
			fmt.Fprintln(os.Stderr, "usage: /switch <session-id>")
			return false
		}
		printer.mute()
		err := ctrl.Switch(ctx, fields[1])
		printer.syncExisting()
		printer.unmute()
		if err != nil {
			fail(err)
			return false
		}
		fmt.Println("-- switched to " + fields[1] + " --")
		printer.printRecent(5)

	case "/new":
		title := strings.Join(fields[1:], " ")
		sess, err := client.CreateSession(ctx, title)
		if err != nil {
			fail(err)
			return false
		}
		printer.mute()
		err = ctrl.Switch(ctx, sess.ID)
		printer.syncExisting()
		printer.unmute()
		if err != nil {
			fail(err)
			return false
		}
		fmt.Println("-- new session " + sess.ID + " --")

	case "/compact":
		id := ctrl.SessionID()
		if id == "" {
			fail(chat.ErrNoSession)
			return false
		}
		if err := client.CompactSession(ctx, id); err != nil {
			fail(err)
			return false
		}
		printer.mute()
		err := ctrl.LoadHistory(ctx)
		printer.syncExisting()
		printer.unmute()
		if err != nil {
			fail(err)
			return false
		}
		fmt.Println("-- session compacted --")

	case "/attach":
		if len(fields) < 2 {
			fmt.Fprintln(os.Stderr, "usage: /attach <path> [message]")
			return false
		}
		path := fields[1]
		if err := api.ValidateAttachment(path); err != nil {
			fail(err)
			return false
		}
		if err := ctrl.Send(ctx, strings.Join(fields[2:], " "), path); err != nil {
			fail(err)
			return false
		}
		printer.waitTurn(ctx, ctrl)

	default:
		fmt.Fprintln(os.Stderr, "unknown command "+fields[0]+"; /help lists commands")
	}
	return false
}

// plainPrinter writes thread updates to a line-oriented terminal. One
// streaming message at a time is printed live as its reveal advances;
// everything else prints in full on completion. User echoes are
// suppressed, the user just typed them.
type plainPrinter struct {
	out    io.Writer
	thread *chat.Thread

	mu      sync.Mutex
	muted   bool
	printed map[int64]int // runes already written per message id
	done    map[int64]bool
	liveID  int64
	live    bool
	turn    chan struct{}
}

func newPlainPrinter(out io.Writer, thread *chat.Thread) *plainPrinter {
	return &plainPrinter{
		out:     out,
		thread:  thread,
		printed: make(map[int64]int),
		done:    make(map[int64]bool),
		turn:    make(chan struct{}, 1),
	}
}

func (p *plainPrinter) OnThreadEvent(event chat.ThreadEvent) {
	switch e := event.(type) {
	case chat.MessagesChanged:
		p.flushNew()
	case chat.StateChanged:
		if e.New.Terminal() {
			p.flushNew()
			select {
			case p.turn <- struct{}{}:
			default:
			}
		}
	case chat.TurnFailed:
		fmt.Fprintln(p.out, "error: "+humanizeError(e.Err))
	case chat.TitleChanged:
		if e.Title != "" {
			fmt.Fprintln(p.out, "-- titled: "+e.Title+" --")
		}
	}
}

// waitTurn blocks until the in-flight turn reaches a terminal state.
// Cancelling the context aborts the turn instead of abandoning it.
func (p *plainPrinter) waitTurn(ctx context.Context, ctrl *chat.Controller) {
	for {
		select {
		case <-p.turn:
			return
		case <-ctx.Done():
			ctrl.Abort()
			// Give the abort a moment to settle, then stop waiting.
			select {
			case <-p.turn:
			case <-time.After(time.Second):
			}
			return
		}
	}
}

// mute suspends printing while history is being replaced.
func (p *plainPrinter) mute() {
	p.mu.Lock()
	p.muted = true
	p.mu.Unlock()
}

func (p *plainPrinter) unmute() {
	p.mu.Lock()
	p.muted = false
	p.mu.Unlock()
}

// syncExisting marks everything currently in the thread as printed, so
// attaching to a populated thread does not replay its whole history.
func (p *plainPrinter) syncExisting() {
	msgs := p.thread.Messages()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.printed = make(map[int64]int)
	p.done = make(map[int64]bool)
	p.live = false
	for _, m := range msgs {
		p.printed[m.ID] = utf8.RuneCountInString(m.Content)
		p.done[m.ID] = true
	}
}

// printRecent prints the newest n messages as a catch-up block.
func (p *plainPrinter) printRecent(n int) {
	msgs := p.thread.Messages()
	if len(msgs) == 0 {
		return
	}
	start := len(msgs) - n
	if start < 0 {
		start = 0
	}
	if start > 0 {
		fmt.Fprintf(p.out, "-- %d earlier messages --\n", start)
	}
	for _, m := range msgs[start:] {
		fmt.Fprintln(p.out, plainHeader(m)+" "+strings.TrimRight(m.Content, "\n"))
	}
}

// flushNew prints whatever arrived or advanced since the last event.
func (p *plainPrinter) flushNew() {
	msgs := p.thread.Messages()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.muted {
		return
	}

	for _, m := range msgs {
		if m.Optimistic() || p.done[m.ID] {
			continue
		}
		total := utf8.RuneCountInString(m.Content)

		if m.Streaming {
			if !p.live {
				p.live = true
				p.liveID = m.ID
				fmt.Fprint(p.out, plainHeader(m)+" ")
			}
			if p.liveID == m.ID && total > p.printed[m.ID] {
				fmt.Fprint(p.out, tailRunes(m.Content, p.printed[m.ID]))
				p.printed[m.ID] = total
			}
			continue
		}

		// Completed. Finish the live line or print it whole.
		if m.Kind == protocol.KindUserInput {
			p.done[m.ID] = true
			p.printed[m.ID] = total
			continue
		}
		if p.live && p.liveID == m.ID {
			fmt.Fprint(p.out, tailRunes(m.Content, p.printed[m.ID]))
			fmt.Fprintln(p.out)
			p.live = false
		} else {
			// Break an open live line rather than printing into it.
			// Its owner reclaims a fresh line on the next delta.
			if p.live {
				fmt.Fprintln(p.out)
				p.live = false
			}
			fmt.Fprintln(p.out, plainHeader(m)+" "+strings.TrimRight(m.Content, "\n"))
		}
		p.printed[m.ID] = total
		p.done[m.ID] = true
	}
}

// tailRunes returns the part of s after the first n runes.
func tailRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[i:]
		}
		count++
	}
	return ""
}

// plainHeader is the line prefix for a message in plain mode.
func plainHeader(m chat.Message) string {
	switch m.Kind {
	case protocol.KindUserInput:
		return "you>"
	case protocol.KindThinking:
		return "(thinking)"
	case protocol.KindAction:
		return "[action]"
	case protocol.KindObservation:
		return "[result]"
	case protocol.KindErrorObservation, protocol.KindError:
		return "[error]"
	default:
		return "agent>"
	}
}
