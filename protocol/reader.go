package protocol

import (
	"bufio"
	"bytes"
	"io"
	"sync"

	"github.com/rs/zerolog/log"
)

var dataPrefix = []byte("data: ")

// maxFrameSize bounds a single stream frame. A token_done frame carries
// the full message content, so the limit sits well above typical lines.
const maxFrameSize = 1 << 20

// Reader extracts typed envelopes from a server-sent event body. The
// sequence is finite and not restartable: once Next has returned a
// DoneEnvelope or an error, the stream is exhausted. Reader reassembles
// frames across arbitrary chunk boundaries, so the granularity of the
// underlying reads never changes the envelope sequence.
type Reader struct {
	body      io.ReadCloser
	scanner   *bufio.Scanner
	closeOnce sync.Once
	closeErr  error
	done      bool
}

// NewReader wraps a stream body. The caller owns cancellation of the
// underlying transport; Close releases the body.
func NewReader(body io.ReadCloser) *Reader {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	return &Reader{body: body, scanner: scanner}
}

// Next returns the next envelope from the stream. Frames that fail to
// decode and frame types it does not recognize are skipped without
// disturbing the rest of the stream. Next returns io.EOF once the
// stream is exhausted, whether by a done frame or by the source closing.
func (r *Reader) Next() (Envelope, error) {
	if r.done {
		return nil, io.EOF
	}
	for r.scanner.Scan() {
		line := bytes.TrimRight(r.scanner.Bytes(), "\r")
		if len(line) == 0 {
			continue
		}
		if !bytes.HasPrefix(line, dataPrefix) {
			continue
		}
		env, err := ParseEnvelope(line[len(dataPrefix):])
		if err != nil {
			log.Debug().Err(err).Msg("dropping undecodable stream frame")
			continue
		}
		if env == nil {
			continue
		}
		if env.EnvelopeType() == EnvelopeTypeDone {
			r.done = true
		}
		return env, nil
	}
	r.done = true
	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Close releases the underlying stream body. Safe to call more than once.
func (r *Reader) Close() error {
	r.closeOnce.Do(func() { r.closeErr = r.body.Close() })
	return r.closeErr
}
