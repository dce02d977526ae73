package llm

import (
	"bufio"
	"io"
	"strings"
)

const (
	// sseMaxLineSize bounds a single SSE line; one completion delta is
	// far smaller, but a whole accumulated choice can ride in one event.
	sseMaxLineSize = 1 << 20

	sseDataPrefix  = "data:"
	sseEventPrefix = "event:"
)

// sseReader walks an OpenAI-compatible Server-Sent Events stream and
// surfaces the data-carrying events. Comment lines and the id/retry
// fields, which this client never acts on, are skipped.
type sseReader struct {
	scanner *bufio.Scanner
	event   string
	data    strings.Builder
	err     error
}

func newSSEReader(r io.Reader) *sseReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), sseMaxLineSize)
	return &sseReader{scanner: sc}
}

// Next advances to the next event that carries a data payload. It
// returns false at end of stream or on a read error.
func (r *sseReader) Next() bool {
	r.event = ""
	r.data.Reset()

	for r.scanner.Scan() {
		line := r.scanner.Text()
		switch {
		case line == "":
			// Blank line ends the event; only data-bearing events are
			// surfaced, keep-alive frames are not.
			if r.data.Len() > 0 {
				return true
			}
			r.event = ""
		case strings.HasPrefix(line, ":"):
			// Comment, typically a keep-alive.
		case strings.HasPrefix(line, sseEventPrefix):
			r.event = strings.TrimSpace(strings.TrimPrefix(line, sseEventPrefix))
		case strings.HasPrefix(line, sseDataPrefix):
			if r.data.Len() > 0 {
				r.data.WriteByte('\n')
			}
			r.data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, sseDataPrefix)))
		}
	}

	r.err = r.scanner.Err()
	// A final event may arrive without a trailing blank line.
	return r.err == nil && r.data.Len() > 0
}

// Data returns the payload of the current event.
func (r *sseReader) Data() string {
	return r.data.String()
}

// Event returns the current event name, or "" for unnamed events.
func (r *sseReader) Event() string {
	return r.event
}

// Err returns the first read error, if any.
func (r *sseReader) Err() error {
	return r.err
}
