package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// ErrNeedMore is returned by Decoder.Next when no complete line is buffered.
var ErrNeedMore = errors.New("relay: need more data")

const (
	dataPrefix    = "data: "
	doneSentinel  = "[DONE]"
	commentMarker = ":"
)

// streamChunk is the subset of an OpenAI-compatible stream frame we read.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Decoder incrementally decodes a line-delimited event stream into text
// fragments. Bytes are pushed with Write and fragments pulled with Next.
//
// A data payload that fails to decode is held back and retried once, joined
// with the next non-blank line. If that also fails the held payload is
// dropped and the new line is decoded on its own. Decode failures are never
// reported to the caller.
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	buf       []byte
	pending   string
	text      strings.Builder
	fragments int
	eof       bool
	done      bool
}

// NewDecoder returns an empty decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Write appends raw stream bytes. It never fails; bytes written after the
// sentinel are ignored.
func (d *Decoder) Write(p []byte) (int, error) {
	if !d.done {
		d.buf = append(d.buf, p...)
	}
	return len(p), nil
}

// Close marks the end of input. Any unterminated final line is still
// decoded by subsequent Next calls.
func (d *Decoder) Close() error {
	d.eof = true
	return nil
}

// Next returns the next non-empty text fragment. It returns ErrNeedMore when
// the buffered bytes hold no further complete line, and io.EOF once the
// sentinel was seen or input was closed and drained.
func (d *Decoder) Next() (string, error) {
	for !d.done {
		line, ok := d.nextLine()
		if !ok {
			if d.eof {
				d.finish()
				break
			}
			return "", ErrNeedMore
		}
		if frag := d.processLine(line); frag != "" {
			d.text.WriteString(frag)
			d.fragments++
			return frag, nil
		}
	}
	return "", io.EOF
}

// Text returns every fragment decoded so far, concatenated.
func (d *Decoder) Text() string { return d.text.String() }

// Fragments returns how many fragments have been yielded.
func (d *Decoder) Fragments() int { return d.fragments }

// Done reports whether the sequence has ended.
func (d *Decoder) Done() bool { return d.done }

func (d *Decoder) nextLine() (string, bool) {
	if i := bytes.IndexByte(d.buf, '\n'); i >= 0 {
		line := string(d.buf[:i])
		d.buf = d.buf[i+1:]
		return line, true
	}
	if d.eof && len(d.buf) > 0 {
		line := string(d.buf)
		d.buf = nil
		return line, true
	}
	return "", false
}

func (d *Decoder) finish() {
	d.done = true
	d.pending = ""
	d.buf = nil
}

// processLine handles one line and returns a fragment or "".
func (d *Decoder) processLine(line string) string {
	line = strings.TrimSuffix(line, "\r")
	if strings.TrimSpace(line) == "" || strings.HasPrefix(line, commentMarker) {
		return ""
	}

	if d.pending != "" {
		joined := d.pending + line
		d.pending = ""
		if frag, ok := d.decode(joined); ok {
			return frag
		}
	}

	if !strings.HasPrefix(line, dataPrefix) {
		return ""
	}

	payload := strings.TrimPrefix(line, dataPrefix)
	frag, ok := d.decode(payload)
	if !ok {
		d.pending = payload
	}
	return frag
}

// decode interprets one payload. ok is false only for a JSON failure.
func (d *Decoder) decode(payload string) (frag string, ok bool) {
	payload = strings.TrimSpace(payload)
	if payload == doneSentinel {
		d.finish()
		return "", true
	}

	var chunk streamChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return "", false
	}
	if len(chunk.Choices) == 0 {
		return "", true
	}
	return chunk.Choices[0].Delta.Content, true
}
