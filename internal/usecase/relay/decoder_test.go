package relay

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(content string) string {
	return `data: {"choices":[{"delta":{"content":"` + content + `"}}]}` + "\n\n"
}

// collect feeds chunks one at a time and drains fragments after each.
func collect(t *testing.T, chunks ...string) ([]string, *Decoder) {
	t.Helper()
	d := NewDecoder()
	var out []string
	drainInto := func() bool {
		for {
			frag, err := d.Next()
			switch {
			case err == nil:
				out = append(out, frag)
			case errors.Is(err, ErrNeedMore):
				return false
			case errors.Is(err, io.EOF):
				return true
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
	}
	for _, c := range chunks {
		d.Write([]byte(c))
		if drainInto() {
			return out, d
		}
	}
	d.Close()
	drainInto()
	return out, d
}

func TestDecoderBasic(t *testing.T) {
	frags, d := collect(t, frame("He")+frame("llo")+"data: [DONE]\n\n")
	assert.Equal(t, []string{"He", "llo"}, frags)
	assert.Equal(t, "Hello", d.Text())
	assert.Equal(t, 2, d.Fragments())
	assert.True(t, d.Done())
}

func TestDecoderSplitAcrossChunks(t *testing.T) {
	raw := frame("He") + frame("llo") + "data: [DONE]\n\n"
	cut := strings.Index(raw, `"He"`) + 2

	frags, _ := collect(t, raw[:cut], raw[cut:])
	assert.Equal(t, []string{"He", "llo"}, frags)
}

func TestDecoderByteByByte(t *testing.T) {
	raw := frame("a") + ": keep-alive\n" + frame("b c") + frame("") + frame("d") + "data: [DONE]\n"
	chunks := make([]string, 0, len(raw))
	for i := range len(raw) {
		chunks = append(chunks, raw[i:i+1])
	}

	frags, d := collect(t, chunks...)
	assert.Equal(t, []string{"a", "b c", "d"}, frags, "empty deltas are not yielded")
	assert.Equal(t, "ab cd", d.Text())
}

func TestDecoderRetriesPayloadBrokenByNewline(t *testing.T) {
	raw := `data: {"choices":[{"delta":{"content":"He` + "\n" +
		`llo"}}]}` + "\n" +
		frame("!") +
		"data: [DONE]\n"

	frags, _ := collect(t, raw)
	assert.Equal(t, []string{"Hello", "!"}, frags)
}

func TestDecoderDropsUnrecoverablePayload(t *testing.T) {
	raw := "data: {not json\n" + frame("ok") + "data: [DONE]\n"

	frags, _ := collect(t, raw)
	assert.Equal(t, []string{"ok"}, frags)
}

func TestDecoderCRLF(t *testing.T) {
	raw := strings.ReplaceAll(frame("x")+frame("y")+"data: [DONE]\n\n", "\n", "\r\n")

	frags, d := collect(t, raw)
	assert.Equal(t, []string{"x", "y"}, frags)
	assert.True(t, d.Done())
}

func TestDecoderIgnoresCommentsAndOtherFields(t *testing.T) {
	raw := ": OPENROUTER PROCESSING\n" +
		"event: message\n" +
		"\n" +
		frame("only") +
		`data: {"id":"x","choices":[]}` + "\n" +
		"data: [DONE]\n"

	frags, _ := collect(t, raw)
	assert.Equal(t, []string{"only"}, frags)
}

func TestDecoderStopsAtSentinel(t *testing.T) {
	raw := frame("before") + "data: [DONE]\n" + frame("after")

	frags, d := collect(t, raw)
	assert.Equal(t, []string{"before"}, frags)

	d.Write([]byte(frame("late")))
	_, err := d.Next()
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "before", d.Text())
}

func TestDecoderResidualLineAtEOF(t *testing.T) {
	raw := frame("a") + `data: {"choices":[{"delta":{"content":"tail"}}]}`

	frags, d := collect(t, raw)
	assert.Equal(t, []string{"a", "tail"}, frags)
	assert.True(t, d.Done())
}

func TestDecoderEOFWithoutSentinel(t *testing.T) {
	frags, d := collect(t, frame("a"), frame("b"))
	assert.Equal(t, []string{"a", "b"}, frags)
	assert.True(t, d.Done())
}

func TestDecoderNeedMore(t *testing.T) {
	d := NewDecoder()
	_, err := d.Next()
	require.ErrorIs(t, err, ErrNeedMore)

	d.Write([]byte(`data: {"choices":[{"delta"`))
	_, err = d.Next()
	require.ErrorIs(t, err, ErrNeedMore)

	d.Write([]byte(`:{"content":"z"}}]}` + "\n"))
	frag, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, "z", frag)
}

func TestDecoderUnicode(t *testing.T) {
	raw := frame("héllo ") + frame("世界") + "data: [DONE]\n"
	cut := strings.Index(raw, "世") + 1

	frags, d := collect(t, raw[:cut], raw[cut:])
	assert.Equal(t, []string{"héllo ", "世界"}, frags)
	assert.Equal(t, "héllo 世界", d.Text())
}
