// ABOUTME: Tests for the newline frame decoder and the Lines read loop
// ABOUTME: Verifies chunk-boundary invariance, tail handling and transport errors

package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sample covers a multi-byte character (é, 2 bytes; 📅, 4 bytes), a CRLF
// terminator, a blank line and an unterminated tail.
const sample = "{\"type\":\"status\",\"content\":\"Searching Calendar…\"}\n" +
	"{\"type\":\"answer\",\"content\":\"Café 📅\"}\r\n" +
	"\n" +
	"{\"type\":\"answer\",\"content\":\"done\"}\n" +
	"{\"type\":\"answ"

var sampleLines = []string{
	`{"type":"status","content":"Searching Calendar…"}`,
	`{"type":"answer","content":"Café 📅"}`,
	`{"type":"answer","content":"done"}`,
}

func feedAll(chunks [][]byte) ([]string, int) {
	var dec Decoder
	var lines []string
	for _, c := range chunks {
		lines = append(lines, dec.Feed(c)...)
	}
	return lines, dec.Close()
}

func TestDecoder_SingleChunk(t *testing.T) {
	lines, discarded := feedAll([][]byte{[]byte(sample)})
	assert.Equal(t, sampleLines, lines)
	assert.Equal(t, len(`{"type":"answ`), discarded)
}

func TestDecoder_ByteAtATime(t *testing.T) {
	data := []byte(sample)
	chunks := make([][]byte, len(data))
	for i := range data {
		chunks[i] = data[i : i+1]
	}

	lines, _ := feedAll(chunks)
	assert.Equal(t, sampleLines, lines)
}

func TestDecoder_EveryTwoWaySplit(t *testing.T) {
	data := []byte(sample)
	for i := 0; i <= len(data); i++ {
		lines, _ := feedAll([][]byte{data[:i], data[i:]})
		require.Equal(t, sampleLines, lines, "split at %d", i)
	}
}

func TestDecoder_EveryThreeWaySplit(t *testing.T) {
	data := []byte(sample)
	for i := 0; i <= len(data); i++ {
		for j := i; j <= len(data); j++ {
			lines, _ := feedAll([][]byte{data[:i], data[i:j], data[j:]})
			require.Equal(t, sampleLines, lines, "split at %d,%d", i, j)
		}
	}
}

func TestDecoder_SplitInsideMultiByteRune(t *testing.T) {
	data := []byte("{\"content\":\"📅\"}\n")
	idx := strings.Index(string(data), "📅")

	var dec Decoder
	assert.Empty(t, dec.Feed(data[:idx+2]))
	assert.Equal(t, idx+2, dec.Pending())
	assert.Equal(t, []string{`{"content":"📅"}`}, dec.Feed(data[idx+2:]))
	assert.Zero(t, dec.Pending())
}

func TestDecoder_SplitCRLF(t *testing.T) {
	var dec Decoder
	assert.Empty(t, dec.Feed([]byte("{\"a\":1}\r")))
	assert.Equal(t, []string{`{"a":1}`}, dec.Feed([]byte("\n")))
}

func TestDecoder_BlankLinesSkipped(t *testing.T) {
	var dec Decoder
	assert.Empty(t, dec.Feed([]byte("\n\n  \n\r\n")))
	assert.Zero(t, dec.Close())
}

func TestDecoder_InvalidUTF8Replaced(t *testing.T) {
	var dec Decoder
	lines := dec.Feed([]byte("ab\xffcd\n"))
	require.Len(t, lines, 1)
	assert.Equal(t, "ab�cd", lines[0])
}

func TestLines_ReadsUntilEOF(t *testing.T) {
	r := iotest.OneByteReader(strings.NewReader(sample))

	var got []string
	discarded, err := Lines(context.Background(), r, func(line string) error {
		got = append(got, line)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, sampleLines, got)
	assert.Equal(t, len(`{"type":"answ`), discarded)
}

func TestLines_TransportError(t *testing.T) {
	boom := errors.New("connection reset")
	r := io.MultiReader(strings.NewReader(sampleLines[0]+"\n"), iotest.ErrReader(boom))

	var got []string
	_, err := Lines(context.Background(), r, func(line string) error {
		got = append(got, line)
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, sampleLines[:1], got)
}

func TestLines_CallbackErrorStops(t *testing.T) {
	stop := errors.New("stop")
	calls := 0
	_, err := Lines(context.Background(), strings.NewReader(sample), func(string) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestLines_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Lines(ctx, strings.NewReader(sample), func(string) error {
		t.Fatal("callback should not run")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
