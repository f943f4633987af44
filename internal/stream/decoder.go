// ABOUTME: Newline frame decoder that reassembles complete lines from arbitrary byte chunks
// ABOUTME: Carries partial lines between chunks and discards an unterminated tail at EOF

package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"unicode/utf8"
)

// readChunkSize is the buffer used when pulling from a response body.
const readChunkSize = 4096

// Decoder splits a byte stream into complete newline-terminated lines.
// The zero value is ready to use. A Decoder is not safe for concurrent use.
type Decoder struct {
	buf []byte
}

// Feed appends chunk to the carry-over buffer and returns every line that
// is now complete, in order. Blank lines are skipped.
func (d *Decoder) Feed(chunk []byte) []string {
	d.buf = append(d.buf, chunk...)

	var lines []string
	start := 0
	for {
		i := bytes.IndexByte(d.buf[start:], '\n')
		if i < 0 {
			break
		}
		if line, ok := normalizeLine(d.buf[start : start+i]); ok {
			lines = append(lines, line)
		}
		start += i + 1
	}

	// Shift the unterminated tail to the front of the buffer
	n := copy(d.buf, d.buf[start:])
	d.buf = d.buf[:n]

	return lines
}

// Pending returns the number of buffered bytes not yet terminated by a newline.
func (d *Decoder) Pending() int {
	return len(d.buf)
}

// Close ends the stream. Any unterminated tail is dropped and its length returned.
func (d *Decoder) Close() int {
	n := len(d.buf)
	d.buf = nil
	return n
}

// normalizeLine converts raw line bytes to text. A trailing CR is removed
// and invalid UTF-8 is replaced with U+FFFD. Whitespace-only lines report false.
func normalizeLine(raw []byte) (string, bool) {
	raw = bytes.TrimSuffix(raw, []byte{'\r'})
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	if utf8.Valid(raw) {
		return string(raw), true
	}
	return strings.ToValidUTF8(string(raw), string(utf8.RuneError)), true
}

// Lines reads r until EOF, calling fn for every complete line in arrival
// order. It returns nil on a clean EOF, the first error returned by fn, the
// context error if ctx is done between reads, or the transport error.
// The second return value is the number of unterminated bytes discarded at EOF.
func Lines(ctx context.Context, r io.Reader, fn func(line string) error) (int, error) {
	var dec Decoder
	buf := make([]byte, readChunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		n, err := r.Read(buf)
		if n > 0 {
			for _, line := range dec.Feed(buf[:n]) {
				if ferr := fn(line); ferr != nil {
					return 0, ferr
				}
			}
		}

		if errors.Is(err, io.EOF) {
			return dec.Close(), nil
		}
		if err != nil {
			// A cancelled request surfaces as a read error; report the cause
			if ctxErr := ctx.Err(); ctxErr != nil {
				return 0, ctxErr
			}
			return 0, err
		}
	}
}
