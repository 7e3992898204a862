package process

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"unicode/utf8"
)

// readSize bounds a single read from a stream.
const readSize = 4096

// LineReader splits one byte stream into lines for a LineHandler.
//
// Each Process call performs exactly one read, so a caller multiplexing
// several readers never starves a sibling stream. Bytes that are not valid
// UTF-8 are replaced with U+FFFD. When the stream ends the pending fragment
// is delivered once, even when it is empty.
type LineReader struct {
	r       io.Reader
	handler LineHandler
	buf     []byte
	chunk   []byte
	eof     bool
}

// NewLineReader creates a LineReader delivering lines from r to h.
func NewLineReader(r io.Reader, h LineHandler) *LineReader {
	if h == nil {
		h = Discard
	}
	return &LineReader{r: r, handler: h}
}

// Fd returns the descriptor behind the reader, when there is one.
func (lr *LineReader) Fd() (uintptr, bool) {
	if f, ok := lr.r.(interface{ Fd() uintptr }); ok {
		return f.Fd(), true
	}
	return 0, false
}

// EOF reports whether the stream has been fully consumed.
func (lr *LineReader) EOF() bool { return lr.eof }

// Process reads one chunk and hands every completed line to the handler.
// It returns true once the stream has ended. Read errors other than io.EOF
// are returned unchanged.
func (lr *LineReader) Process() (bool, error) {
	if lr.eof {
		return true, nil
	}
	if lr.chunk == nil {
		lr.chunk = make([]byte, readSize)
	}

	n, err := lr.r.Read(lr.chunk)
	if n > 0 {
		lr.feed(lr.chunk[:n])
	}
	switch {
	case errors.Is(err, io.EOF):
		lr.finish()
		return true, nil
	case err != nil:
		return false, err
	}
	return false, nil
}

// feed appends data to the pending fragment and emits complete lines.
// A multi-byte sequence split across reads stays in the buffer until its
// line is complete, so it decodes correctly.
func (lr *LineReader) feed(data []byte) {
	lr.buf = append(lr.buf, data...)
	for {
		i := bytes.IndexByte(lr.buf, '\n')
		if i < 0 {
			break
		}
		lr.handler.HandleLine(decode(lr.buf[:i]))
		lr.buf = lr.buf[i+1:]
	}
}

// finish closes the stream and flushes the trailing fragment.
func (lr *LineReader) finish() {
	if lr.eof {
		return
	}
	lr.eof = true
	if c, ok := lr.r.(io.Closer); ok {
		_ = c.Close()
	}
	lr.handler.HandleLine(decode(lr.buf))
	lr.buf = nil
}

// decode replaces every undecodable byte with U+FFFD.
func decode(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	var sb strings.Builder
	sb.Grow(len(b))
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		sb.WriteRune(r)
		b = b[size:]
	}
	return sb.String()
}
