package process

import (
	"errors"
	"io"
	"math/rand"
	"strings"
	"testing"
)

// chunkReader returns data in reads of the given sizes.
type chunkReader struct {
	data   []byte
	sizes  []int
	reads  int
	closed bool
	err    error
}

func (r *chunkReader) Read(p []byte) (int, error) {
	r.reads++
	if len(r.data) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	n := len(r.data)
	if len(r.sizes) > 0 {
		n = min(r.sizes[0], n)
		r.sizes = r.sizes[1:]
	}
	n = min(n, len(p))
	copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}

func (r *chunkReader) Close() error {
	r.closed = true
	return nil
}

func readAll(t *testing.T, lr *LineReader) {
	t.Helper()
	for i := 0; i < 1_000_000; i++ {
		eof, err := lr.Process()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if eof {
			return
		}
	}
	t.Fatal("reader never reached EOF")
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestLineReaderLines(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty stream", "", []string{""}},
		{"single line", "hello\n", []string{"hello", ""}},
		{"no trailing newline", "a\nb", []string{"a", "b"}},
		{"empty lines", "\n\n", []string{"", "", ""}},
		{"fragment only", "partial", []string{"partial"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := &Collector{}
			readAll(t, NewLineReader(&chunkReader{data: []byte(tc.input)}, c))
			if got := c.Lines(); !equalLines(got, tc.want) {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestLineReaderArbitrarySplits(t *testing.T) {
	alphabet := []string{"a", "b", " ", "\n", "é", "日本", "\t"}
	for seed := int64(1); seed <= 50; seed++ {
		rng := rand.New(rand.NewSource(seed))

		var sb strings.Builder
		for i := 0; i < rng.Intn(400); i++ {
			sb.WriteString(alphabet[rng.Intn(len(alphabet))])
		}
		full := sb.String()

		var sizes []int
		for rest := len(full); rest > 0; {
			n := 1 + rng.Intn(16)
			sizes = append(sizes, n)
			rest -= n
		}

		c := &Collector{}
		readAll(t, NewLineReader(&chunkReader{data: []byte(full), sizes: sizes}, c))

		want := strings.Split(full, "\n")
		if got := c.Lines(); !equalLines(got, want) {
			t.Fatalf("seed %d: expected %q, got %q", seed, want, got)
		}
	}
}

func TestLineReaderOneReadPerProcess(t *testing.T) {
	r := &chunkReader{data: []byte("one\ntwo\nthree"), sizes: []int{2, 2, 2, 2, 2, 2, 2}}
	lr := NewLineReader(r, Discard)

	calls := 0
	for {
		calls++
		eof, err := lr.Process()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if eof {
			break
		}
	}
	if r.reads != calls {
		t.Errorf("expected one read per call, got %d reads for %d calls", r.reads, calls)
	}
}

func TestLineReaderInvalidUTF8(t *testing.T) {
	c := &Collector{}
	data := []byte("ok\xff\xfeok\n")
	readAll(t, NewLineReader(&chunkReader{data: data}, c))

	got := c.Lines()
	if got[0] != "ok\uFFFD\uFFFDok" {
		t.Errorf("expected one replacement character per invalid byte, got %q", got[0])
	}
}

func TestDecodeReplacesEachInvalidByte(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"a\xff\xfeb", "a\uFFFD\uFFFDb"},
		{"\xff", "\uFFFD"},
		{"日本\xff語", "日本\uFFFD語"},
		{"keep \uFFFD as is", "keep \uFFFD as is"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := decode([]byte(tt.in)); got != tt.want {
			t.Errorf("decode(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestLineReaderSplitMultibyte(t *testing.T) {
	c := &Collector{}
	data := []byte("日本\n")
	// Split inside the first character.
	readAll(t, NewLineReader(&chunkReader{data: data, sizes: []int{1, 1, 1, 1}}, c))

	if got := c.Lines(); got[0] != "日本" {
		t.Errorf("expected intact characters, got %q", got[0])
	}
}

func TestLineReaderEOFClosesAndFlushesOnce(t *testing.T) {
	r := &chunkReader{data: []byte("tail")}
	c := &Collector{}
	lr := NewLineReader(r, c)
	readAll(t, lr)

	if !r.closed {
		t.Error("expected the reader to be closed at EOF")
	}
	if !lr.EOF() {
		t.Error("expected EOF to be reported")
	}
	eof, err := lr.Process()
	if !eof || err != nil {
		t.Errorf("expected repeated EOF, got eof=%v err=%v", eof, err)
	}
	if got := c.Lines(); !equalLines(got, []string{"tail"}) {
		t.Errorf("expected a single flush, got %q", got)
	}
}

func TestLineReaderError(t *testing.T) {
	boom := errors.New("boom")
	lr := NewLineReader(&chunkReader{err: boom}, Discard)
	eof, err := lr.Process()
	if eof {
		t.Error("an error must not be reported as EOF")
	}
	if !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
}

func TestLineReaderFd(t *testing.T) {
	if _, ok := NewLineReader(strings.NewReader("x"), Discard).Fd(); ok {
		t.Error("strings.Reader has no descriptor")
	}
}
