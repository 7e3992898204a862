package process

import (
	"errors"
	"io"

	"golang.org/x/sys/unix"
)

// poll is the readiness wait used by pollDrain.
var poll = unix.Poll

// drain consumes every reader until all of them reached end-of-stream.
// Readers backed by a descriptor share one readiness wait; any other reader
// set falls back to one goroutine per stream feeding a single collector.
// Handlers always run on the calling goroutine.
func drain(readers ...*LineReader) error {
	fds := make([]int32, len(readers))
	for i, lr := range readers {
		fd, ok := lr.Fd()
		if !ok {
			return chanDrain(readers)
		}
		fds[i] = int32(fd)
	}
	return pollDrain(readers, fds)
}

// pollDrain waits on the still-open descriptors and processes one chunk
// from each ready reader before waiting again.
func pollDrain(readers []*LineReader, fds []int32) error {
	open := make([]int, len(readers))
	for i := range readers {
		open[i] = i
	}

	for len(open) > 0 {
		pfds := make([]unix.PollFd, len(open))
		for i, idx := range open {
			pfds[i] = unix.PollFd{Fd: fds[idx], Events: unix.POLLIN}
		}

		if _, err := poll(pfds, -1); err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return err
		}

		next := make([]int, 0, len(open))
		for i, idx := range open {
			if pfds[i].Revents == 0 {
				next = append(next, idx)
				continue
			}
			eof, err := readers[idx].Process()
			if err != nil {
				return err
			}
			if !eof {
				next = append(next, idx)
			}
		}
		open = next
	}
	return nil
}

type chunk struct {
	stream int
	data   []byte
	err    error
}

// chanDrain reads every stream on its own goroutine. Chunks are applied by
// the collector loop in arrival order, which keeps lines of one stream in
// order and tracks end-of-stream per reader.
func chanDrain(readers []*LineReader) error {
	chunks := make(chan chunk, len(readers))
	done := make(chan struct{})
	defer close(done)

	for i, lr := range readers {
		go pump(i, lr.r, chunks, done)
	}

	remaining := len(readers)
	for remaining > 0 {
		c := <-chunks
		lr := readers[c.stream]
		if len(c.data) > 0 {
			lr.feed(c.data)
		}
		switch {
		case errors.Is(c.err, io.EOF):
			lr.finish()
			remaining--
		case c.err != nil:
			return c.err
		}
	}
	return nil
}

func pump(stream int, r io.Reader, out chan<- chunk, done <-chan struct{}) {
	for {
		buf := make([]byte, readSize)
		n, err := r.Read(buf)
		if n == 0 && err == nil {
			continue
		}
		select {
		case out <- chunk{stream: stream, data: buf[:n], err: err}:
		case <-done:
			return
		}
		if err != nil {
			return
		}
	}
}
