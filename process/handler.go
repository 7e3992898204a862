package process

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/rs/zerolog"

	"github.com/kbukum/cmdkit/logger"
)

// LineHandler receives one line of child output, without its newline.
type LineHandler interface {
	HandleLine(line string)
}

// LineHandlerFunc adapts a function to the LineHandler interface.
type LineHandlerFunc func(line string)

// HandleLine calls f(line).
func (f LineHandlerFunc) HandleLine(line string) { f(line) }

// Discard drops every line.
var Discard LineHandler = LineHandlerFunc(func(string) {})

// LogHandler logs every non-empty line at level, prepending prefix.
func LogHandler(l *logger.Logger, level zerolog.Level, prefix string) LineHandler {
	return LineHandlerFunc(func(line string) {
		if line == "" {
			return
		}
		l.Log(level, prefix+line)
	})
}

// PrintHandler writes every non-empty line to w, prepending prefix. When c is
// non-nil the line is colorized.
func PrintHandler(w io.Writer, prefix string, c *color.Color) LineHandler {
	var mu sync.Mutex
	return LineHandlerFunc(func(line string) {
		if line == "" {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if c != nil {
			_, _ = c.Fprintln(w, prefix+line)
			return
		}
		_, _ = fmt.Fprintln(w, prefix+line)
	})
}

// MultiHandler fans every line out to all handlers, in order.
func MultiHandler(handlers ...LineHandler) LineHandler {
	return LineHandlerFunc(func(line string) {
		for _, h := range handlers {
			h.HandleLine(line)
		}
	})
}

// Collector keeps every line it receives in memory.
type Collector struct {
	mu    sync.Mutex
	lines []string
}

// HandleLine appends line.
func (c *Collector) HandleLine(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
}

// Lines returns a copy of the collected lines.
func (c *Collector) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

// String joins the collected lines with newlines.
func (c *Collector) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.lines, "\n")
}

// RetryContext describes a failed attempt that is about to be retried.
type RetryContext struct {
	// Command is the configuration being invoked.
	Command *Command
	// Args are the per-call arguments of the invocation.
	Args []string
	// Options are the per-call overrides of the invocation.
	Options []CallOption
	// Attempt is the zero-based index of the attempt that failed.
	Attempt int
	// Err is the failure of that attempt.
	Err error
}

// RetryObserver is notified before every retry sleep.
type RetryObserver interface {
	ObserveRetry(rc RetryContext)
}

// RetryObserverFunc adapts a function to the RetryObserver interface.
type RetryObserverFunc func(rc RetryContext)

// ObserveRetry calls f(rc).
func (f RetryObserverFunc) ObserveRetry(rc RetryContext) { f(rc) }

// LogRetryObserver logs every retry as a warning.
func LogRetryObserver(l *logger.Logger) RetryObserver {
	return RetryObserverFunc(func(rc RetryContext) {
		l.WithError(rc.Err).Warn("command failed, retrying", logger.Fields(
			logger.FieldCommand, rc.Command.Name(),
			logger.FieldArgs, rc.Args,
			logger.FieldAttempt, rc.Attempt,
		))
	})
}
