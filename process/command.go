package process

import (
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	goerrors "github.com/kbukum/cmdkit/errors"
	"github.com/kbukum/cmdkit/logger"
	"github.com/kbukum/cmdkit/signals"
)

// DefaultGracePeriod is how long a canceled child gets between SIGTERM and SIGKILL.
const DefaultGracePeriod = 5 * time.Second

// Command is a reusable configuration for running one external program.
//
// The configuration is fixed by New. Every invocation resolves its own
// effective settings from the configuration and its CallOptions, so
// concurrent callers never change each other's defaults. Invocations on the
// same Command run one at a time.
type Command struct {
	name    string
	path    string // resolved executable, or name in shell mode
	args    []string
	env     []string
	search  string
	dir     string
	shell   bool
	grace   time.Duration
	inherit []*os.File

	closeFDs   bool
	check      bool
	allowed    []int
	retryTimes int
	retryDelay time.Duration
	backoff    float64
	observer   RetryObserver
	outHandler LineHandler
	errHandler LineHandler

	log       *logger.Logger
	registry  *signals.Registry
	telemetry *telemetry

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	execMu sync.Mutex

	mu     sync.Mutex
	proc   *os.Process
	result *Result
}

// Option configures a Command.
type Option func(*Command)

// WithArgs sets arguments placed before every per-call argument.
func WithArgs(args ...string) Option {
	return func(c *Command) { c.args = append([]string(nil), args...) }
}

// WithEnv overlays variables on the inherited environment.
func WithEnv(env map[string]string) Option {
	return func(c *Command) {
		if len(env) == 0 {
			return
		}
		overlay := make(map[string]string, len(env))
		for k, v := range env {
			overlay[k] = v
		}
		c.env = mergeEnv(overlay)
	}
}

// WithPath sets the search path used to resolve the executable. It is also
// exported to the child as PATH.
func WithPath(path string) Option {
	return func(c *Command) { c.search = path }
}

// WithDir sets the working directory of the child.
func WithDir(dir string) Option {
	return func(c *Command) { c.dir = dir }
}

// WithShell runs the command line through /bin/sh -c.
func WithShell(shell bool) Option {
	return func(c *Command) { c.shell = shell }
}

// WithCloseFDs controls whether descriptors above stderr are withheld from
// the child. It defaults to true.
func WithCloseFDs(closeFDs bool) Option {
	return func(c *Command) { c.closeFDs = closeFDs }
}

// WithInheritFiles lists the files handed to the child as descriptors 3 and
// up when CloseFDs is false.
func WithInheritFiles(files ...*os.File) Option {
	return func(c *Command) { c.inherit = append([]*os.File(nil), files...) }
}

// WithCheck enables the exit-code check by default.
func WithCheck(check bool) Option {
	return func(c *Command) { c.check = check }
}

// WithAllowedExitCodes sets the exit codes treated as success.
func WithAllowedExitCodes(codes ...int) Option {
	return func(c *Command) { c.allowed = append([]int(nil), codes...) }
}

// WithRetry sets the retry budget and the fixed pause between attempts.
func WithRetry(times int, delay time.Duration) Option {
	return func(c *Command) {
		c.retryTimes = times
		c.retryDelay = delay
	}
}

// WithBackoff multiplies the retry pause by factor after every retry.
func WithBackoff(factor float64) Option {
	return func(c *Command) { c.backoff = factor }
}

// WithRetryObserver sets the observer notified before every retry.
func WithRetryObserver(o RetryObserver) Option {
	return func(c *Command) { c.observer = o }
}

// WithOutHandler sets the default handler for standard output lines.
func WithOutHandler(h LineHandler) Option {
	return func(c *Command) { c.outHandler = h }
}

// WithErrHandler sets the default handler for standard error lines.
func WithErrHandler(h LineHandler) Option {
	return func(c *Command) { c.errHandler = h }
}

// WithLogger sets the logger used by the Command.
func WithLogger(l *logger.Logger) Option {
	return func(c *Command) { c.log = l }
}

// WithGracePeriod sets the delay between SIGTERM and SIGKILL on cancellation.
func WithGracePeriod(d time.Duration) Option {
	return func(c *Command) { c.grace = d }
}

// WithSignalRegistry sets the registry used by EnableSignalForwarding.
func WithSignalRegistry(r *signals.Registry) Option {
	return func(c *Command) { c.registry = r }
}

// WithTelemetry sets the tracer and meter providers. Nil values fall back to
// the global providers.
func WithTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) Option {
	return func(c *Command) {
		c.tracerProvider = tp
		c.meterProvider = mp
	}
}

// New builds a Command for name. Outside shell mode the executable is
// resolved immediately; a missing executable is reported as
// COMMAND_NOT_FOUND.
func New(name string, opts ...Option) (*Command, error) {
	if name == "" {
		return nil, goerrors.MissingField("command")
	}

	c := &Command{
		name:     name,
		path:     name,
		closeFDs: true,
		allowed:  []int{0},
		grace:    DefaultGracePeriod,
		registry: signals.Default,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.search != "" {
		c.env = setEnv(c.env, "PATH", c.search)
	}
	if c.log == nil {
		c.log = logger.Get("process")
	}
	if c.outHandler == nil {
		c.outHandler = LogHandler(c.log, zerolog.InfoLevel, "")
	}
	if c.errHandler == nil {
		c.errHandler = LogHandler(c.log, zerolog.WarnLevel, "")
	}

	if !c.shell {
		resolved, err := lookPath(name, c.search)
		if err != nil {
			return nil, goerrors.CommandNotFound(name, c.search).WithCause(err)
		}
		c.path = resolved
	}

	t, err := newTelemetry(c.tracerProvider, c.meterProvider)
	if err != nil {
		return nil, goerrors.Internal(err)
	}
	c.telemetry = t

	return c, nil
}

// Name returns the command as it was configured.
func (c *Command) Name() string { return c.name }

// Path returns the resolved executable.
func (c *Command) Path() string { return c.path }

// Args returns a copy of the fixed arguments.
func (c *Command) Args() []string { return append([]string(nil), c.args...) }

// LastResult returns the result of the most recent completed attempt, or nil.
func (c *Command) LastResult() *Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// lookPath resolves name on search, or on the inherited PATH when search is
// empty. Names containing a separator are only checked for existence.
func lookPath(name, search string) (string, error) {
	if search == "" || strings.ContainsRune(name, filepath.Separator) {
		p, err := exec.LookPath(name)
		if err != nil {
			return "", err
		}
		return filepath.Abs(p)
	}
	for _, dir := range filepath.SplitList(search) {
		if dir == "" {
			dir = "."
		}
		candidate := filepath.Join(dir, name)
		if isExecutable(candidate) {
			return filepath.Abs(candidate)
		}
	}
	return "", exec.ErrNotFound
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode().Perm()&0o111 != 0
}

// mergeEnv returns os.Environ with the overlay keys replaced.
func mergeEnv(overlay map[string]string) []string {
	env := os.Environ()
	keys := make([]string, 0, len(overlay))
	for k := range overlay {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = setEnv(env, k, overlay[k])
	}
	return env
}

// setEnv replaces or appends key in env. A nil env starts from os.Environ.
func setEnv(env []string, key, value string) []string {
	if env == nil {
		env = os.Environ()
	}
	prefix := key + "="
	out := make([]string, 0, len(env)+1)
	for _, kv := range env {
		if !strings.HasPrefix(kv, prefix) {
			out = append(out, kv)
		}
	}
	return append(out, prefix+value)
}
