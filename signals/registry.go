// Package signals provides a process-wide signal subscription registry with
// ordered chaining.
//
// Each Subscribe wraps the chain installed before it: on delivery the newest
// handler runs first, then the previous one, down to the base disposition
// that was in effect before the first subscription. A Registration can be
// reverted at any time, which removes exactly that handler from the chain.
//
// The base disposition mirrors the operating-system default for a
// termination request: when no base handler was set with SetBase and SIGTERM
// was not ignored before the first subscription, the controller exits with
// status 128+15 after the chain ran. Other signals without a base handler
// stop at the end of the chain.
package signals

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Handler receives a delivered signal.
type Handler interface {
	HandleSignal(sig os.Signal)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(sig os.Signal)

// HandleSignal calls f(sig).
func (f HandlerFunc) HandleSignal(sig os.Signal) { f(sig) }

// Default is the registry used by process.Command unless another is set.
var Default = NewRegistry()

// Registry tracks the handler chain of every subscribed signal.
type Registry struct {
	mu     sync.Mutex
	chains map[os.Signal]*chain
	bases  map[os.Signal]Handler
	exit   func(code int)
	notify func(c chan<- os.Signal, sig ...os.Signal)
	stop   func(c chan<- os.Signal)
	nextID uint64
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithExitFunc replaces os.Exit for the base SIGTERM disposition.
func WithExitFunc(exit func(code int)) RegistryOption {
	return func(r *Registry) { r.exit = exit }
}

// WithoutOSNotify keeps the registry from subscribing to real OS signals.
// Signals then only arrive through Deliver.
func WithoutOSNotify() RegistryOption {
	return func(r *Registry) {
		r.notify = func(chan<- os.Signal, ...os.Signal) {}
		r.stop = func(chan<- os.Signal) {}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		chains: make(map[os.Signal]*chain),
		bases:  make(map[os.Signal]Handler),
		exit:   os.Exit,
		notify: signal.Notify,
		stop:   signal.Stop,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type entry struct {
	id      uint64
	handler Handler
}

type chain struct {
	// entries is ordered oldest first.
	entries []entry
	ch      chan os.Signal
	done    chan struct{}
	// ignored records whether sig was ignored before the registry took it over.
	ignored bool
}

// Registration is a scoped subscription returned by Subscribe.
type Registration struct {
	registry *Registry
	sig      os.Signal
	id       uint64
	once     sync.Once
}

// Signal returns the subscribed signal.
func (reg *Registration) Signal() os.Signal { return reg.sig }

// Revert removes the handler from its chain. It is safe to call more than once.
func (reg *Registration) Revert() {
	reg.once.Do(func() {
		reg.registry.remove(reg.sig, reg.id)
	})
}

// Subscribe installs h on top of the current chain for sig.
func (r *Registry) Subscribe(sig os.Signal, h Handler) *Registration {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID

	c, ok := r.chains[sig]
	if !ok {
		c = &chain{
			ch:      make(chan os.Signal, 1),
			done:    make(chan struct{}),
			ignored: signal.Ignored(sig),
		}
		r.chains[sig] = c
		r.notify(c.ch, sig)
		go r.dispatch(c)
	}
	c.entries = append(c.entries, entry{id: id, handler: h})

	return &Registration{registry: r, sig: sig, id: id}
}

// SetBase replaces the base disposition of sig, the handler that runs after
// every subscriber. Passing nil restores the default disposition.
func (r *Registry) SetBase(sig os.Signal, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h == nil {
		delete(r.bases, sig)
		return
	}
	r.bases[sig] = h
}

// Len returns the number of handlers subscribed to sig.
func (r *Registry) Len(sig os.Signal) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.chains[sig]; ok {
		return len(c.entries)
	}
	return 0
}

// Deliver runs the chain for sig synchronously, newest handler first,
// followed by the base disposition.
func (r *Registry) Deliver(sig os.Signal) {
	r.mu.Lock()
	var handlers []Handler
	ignored := false
	if c, ok := r.chains[sig]; ok {
		handlers = make([]Handler, 0, len(c.entries))
		for i := len(c.entries) - 1; i >= 0; i-- {
			handlers = append(handlers, c.entries[i].handler)
		}
		ignored = c.ignored
	} else {
		ignored = signal.Ignored(sig)
	}
	base := r.bases[sig]
	exit := r.exit
	r.mu.Unlock()

	for _, h := range handlers {
		h.HandleSignal(sig)
	}

	switch {
	case base != nil:
		base.HandleSignal(sig)
	case ignored:
	case sig == syscall.SIGTERM:
		exit(128 + int(syscall.SIGTERM))
	}
}

func (r *Registry) remove(sig os.Signal, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.chains[sig]
	if !ok {
		return
	}
	for i, e := range c.entries {
		if e.id == id {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			break
		}
	}
	if len(c.entries) == 0 {
		r.stop(c.ch)
		close(c.done)
		delete(r.chains, sig)
	}
}

func (r *Registry) dispatch(c *chain) {
	for {
		select {
		case sig := <-c.ch:
			r.Deliver(sig)
		case <-c.done:
			return
		}
	}
}
