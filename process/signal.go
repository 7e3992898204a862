package process

import (
	"errors"
	"os"

	"github.com/kbukum/cmdkit/logger"
	"github.com/kbukum/cmdkit/signals"
)

// Signal sends sig to the running child. It is a no-op when no child is
// running or the child has already exited.
func (c *Command) Signal(sig os.Signal) error {
	c.mu.Lock()
	p := c.proc
	c.mu.Unlock()

	if p == nil {
		return nil
	}
	if err := p.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// Running reports whether a child is currently live.
func (c *Command) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.proc != nil
}

// EnableSignalForwarding relays sig to the running child whenever the
// controller receives it, then lets the previously installed handlers run.
// Revert the returned registration to stop forwarding.
func (c *Command) EnableSignalForwarding(sig os.Signal) *signals.Registration {
	return c.registry.Subscribe(sig, signals.HandlerFunc(func(s os.Signal) {
		if err := c.Signal(s); err != nil {
			c.log.Warn("signal forwarding failed", logger.Fields(
				logger.FieldCommand, c.name,
				logger.FieldSignal, s.String(),
				logger.FieldError, err.Error(),
			))
			return
		}
		c.log.Debug("signal forwarded", logger.Fields(
			logger.FieldCommand, c.name,
			logger.FieldSignal, s.String(),
		))
	}))
}
