package signals

import (
	"fmt"
	"strconv"
	"strings"
	"syscall"
)

var byName = map[string]syscall.Signal{
	"HUP":   syscall.SIGHUP,
	"INT":   syscall.SIGINT,
	"QUIT":  syscall.SIGQUIT,
	"TERM":  syscall.SIGTERM,
	"USR1":  syscall.SIGUSR1,
	"USR2":  syscall.SIGUSR2,
	"WINCH": syscall.SIGWINCH,
	"CONT":  syscall.SIGCONT,
}

// Parse resolves a forwardable signal from its name ("TERM", "SIGTERM",
// case-insensitive) or number.
func Parse(name string) (syscall.Signal, error) {
	s := strings.ToUpper(strings.TrimSpace(name))
	if n, err := strconv.Atoi(s); err == nil {
		for _, sig := range byName {
			if int(sig) == n {
				return sig, nil
			}
		}
		return 0, fmt.Errorf("signal %d cannot be forwarded", n)
	}
	if sig, ok := byName[strings.TrimPrefix(s, "SIG")]; ok {
		return sig, nil
	}
	return 0, fmt.Errorf("unknown signal %q", name)
}

// ParseAll resolves every name with Parse.
func ParseAll(names []string) ([]syscall.Signal, error) {
	out := make([]syscall.Signal, 0, len(names))
	for _, name := range names {
		sig, err := Parse(name)
		if err != nil {
			return nil, err
		}
		out = append(out, sig)
	}
	return out, nil
}
