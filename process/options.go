package process

import (
	"slices"

	"github.com/go-viper/mapstructure/v2"

	goerrors "github.com/kbukum/cmdkit/errors"
)

// CallOption overrides a configuration default for a single invocation.
type CallOption func(*invocation)

// Stdin feeds data to the child's standard input.
func Stdin(data []byte) CallOption {
	return func(inv *invocation) { inv.stdin = data }
}

// Check overrides the exit-code check.
func Check(check bool) CallOption {
	return func(inv *invocation) { inv.check = check }
}

// AllowedExitCodes overrides the set of exit codes treated as success.
func AllowedExitCodes(codes ...int) CallOption {
	return func(inv *invocation) { inv.allowed = append([]int(nil), codes...) }
}

// CloseFDs overrides the descriptor-closing policy.
func CloseFDs(closeFDs bool) CallOption {
	return func(inv *invocation) { inv.closeFDs = closeFDs }
}

// OutHandler overrides the standard output handler.
func OutHandler(h LineHandler) CallOption {
	return func(inv *invocation) { inv.outHandler = h }
}

// ErrHandler overrides the standard error handler.
func ErrHandler(h LineHandler) CallOption {
	return func(inv *invocation) { inv.errHandler = h }
}

// invocation is the effective configuration of one attempt.
type invocation struct {
	args       []string
	stdin      []byte
	check      bool
	allowed    []int
	closeFDs   bool
	outHandler LineHandler
	errHandler LineHandler
	customOut  bool
	customErr  bool
	id         string
	opts       []CallOption
	callArgs   []string
}

// resolve merges the configuration defaults with opts.
func (c *Command) resolve(args []string, opts []CallOption) *invocation {
	inv := &invocation{
		args:     append(append([]string(nil), c.args...), args...),
		check:    c.check,
		allowed:  c.allowed,
		closeFDs: c.closeFDs,
		opts:     opts,
		callArgs: args,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(inv)
		}
	}
	inv.customOut = inv.outHandler != nil
	inv.customErr = inv.errHandler != nil
	if !inv.customOut {
		inv.outHandler = c.outHandler
	}
	if !inv.customErr {
		inv.errHandler = c.errHandler
	}
	return inv
}

// accepts reports whether code is in the allowed set.
func (inv *invocation) accepts(code int) bool {
	return slices.Contains(inv.allowed, code)
}

// Overrides is the decoded form of named per-call overrides.
type Overrides struct {
	Stdin            *string     `mapstructure:"stdin"`
	Check            *bool       `mapstructure:"check"`
	AllowedExitCodes []int       `mapstructure:"allowed_exit_codes"`
	CloseFDs         *bool       `mapstructure:"close_fds"`
	OutHandler       LineHandler `mapstructure:"out_handler"`
	ErrHandler       LineHandler `mapstructure:"err_handler"`
}

// OverridesFromMap converts named overrides, as found in configuration files
// or on the command line, into CallOptions. Unknown names and values of the
// wrong type are rejected with INVALID_OVERRIDE.
func OverridesFromMap(m map[string]any) ([]CallOption, error) {
	ov, err := DecodeOverrides(m)
	if err != nil {
		return nil, err
	}
	return ov.Options(), nil
}

// DecodeOverrides decodes named overrides without turning them into
// CallOptions. Comma-separated strings are accepted for list values, so
// "0,3" sets allowed_exit_codes to [0 3].
func DecodeOverrides(m map[string]any) (Overrides, error) {
	var ov Overrides
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &ov,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToWeakSliceHookFunc(","),
	})
	if err != nil {
		return Overrides{}, goerrors.Internal(err)
	}
	if err := dec.Decode(m); err != nil {
		return Overrides{}, goerrors.InvalidOverride(err.Error()).WithCause(err)
	}
	return ov, nil
}

// Options returns the CallOptions for every set field.
func (ov Overrides) Options() []CallOption {
	var opts []CallOption
	if ov.Stdin != nil {
		opts = append(opts, Stdin([]byte(*ov.Stdin)))
	}
	if ov.Check != nil {
		opts = append(opts, Check(*ov.Check))
	}
	if ov.AllowedExitCodes != nil {
		opts = append(opts, AllowedExitCodes(ov.AllowedExitCodes...))
	}
	if ov.CloseFDs != nil {
		opts = append(opts, CloseFDs(*ov.CloseFDs))
	}
	if ov.OutHandler != nil {
		opts = append(opts, OutHandler(ov.OutHandler))
	}
	if ov.ErrHandler != nil {
		opts = append(opts, ErrHandler(ov.ErrHandler))
	}
	return opts
}
