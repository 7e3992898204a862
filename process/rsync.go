package process

import (
	"context"
	"fmt"
	"strings"
)

// RsyncConfig describes a remote-copy command line.
type RsyncConfig struct {
	// Rsync is the executable, "rsync" when empty.
	Rsync string
	// Args are appended after the generated flags.
	Args []string
	// SSH is the remote shell used for the -e flag.
	SSH string
	// SSHOptions are quoted into the -e flag after SSH.
	SSHOptions []string
	// BWLimit is the bandwidth limit in KiB/s. Zero disables it.
	BWLimit int
	// Exclude lists patterns excluded from the transfer.
	Exclude []string
	// ExcludeAndProtect lists patterns excluded from the transfer and
	// protected from deletion on the receiver.
	ExcludeAndProtect []string
	// Include lists patterns transferred even when an exclude matches.
	Include []string
	// NetworkCompression enables -z.
	NetworkCompression bool
	// Path overrides the search path.
	Path string
	// Options are applied after the remote-copy defaults, so they win.
	Options []Option
}

// RsyncAllowedExitCodes are accepted by default. 24 reports files that
// vanished while the transfer ran.
var RsyncAllowedExitCodes = []int{0, 24}

// Rsync is a Command preconfigured for remote copies.
type Rsync struct {
	*Command
}

// NewRsync builds the remote-copy command. Exit-code checking is on and
// accepts RsyncAllowedExitCodes unless cfg.Options override either.
func NewRsync(cfg RsyncConfig) (*Rsync, error) {
	name := cfg.Rsync
	if name == "" {
		name = "rsync"
	}

	opts := []Option{
		WithArgs(rsyncFlags(cfg)...),
		WithCheck(true),
		WithAllowedExitCodes(RsyncAllowedExitCodes...),
	}
	if cfg.Path != "" {
		opts = append(opts, WithPath(cfg.Path))
	}
	opts = append(opts, cfg.Options...)

	cmd, err := New(name, opts...)
	if err != nil {
		return nil, err
	}
	return &Rsync{Command: cmd}, nil
}

// rsyncFlags composes the fixed argument list. Includes come before
// excludes because an exclude stops the directory traversal.
func rsyncFlags(cfg RsyncConfig) []string {
	var flags []string
	if cfg.SSH != "" {
		flags = append(flags, "-e", FullCommandQuote(cfg.SSH, cfg.SSHOptions))
	}
	if cfg.NetworkCompression {
		flags = append(flags, "-z")
	}
	for _, p := range cfg.Include {
		flags = append(flags, "--include="+p)
	}
	for _, p := range cfg.Exclude {
		flags = append(flags, "--exclude="+p)
	}
	for _, p := range cfg.ExcludeAndProtect {
		flags = append(flags, "--exclude="+p, "--filter=P_"+p)
	}
	flags = append(flags, suseArgs(cfg.Args)...)
	if cfg.BWLimit > 0 {
		flags = append(flags, fmt.Sprintf("--bwlimit=%d", cfg.BWLimit))
	}
	return flags
}

// suseArgs prefixes arguments starting with ':' with a space. Some rsync
// builds otherwise read them as a remote path.
func suseArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if strings.HasPrefix(a, ":") {
			a = " " + a
		}
		out[i] = a
	}
	return out
}

// GetOutput runs the copy with mangled per-call arguments.
func (r *Rsync) GetOutput(ctx context.Context, args []string, opts ...CallOption) (string, string, error) {
	return r.Command.GetOutput(ctx, suseArgs(args), opts...)
}

// Run runs the copy with mangled per-call arguments.
func (r *Rsync) Run(ctx context.Context, args []string, opts ...CallOption) (int, error) {
	return r.Command.Run(ctx, suseArgs(args), opts...)
}

// Execute runs a single copy attempt with mangled per-call arguments.
func (r *Rsync) Execute(ctx context.Context, args []string, opts ...CallOption) (int, error) {
	return r.Command.Execute(ctx, suseArgs(args), opts...)
}
