package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	goerrors "github.com/kbukum/cmdkit/errors"
	"github.com/kbukum/cmdkit/process"
)

// policyFlags are shared by run and rsync. Only flags set on the command
// line override the profile.
type policyFlags struct {
	check      bool
	allow      []int
	retry      int
	retrySleep time.Duration
	backoff    float64
	stdinFile  string
	set        []string
	lockFile   string
	forward    []string
}

func (f *policyFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.BoolVar(&f.check, "check", false, "fail when the exit code is not accepted")
	flags.IntSliceVar(&f.allow, "allow", nil, "accepted exit codes (default 0)")
	flags.IntVar(&f.retry, "retry", 0, "retries after a rejected exit code")
	flags.DurationVar(&f.retrySleep, "retry-sleep", 0, "pause between retries")
	flags.Float64Var(&f.backoff, "backoff", 0, "multiply the pause by this factor after each retry")
	flags.StringVar(&f.stdinFile, "stdin-file", "", `feed this file to the command's stdin ("-" for cmdkit's stdin)`)
	flags.StringArrayVar(&f.set, "set", nil, "per-call override key=value (check, allowed_exit_codes, close_fds, stdin)")
	flags.StringVar(&f.lockFile, "lock-file", "", "refuse to start while another run holds this lock")
	flags.StringSliceVar(&f.forward, "forward", nil, "signals forwarded to the command (default TERM,INT)")
}

// options returns the command options for flags explicitly set.
func (f *policyFlags) options(cmd *cobra.Command, retryTimes int, retrySleep time.Duration) []process.Option {
	flags := cmd.Flags()
	var opts []process.Option
	if flags.Changed("check") {
		opts = append(opts, process.WithCheck(f.check))
	}
	if flags.Changed("allow") {
		opts = append(opts, process.WithAllowedExitCodes(f.allow...))
	}
	if flags.Changed("retry") {
		retryTimes = f.retry
	}
	if flags.Changed("retry-sleep") {
		retrySleep = f.retrySleep
	}
	if flags.Changed("retry") || flags.Changed("retry-sleep") {
		opts = append(opts, process.WithRetry(retryTimes, retrySleep))
	}
	if flags.Changed("backoff") {
		opts = append(opts, process.WithBackoff(f.backoff))
	}
	return opts
}

// callOptions merges the profile's named overrides with --set and
// --stdin-file. It also returns the check override, if one was named.
func (f *policyFlags) callOptions(cmd *cobra.Command, profile map[string]any) ([]process.CallOption, *bool, error) {
	merged := make(map[string]any, len(profile)+len(f.set))
	for k, v := range profile {
		merged[k] = v
	}
	set, err := parseSet(f.set)
	if err != nil {
		return nil, nil, err
	}
	for k, v := range set {
		merged[k] = v
	}

	ov, err := process.DecodeOverrides(merged)
	if err != nil {
		return nil, nil, err
	}
	opts := ov.Options()

	if f.stdinFile != "" {
		data, err := readStdinFile(cmd, f.stdinFile)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, process.Stdin(data))
	}
	return opts, ov.Check, nil
}

func readStdinFile(cmd *cobra.Command, path string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, goerrors.InvalidInput("stdin-file", err.Error()).WithCause(err)
	}
	return data, nil
}

// parseSet splits key=value pairs.
func parseSet(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, goerrors.InvalidOverride(fmt.Sprintf("%q is not key=value", pair))
		}
		out[k] = v
	}
	return out, nil
}

// forwardSignals returns the signals to forward: the flag, else the
// profile, else TERM and INT.
func (f *policyFlags) forwardSignals(cmd *cobra.Command, profile []string) []string {
	if cmd.Flags().Changed("forward") {
		return f.forward
	}
	if len(profile) > 0 {
		return profile
	}
	return []string{"TERM", "INT"}
}
