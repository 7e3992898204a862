package cli

import (
	"slices"

	"github.com/spf13/cobra"

	"github.com/kbukum/cmdkit/process"
)

func (a *app) rsyncCommand() *cobra.Command {
	var (
		f              policyFlags
		ssh            string
		sshOptions     []string
		bwlimit        int
		include        []string
		exclude        []string
		excludeProtect []string
		compress       bool
	)

	cmd := &cobra.Command{
		Use:   "rsync [flags] <source>... <destination>",
		Short: "Copy files with rsync under supervision",
		Long: `Copy files with rsync using the defaults from the rsync section of the
configuration file.

Exit codes 0 and 24 (source files vanished during the transfer) are
accepted unless --allow says otherwise. Arguments starting with ":" are
prefixed with a space so rsync does not read them as remote paths. Put
rsync's own flags after "--".

Examples:
  cmdkit rsync -- -a /srv/data/ backup@vault:/srv/data/
  cmdkit rsync --ssh ssh --ssh-opt=-p --ssh-opt=2222 --bwlimit 500 -- -a /srv/ vault:/srv/`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := a.cfg.Rsync
			flags := cmd.Flags()
			if flags.Changed("ssh") {
				p.SSH = ssh
			}
			if flags.Changed("ssh-opt") {
				p.SSHOptions = sshOptions
			}
			if flags.Changed("bwlimit") {
				p.BWLimit = bwlimit
			}
			if flags.Changed("compress") {
				p.NetworkCompression = compress
			}
			p.Include = slices.Concat(p.Include, include)
			p.Exclude = slices.Concat(p.Exclude, exclude)
			p.ExcludeAndProtect = slices.Concat(p.ExcludeAndProtect, excludeProtect)

			extra := append(a.commandOptions(), f.options(cmd, p.RetryTimes, p.RetrySleep)...)
			r, err := process.NewRsync(p.RsyncConfig(extra...))
			if err != nil {
				return err
			}
			callOpts, checkOverride, err := f.callOptions(cmd, nil)
			if err != nil {
				return err
			}

			checked := true
			if checkOverride != nil {
				checked = *checkOverride
			}
			if flags.Changed("check") {
				checked = f.check
			}

			lock := p.LockFile
			if flags.Changed("lock-file") {
				lock = f.lockFile
			}
			return a.supervise(cmd.Context(), r, args, callOpts, supervision{
				checked:  checked,
				lockFile: lock,
				forward:  f.forwardSignals(cmd, p.ForwardSignals),
			})
		},
	}

	f.register(cmd)
	flags := cmd.Flags()
	flags.StringVar(&ssh, "ssh", "", "remote shell passed with -e")
	flags.StringArrayVar(&sshOptions, "ssh-opt", nil, "option appended to the remote shell")
	flags.IntVar(&bwlimit, "bwlimit", 0, "bandwidth limit in KiB/s")
	flags.StringArrayVar(&include, "include", nil, "include pattern")
	flags.StringArrayVar(&exclude, "exclude", nil, "exclude pattern")
	flags.StringArrayVar(&excludeProtect, "exclude-protect", nil, "exclude pattern also protected from deletion")
	flags.BoolVarP(&compress, "compress", "z", false, "compress data during the transfer")

	return cmd
}
