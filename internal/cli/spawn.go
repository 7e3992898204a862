package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kbukum/cmdkit/logger"
	"github.com/kbukum/cmdkit/process"
)

func (a *app) spawnCommand() *cobra.Command {
	var (
		keep    bool
		command string
	)

	cmd := &cobra.Command{
		Use:   "spawn <subcommand> [args...]",
		Short: "Start a detached cmdkit run in the background",
		Long: `Start "cmdkit -c <config> -q <subcommand> [args...]" in a new session
and print its pid without waiting for it.

The child reads the same configuration file as this run, so a
configuration file is required.

Example:
  cmdkit -c /etc/cmdkit/cmdkit.yml spawn run nightly`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sub, err := process.NewSubInvocation(process.SubInvocationConfig{
				Command:         command,
				Subcommand:      args[0],
				ConfigFile:      a.cfg.File,
				Args:            args[1:],
				KeepDescriptors: keep,
				Logger:          logger.Get("process"),
			})
			if err != nil {
				return err
			}
			pid, err := sub.Start(cmd.Context())
			if err != nil {
				return err
			}
			a.log.Info("spawned", logger.Fields(logger.FieldPID, pid, logger.FieldArgs, sub.Argv()))
			fmt.Fprintln(cmd.OutOrStdout(), pid)
			return nil
		},
	}

	cmd.Flags().BoolVar(&keep, "keep-descriptors", false, "keep the child's stdout and stderr attached")
	cmd.Flags().StringVar(&command, "executable", "", "program to start instead of this cmdkit binary")
	_ = cmd.Flags().MarkHidden("executable")

	return cmd
}
