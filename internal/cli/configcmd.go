package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func (a *app) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(a.cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check the configuration file and list its profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Loading already validated the file.
			source := a.cfg.File
			if source == "" {
				source = "defaults (no configuration file found)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", source)
			for _, name := range a.cfg.ProfileNames() {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s\n", name, a.cfg.Commands[name].Command)
			}
			return nil
		},
	})

	return cmd
}
