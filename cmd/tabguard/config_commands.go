package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loykin/tabguard/internal/config"
)

// createConfigCommand creates the config command group
func createConfigCommand(globalFlags *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(createConfigInitCommand(globalFlags), createConfigShowCommand(globalFlags))
	return cmd
}

func createConfigInitCommand(globalFlags *GlobalFlags) *cobra.Command {
	flags := &ConfigInitFlags{}
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPathOrDefault(globalFlags.ConfigPath)
			if err != nil {
				return err
			}
			if err := config.WriteDefault(path, flags.Force); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote default config to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&flags.Force, "force", false, "overwrite an existing file")
	return cmd
}

func createConfigShowCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long:  "Print the configuration after defaults and TABGUARD_* environment overrides are applied.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPathOrDefault(globalFlags.ConfigPath)
			if err != nil {
				return err
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			b, err := cfg.TOML()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", path, b)
			return nil
		},
	}
}

func configPathOrDefault(p string) (string, error) {
	if p != "" {
		return p, nil
	}
	return config.DefaultPath()
}
