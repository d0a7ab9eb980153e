package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command with its subcommands
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags),
		createConfigCommand(globalFlags),
		createTabsCommand(),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "tabguard",
		Short: "Keep browser memory in check by killing idle tabs",
		Long: `tabguard watches the tabs reported by its browser extension and terminates
renderer processes that use too much memory, stay in the background too long
or sit idle.

Examples:
  tabguard serve                        # Run with the default config file
  tabguard serve --config=./tabs.toml   # Run with a specific config file
  tabguard config init                  # Write the default config file
  tabguard tabs                         # Show the tabs a running daemon tracks`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (default: <user config dir>/tab-memory-manager.toml)")
	return root
}
