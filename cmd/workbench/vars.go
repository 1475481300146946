package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/driftworks/workbench/internal/config"
	"github.com/driftworks/workbench/internal/logging"
)

// Shared CLI flags (used across multiple command files)
var (
	cfgFile    string
	threadFlag string
	userFlag   string
	verbose    bool
)

// Cfg holds the loaded configuration (set by main, possibly overridden by
// the --config flag).
var Cfg *config.Config

// SetupRootCmd configures the root command with all subcommands and flags
func SetupRootCmd(c *config.Config) *cobra.Command {
	Cfg = c

	rootCmd := &cobra.Command{
		Use:   "workbench",
		Short: "Workbench - agent workspace filesystem and sandbox service",
		Long: `Workbench gives AI agents a persistent, path-addressed workspace backed by
an object store, plus per-thread sandboxes for command execution.

Run 'workbench serve' to start the HTTP API.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile != "" {
				loaded, err := config.LoadFile(cfgFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				*Cfg = loaded
			}
			if verbose || Cfg.Verbose {
				logging.SetLevel(logging.LevelDebug)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: embedded)")
	rootCmd.PersistentFlags().StringVarP(&threadFlag, "thread", "t", "", "thread id for workspace scoping")
	rootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "user id for skill scoping")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(ServeCmd())
	rootCmd.AddCommand(SyncCmd())
	rootCmd.AddCommand(SkillsCmd())
	rootCmd.AddCommand(ExecCmd())

	return rootCmd
}
