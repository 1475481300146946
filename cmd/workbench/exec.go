package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/driftworks/workbench/internal/vfs"
)

// ExecCmd creates the exec command
func ExecCmd() *cobra.Command {
	var release bool

	cmd := &cobra.Command{
		Use:   "exec [command...]",
		Short: "Run a command in a thread's sandbox",
		Long: `Acquires the sandbox for the given thread (creating and seeding it from the
object store if needed), runs the command, and pushes resulting markdown
edits back to the store.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if threadFlag == "" {
				return fmt.Errorf("--thread is required")
			}

			e, err := buildEnv(Cfg)
			if err != nil {
				return err
			}
			defer e.states.Close()

			scope := vfs.Scope{ThreadID: threadFlag, UserID: userFlag}
			result, err := e.manager.Execute(cmd.Context(), scope, strings.Join(args, " "))
			if err != nil {
				return err
			}

			if result.Stdout != "" {
				fmt.Print(result.Stdout)
			}
			if result.Stderr != "" {
				fmt.Fprint(os.Stderr, result.Stderr)
			}

			if release {
				if err := e.manager.Release(cmd.Context(), scope); err != nil {
					return fmt.Errorf("release sandbox: %w", err)
				}
			}
			if result.ExitCode != 0 {
				os.Exit(result.ExitCode)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&release, "release", false, "tear down the sandbox after the command")
	return cmd
}
