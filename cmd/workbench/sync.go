package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// SyncCmd creates the sync command
func SyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push unsynced workspace edits to the object store",
		Long: `Retries every dirty entry in the sync journal. Run this after a crash or
unclean shutdown to make local sandbox edits durable.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEnv(Cfg)
			if err != nil {
				return err
			}
			defer e.states.Close()

			pushed, err := e.syncer.ReconcileDirty(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Pushed %d file(s).\n", pushed)
			return nil
		},
	}
}
