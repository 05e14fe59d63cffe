package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	syncengine "fieldsync/internal/domain/sync"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a sync pass now",
	RunE: func(cmd *cobra.Command, _ []string) error {
		// Give the monitor a fresh sample so a just-restored network is
		// picked up immediately.
		engine.Monitor().Check(cmd.Context())

		result, err := engine.Engine().Run(cmd.Context())
		switch {
		case errors.Is(err, syncengine.ErrPassInProgress):
			fmt.Println("a sync pass is already running; a follow-up pass has been scheduled")
			return nil
		case errors.Is(err, syncengine.ErrOffline):
			return fmt.Errorf("device is offline or sync is not authorized")
		case err != nil:
			return err
		}

		fmt.Printf("synced: %d  failed: %d  dead: %d  (%dms)\n",
			result.SyncedCount, result.FailedCount, result.DeadCount, result.DurationMs())
		return nil
	},
}
