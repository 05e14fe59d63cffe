package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear all local state, queued writes included",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !resetYes {
			return fmt.Errorf("reset drops unsynced local writes; re-run with --yes to confirm")
		}
		if err := engine.Reset(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("local state cleared")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetYes, "yes", false, "confirm the reset")
}
