package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and manage the sync queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead items awaiting manual resolution",
	RunE: func(cmd *cobra.Command, _ []string) error {
		dead, err := engine.Queue().ListDead(cmd.Context())
		if err != nil {
			return err
		}
		if len(dead) == 0 {
			fmt.Println("no dead items")
			return nil
		}

		red := color.New(color.FgRed).SprintFunc()
		for _, item := range dead {
			fmt.Printf("%s  %s/%s  priority=%s  attempts=%d\n  %s\n",
				item.ID, item.EntityType, item.Operation,
				item.Priority.String(), item.Attempts, red(item.LastError))
		}
		return nil
	},
}

var queueRetryCmd = &cobra.Command{
	Use:   "retry <id>",
	Short: "Return a dead item to the queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := engine.Queue().RetryDead(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("item %s returned to queue\n", args[0])
		return nil
	},
}

var queueDiscardCmd = &cobra.Command{
	Use:   "discard <id>",
	Short: "Permanently drop a dead item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := engine.Queue().DiscardDead(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("item %s discarded\n", args[0])
		return nil
	},
}

func init() {
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueRetryCmd)
	queueCmd.AddCommand(queueDiscardCmd)
}
