package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show network, storage, queue and cache status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		status, err := engine.SystemStatus(cmd.Context())
		if err != nil {
			return err
		}

		header := color.New(color.Bold)
		online := color.New(color.FgGreen).SprintFunc()
		offline := color.New(color.FgRed).SprintFunc()
		warn := color.New(color.FgYellow).SprintFunc()

		header.Println("Network")
		state := offline("offline")
		if status.Network.IsOnline {
			state = online("online")
		}
		fmt.Printf("  state:          %s\n", state)
		fmt.Printf("  classification: %s\n", status.Network.Classification)
		fmt.Printf("  link:           %s\n", status.Network.Type)

		header.Println("Storage")
		fmt.Printf("  size:           %d bytes\n", status.Storage.SizeBytes)
		for ns, n := range status.Storage.NamespaceCounts {
			fmt.Printf("  %-15s %d\n", ns+":", n)
		}

		header.Println("Queue")
		fmt.Printf("  pending:        %d\n", status.Queue.Pending)
		if status.Queue.Dead > 0 {
			fmt.Printf("  dead:           %s\n", warn(status.Queue.Dead))
		} else {
			fmt.Printf("  dead:           0\n")
		}
		fmt.Printf("  total:          %d\n", status.Queue.Total)

		header.Println("Cache")
		fmt.Printf("  entries:        %d\n", status.Cache.Entries)
		fmt.Printf("  oldest entry:   %ds\n", status.Cache.OldestEntryAgeSec)

		return nil
	},
}
