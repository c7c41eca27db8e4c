package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var follow bool

var logsCmd = &cobra.Command{
	Use:   "logs [pod_id]",
	Short: "Print logs for a pod",
	Long: `Fetch the pod's cumulative log text. With --follow, keep polling and
print only the suffix not yet seen, until the pod reaches a terminal phase.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		podID := args[0]

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.RequireAPIKey(); err != nil {
			return err
		}

		client, err := newClient(cfg)
		if err != nil {
			return err
		}

		// Trap Ctrl+C to exit cleanly while following.
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigChan
			os.Exit(0)
		}()

		seen := 0
		for {
			logs, err := client.Logs(cmd.Context(), podID)
			if err != nil {
				if !follow {
					return fmt.Errorf("failed to fetch logs: %w", err)
				}
				cmd.PrintErrf("Error fetching logs: %v\n", err)
				time.Sleep(2 * time.Second)
				continue
			}

			// The remote text should only grow; clamp if it ever shrinks.
			if len(logs) < seen {
				seen = len(logs)
			} else if len(logs) > seen {
				cmd.Print(logs[seen:])
				seen = len(logs)
			}

			if !follow {
				return nil
			}

			status, err := client.Status(cmd.Context(), podID)
			if err == nil && status.Phase.Terminal() {
				return nil
			}

			time.Sleep(cfg.PollInterval)
		}
	},
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
}
