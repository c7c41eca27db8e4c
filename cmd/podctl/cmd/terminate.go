package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var terminateCmd = &cobra.Command{
	Use:   "terminate [pod_id]",
	Short: "Stop and reclaim a pod",
	Args:  cobra.ExactArgs(1),
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

		if err := client.Terminate(cmd.Context(), podID); err != nil {
			return fmt.Errorf("failed to terminate pod: %w", err)
		}

		cmd.Printf("Pod %s terminated\n", podID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(terminateCmd)
}
