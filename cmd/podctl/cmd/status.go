package cmd

import (
	"fmt"
	"time"

	"podlauncher/internal/provider"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [pod_id]",
	Short: "Get the current phase of a pod",
	Long:  `Retrieve the normalized lifecycle phase of a pod (PENDING, RUNNING, SUCCEEDED, FAILED), along with its runtime and exit code when reported.`,
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

		status, err := client.Status(cmd.Context(), podID)
		if err != nil {
			return fmt.Errorf("failed to fetch pod status: %w", err)
		}

		printStatus(cmd, podID, status)
		return nil
	},
}

func printStatus(cmd *cobra.Command, podID string, status provider.Status) {
	icon := phaseIcon(status.Phase)
	cmd.Printf("%s %sPod Details%s\n", icon, colorBold, colorReset)
	cmd.Println("──────────────────────────────")

	cmd.Printf("%sID:%s        %s\n", colorDim, colorReset, podID)
	cmd.Printf("%sPhase:%s     %s\n", colorDim, colorReset, colorizePhase(status.Phase))

	if status.RawPhase != "" && status.RawPhase != string(status.Phase) {
		cmd.Printf("%sReported:%s  %s\n", colorDim, colorReset, status.RawPhase)
	}

	if status.RuntimeSeconds != nil {
		d := time.Duration(*status.RuntimeSeconds * float64(time.Second))
		cmd.Printf("%sRuntime:%s   %s\n", colorDim, colorReset, formatDuration(d))
	} else {
		cmd.Printf("%sRuntime:%s   -\n", colorDim, colorReset)
	}

	if status.ExitCode != nil {
		if *status.ExitCode == 0 {
			cmd.Printf("%sExit Code:%s %s%d%s\n", colorDim, colorReset, colorGreen, *status.ExitCode, colorReset)
		} else {
			cmd.Printf("%sExit Code:%s %s%d%s\n", colorDim, colorReset, colorRed, *status.ExitCode, colorReset)
		}
	} else {
		cmd.Printf("%sExit Code:%s -\n", colorDim, colorReset)
	}
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func phaseIcon(phase provider.Phase) string {
	switch phase {
	case provider.PhaseSucceeded:
		return colorGreen + "✓" + colorReset
	case provider.PhaseFailed:
		return colorRed + "✗" + colorReset
	case provider.PhaseRunning:
		return colorYellow + "⏳" + colorReset
	case provider.PhasePending:
		return colorCyan + "◯" + colorReset
	default:
		return "•"
	}
}

func colorizePhase(phase provider.Phase) string {
	icon := phaseIcon(phase)
	switch phase {
	case provider.PhaseSucceeded:
		return icon + " " + colorGreen + string(phase) + colorReset
	case provider.PhaseFailed:
		return icon + " " + colorRed + string(phase) + colorReset
	case provider.PhaseRunning:
		return icon + " " + colorYellow + string(phase) + colorReset
	case provider.PhasePending:
		return icon + " " + colorCyan + string(phase) + colorReset
	default:
		return string(phase)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
