package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"podlauncher/internal/config"
	"podlauncher/internal/logger"
	"podlauncher/internal/observability"
	"podlauncher/internal/orchestrator"
	"podlauncher/internal/prompts"
	"podlauncher/internal/provider"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Launch a GPU pod and supervise it to completion",
	Long: `Gather prompt files, create a pod running the workload image, then poll
the pod until it reaches a terminal phase while streaming its logs.

Exits 0 only when the pod succeeded. A provider-reported failure, a launch
that cannot be submitted, or a pod that outlives --max-runtime all exit 1.

Example:
  podctl launch --image ghcr.io/acme/spec-render:v42 \
    --prompt-glob 'addendums/**/*.ndjson' --gpu-type 'NVIDIA A40' --max-runtime 90m`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		applyLaunchFlags(cmd, cfg)

		log := logger.New()

		if err := cfg.RequireLaunch(); err != nil {
			log.Error("configuration error", "error", err.Error())
			return err
		}

		runID := uuid.NewString()
		ctx := logger.WithRunID(cmd.Context(), runID)
		log = logger.FromContext(ctx, log)

		// SIGINT/SIGTERM cancel the wait; the pod keeps running remotely.
		ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.OTELEndpoint != "" {
			shutdown, err := observability.InitTracing(ctx, "podlauncher", cfg.OTELEndpoint)
			if err != nil {
				log.Warn("tracing disabled", "error", err.Error())
			} else {
				defer func() {
					shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					shutdown(shutCtx)
				}()
			}
		}

		if cfg.MetricsAddr != "" {
			handler, shutdown, err := observability.InitMetrics()
			if err != nil {
				log.Warn("metrics disabled", "error", err.Error())
			} else {
				observability.ServeMetrics(ctx, cfg.MetricsAddr, handler)
				log.Info("serving metrics", "addr", cfg.MetricsAddr)
				defer func() {
					shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					shutdown(shutCtx)
				}()
			}
		}

		req, promptCount, err := buildJobRequest(cfg)
		if err != nil {
			log.Error("failed to prepare job request", "error", err.Error())
			return err
		}

		client, err := newClient(cfg)
		if err != nil {
			log.Error("failed to create provider client", "error", err.Error())
			return err
		}

		log.Info("launching pod",
			"provider", cfg.Provider,
			"image", req.Image,
			"gpu_type", req.GPUTypeID,
			"cloud_type", req.CloudType,
			"prompts", promptCount,
		)

		orch := orchestrator.New(client, log, orchestrator.Options{
			PollInterval:       cfg.PollInterval,
			MaxRuntime:         cfg.MaxRuntime,
			TerminateOnTimeout: !keepOnTimeout,
			Out:                cmd.OutOrStdout(),
		})

		result, err := orch.Run(ctx, req)
		if err != nil {
			log.Error("orchestration failed", "error", err.Error())
			return err
		}

		switch result.Outcome {
		case orchestrator.OutcomeSucceeded:
			log.Info("pod succeeded", "elapsed", result.Elapsed.Round(time.Second).String())
			return nil
		case orchestrator.OutcomeTimedOut:
			log.Error("pod timed out",
				"elapsed", result.Elapsed.Round(time.Second).String(),
				"last_phase", string(result.LastPhase),
				"log_tail", result.LogTail,
			)
			return fmt.Errorf("pod did not finish within %s", cfg.MaxRuntime)
		default:
			log.Error("pod failed",
				"elapsed", result.Elapsed.Round(time.Second).String(),
				"last_phase", string(result.LastPhase),
				"exit_code", exitCodeValue(result.ExitCode),
				"log_tail", result.LogTail,
			)
			return fmt.Errorf("pod failed (phase %s)", result.LastPhase)
		}
	},
}

var keepOnTimeout bool

// buildJobRequest gathers prompts, assembles the workload environment and
// returns the provider request plus the prompt count for logging.
func buildJobRequest(cfg *config.Config) (provider.JobRequest, int, error) {
	lines, err := prompts.Gather(cfg.PromptGlob)
	if err != nil {
		return provider.JobRequest{}, 0, err
	}

	env := map[string]string{
		prompts.EnvVar: prompts.Bundle(lines),
	}
	// Object-storage credentials pass through to the workload untouched;
	// the launcher itself never talks to the bucket.
	if key := os.Getenv("AWS_ACCESS_KEY_ID"); key != "" {
		env["AWS_ACCESS_KEY_ID"] = key
		env["AWS_SECRET_ACCESS_KEY"] = os.Getenv("AWS_SECRET_ACCESS_KEY")
		region := os.Getenv("AWS_DEFAULT_REGION")
		if region == "" {
			region = "us-east-1"
		}
		env["AWS_DEFAULT_REGION"] = region
	}

	image, err := cfg.Image()
	if err != nil {
		return provider.JobRequest{}, 0, err
	}

	return provider.JobRequest{
		Name:         cfg.PodName,
		Image:        image,
		CloudType:    cfg.CloudType,
		GPUTypeID:    cfg.GPUType,
		GPUCount:     cfg.GPUCount,
		VolumeGB:     cfg.VolumeGB,
		Env:          env,
		StartCommand: cfg.StartCommand,
	}, len(lines), nil
}

// applyLaunchFlags overrides config values with any launch flags the user
// set explicitly.
func applyLaunchFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("image") {
		cfg.ImageName, _ = flags.GetString("image")
	}
	if flags.Changed("prompt-glob") {
		cfg.PromptGlob, _ = flags.GetString("prompt-glob")
	}
	if flags.Changed("gpu-type") {
		cfg.GPUType, _ = flags.GetString("gpu-type")
	}
	if flags.Changed("gpu-count") {
		cfg.GPUCount, _ = flags.GetInt("gpu-count")
	}
	if flags.Changed("disk") {
		cfg.VolumeGB, _ = flags.GetInt("disk")
	}
	if flags.Changed("cloud-type") {
		cfg.CloudType, _ = flags.GetString("cloud-type")
	}
	if flags.Changed("name") {
		cfg.PodName, _ = flags.GetString("name")
	}
	if flags.Changed("start-command") {
		cfg.StartCommand, _ = flags.GetString("start-command")
	}
	if flags.Changed("poll-interval") {
		cfg.PollInterval, _ = flags.GetDuration("poll-interval")
	}
	if flags.Changed("max-runtime") {
		cfg.MaxRuntime, _ = flags.GetDuration("max-runtime")
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr, _ = flags.GetString("metrics-addr")
	}
}

func exitCodeValue(code *int) int {
	if code == nil {
		return -1
	}
	return *code
}

func init() {
	flags := launchCmd.Flags()
	flags.StringP("image", "i", "", "workload image reference")
	flags.StringP("prompt-glob", "p", "", "glob of NDJSON prompt files")
	flags.String("gpu-type", "", "accelerator type id")
	flags.Int("gpu-count", 0, "accelerator count")
	flags.Int("disk", 0, "volume size in GB")
	flags.String("cloud-type", "", "pricing tier: COMMUNITY or SECURE")
	flags.String("name", "", "pod name")
	flags.String("start-command", "", "override the image entrypoint")
	flags.Duration("poll-interval", 0, "status poll interval")
	flags.Duration("max-runtime", 0, "wall-clock deadline for the whole run")
	flags.String("metrics-addr", "", "serve /metrics on this address while waiting")
	flags.BoolVar(&keepOnTimeout, "keep-on-timeout", false, "leave the pod running when the deadline passes")

	rootCmd.AddCommand(launchCmd)
}
