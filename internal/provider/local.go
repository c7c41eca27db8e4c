package provider

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
)

// LocalClient implements Client against the local Docker daemon. It exists
// for dry-running a workload image without renting a GPU pod: the same
// launch flow runs end to end with the container on this machine.
type LocalClient struct {
	docker *client.Client
}

// NewLocalClient creates a provider backed by the local Docker daemon,
// configured from the standard environment (DOCKER_HOST, etc.).
func NewLocalClient() (*LocalClient, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &LocalClient{docker: cli}, nil
}

// Create pulls the image if needed and starts a container. The container ID
// doubles as the pod ID. GPU shape and cloud type are ignored locally.
func (c *LocalClient) Create(ctx context.Context, req JobRequest) (string, error) {
	if _, _, err := c.docker.ImageInspectWithRaw(ctx, req.Image); err != nil {
		reader, err := c.docker.ImagePull(ctx, req.Image, image.PullOptions{})
		if err != nil {
			return "", fmt.Errorf("failed to pull image %s: %w", req.Image, err)
		}
		defer reader.Close()
		io.Copy(io.Discard, reader)
	}

	env := make([]string, 0, len(req.Env))
	for k, v := range req.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	cfg := &container.Config{
		Image: req.Image,
		Env:   env,
		Tty:   true,
	}
	if req.StartCommand != "" {
		cfg.Cmd = []string{"/bin/sh", "-c", req.StartCommand}
	}

	created, err := c.docker.ContainerCreate(ctx, cfg, nil, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	if err := c.docker.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("failed to start container: %w", err)
	}
	return created.ID, nil
}

// Status maps the container state onto pod phases.
func (c *LocalClient) Status(ctx context.Context, podID string) (Status, error) {
	info, err := c.docker.ContainerInspect(ctx, podID)
	if err != nil {
		return Status{}, fmt.Errorf("failed to inspect container: %w", err)
	}
	if info.State == nil {
		return Status{}, &ParseError{Field: "container state"}
	}

	var exitCode *int
	if info.State.Status == "exited" || info.State.Status == "dead" {
		code := info.State.ExitCode
		exitCode = &code
	}

	var runtime *float64
	if started, err := time.Parse(time.RFC3339Nano, info.State.StartedAt); err == nil && !started.IsZero() {
		secs := time.Since(started).Seconds()
		runtime = &secs
	}

	var phase Phase
	switch info.State.Status {
	case "created", "restarting":
		phase = PhasePending
	case "running", "paused":
		phase = PhaseRunning
	case "exited":
		phase = NormalizePhase("exited", exitCode)
	case "dead":
		phase = PhaseFailed
	default:
		phase = PhaseUnknown
	}

	return Status{
		Phase:          phase,
		RawPhase:       info.State.Status,
		RuntimeSeconds: runtime,
		ExitCode:       exitCode,
	}, nil
}

// Logs returns the cumulative container output. The container runs with a
// TTY, so the stream is plain text rather than the multiplexed format.
func (c *LocalClient) Logs(ctx context.Context, podID string) (string, error) {
	rc, err := c.docker.ContainerLogs(ctx, podID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to fetch container logs: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("failed to read container logs: %w", err)
	}
	return string(data), nil
}

// Terminate stops the container.
func (c *LocalClient) Terminate(ctx context.Context, podID string) error {
	timeout := 5
	return c.docker.ContainerStop(ctx, podID, container.StopOptions{Timeout: &timeout})
}
