// Package config handles environment variable and config file loading.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Provider generation names accepted by the "provider" key.
const (
	ProviderREST    = "rest"
	ProviderGraphQL = "graphql"
	ProviderLocal   = "local"
)

// Defaults applied when the corresponding key is unset.
const (
	DefaultGPUType        = "NVIDIA GeForce RTX 4090"
	DefaultGPUCount       = 1
	DefaultVolumeGB       = 20
	DefaultCloudType      = "COMMUNITY"
	DefaultPodName        = "spec-render"
	DefaultPollInterval   = 20 * time.Second
	DefaultMaxRuntime     = 60 * time.Minute
	DefaultRequestTimeout = 30 * time.Second
)

// Config holds all configuration values for the launcher.
type Config struct {
	// Provider selects the API generation: rest, graphql or local.
	Provider string

	// APIKey is the bearer token attached to every provider request.
	APIKey string

	// APIURL overrides the provider's default endpoint. Empty means the
	// provider default. Tests point this at an httptest server.
	APIURL string

	// ImageName is the full workload image reference. If empty it is
	// composed from GithubRepository and ImageTag as
	// ghcr.io/<repo>/spec-render:<tag>.
	ImageName        string
	GithubRepository string
	ImageTag         string

	PromptGlob string

	GPUType   string
	GPUCount  int
	VolumeGB  int
	CloudType string
	PodName   string

	// StartCommand optionally overrides the image entrypoint.
	StartCommand string

	PollInterval   time.Duration
	MaxRuntime     time.Duration
	RequestTimeout time.Duration

	// MetricsAddr, when set, serves a /metrics endpoint while waiting on a pod.
	MetricsAddr string

	// OTELEndpoint, when set, enables OTLP trace export.
	OTELEndpoint string
}

// envBindings maps viper keys to their environment variables.
var envBindings = map[string]string{
	"provider":          "PODCTL_PROVIDER",
	"api_key":           "RUNPOD_API_KEY",
	"api_url":           "RUNPOD_API_URL",
	"image_name":        "IMAGE_NAME",
	"github_repository": "GITHUB_REPOSITORY",
	"image_tag":         "IMAGE_TAG",
	"prompt_glob":       "PROMPT_GLOB",
	"gpu_type":          "RUNPOD_GPU_TYPE",
	"gpu_count":         "RUNPOD_GPU_COUNT",
	"volume_gb":         "VOLUME_GB",
	"cloud_type":        "RUNPOD_CLOUD_TYPE",
	"pod_name":          "POD_NAME",
	"start_command":     "START_COMMAND",
	"poll_interval":     "POLL_INTERVAL",
	"max_runtime":       "MAX_RUNTIME",
	"request_timeout":   "REQUEST_TIMEOUT",
	"metrics_addr":      "METRICS_ADDR",
	"otel_endpoint":     "OTEL_EXPORTER_OTLP_ENDPOINT",
}

// Load reads configuration from an optional yaml file and the environment.
// Environment variables override file values. configPath may be empty.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("provider", ProviderREST)
	v.SetDefault("gpu_type", DefaultGPUType)
	v.SetDefault("gpu_count", DefaultGPUCount)
	v.SetDefault("volume_gb", DefaultVolumeGB)
	v.SetDefault("cloud_type", DefaultCloudType)
	v.SetDefault("pod_name", DefaultPodName)
	v.SetDefault("poll_interval", DefaultPollInterval.String())
	v.SetDefault("max_runtime", DefaultMaxRuntime.String())
	v.SetDefault("request_timeout", DefaultRequestTimeout.String())

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		Provider:         v.GetString("provider"),
		APIKey:           v.GetString("api_key"),
		APIURL:           v.GetString("api_url"),
		ImageName:        v.GetString("image_name"),
		GithubRepository: v.GetString("github_repository"),
		ImageTag:         v.GetString("image_tag"),
		PromptGlob:       v.GetString("prompt_glob"),
		GPUType:          v.GetString("gpu_type"),
		GPUCount:         v.GetInt("gpu_count"),
		VolumeGB:         v.GetInt("volume_gb"),
		CloudType:        strings.ToUpper(v.GetString("cloud_type")),
		PodName:          v.GetString("pod_name"),
		StartCommand:     v.GetString("start_command"),
		PollInterval:     v.GetDuration("poll_interval"),
		MaxRuntime:       v.GetDuration("max_runtime"),
		RequestTimeout:   v.GetDuration("request_timeout"),
		MetricsAddr:      v.GetString("metrics_addr"),
		OTELEndpoint:     v.GetString("otel_endpoint"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Provider {
	case ProviderREST, ProviderGraphQL, ProviderLocal:
	default:
		return fmt.Errorf("invalid provider %q (valid: rest, graphql, local)", c.Provider)
	}

	switch c.CloudType {
	case "COMMUNITY", "SECURE":
	default:
		return fmt.Errorf("invalid cloud_type %q (valid: COMMUNITY, SECURE)", c.CloudType)
	}

	if c.GPUCount < 1 {
		return fmt.Errorf("gpu_count must be at least 1, got %d", c.GPUCount)
	}
	if c.VolumeGB < 1 {
		return fmt.Errorf("volume_gb must be at least 1, got %d", c.VolumeGB)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %v", c.PollInterval)
	}
	if c.MaxRuntime <= 0 {
		return fmt.Errorf("max_runtime must be positive, got %v", c.MaxRuntime)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", c.RequestTimeout)
	}

	return nil
}

// RequireAPIKey fails when no credential is configured. Commands that talk
// to the remote provider call this before any network I/O.
func (c *Config) RequireAPIKey() error {
	if c.Provider != ProviderLocal && c.APIKey == "" {
		return fmt.Errorf("api_key is required (env: RUNPOD_API_KEY)")
	}
	return nil
}

// RequireLaunch validates the fields the launch command needs. Required
// values never default silently.
func (c *Config) RequireLaunch() error {
	if err := c.RequireAPIKey(); err != nil {
		return err
	}
	if c.PromptGlob == "" {
		return fmt.Errorf("prompt_glob is required (env: PROMPT_GLOB)")
	}
	if _, err := c.Image(); err != nil {
		return err
	}
	return nil
}

// Image resolves the workload image reference. An explicit image_name wins;
// otherwise the GHCR reference is composed from the repository and tag the
// CI workflow injects.
func (c *Config) Image() (string, error) {
	if c.ImageName != "" {
		return c.ImageName, nil
	}
	if c.GithubRepository == "" {
		return "", fmt.Errorf("image_name is required (env: IMAGE_NAME, or set GITHUB_REPOSITORY and IMAGE_TAG)")
	}
	if c.ImageTag == "" {
		return "", fmt.Errorf("image_tag is required (env: IMAGE_TAG)")
	}
	return fmt.Sprintf("ghcr.io/%s/spec-render:%s", strings.ToLower(c.GithubRepository), c.ImageTag), nil
}
