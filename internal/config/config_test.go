package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Provider != ProviderREST {
		t.Errorf("expected provider rest, got %s", cfg.Provider)
	}
	if cfg.GPUType != DefaultGPUType {
		t.Errorf("expected default GPU type, got %s", cfg.GPUType)
	}
	if cfg.GPUCount != 1 {
		t.Errorf("expected gpu_count 1, got %d", cfg.GPUCount)
	}
	if cfg.VolumeGB != 20 {
		t.Errorf("expected volume_gb 20, got %d", cfg.VolumeGB)
	}
	if cfg.CloudType != "COMMUNITY" {
		t.Errorf("expected cloud_type COMMUNITY, got %s", cfg.CloudType)
	}
	if cfg.PollInterval != 20*time.Second {
		t.Errorf("expected poll_interval 20s, got %v", cfg.PollInterval)
	}
	if cfg.MaxRuntime != 60*time.Minute {
		t.Errorf("expected max_runtime 60m, got %v", cfg.MaxRuntime)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("expected request_timeout 30s, got %v", cfg.RequestTimeout)
	}
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	t.Setenv("RUNPOD_API_KEY", "secret")
	t.Setenv("RUNPOD_GPU_TYPE", "NVIDIA A40")
	t.Setenv("POLL_INTERVAL", "10s")
	t.Setenv("MAX_RUNTIME", "90m")
	t.Setenv("RUNPOD_CLOUD_TYPE", "secure")
	t.Setenv("PODCTL_PROVIDER", "graphql")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.APIKey != "secret" {
		t.Errorf("expected APIKey from env, got %q", cfg.APIKey)
	}
	if cfg.GPUType != "NVIDIA A40" {
		t.Errorf("expected GPUType from env, got %s", cfg.GPUType)
	}
	if cfg.PollInterval != 10*time.Second {
		t.Errorf("expected PollInterval 10s, got %v", cfg.PollInterval)
	}
	if cfg.MaxRuntime != 90*time.Minute {
		t.Errorf("expected MaxRuntime 90m, got %v", cfg.MaxRuntime)
	}
	if cfg.CloudType != "SECURE" {
		t.Errorf("expected cloud_type normalized to SECURE, got %s", cfg.CloudType)
	}
	if cfg.Provider != ProviderGraphQL {
		t.Errorf("expected provider graphql, got %s", cfg.Provider)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	tmpFile, err := os.CreateTemp(t.TempDir(), "podctl-test-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}

	configContent := `
provider: graphql
gpu_type: "NVIDIA RTX A5000"
volume_gb: 120
poll_interval: 15s
`
	if _, err := tmpFile.WriteString(configContent); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	tmpFile.Close()

	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Provider != ProviderGraphQL {
		t.Errorf("expected provider from config file, got %s", cfg.Provider)
	}
	if cfg.GPUType != "NVIDIA RTX A5000" {
		t.Errorf("expected GPUType from config file, got %s", cfg.GPUType)
	}
	if cfg.VolumeGB != 120 {
		t.Errorf("expected VolumeGB 120, got %d", cfg.VolumeGB)
	}
	if cfg.PollInterval != 15*time.Second {
		t.Errorf("expected PollInterval 15s, got %v", cfg.PollInterval)
	}
}

func TestLoad_EnvOverridesConfigFile(t *testing.T) {
	tmpFile, err := os.CreateTemp(t.TempDir(), "podctl-test-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	if _, err := tmpFile.WriteString("gpu_type: from-file\n"); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	tmpFile.Close()

	t.Setenv("RUNPOD_GPU_TYPE", "from-env")

	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.GPUType != "from-env" {
		t.Errorf("expected env to override config file, got %s", cfg.GPUType)
	}
}

func TestLoad_InvalidConfigFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/to/config.yaml"); err == nil {
		t.Error("expected error for nonexistent config file")
	}
}

func TestLoad_InvalidProvider(t *testing.T) {
	t.Setenv("PODCTL_PROVIDER", "carrier-pigeon")

	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "invalid provider") {
		t.Errorf("expected invalid provider error, got %v", err)
	}
}

func TestLoad_InvalidCloudType(t *testing.T) {
	t.Setenv("RUNPOD_CLOUD_TYPE", "FREE")

	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "invalid cloud_type") {
		t.Errorf("expected invalid cloud_type error, got %v", err)
	}
}

func TestRequireAPIKey(t *testing.T) {
	cfg := &Config{Provider: ProviderREST}
	err := cfg.RequireAPIKey()
	if err == nil {
		t.Fatal("expected error when api key is missing")
	}
	if err.Error() != "api_key is required (env: RUNPOD_API_KEY)" {
		t.Errorf("unexpected error message: %v", err)
	}

	// The local provider needs no credential.
	cfg = &Config{Provider: ProviderLocal}
	if err := cfg.RequireAPIKey(); err != nil {
		t.Errorf("local provider must not require an api key, got %v", err)
	}
}

func TestRequireLaunch(t *testing.T) {
	cfg := &Config{Provider: ProviderREST, APIKey: "k"}
	err := cfg.RequireLaunch()
	if err == nil || err.Error() != "prompt_glob is required (env: PROMPT_GLOB)" {
		t.Errorf("expected prompt_glob error, got %v", err)
	}

	cfg.PromptGlob = "prompts/**/*.ndjson"
	err = cfg.RequireLaunch()
	if err == nil || !strings.Contains(err.Error(), "image_name is required") {
		t.Errorf("expected image error, got %v", err)
	}

	cfg.ImageName = "ghcr.io/acme/spec-render:v1"
	if err := cfg.RequireLaunch(); err != nil {
		t.Errorf("expected launch config to validate, got %v", err)
	}
}

func TestImage_ComposedFromRepository(t *testing.T) {
	cfg := &Config{GithubRepository: "Acme/Spec-Render-Pipeline", ImageTag: "v42"}
	image, err := cfg.Image()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if image != "ghcr.io/acme/spec-render-pipeline/spec-render:v42" {
		t.Errorf("unexpected composed image %q", image)
	}

	cfg.ImageTag = ""
	if _, err := cfg.Image(); err == nil || !strings.Contains(err.Error(), "IMAGE_TAG") {
		t.Errorf("expected image_tag error, got %v", err)
	}

	cfg.GithubRepository = ""
	if _, err := cfg.Image(); err == nil || !strings.Contains(err.Error(), "IMAGE_NAME") {
		t.Errorf("expected image_name error, got %v", err)
	}

	cfg.ImageName = "custom:latest"
	image, err = cfg.Image()
	if err != nil || image != "custom:latest" {
		t.Errorf("explicit image_name must win, got %q, %v", image, err)
	}
}
