package cmd

import (
	"fmt"

	"podlauncher/internal/config"
	"podlauncher/internal/provider"

	"github.com/spf13/cobra"
)

var (
	cfgFile      string
	flagAPIKey   string
	flagAPIURL   string
	flagProvider string
)

var rootCmd = &cobra.Command{
	Use:   "podctl",
	Short: "Podctl launches and supervises ephemeral GPU pods",
	Long: `podctl drives a GPU compute provider's pod API for batch render runs.

It creates a pod running a containerized workload, polls its lifecycle until
a terminal phase, streams incremental logs, and exits 0 only when the pod
succeeded - making it usable directly as a CI/CD gate.

Common workflows:

  Launch a render run and wait for it:
    podctl launch --image ghcr.io/acme/spec-render:v42 --prompt-glob 'addendums/**/*.ndjson'

  Check a pod:
    podctl status <pod-id>

  Stream logs:
    podctl logs <pod-id> --follow

  Stop a pod:
    podctl terminate <pod-id>

Configuration:
  Credentials and defaults come from the environment or a yaml config file:
    RUNPOD_API_KEY    bearer token (required for remote providers)
    RUNPOD_API_URL    endpoint override
    PODCTL_PROVIDER   API generation: rest (default), graphql, or local`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml)")
	rootCmd.PersistentFlags().StringVarP(&flagAPIKey, "api-key", "k", "", "API key for authentication")
	rootCmd.PersistentFlags().StringVar(&flagAPIURL, "api-url", "", "provider endpoint override")
	rootCmd.PersistentFlags().StringVar(&flagProvider, "provider", "", "provider generation: rest, graphql or local")
}

// loadConfig reads configuration from file and environment, then applies
// any persistent flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("api-key") {
		cfg.APIKey = flagAPIKey
	}
	if cmd.Flags().Changed("api-url") {
		cfg.APIURL = flagAPIURL
	}
	if cmd.Flags().Changed("provider") {
		switch flagProvider {
		case config.ProviderREST, config.ProviderGraphQL, config.ProviderLocal:
			cfg.Provider = flagProvider
		default:
			return nil, fmt.Errorf("invalid provider %q (valid: rest, graphql, local)", flagProvider)
		}
	}

	return cfg, nil
}

// newClient builds the provider client selected by the configuration.
func newClient(cfg *config.Config) (provider.Client, error) {
	switch cfg.Provider {
	case config.ProviderGraphQL:
		return provider.NewGraphQLClient(cfg.APIURL, cfg.APIKey, cfg.RequestTimeout), nil
	case config.ProviderLocal:
		return provider.NewLocalClient()
	default:
		return provider.NewRESTClient(cfg.APIURL, cfg.APIKey, cfg.RequestTimeout), nil
	}
}
