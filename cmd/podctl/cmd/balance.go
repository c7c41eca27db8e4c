package cmd

import (
	"fmt"

	"podlauncher/internal/config"
	"podlauncher/internal/provider"

	"github.com/spf13/cobra"
)

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show the account's remaining credit",
	Long:  `Query the provider for the authenticated account's id, email and balance. Only the GraphQL API generation exposes this, so the command always uses it regardless of the configured provider.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.APIKey == "" {
			return fmt.Errorf("api_key is required (env: RUNPOD_API_KEY)")
		}

		endpoint := ""
		if cfg.Provider == config.ProviderGraphQL {
			endpoint = cfg.APIURL
		}
		client := provider.NewGraphQLClient(endpoint, cfg.APIKey, cfg.RequestTimeout)

		account, err := client.Balance(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to fetch balance: %w", err)
		}

		cmd.Printf("User ID:  %s\n", account.ID)
		cmd.Printf("Email:    %s\n", account.Email)
		cmd.Printf("Balance:  %.2f\n", account.Balance)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}
