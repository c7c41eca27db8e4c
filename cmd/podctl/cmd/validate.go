package cmd

import (
	"fmt"

	"podlauncher/internal/prompts"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: "Lint NDJSON prompt files",
	Long: `Check every .ndjson file under the directory: each line must be valid
JSON, ASCII-only, and carry a non-empty "text" or "prompt" field. Runs before
launch in CI so a bad prompt file never costs a GPU hour.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}

		errs, err := prompts.Validate(dir)
		if err != nil {
			return err
		}

		for _, e := range errs {
			cmd.Println(e.String())
		}
		if len(errs) > 0 {
			return fmt.Errorf("prompt validation failed: %d error(s)", len(errs))
		}

		cmd.Println("All prompts valid")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
