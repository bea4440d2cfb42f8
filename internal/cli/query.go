package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"clustermatch/internal/app"
	"clustermatch/internal/domain"
)

var (
	queryText   string
	queryAPIKey string
	queryJSON   bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Find the cluster closest to a free-text description",
	Long: `Embed a description of how you like to spend your time and find the
closest persona cluster in the vector index.

The API key is read from the environment variable named by embedding.api_key_env
(OPENAI_API_KEY by default) unless --api-key is given.

Examples:
  clustermatch query -q "I like relaxing walks in the forest with my dog"
  clustermatch query -q "weekends by the lake" --json`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "description to match (required)")
	queryCmd.Flags().StringVar(&queryAPIKey, "api-key", "", "embedding provider API key")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.MarkFlagRequired("query")
}

func credential() domain.Credential {
	if queryAPIKey != "" {
		return domain.Credential(queryAPIKey)
	}
	return app.CredentialFromEnv(GetConfig())
}

func runQuery(cmd *cobra.Command, args []string) error {
	a, err := app.Open(cmd.Context(), GetConfig(), GetRootDir(), logger, app.Options{WithIndex: true})
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.Resolver.ResolveByText(cmd.Context(), credential(), queryText)
	if errors.Is(err, domain.ErrNoMatch) {
		fmt.Fprintln(cmd.OutOrStdout(), "No match found.")
		return nil
	}
	if err != nil {
		return err
	}

	if queryJSON {
		return printJSON(cmd.OutOrStdout(), toOutput(result))
	}
	printMatch(cmd.OutOrStdout(), result, a.Catalog.Population.Total())
	return nil
}
