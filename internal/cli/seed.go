package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"clustermatch/internal/app"
	"clustermatch/internal/domain"
)

var seedAPIKey string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Embed the cluster descriptions and load them into the vector index",
	Long: `Embed every cluster description from the reference data and replace the
contents of the configured index collection with one vector per cluster.

Examples:
  clustermatch seed
  clustermatch seed --api-key sk-...`,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().StringVar(&seedAPIKey, "api-key", "", "embedding provider API key")
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	a, err := app.Open(cmd.Context(), cfg, GetRootDir(), logger, app.Options{WithIndex: true})
	if err != nil {
		return err
	}
	defer a.Close()

	cred := domain.Credential(seedAPIKey)
	if cred.Empty() {
		cred = app.CredentialFromEnv(cfg)
	}
	embedder, err := a.Embedders.Embedder(cred)
	if err != nil {
		return err
	}
	seeder, err := a.Seeder()
	if err != nil {
		return err
	}

	fmt.Printf("Seeding %s collection %q with %s (%d dimensions)\n",
		cfg.Index.Backend, cfg.Index.Collection, embedder.ModelName(), embedder.Dimension())

	bar := progressbar.NewOptions(len(a.Catalog.Reference.IDs()),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("Embedding clusters"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	result, err := seeder.Seed(cmd.Context(), embedder, func(done, total int) {
		bar.Set(done)
	})
	bar.Finish()
	if err != nil {
		return err
	}

	fmt.Printf("Seeded %d clusters in %s\n", result.Clusters, result.Duration.Round(time.Millisecond))
	return nil
}
