package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"clustermatch/config"
	"clustermatch/internal/app"
	"clustermatch/internal/domain"
)

var (
	cfgFile string
	cfg     *config.Config
	rootDir string
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "clustermatch",
	Short: "Match people to survey persona clusters",
	Long: `clustermatch finds the survey persona cluster closest to a person, either from
a filled-in profile (age, education, favourite animals and place, gender) or
from a free-text description of how they like to spend their time.

Example usage:
  clustermatch profile --age 25-34 --edu wyższe --animal Psy --place "W lesie" --gender Kobieta
  clustermatch query -q "I like relaxing walks in the forest with my dog"
  clustermatch clusters
  clustermatch seed`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		for _, dir := range []string{rootDir, cfg.DataDir(rootDir)} {
			if err := config.LoadEnv(dir); err != nil {
				return fmt.Errorf("failed to load .env: %w", err)
			}
		}

		logger = app.NewLogger(cfg.Logging, os.Stderr)
		slog.SetDefault(logger)
		return nil
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, describeError(err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./clustermatch.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "root directory (default is current directory)")
}

func GetConfig() *config.Config {
	return cfg
}

func GetRootDir() string {
	return rootDir
}

// describeError turns an error into the message shown to the user.
func describeError(err error) string {
	if pe, ok := domain.AsProviderError(err); ok {
		switch {
		case pe.NeedsCredential():
			env := "OPENAI_API_KEY"
			if cfg != nil {
				env = cfg.Embedding.APIKeyEnv
			}
			return fmt.Sprintf("Error: %v\nSet %s or pass --api-key with a valid key.", err, env)
		case pe.IsRateLimit():
			return fmt.Sprintf("Error: %v\nThe embedding provider is rate limiting requests; try again later.", err)
		}
		return fmt.Sprintf("Error: %v", err)
	}

	switch {
	case errors.Is(err, domain.ErrInvalidQuery):
		return "Error: the query is empty. Describe how you like to spend your time."
	case errors.Is(err, domain.ErrIndexUnavailable):
		return fmt.Sprintf("Error: %v\nCheck the index settings, or run 'clustermatch seed'.", err)
	case errors.Is(err, domain.ErrArtifactLoad):
		return fmt.Sprintf("Error: %v\nCheck the data directory (--dir) and the data section of the config.", err)
	}
	return fmt.Sprintf("Error: %v", err)
}
