package cli

import (
	"github.com/spf13/cobra"

	"clustermatch/internal/app"
	"clustermatch/internal/domain"
)

var (
	profileAge    string
	profileEdu    string
	profileAnimal string
	profilePlace  string
	profileGender string
	profileJSON   bool
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Find the cluster for a filled-in profile",
	Long: `Classify a profile with the trained clustering model and show its cluster.

Run 'clustermatch clusters' to list the accepted values.

Examples:
  clustermatch profile --age 25-34 --edu wyższe --animal Psy --place "W lesie" --gender Kobieta
  clustermatch profile --age 35-44 --edu średnie --animal Koty --place "Nad wodą" --gender Mężczyzna --json`,
	RunE: runProfile,
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.Flags().StringVar(&profileAge, "age", "", "age bracket, e.g. 25-34 (required)")
	profileCmd.Flags().StringVar(&profileEdu, "edu", "", "education level (required)")
	profileCmd.Flags().StringVar(&profileAnimal, "animal", "", "favourite animals (required)")
	profileCmd.Flags().StringVar(&profilePlace, "place", "", "favourite place (required)")
	profileCmd.Flags().StringVar(&profileGender, "gender", "", "gender (required)")
	profileCmd.Flags().BoolVar(&profileJSON, "json", false, "output as JSON")
	for _, name := range []string{"age", "edu", "animal", "place", "gender"} {
		profileCmd.MarkFlagRequired(name)
	}
}

func runProfile(cmd *cobra.Command, args []string) error {
	a, err := app.Open(cmd.Context(), GetConfig(), GetRootDir(), logger, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	record := domain.FeatureRecord{
		Age:       domain.AgeBracket(profileAge),
		Education: profileEdu,
		Animals:   profileAnimal,
		Place:     domain.Place(profilePlace),
		Gender:    domain.Gender(profileGender),
	}
	result, err := a.Resolver.ResolveByProfile(cmd.Context(), record)
	if err != nil {
		return err
	}

	if profileJSON {
		return printJSON(cmd.OutOrStdout(), toOutput(result))
	}
	printMatch(cmd.OutOrStdout(), result, a.Catalog.Population.Total())
	return nil
}
