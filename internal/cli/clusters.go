package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"clustermatch/internal/app"
	"clustermatch/internal/usecase"
)

var clustersJSON bool

var clustersCmd = &cobra.Command{
	Use:   "clusters",
	Short: "List clusters, their sizes, and the accepted profile values",
	RunE:  runClusters,
}

func init() {
	rootCmd.AddCommand(clustersCmd)
	clustersCmd.Flags().BoolVar(&clustersJSON, "json", false, "output as JSON")
}

func runClusters(cmd *cobra.Command, args []string) error {
	a, err := app.Open(cmd.Context(), GetConfig(), GetRootDir(), logger, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	summaries := a.Catalog.Summaries()
	options := a.Catalog.FormOptions()

	w := cmd.OutOrStdout()
	if clustersJSON {
		return printJSON(w, struct {
			Clusters []usecase.ClusterSummary `json:"clusters"`
			Options  usecase.FormOptions      `json:"options"`
			Total    int                      `json:"total"`
		}{summaries, options, a.Catalog.Population.Total()})
	}

	fmt.Fprintln(w, a.Catalog.Describe())
	fmt.Fprintln(w, strings.Repeat("=", 60))
	for _, s := range summaries {
		fmt.Fprintf(w, "%-12s %-36s %5d\n", s.Cluster.ID, s.Cluster.Name, s.Size)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Profile values:")
	fmt.Fprintf(w, "  --age     %s\n", joinQuoted(options.Ages))
	fmt.Fprintf(w, "  --edu     %s\n", joinQuoted(options.Education))
	fmt.Fprintf(w, "  --animal  %s\n", joinQuoted(options.Animals))
	fmt.Fprintf(w, "  --place   %s\n", joinQuoted(options.Places))
	fmt.Fprintf(w, "  --gender  %s\n", joinQuoted(options.Genders))
	return nil
}

func joinQuoted[T ~string](values []T) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = fmt.Sprintf("%q", string(v))
	}
	return strings.Join(quoted, ", ")
}
