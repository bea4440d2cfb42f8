package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"clustermatch/internal/domain"
)

type matchOutput struct {
	ClusterID          domain.ClusterID `json:"cluster_id"`
	Name               string           `json:"name"`
	Description        string           `json:"description"`
	ImageryDescription string           `json:"image_description"`
	ImageryMIME        string           `json:"image_mime,omitempty"`
	PopulationCount    int              `json:"population_count"`
	Confidence         *float64         `json:"confidence,omitempty"`
	ConfidencePercent  *float64         `json:"confidence_percent,omitempty"`
}

func toOutput(m *domain.MatchResult) matchOutput {
	out := matchOutput{
		ClusterID:          m.Cluster.ID,
		Name:               m.Cluster.Name,
		Description:        m.Cluster.Description,
		ImageryDescription: m.Cluster.ImageryDescription,
		ImageryMIME:        m.Cluster.ImageryMIME,
		PopulationCount:    m.PopulationCount,
		Confidence:         m.Confidence,
	}
	if pct, ok := m.Percent(); ok {
		out.ConfidencePercent = &pct
	}
	return out
}

func printJSON(w io.Writer, v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(output))
	return nil
}

func printMatch(w io.Writer, m *domain.MatchResult, total int) {
	fmt.Fprintf(w, "Closest group: %s (%s)\n", m.Cluster.Name, m.Cluster.ID)
	fmt.Fprintln(w, strings.Repeat("-", 60))
	if pct, ok := m.Percent(); ok {
		fmt.Fprintf(w, "Match: %.2f%%\n", pct)
	}
	if total > 0 {
		fmt.Fprintf(w, "People in this group: %d of %d\n", m.PopulationCount, total)
	} else {
		fmt.Fprintf(w, "People in this group: %d\n", m.PopulationCount)
	}
	if m.Cluster.Description != "" {
		fmt.Fprintf(w, "\n%s\n", m.Cluster.Description)
	}
	if m.Cluster.ImageryDescription != "" {
		fmt.Fprintf(w, "\nImage: %s", m.Cluster.ImageryDescription)
		if len(m.Cluster.Imagery) > 0 {
			fmt.Fprintf(w, " [%s, %d bytes]", m.Cluster.ImageryMIME, len(m.Cluster.Imagery))
		}
		fmt.Fprintln(w)
	}
}
