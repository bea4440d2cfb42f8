package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"clustermatch/config"
	"clustermatch/internal/app"
	"clustermatch/internal/domain"
)

type queryList []string

func (q *queryList) String() string     { return strings.Join(*q, "; ") }
func (q *queryList) Set(v string) error { *q = append(*q, v); return nil }

func main() {
	dir := flag.String("dir", ".", "Directory holding the data artifacts and config")
	file := flag.String("f", "", "File with one query per line")
	offline := flag.Bool("offline", false, "Use the mock embedder and an in-memory index seeded on start")
	var queries queryList
	flag.Var(&queries, "q", "Query to test (repeatable)")
	flag.Parse()

	if *file != "" {
		lines, err := readQueries(*file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading queries: %v\n", err)
			os.Exit(1)
		}
		queries = append(queries, lines...)
	}
	if len(queries) == 0 {
		fmt.Println("Usage: go run ./cmd/benchmark -dir ./data -q \"query\" [-q \"query\"] [-f queries.txt] [-offline]")
		fmt.Println("\nReports per query:")
		fmt.Println("  1. Matched cluster and confidence")
		fmt.Println("  2. Embedding + index latency")
		os.Exit(1)
	}

	cfg, err := config.LoadFromDir(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := config.LoadEnv(*dir); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading .env: %v\n", err)
		os.Exit(1)
	}
	if *offline {
		cfg.Embedding.Provider = "mock"
		cfg.Embedding.Model = "mock"
		cfg.Embedding.Dimension = 256
		cfg.Index.Backend = "memory"
	}

	ctx := context.Background()
	logger := app.NewLogger(config.LoggingConfig{Level: "error"}, os.Stderr)
	a, err := app.Open(ctx, cfg, *dir, logger, app.Options{WithIndex: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Setup failed: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	cred := app.CredentialFromEnv(cfg)
	if *offline {
		if err := seed(ctx, a, cred); err != nil {
			fmt.Fprintf(os.Stderr, "Seeding failed: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Println("CLUSTER MATCH BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Println(a.Catalog.Describe())
	fmt.Printf("Model: %s (%s), %d dimensions\n", cfg.Embedding.Model, cfg.Embedding.Provider, cfg.Embedding.Dimension)
	fmt.Printf("Index: %s / %s\n\n", cfg.Index.Backend, cfg.Index.Collection)

	var (
		total     time.Duration
		matched   int
		sumScore  float64
		histogram = make(map[domain.ClusterID]int)
	)
	for i, q := range queries {
		start := time.Now()
		result, err := a.Resolver.ResolveByText(ctx, cred, q)
		took := time.Since(start)
		total += took

		fmt.Printf("%d. %q\n", i+1, q)
		switch {
		case errors.Is(err, domain.ErrNoMatch):
			fmt.Printf("   no match (%s)\n\n", took.Round(time.Millisecond))
			continue
		case err != nil:
			fmt.Printf("   error: %v\n\n", err)
			continue
		}

		matched++
		sumScore += *result.Confidence
		histogram[result.Cluster.ID]++
		pct, _ := result.Percent()
		fmt.Printf("   [%s %.2f%%] %s (%s), %d people, %s\n\n",
			rating(*result.Confidence), pct, result.Cluster.Name, result.Cluster.ID,
			result.PopulationCount, took.Round(time.Millisecond))
	}

	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("QUALITY METRICS:\n")
	fmt.Printf("  Queries matched:    %d/%d\n", matched, len(queries))
	fmt.Printf("  Mean latency:       %s\n", (total / time.Duration(len(queries))).Round(time.Millisecond))
	if matched > 0 {
		fmt.Printf("  Average confidence: %.3f\n", sumScore/float64(matched))
		fmt.Printf("  Distinct clusters:  %d\n", len(histogram))
	}
}

func seed(ctx context.Context, a *app.App, cred domain.Credential) error {
	embedder, err := a.Embedders.Embedder(cred)
	if err != nil {
		return err
	}
	seeder, err := a.Seeder()
	if err != nil {
		return err
	}
	_, err = seeder.Seed(ctx, embedder, nil)
	return err
}

func rating(confidence float64) string {
	switch {
	case confidence > 0.7:
		return "HIGH"
	case confidence > 0.5:
		return "GOOD"
	case confidence > 0.3:
		return "OK"
	default:
		return "LOW"
	}
}

func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return scanQueries(f)
}

func scanQueries(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}
