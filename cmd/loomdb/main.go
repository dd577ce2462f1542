// Package main provides the LoomDB CLI entry point.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/orneryd/loomdb/pkg/graph"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "loomdb",
		Short: "LoomDB - Reactive In-Memory Graph Store",
		Long: `LoomDB is a reactive in-memory graph store written in Go:
typed nodes and edges, covering-index query planning, incremental
rollups (aggregates, references, collections) and virtualized tree
views with deep per-path reactivity.

This CLI works against YAML schema files:
  loomdb validate --schema schema.yaml
  loomdb stats    --schema schema.yaml`,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("LoomDB v%s (%s)\n", version, commit)
		},
	})

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a schema file",
		Long:  "Build the full catalog from a YAML schema and report the resolved types, indexes, edges and rollups.",
		RunE:  runValidate,
	}
	validateCmd.Flags().String("schema", "schema.yaml", "Schema file")
	rootCmd.AddCommand(validateCmd)

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print a schema's precomputed dependency tables",
		Long:  "Show which edge indexes re-key and which rollups re-evaluate for every reactive property.",
		RunE:  runStats,
	}
	statsCmd.Flags().String("schema", "schema.yaml", "Schema file")
	rootCmd.AddCommand(statsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func buildGraph(cmd *cobra.Command) (*graph.Graph, error) {
	path, _ := cmd.Flags().GetString("schema")
	schema, err := graph.LoadSchemaFile(path)
	if err != nil {
		return nil, err
	}
	return graph.New(schema)
}

func runValidate(cmd *cobra.Command, args []string) error {
	g, err := buildGraph(cmd)
	if err != nil {
		return err
	}
	for _, ts := range g.Summary() {
		fmt.Printf("type %s\n", ts.Name)
		fmt.Printf("  indexes: %s\n", strings.Join(ts.Indexes, ", "))
		if len(ts.Edges) > 0 {
			fmt.Printf("  edges:   %s\n", strings.Join(ts.Edges, ", "))
		}
		if len(ts.Rollups) > 0 {
			fmt.Printf("  rollups: %s\n", strings.Join(ts.Rollups, ", "))
		}
	}
	fmt.Println("schema OK")
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	g, err := buildGraph(cmd)
	if err != nil {
		return err
	}
	deps := g.Dependencies()
	if len(deps) == 0 {
		fmt.Println("no reactive dependencies")
		return nil
	}
	for _, line := range deps {
		fmt.Println(line)
	}
	return nil
}
