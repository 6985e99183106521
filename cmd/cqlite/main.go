// Package main provides the cqlite CLI entry point: a small cobra
// front end over pkg/graph for initializing a database directory,
// running one-off queries, and an interactive shell.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dyedgreen/cqlite-sub000/pkg/graph"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	log.SetFlags(0)

	rootCmd := &cobra.Command{
		Use:   "cqlite",
		Short: "cqlite - an embeddable graph database with a Cypher-inspired query language",
		Long: `cqlite is a graph database you link into your own process: a
property graph model, a small Cypher-inspired query language compiled
to bytecode, and a copy-on-write, snapshot-isolated storage engine.

This binary is a thin CLI over the same pkg/graph API: init a data
directory, run one-off queries, or drop into an interactive shell.`,
	}

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(shellCmd())
	rootCmd.AddCommand(explainCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cqlite v%s (%s)\n", version, commit)
		},
	}
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new cqlite data directory and config file",
		RunE:  runInit,
	}
	cmd.Flags().String("data-dir", "./cqlite-data", "Data directory")
	return cmd
}

func runInit(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", dataDir, err)
	}

	configPath := filepath.Join(filepath.Dir(dataDir), "cqlite.yaml")
	if err := graph.WriteDefaultYAML(configPath, dataDir); err != nil {
		return err
	}

	fmt.Printf("Initialized data directory %s\n", dataDir)
	fmt.Printf("Wrote config %s\n", configPath)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Printf("  cqlite shell --data-dir %s\n", dataDir)
	return nil
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [query]",
		Short: "Run a single query and print its results",
		Args:  cobra.ExactArgs(1),
		RunE:  runQuery,
	}
	cmd.Flags().String("data-dir", "./cqlite-data", "Data directory")
	cmd.Flags().String("encrypt-at-rest", "", "Passphrase enabling at-rest encryption")
	return cmd
}

func runQuery(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	passphrase, _ := cmd.Flags().GetString("encrypt-at-rest")

	g, err := openGraph(dataDir, passphrase)
	if err != nil {
		return err
	}
	defer g.Close()

	ctx := context.Background()
	txn := g.Begin(ctx)
	defer txn.Discard()

	if err := execAndPrint(ctx, txn, args[0]); err != nil {
		return err
	}
	return txn.Commit()
}

func shellCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive query shell",
		RunE:  runShell,
	}
	cmd.Flags().String("data-dir", "./cqlite-data", "Data directory")
	cmd.Flags().String("encrypt-at-rest", "", "Passphrase enabling at-rest encryption")
	return cmd
}

func runShell(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	passphrase, _ := cmd.Flags().GetString("encrypt-at-rest")

	g, err := openGraph(dataDir, passphrase)
	if err != nil {
		return err
	}
	defer g.Close()

	fmt.Printf("cqlite shell, data dir %s\n", dataDir)
	fmt.Println("Each line is committed as its own transaction. Type 'exit' or Ctrl+D to quit.")
	fmt.Println()

	ctx := context.Background()
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("cqlite> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Print("cqlite> ")
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		txn := g.Begin(ctx)
		if err := execAndPrint(ctx, txn, line); err != nil {
			log.Printf("error: %v", err)
			txn.Discard()
		} else if err := txn.Commit(); err != nil {
			log.Printf("error: commit: %v", err)
		}
		fmt.Print("cqlite> ")
	}
	fmt.Println()
	return scanner.Err()
}

func explainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "explain [query]",
		Short: "Show the optimized plan and compiled bytecode for a query, without running it",
		Args:  cobra.ExactArgs(1),
		RunE:  runExplain,
	}
	cmd.Flags().String("data-dir", "./cqlite-data", "Data directory")
	return cmd
}

func runExplain(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")

	g, err := openGraph(dataDir, "")
	if err != nil {
		return err
	}
	defer g.Close()

	txn := g.BeginRead(context.Background())
	defer txn.Discard()

	out, err := txn.Explain(args[0])
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

func openGraph(dataDir, passphrase string) (*graph.Graph, error) {
	opts := graph.Options{DataDir: dataDir, EncryptAtRestPassphrase: passphrase}
	g, err := graph.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", dataDir, err)
	}
	return g, nil
}

// execAndPrint runs query to completion against txn, printing one line
// per returned row. A query with no RETURN clause prints nothing but
// still applies its writes.
func execAndPrint(ctx context.Context, txn *graph.Txn, query string) error {
	matches, err := txn.Run(ctx, query, nil)
	if err != nil {
		return err
	}
	defer matches.Close()

	cols := matches.Columns()
	printedHeader := false
	for matches.Next(ctx) {
		if !printedHeader && len(cols) > 0 {
			fmt.Println(strings.Join(cols, " | "))
			printedHeader = true
		}
		row, err := matches.Row()
		if err != nil {
			return err
		}
		parts := make([]string, len(row))
		for i, v := range row {
			parts[i] = v.String()
		}
		fmt.Println(strings.Join(parts, " | "))
	}
	if err := matches.Err(); err != nil {
		return err
	}
	return nil
}
