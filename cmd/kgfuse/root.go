package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agenthands/kgfuse/internal/app"
	"github.com/agenthands/kgfuse/internal/logger"
)

var (
	flagConfig  string
	flagWorkers int
	flagLogMode string
)

var rootCmd = &cobra.Command{
	Use:   "kgfuse",
	Short: "Align and fuse CVE knowledge graphs from NVD and Nessus",
	Long: `kgfuse links scanner-reported vulnerabilities to public CVE records in a
shared Neo4j graph, fuses each equivalence class into a unified node and
exports the cross-references as owl:sameAs triples.

Examples:
  # Full pipeline with artifacts
  kgfuse run --config config/config.toml

  # Only the alignment stage
  kgfuse align --workers 8

  # Serve the stages over HTTP
  kgfuse serve`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Config file (default: $CONFIG_PATH or config/config.toml)")
	rootCmd.PersistentFlags().IntVar(&flagWorkers, "workers", -1, "Cascade workers (0 = one per CPU)")
	rootCmd.PersistentFlags().StringVar(&flagLogMode, "log-mode", "", "Log mode: dev or prod")

	rootCmd.AddCommand(runCmd, provenanceCmd, alignCmd, fuseCmd, impactsCmd, exportCmd, serveCmd)
}

// withApp builds the application for one command and tears it down after.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := app.LoadConfig(flagConfig)
	if err != nil {
		return err
	}
	if flagWorkers >= 0 {
		cfg.Concurrency.Workers = flagWorkers
	}
	if flagLogMode != "" {
		cfg.Log.Mode = flagLogMode
	}

	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			log.Warn("shutdown incomplete", "error", err)
		}
	}()
	return fn(ctx, a)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
