// Package cmd wires the command line to the pipeline. The original tooling
// had two near-identical entry scripts; they are collapsed into this single
// command with flags selecting cached-vs-fresh data and the optional
// downstream graph-loader step.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/JeffersonLab/ced2gnn/api"
)

var (
	configPath  string
	outputDir   string
	cachePath   string
	fromCache   bool
	saveCache   bool
	loadGraph   bool
	parallelism int
)

// exitStatus distinguishes full success (0) from partial success with
// skipped elements (3). Fatal errors exit 1 via Execute.
var exitStatus int

var rootCmd = &cobra.Command{
	Use:   "ced2gnn",
	Short: "Build setpoint-propagation graphs from CED inventory and Mya history",
	Long: `ced2gnn fetches the configured CED elements and their Mya archive samples,
links each setpoint element to the downstream elements it affects, and writes
one HGB-format graph data set per surviving time interval.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "YAML config file")
	rootCmd.Flags().StringVarP(&outputDir, "output", "d", "", "Output directory (default: dated subdirectory of .)")
	rootCmd.Flags().StringVar(&cachePath, "cache", "ced2gnn-cache.db", "Snapshot database for --from-cache / --save-cache")
	rootCmd.Flags().BoolVar(&fromCache, "from-cache", false, "Rebuild from the snapshot database instead of CED and Mya")
	rootCmd.Flags().BoolVar(&saveCache, "save-cache", false, "Save fetched data to the snapshot database")
	rootCmd.Flags().BoolVar(&loadGraph, "load-graph", false, "Run the configured downstream graph loader on the output")
	rootCmd.Flags().IntVarP(&parallelism, "parallel", "j", 4, "Concurrent Mya fetches")
}

// Execute runs the root command and maps outcomes to exit status.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	os.Exit(exitStatus)
}

// newLogger builds the run's slog.Logger from config. It does not touch the
// global default, so components receive their logger explicitly.
func newLogger(cfg api.Log, out io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(slog.NewTextHandler(out, opts))
}
