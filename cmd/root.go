// Package cmd wires the orchestration engine's subcommands onto a
// cobra root, the way this project's predecessor wired ctrlscan's.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var verbose bool

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "swarm",
	Short: "Runs an AI coding assistant across a repository's issue queue",
	Long: `swarm is a long-running supervisor that watches a repository's issue
queue, dispatches an AI coding assistant to implement each issue, opens
pull requests, and keeps driving fixes against reviewer feedback until
each PR is resolved.

Get started:
  swarm run       Run the supervisor (issue intake, PR review, rate-limit watch)
  swarm status    Print a one-shot snapshot of issue and worker counts
  swarm version   Print the build version`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable verbose/debug logging")

	rootCmd.Version = Version
	rootCmd.AddCommand(runCmd, statusCmd, versionCmd)
}

func initLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetLogLoggerLevel(level)
	if verbose {
		slog.Debug("Verbose logging enabled")
	}
}
