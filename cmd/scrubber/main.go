package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/XerolandRegent/unplug-suite/internal/config"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "scrubber",
	Short:         "Delete every archived ChatGPT conversation from a real browser tab",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debug, _ := cmd.Flags().GetBool("debug")
		setupLogging(debug)
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("debug", false, "Verbose logging")
	rootCmd.PersistentFlags().String("url", "", "Base URL of a running `scrubber serve` (default from config)")
	rootCmd.PersistentFlags().String("token", "", "Bearer token for the server (default SCRUBBER_TOKEN)")

	rootCmd.AddCommand(serveCmd, statusCmd, openCmd, deleteCmd, abortCmd, logsCmd, popupCmd, optionsCmd, configCmd, versionCmd)
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "scrubber %s\n", version)
	},
}

// loadConfig applies the persistent flags on top of config.Load.
func loadConfig(cmd *cobra.Command) *config.RuntimeConfig {
	cfg := config.Load()
	if tok, _ := cmd.Flags().GetString("token"); tok != "" {
		cfg.Token = tok
	}
	return cfg
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
