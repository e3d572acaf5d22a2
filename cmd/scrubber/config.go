package main

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/XerolandRegent/unplug-suite/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the scrubber config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE:  runConfigShow,
}

func init() {
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")
	configInitCmd.Flags().String("path", "", "Where to write (default ~/.scrubber/config.json or SCRUBBER_CONFIG)")
	configCmd.AddCommand(configInitCmd, configShowCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")
	path, _ := cmd.Flags().GetString("path")
	if path == "" {
		path = config.ConfigPath()
	}
	if err := config.WriteDefault(path, force); err != nil {
		return err
	}
	pterm.Success.Printf("Config file created at %s\n", path)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	fmt.Fprintf(cmd.OutOrStdout(), "Config file: %s\n", config.ConfigPath())
	cfg.Describe(cmd.OutOrStdout())
	return nil
}
