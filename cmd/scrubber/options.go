package main

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/XerolandRegent/unplug-suite/internal/options"
)

var optionsCmd = &cobra.Command{
	Use:   "options",
	Short: "Show or change the popup options",
}

var optionsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored options",
	RunE:  runOptionsShow,
}

var optionsSetCmd = &cobra.Command{
	Use:   "set <key> <true|false>",
	Short: "Change one option (autoOpenArchives, confirmBeforeDelete)",
	Args:  cobra.ExactArgs(2),
	RunE:  runOptionsSet,
}

func init() {
	optionsCmd.AddCommand(optionsShowCmd, optionsSetCmd)
}

func runOptionsShow(cmd *cobra.Command, args []string) error {
	store := options.NewFileStore(loadConfig(cmd).OptionsPath())
	o, err := store.Load(cmd.Context())
	if err != nil {
		return err
	}
	printOptions(cmd, store.Path(), o)
	return nil
}

func runOptionsSet(cmd *cobra.Command, args []string) error {
	store := options.NewFileStore(loadConfig(cmd).OptionsPath())
	ctx := cmd.Context()
	o, err := store.Load(ctx)
	if err != nil {
		return err
	}
	o, err = options.Set(o, args[0], args[1])
	if err != nil {
		return err
	}
	if err := store.Save(ctx, o); err != nil {
		return err
	}
	pterm.Success.Printf("Saved %s=%s\n", args[0], args[1])
	return nil
}

func printOptions(cmd *cobra.Command, path string, o options.Options) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", path)
	fmt.Fprintf(out, "  %s: %t\n", options.KeyAutoOpenArchives, o.AutoOpenArchives)
	fmt.Fprintf(out, "  %s: %t\n", options.KeyConfirmBeforeDelete, o.ConfirmBeforeDelete)
}
