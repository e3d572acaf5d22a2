package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/XerolandRegent/unplug-suite/internal/config"
	"github.com/XerolandRegent/unplug-suite/internal/options"
	"github.com/XerolandRegent/unplug-suite/internal/popup"
	"github.com/XerolandRegent/unplug-suite/internal/protocol"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server health and the chat tab connection",
	RunE:  runStatus,
}

var openCmd = &cobra.Command{
	Use:   "open",
	Short: "Open the archived chats panel in the chat tab",
	RunE:  runOpen,
}

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete every archived conversation",
	RunE:  runDelete,
}

var abortCmd = &cobra.Command{
	Use:   "abort",
	Short: "Stop a running deletion after the current item",
	RunE:  runAbort,
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print the agent's activity log, newest first",
	RunE:  runLogs,
}

var popupCmd = &cobra.Command{
	Use:   "popup",
	Short: "Connect like the extension popup and render agent pushes",
	RunE:  runPopup,
}

func init() {
	deleteCmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
	popupCmd.Flags().BoolP("follow", "f", false, "Keep streaming pushes until interrupted")
}

type session struct {
	cfg    *config.RuntimeConfig
	client *popup.Client
	popup  *popup.Popup
}

// newSession wires a popup to the server named by --url or the config.
// A nil store disables auto-open.
func newSession(cmd *cobra.Command, withStore bool, confirm popup.ConfirmFunc) *session {
	cfg := loadConfig(cmd)
	base := cfg.BaseURL()
	if u, _ := cmd.Flags().GetString("url"); u != "" {
		base = u
	}
	client := popup.NewClient(base, cfg.Token)
	var store options.Store
	if withStore {
		store = options.NewFileStore(cfg.OptionsPath())
	}
	return &session{
		cfg:    cfg,
		client: client,
		popup:  popup.New(client, popup.NewTermView(), store, confirm),
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	s := newSession(cmd, false, nil)
	ctx := cmd.Context()

	health, err := s.client.Health(ctx)
	if err != nil {
		pterm.Error.Println("Server is not running. Start it with `scrubber serve`.")
		return err
	}
	keys := lo.Keys(health)
	sort.Strings(keys)
	table := pterm.TableData{{"Key", "Value"}}
	for _, k := range keys {
		table = append(table, []string{k, fmt.Sprint(health[k])})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(table).Render()

	return s.popup.CheckConnection(ctx)
}

func runOpen(cmd *cobra.Command, args []string) error {
	s := newSession(cmd, false, nil)
	ctx := cmd.Context()
	if err := s.popup.CheckConnection(ctx); err != nil {
		return err
	}
	return s.popup.OpenArchives(ctx)
}

func runDelete(cmd *cobra.Command, args []string) error {
	yes, _ := cmd.Flags().GetBool("yes")
	confirm := popup.Confirm
	if yes {
		confirm = func(string) bool { return true }
	}
	s := newSession(cmd, true, confirm)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if err := s.popup.CheckConnection(ctx); err != nil {
		return err
	}

	// Subscribe before starting so the first progress push is not lost.
	followDone, err := s.popup.Attach(ctx)
	if err != nil {
		pterm.Warning.Printf("Progress stream unavailable: %v\n", err)
		closed := make(chan struct{})
		close(closed)
		followDone = closed
	}

	stopAbort := abortOnInterrupt(s.popup)
	defer stopAbort()

	res, err := s.popup.DeleteAll(ctx)
	if errors.Is(err, popup.ErrCancelled) {
		pterm.Info.Println("Deletion cancelled")
		return nil
	}
	if err != nil {
		return err
	}

	cancel()
	<-followDone

	pterm.Success.Printf("Deleted %d/%d archived conversations\n", res.Deleted, res.Total)
	return nil
}

// abortOnInterrupt turns the first Ctrl-C into an abort request.
func abortOnInterrupt(p *popup.Popup) func() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case <-sig:
			pterm.Warning.Println("Aborting after the current item...")
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := p.Abort(ctx); err != nil {
				pterm.Error.Printf("Abort failed: %v\n", err)
			}
		case <-done:
		}
	}()
	return func() {
		signal.Stop(sig)
		close(done)
	}
}

func runAbort(cmd *cobra.Command, args []string) error {
	s := newSession(cmd, false, nil)
	if err := s.popup.Abort(cmd.Context()); err != nil {
		return err
	}
	pterm.Success.Println("Abort requested")
	return nil
}

func runLogs(cmd *cobra.Command, args []string) error {
	s := newSession(cmd, false, nil)
	resp, err := s.client.Send(cmd.Context(), protocol.Message{Action: protocol.ActionGetLogEntries})
	if err != nil {
		return err
	}
	if len(resp.Entries) == 0 {
		pterm.Info.Println("No log entries yet")
		return nil
	}
	for _, e := range lo.Reverse(resp.Entries) {
		pterm.Println(e)
	}
	return nil
}

func runPopup(cmd *cobra.Command, args []string) error {
	follow, _ := cmd.Flags().GetBool("follow")
	s := newSession(cmd, true, popup.Confirm)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pterm.Info.Println("Extension popup opened")
	if err := s.popup.CheckConnection(ctx); err != nil {
		return err
	}
	if !follow {
		return nil
	}
	return s.popup.Follow(ctx)
}
