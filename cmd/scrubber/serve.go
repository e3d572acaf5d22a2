package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/XerolandRegent/unplug-suite/internal/background"
	"github.com/XerolandRegent/unplug-suite/internal/bridge"
	"github.com/XerolandRegent/unplug-suite/internal/config"
	"github.com/XerolandRegent/unplug-suite/internal/handlers"
	"github.com/XerolandRegent/unplug-suite/internal/human"
	"github.com/XerolandRegent/unplug-suite/internal/locator"
	"github.com/XerolandRegent/unplug-suite/internal/options"
	"github.com/XerolandRegent/unplug-suite/internal/router"
	"github.com/XerolandRegent/unplug-suite/internal/scrubber"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start Chrome, attach to the chat tab and serve the message protocol",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)

	if err := os.MkdirAll(cfg.StateDir, 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	set, err := locator.NewSet(cfg.PanelStrategy)
	if err != nil {
		return err
	}

	relay := background.New(cfg.StateDir)
	if _, err := relay.Start(); err != nil {
		return err
	}

	human.SetHumanRandSeed(time.Now().UnixNano())

	b, err := bridge.Start(cfg)
	if err != nil {
		slog.Error("chrome failed to start",
			"err", err,
			"hint", "close other Chrome windows using this profile or set CDP_URL",
			"profile", cfg.ProfileDir,
		)
		return err
	}

	attachCtx, cancel := context.WithTimeout(context.Background(), cfg.ChromeTimeout)
	tabID, err := b.AttachChatTab(attachCtx)
	cancel()
	if err != nil {
		b.Close()
		return fmt.Errorf("attach chat tab: %w", err)
	}
	driver, err := b.Driver()
	if err != nil {
		b.Close()
		return err
	}

	hub := router.NewHub(0)
	r := router.New()
	r.Use(relay.Middleware())

	agent := scrubber.NewAgent(
		scrubber.NewDOMPage(driver, set),
		hub,
		options.NewFileStore(cfg.OptionsPath()),
		scrubber.TimingsFromConfig(cfg),
	)
	agent.Register(r)
	agent.Announce(context.Background())

	mux := http.NewServeMux()
	h := handlers.New(cfg, r, hub, relay, b)

	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           h.Wrap(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownOnce := &sync.Once{}
	doShutdown := func() {
		shutdownOnce.Do(func() {
			slog.Info("shutting down")
			if s := agent.Active(); s != nil {
				s.Abort()
			}
			ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				slog.Warn("server shutdown", "err", err)
			}
			b.Close()
		})
	}
	h.RegisterRoutes(mux, doShutdown)

	setupSignalHandler(doShutdown, b.Close)

	slog.Info("scrubber ready", "addr", cfg.ListenAddr(), "tab", tabID, "panel", cfg.PanelStrategy, "cdp", cfg.CdpURL)
	if cfg.Token != "" {
		slog.Info("auth enabled")
	} else {
		slog.Info("auth disabled (set SCRUBBER_TOKEN to enable)")
	}

	go runStartupHealthCheck(cfg)

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

func setupSignalHandler(shutdownFn func(), forceFn func()) {
	go func() {
		sig := make(chan os.Signal, 2)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		go shutdownFn()
		<-sig
		slog.Warn("force shutdown requested")
		forceFn()
		os.Exit(130)
	}()
}

func runStartupHealthCheck(cfg *config.RuntimeConfig) {
	time.Sleep(500 * time.Millisecond)
	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequest(http.MethodGet, cfg.BaseURL()+"/health", nil)
	if err != nil {
		return
	}
	if cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Token)
	}
	resp, err := client.Do(req)
	if err != nil {
		slog.Error("startup health check failed", "err", err)
		return
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		slog.Warn("startup health check", "status", resp.StatusCode)
		return
	}
	slog.Info("startup health check ok")
}
