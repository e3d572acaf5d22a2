package bridge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chromedp/chromedp"

	"github.com/XerolandRegent/unplug-suite/internal/config"
)

// InitChrome connects to the browser named by cfg: a remote DevTools endpoint
// when CdpURL is set, a freshly launched Chrome otherwise.
func InitChrome(cfg *config.RuntimeConfig) (context.Context, context.CancelFunc, context.Context, context.CancelFunc, error) {
	slog.Info("starting chrome initialization", "headless", cfg.Headless, "profile", cfg.ProfileDir, "cdp", cfg.CdpURL)

	allocCtx, allocCancel := newAllocator(cfg)

	browserCtx, browserCancel, err := startChrome(allocCtx, cfg)
	if err != nil {
		allocCancel()
		slog.Error("chrome initialization failed", "headless", cfg.Headless, "err", err)
		return nil, nil, nil, nil, fmt.Errorf("failed to start chrome: %w", err)
	}

	slog.Info("chrome initialized", "headless", cfg.Headless)
	return allocCtx, allocCancel, browserCtx, browserCancel, nil
}

func newAllocator(cfg *config.RuntimeConfig) (context.Context, context.CancelFunc) {
	if cfg.CdpURL != "" {
		slog.Debug("using remote chrome", "url", cfg.CdpURL)
		return chromedp.NewRemoteAllocator(context.Background(), cfg.CdpURL)
	}
	return chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
}

func allocatorOptions(cfg *config.RuntimeConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	// The chat session lives in the profile, so a visible window is the default.
	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	if cfg.ChromeBinary != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ChromeBinary))
	}

	if cfg.ProfileDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.ProfileDir))
	}

	opts = append(opts,
		chromedp.WindowSize(1366, 900),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)
	return opts
}

func startChrome(allocCtx context.Context, cfg *config.RuntimeConfig) (context.Context, context.CancelFunc, error) {
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	// The first Run launches (or attaches to) the browser.
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("failed to connect to chrome: %w", err)
	}
	slog.Debug("chrome browser connected", "remote", cfg.CdpURL != "")
	return browserCtx, cancel, nil
}
