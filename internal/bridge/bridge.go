// Package bridge owns the Chrome connection and the chat tab the agent drives.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/samber/lo"

	"github.com/XerolandRegent/unplug-suite/internal/config"
	"github.com/XerolandRegent/unplug-suite/internal/protocol"
)

const TargetTypePage = "page"

type Bridge struct {
	Config     *config.RuntimeConfig
	AllocCtx   context.Context
	BrowserCtx context.Context

	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc

	mu        sync.Mutex
	tabCtx    context.Context
	tabCancel context.CancelFunc
	tabID     target.ID
}

// Start launches or connects to Chrome.
func Start(cfg *config.RuntimeConfig) (*Bridge, error) {
	allocCtx, allocCancel, browserCtx, browserCancel, err := InitChrome(cfg)
	if err != nil {
		return nil, err
	}
	return &Bridge{
		Config:        cfg,
		AllocCtx:      allocCtx,
		BrowserCtx:    browserCtx,
		allocCancel:   allocCancel,
		browserCancel: browserCancel,
	}, nil
}

// AttachChatTab binds the bridge to an open chat tab, or opens one at the
// configured target URL when none exists.
func (b *Bridge) AttachChatTab(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.tabCtx != nil {
		return string(b.tabID), nil
	}

	listCtx, cancel := context.WithTimeout(b.BrowserCtx, b.Config.ChromeTimeout)
	defer cancel()
	targets, err := chromedp.Targets(listCtx)
	if err != nil {
		return "", fmt.Errorf("list targets: %w", err)
	}

	var id target.ID
	existing := FindChatTarget(targets)
	if existing != nil {
		id = existing.TargetID
		slog.Info("attaching to chat tab", "id", string(id), "url", existing.URL)
	} else {
		createCtx, createCancel := context.WithTimeout(b.BrowserCtx, b.Config.ChromeTimeout)
		err := chromedp.Run(createCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			id, err = target.CreateTarget("about:blank").Do(ctx)
			return err
		}))
		createCancel()
		if err != nil {
			return "", fmt.Errorf("create target: %w", err)
		}
	}

	tabCtx, tabCancel := chromedp.NewContext(b.BrowserCtx, chromedp.WithTargetID(id))
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return "", fmt.Errorf("attach tab %s: %w", id, err)
	}

	if existing == nil {
		navCtx, navCancel := context.WithTimeout(tabCtx, b.Config.ChromeTimeout)
		err := NavigatePage(navCtx, b.Config.TargetURL)
		navCancel()
		if err != nil {
			tabCancel()
			return "", fmt.Errorf("open %s: %w", b.Config.TargetURL, err)
		}
		slog.Info("opened chat tab", "id", string(id), "url", b.Config.TargetURL)
	}

	b.tabCtx, b.tabCancel, b.tabID = tabCtx, tabCancel, id
	return string(id), nil
}

// Driver returns the page driver for the attached tab.
func (b *Bridge) Driver() (*Driver, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tabCtx == nil {
		return nil, fmt.Errorf("no chat tab attached")
	}
	return NewDriver(b.tabCtx, b.Config.HumanClicks), nil
}

// TabID is the attached chat tab, or empty before AttachChatTab.
func (b *Bridge) TabID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.tabID)
}

func (b *Bridge) Close() {
	b.mu.Lock()
	if b.tabCancel != nil {
		b.tabCancel()
	}
	b.mu.Unlock()
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	slog.Info("chrome closed")
}

// FindChatTarget picks the first page target served from a chat host.
func FindChatTarget(targets []*target.Info) *target.Info {
	t, ok := lo.Find(targets, func(t *target.Info) bool {
		if t == nil || t.Type != TargetTypePage {
			return false
		}
		u, err := url.Parse(t.URL)
		return err == nil && protocol.IsChatHost(u.Hostname())
	})
	if !ok {
		return nil
	}
	return t
}
