package scrubber

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/XerolandRegent/unplug-suite/internal/locator"
)

// Page is everything the agent needs from the chat tab.
type Page interface {
	Location(ctx context.Context) (string, error)
	// Find locates target and remembers it for Click and Present.
	Find(ctx context.Context, t locator.Target) (bool, error)
	Click(ctx context.Context, t locator.Target) error
	// Present reports whether the element last found for t is still attached.
	Present(ctx context.Context, t locator.Target) (bool, error)
	// Skip excludes the row holding the element last found for t from later
	// Finds. It reports false when there was nothing to exclude.
	Skip(ctx context.Context, t locator.Target) (bool, error)
	// ClearSkipped makes every excluded row eligible again.
	ClearSkipped(ctx context.Context) error
	// CountRows counts conversations in the last found panel.
	CountRows(ctx context.Context) (int, error)
	// Confirm asks the person in front of the tab a yes/no question.
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// Driver is the tab surface DOMPage runs on. bridge.Driver implements it.
type Driver interface {
	locator.Driver
	Location(ctx context.Context) (string, error)
	ClickMarked(ctx context.Context, mark string) error
}

// DOMPage implements Page with locator chains evaluated in the tab.
type DOMPage struct {
	d   Driver
	set locator.Set
}

func NewDOMPage(d Driver, set locator.Set) *DOMPage {
	return &DOMPage{d: d, set: set}
}

func (p *DOMPage) Location(ctx context.Context) (string, error) {
	return p.d.Location(ctx)
}

func (p *DOMPage) Find(ctx context.Context, t locator.Target) (bool, error) {
	chain, ok := p.set[t]
	if !ok {
		return false, fmt.Errorf("no locator chain for %s", t)
	}
	name, found, err := chain.Locate(ctx, p.d, string(t))
	if err != nil {
		return false, err
	}
	if found {
		slog.Debug("located", "target", string(t), "strategy", name)
	}
	return found, nil
}

func (p *DOMPage) Click(ctx context.Context, t locator.Target) error {
	return p.d.ClickMarked(ctx, string(t))
}

func (p *DOMPage) Present(ctx context.Context, t locator.Target) (bool, error) {
	var ok bool
	if err := p.d.Evaluate(ctx, locator.PresentScript(string(t)), &ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (p *DOMPage) Skip(ctx context.Context, t locator.Target) (bool, error) {
	var ok bool
	if err := p.d.Evaluate(ctx, locator.SkipScript(string(t), locator.FailedMark), &ok); err != nil {
		return false, fmt.Errorf("skip %s: %w", t, err)
	}
	return ok, nil
}

func (p *DOMPage) ClearSkipped(ctx context.Context) error {
	var ok bool
	if err := p.d.Evaluate(ctx, locator.ClearScript(locator.FailedMark), &ok); err != nil {
		return fmt.Errorf("clear skipped rows: %w", err)
	}
	return nil
}

func (p *DOMPage) CountRows(ctx context.Context) (int, error) {
	var n int
	if err := p.d.Evaluate(ctx, locator.CountScript(string(locator.TargetPanel), locator.RowsSelector), &n); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return n, nil
}

func (p *DOMPage) Confirm(ctx context.Context, prompt string) (bool, error) {
	var ok bool
	if err := p.d.Evaluate(ctx, locator.ConfirmScript(prompt), &ok); err != nil {
		return false, fmt.Errorf("confirm dialog: %w", err)
	}
	return ok, nil
}
