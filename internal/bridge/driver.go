package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"github.com/XerolandRegent/unplug-suite/internal/human"
	"github.com/XerolandRegent/unplug-suite/internal/locator"
)

// ErrNotMarked is returned when a click targets a mark no element carries.
var ErrNotMarked = errors.New("no element carries the mark")

// Driver runs page operations in one tab. Each call is bound both to the tab
// and to the caller's context.
type Driver struct {
	tabCtx context.Context
	human  bool
}

func NewDriver(tabCtx context.Context, humanClicks bool) *Driver {
	return &Driver{tabCtx: tabCtx, human: humanClicks}
}

func (d *Driver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(d.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (d *Driver) Evaluate(ctx context.Context, expr string, out any) error {
	return d.run(ctx, chromedp.Evaluate(expr, out))
}

func (d *Driver) Location(ctx context.Context) (string, error) {
	var u string
	if err := d.run(ctx, chromedp.Location(&u)); err != nil {
		return "", err
	}
	return u, nil
}

// ClickMarked clicks the element a locator tagged with mark.
func (d *Driver) ClickMarked(ctx context.Context, mark string) error {
	if d.human {
		return d.humanClick(ctx, mark)
	}
	var ok bool
	if err := d.Evaluate(ctx, locator.ClickScript(mark), &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotMarked, mark)
	}
	return nil
}

func (d *Driver) humanClick(ctx context.Context, mark string) error {
	var nodes []*cdp.Node
	if err := d.run(ctx, chromedp.Nodes(locator.MarkSelector(mark), &nodes, chromedp.ByQuery, chromedp.AtLeast(0))); err != nil {
		return err
	}
	if len(nodes) == 0 {
		return fmt.Errorf("%w: %s", ErrNotMarked, mark)
	}
	return d.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		return human.ClickElement(c, nodes[0].BackendNodeID)
	}))
}
