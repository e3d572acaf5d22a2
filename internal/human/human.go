// Package human moves the mouse along a jittered curve before clicking, for
// pages that react to pointer movement rather than bare click events.
package human

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
)

var (
	randMu    sync.Mutex
	humanRand = rand.New(rand.NewSource(time.Now().UnixNano()))
)

func SetHumanRandSeed(seed int64) {
	randMu.Lock()
	defer randMu.Unlock()
	humanRand = rand.New(rand.NewSource(seed))
}

func jitter(span float64) float64 {
	randMu.Lock()
	defer randMu.Unlock()
	return (humanRand.Float64() - 0.5) * span
}

func intn(n int) int {
	randMu.Lock()
	defer randMu.Unlock()
	return humanRand.Intn(n)
}

// Path returns the points of a cubic Bézier from (fromX, fromY) to (toX, toY)
// with randomized control points. The last point is always the target.
func Path(fromX, fromY, toX, toY float64) [][2]float64 {
	distance := math.Hypot(toX-fromX, toY-fromY)
	duration := 100 + (distance/2000)*200 + float64(intn(100))

	steps := int(duration / 20)
	if steps < 5 {
		steps = 5
	}
	if steps > 30 {
		steps = 30
	}

	cp1X := fromX + (toX-fromX)*0.25 + jitter(50)
	cp1Y := fromY + (toY-fromY)*0.25 + jitter(50)
	cp2X := fromX + (toX-fromX)*0.75 + jitter(50)
	cp2Y := fromY + (toY-fromY)*0.75 + jitter(50)

	points := make([][2]float64, 0, steps+1)
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		u := 1 - t
		x := u*u*u*fromX + 3*u*u*t*cp1X + 3*u*t*t*cp2X + t*t*t*toX
		y := u*u*u*fromY + 3*u*u*t*cp1Y + 3*u*t*t*cp2Y + t*t*t*toY
		if i < steps {
			x += jitter(2)
			y += jitter(2)
		}
		points = append(points, [2]float64{x, y})
	}
	return points
}

func MouseMove(ctx context.Context, fromX, fromY, toX, toY float64) error {
	for _, p := range Path(fromX, fromY, toX, toY) {
		x, y := p[0], p[1]
		if err := chromedp.Run(ctx,
			chromedp.ActionFunc(func(ctx context.Context) error {
				return input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx)
			}),
		); err != nil {
			return err
		}
		time.Sleep(time.Duration(16+intn(8)) * time.Millisecond)
	}
	return nil
}

func Click(ctx context.Context, x, y float64) error {
	startX := x + jitter(200) + 50
	startY := y + jitter(200) + 50

	if math.Hypot(startX-x, startY-y) > 30 {
		if err := MouseMove(ctx, startX, startY, x, y); err != nil {
			return err
		}
	}

	time.Sleep(time.Duration(50+intn(150)) * time.Millisecond)

	if err := chromedp.Run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			return input.DispatchMouseEvent(input.MousePressed, x, y).
				WithButton(input.Left).
				WithClickCount(1).
				Do(ctx)
		}),
	); err != nil {
		return err
	}

	time.Sleep(time.Duration(30+intn(90)) * time.Millisecond)

	return chromedp.Run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			return input.DispatchMouseEvent(input.MouseReleased, x+jitter(2), y+jitter(2)).
				WithButton(input.Left).
				WithClickCount(1).
				Do(ctx)
		}),
	)
}

// ClickElement scrolls the node into view and clicks near its center.
func ClickElement(ctx context.Context, nodeID cdp.BackendNodeID) error {
	var box *dom.BoxModel
	if err := chromedp.Run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			if err := dom.ScrollIntoViewIfNeeded().WithBackendNodeID(nodeID).Do(ctx); err != nil {
				return err
			}
			var err error
			box, err = dom.GetBoxModel().WithBackendNodeID(nodeID).Do(ctx)
			return err
		}),
	); err != nil {
		return err
	}

	x, y, err := Center(box)
	if err != nil {
		return err
	}
	return Click(ctx, x+jitter(10), y+jitter(10))
}

// Center averages the four corners of the content quad.
func Center(box *dom.BoxModel) (float64, float64, error) {
	if box == nil || len(box.Content) < 8 {
		return 0, 0, fmt.Errorf("invalid box model")
	}
	q := box.Content
	return (q[0] + q[2] + q[4] + q[6]) / 4, (q[1] + q[3] + q[5] + q[7]) / 4, nil
}
