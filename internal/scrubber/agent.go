// Package scrubber drives the chat tab: it answers the popup's requests,
// opens the archives panel and runs the deletion loop.
package scrubber

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/XerolandRegent/unplug-suite/internal/config"
	"github.com/XerolandRegent/unplug-suite/internal/idutil"
	"github.com/XerolandRegent/unplug-suite/internal/locator"
	"github.com/XerolandRegent/unplug-suite/internal/logbuf"
	"github.com/XerolandRegent/unplug-suite/internal/options"
	"github.com/XerolandRegent/unplug-suite/internal/protocol"
	"github.com/XerolandRegent/unplug-suite/internal/router"
	"github.com/XerolandRegent/unplug-suite/internal/waitfor"
)

// Error texts are shown to the user verbatim.
var (
	ErrDeletionInProgress    = errors.New("deletion already in progress")
	ErrPanelNotFound         = errors.New("Archives panel not found")
	ErrPanelClosed           = errors.New("Archives panel closed unexpectedly")
	ErrNoDeletion            = errors.New("No deletion in progress")
	ErrSettingsNotFound      = errors.New("Settings button not found")
	ErrArchivedChatsNotFound = errors.New("Archived chats button not found")
	ErrPanelDidNotOpen       = errors.New("Archives panel did not open")
	ErrNavigationInterrupted = errors.New("navigation interrupted")
	ErrStalled               = errors.New("deletion stalled: too many consecutive failures")
)

// maxConsecutiveFailures stops a loop whose failed rows cannot be excluded,
// since it would otherwise keep hitting the same row.
const maxConsecutiveFailures = 3

// Timings bounds every wait of the agent.
type Timings struct {
	Panel     waitfor.Policy
	Confirm   waitfor.Policy
	Settle    waitfor.Policy
	InterItem time.Duration
}

func TimingsFromConfig(cfg *config.RuntimeConfig) Timings {
	poll := func(timeout time.Duration) waitfor.Policy {
		return waitfor.Policy{Initial: cfg.PollInterval, Max: cfg.MaxPollDelay, Timeout: timeout}
	}
	return Timings{
		Panel:     poll(cfg.PanelTimeout),
		Confirm:   poll(cfg.ConfirmTimeout),
		Settle:    poll(cfg.SettleTimeout),
		InterItem: cfg.InterItemDelay,
	}
}

// Agent owns the page, the rolling log and at most one deletion session.
type Agent struct {
	page    Page
	pusher  router.Pusher
	store   options.Store
	log     *logbuf.Buffer
	ids     *idutil.Manager
	timings Timings

	mu     sync.Mutex
	active *Session
	last   *Session
}

// NewAgent wires an agent. pusher and store may be nil.
func NewAgent(page Page, pusher router.Pusher, store options.Store, t Timings) *Agent {
	return &Agent{
		page:    page,
		pusher:  pusher,
		store:   store,
		log:     logbuf.New(logbuf.DefaultCapacity),
		ids:     idutil.NewManager(),
		timings: t,
	}
}

func (a *Agent) push(msg protocol.Message) {
	if a.pusher != nil {
		a.pusher.Push(msg)
	}
}

// addLog records a user-visible entry and pushes it to listeners.
func (a *Agent) addLog(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	entry := a.log.Add(msg)
	slog.Info(msg, "component", "scrubber")
	a.push(protocol.LogUpdate(entry))
}

func (a *Agent) LogEntries() []string { return a.log.Entries() }

// Active returns the running session, if any.
func (a *Agent) Active() *Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// Last returns the most recently finished session, if any.
func (a *Agent) Last() *Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

// Announce logs startup and tells listeners the agent is attached.
func (a *Agent) Announce(ctx context.Context) {
	a.addLog("Scrubber initialized")
	loc, err := a.page.Location(ctx)
	if err != nil {
		slog.Warn("read tab location", "err", err)
	}
	a.push(protocol.Message{Action: protocol.ActionContentScriptLoaded, URL: loc})
}

// CheckConnection reports the host of the attached tab.
func (a *Agent) CheckConnection(ctx context.Context) (string, error) {
	loc, err := a.page.Location(ctx)
	if err != nil {
		return "", fmt.Errorf("read tab location: %w", err)
	}
	u, err := url.Parse(loc)
	if err != nil {
		return "", fmt.Errorf("parse tab location: %w", err)
	}
	return u.Hostname(), nil
}

// CheckArchivesStatus reports whether the panel is showing and how many rows it lists.
func (a *Agent) CheckArchivesStatus(ctx context.Context) (bool, int, error) {
	found, err := a.page.Find(ctx, locator.TargetPanel)
	if err != nil || !found {
		return false, 0, err
	}
	n, err := a.page.CountRows(ctx)
	if err != nil {
		return true, 0, err
	}
	return true, n, nil
}

// OpenArchivesPanel walks settings, then "Archived chats", then waits for the
// panel. A document change along the way aborts with ErrNavigationInterrupted.
func (a *Agent) OpenArchivesPanel(ctx context.Context) error {
	start, err := a.page.Location(ctx)
	if err != nil {
		return fmt.Errorf("read tab location: %w", err)
	}

	steps := []struct {
		target   locator.Target
		notFound error
	}{
		{locator.TargetSettings, ErrSettingsNotFound},
		{locator.TargetArchivedChats, ErrArchivedChatsNotFound},
	}
	for _, st := range steps {
		if err := a.await(ctx, start, st.target, a.timings.Panel); err != nil {
			if errors.Is(err, waitfor.ErrTimeout) {
				return st.notFound
			}
			return err
		}
		if err := a.page.Click(ctx, st.target); err != nil {
			return fmt.Errorf("click %s: %w", st.target, err)
		}
		slog.Debug("clicked", "target", string(st.target))
	}

	if err := a.await(ctx, start, locator.TargetPanel, a.timings.Panel); err != nil {
		if errors.Is(err, waitfor.ErrTimeout) {
			return ErrPanelDidNotOpen
		}
		return err
	}
	return nil
}

func (a *Agent) await(ctx context.Context, start string, t locator.Target, p waitfor.Policy) error {
	return waitfor.Until(ctx, p, func(ctx context.Context) (bool, error) {
		loc, err := a.page.Location(ctx)
		if err != nil {
			return false, err
		}
		if !sameDocument(start, loc) {
			return false, ErrNavigationInterrupted
		}
		return a.page.Find(ctx, t)
	})
}

// sameDocument compares two URLs ignoring the fragment, which the settings
// dialog uses for its own routing.
func sameDocument(a, b string) bool {
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil {
		return a == b
	}
	ua.Fragment, ub.Fragment = "", ""
	ua.RawFragment, ub.RawFragment = "", ""
	return ua.String() == ub.String()
}

// Abort asks the running session to stop before its next item. The session
// stays active until the loop notices.
func (a *Agent) Abort() error {
	a.mu.Lock()
	s := a.active
	a.mu.Unlock()
	if s == nil {
		return ErrNoDeletion
	}
	s.Abort()
	a.addLog("Deletion process aborted by user")
	return nil
}

func (a *Agent) begin(ctx context.Context) (*Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active != nil {
		return nil, ErrDeletionInProgress
	}
	s := newSession(context.WithoutCancel(ctx), a.ids.SessionID())
	a.active = s
	return s, nil
}

func (a *Agent) end(s *Session) {
	s.cancel()
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active == s {
		a.active = nil
	}
	a.last = s
}

// DeleteAll deletes every archived conversation listed in the open panel.
// Cancelling ctx or calling Abort stops the loop between items; an item in
// flight always finishes its click and confirm.
func (a *Agent) DeleteAll(ctx context.Context, opts *protocol.DeleteOptions) (protocol.Result, error) {
	s, err := a.begin(ctx)
	if err != nil {
		return protocol.Result{}, err
	}
	defer a.end(s)

	stop := context.AfterFunc(ctx, s.Abort)
	defer stop()

	log := slog.With("session", s.ID)
	log.Info("deletion started")

	res, err := a.run(s.ctx, context.WithoutCancel(ctx), s, opts)
	if err != nil {
		s.setState(StateFailed)
		log.Warn("deletion failed", "deleted", res.Deleted, "total", res.Total, "err", err)
		a.addLog("Error during deletion: %s", err)
		return res, err
	}
	log.Info("deletion finished", "state", s.State().String(), "deleted", res.Deleted, "total", res.Total)
	return res, nil
}

// run is the loop body. sessCtx only signals abort; work carries every page call.
func (a *Agent) run(sessCtx, work context.Context, s *Session, opts *protocol.DeleteOptions) (protocol.Result, error) {
	found, err := a.page.Find(work, locator.TargetPanel)
	if err != nil {
		return s.Result(), err
	}
	if !found {
		return s.Result(), ErrPanelNotFound
	}
	if err := a.page.ClearSkipped(work); err != nil {
		return s.Result(), err
	}

	total, err := a.page.CountRows(work)
	if err != nil {
		return s.Result(), err
	}
	s.total.Store(int64(total))
	if total == 0 {
		a.addLog("No archives found to delete")
		s.setState(StateCompleted)
		return s.Result(), nil
	}

	confirm, err := a.confirmRequired(work, opts)
	if err != nil {
		return s.Result(), err
	}
	if confirm {
		ok, err := a.page.Confirm(work, fmt.Sprintf("Are you sure you want to delete all %d archived conversations? This action cannot be undone.", total))
		if err != nil {
			return s.Result(), err
		}
		if !ok {
			a.addLog("Deletion cancelled by user")
			s.setState(StateCompleted)
			return s.Result(), nil
		}
	}

	a.addLog("Starting deletion of %d archived conversations", total)

	failed, stuck := 0, 0
	for sessCtx.Err() == nil {
		found, err := a.page.Find(work, locator.TargetPanel)
		if err != nil {
			return s.Result(), err
		}
		if !found {
			return s.Result(), ErrPanelClosed
		}

		found, err = a.page.Find(work, locator.TargetDeleteTrigger)
		if err != nil {
			return s.Result(), err
		}
		if !found {
			a.addLog("No more delete buttons found")
			break
		}

		if a.deleteOne(work) {
			n := int(s.deleted.Add(1))
			stuck = 0
			a.push(protocol.Progress(n, total, false))
			a.addLog("Deleted %d/%d archives", n, total)
		} else {
			failed++
			a.addLog("Failed to delete archive %d", s.Deleted()+failed)
			skipped, err := a.page.Skip(work, locator.TargetDeleteTrigger)
			if err != nil {
				return s.Result(), err
			}
			if skipped {
				stuck = 0
			} else {
				stuck++
			}
			if stuck >= maxConsecutiveFailures {
				return s.Result(), ErrStalled
			}
		}

		if s.Deleted() >= total {
			break
		}
		waitfor.Sleep(work, a.timings.InterItem, sessCtx.Done())
	}

	if s.aborted() && s.Deleted() < total {
		s.setState(StateAborted)
		a.addLog("Deletion aborted")
	} else {
		s.setState(StateCompleted)
	}
	a.addLog("Deletion completed: %d/%d archives deleted", s.Deleted(), total)
	a.push(protocol.Progress(s.Deleted(), total, true))
	return s.Result(), nil
}

// deleteOne clicks the located trigger and its confirmation. It reports
// false when the confirmation never showed up.
func (a *Agent) deleteOne(ctx context.Context) bool {
	if err := a.page.Click(ctx, locator.TargetDeleteTrigger); err != nil {
		slog.Warn("click delete trigger", "err", err)
		return false
	}

	err := waitfor.Until(ctx, a.timings.Confirm, func(ctx context.Context) (bool, error) {
		return a.page.Find(ctx, locator.TargetConfirm)
	})
	if err != nil {
		slog.Debug("confirm button not found", "err", err)
		return false
	}
	if err := a.page.Click(ctx, locator.TargetConfirm); err != nil {
		slog.Warn("click confirm", "err", err)
		return false
	}

	err = waitfor.Until(ctx, a.timings.Settle, func(ctx context.Context) (bool, error) {
		present, err := a.page.Present(ctx, locator.TargetConfirm)
		return !present, err
	})
	if err != nil {
		slog.Debug("confirm dialog still open after click", "err", err)
	}
	return true
}

func (a *Agent) confirmRequired(ctx context.Context, opts *protocol.DeleteOptions) (bool, error) {
	if opts != nil && opts.ConfirmBeforeDelete != nil {
		return *opts.ConfirmBeforeDelete, nil
	}
	if a.store == nil {
		return options.Defaults().ConfirmBeforeDelete, nil
	}
	o, err := a.store.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("load options: %w", err)
	}
	return o.ConfirmBeforeDelete, nil
}
