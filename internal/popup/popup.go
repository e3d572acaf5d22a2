// Package popup is the control surface of the scrubber: it checks the
// connection to the chat tab, starts and aborts deletions and renders what
// the agent pushes back.
package popup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/XerolandRegent/unplug-suite/internal/options"
	"github.com/XerolandRegent/unplug-suite/internal/protocol"
)

var (
	ErrNotChatHost  = errors.New("Open ChatGPT to use this extension")
	ErrNotConnected = errors.New("not connected to a chat tab")
	ErrNoArchives   = errors.New("no archives to delete")
	ErrBusy         = errors.New("deletion already in progress")
	ErrCancelled    = errors.New("Deletion cancelled by user")
)

// Transport carries requests to the agent and pushes back.
type Transport interface {
	Send(ctx context.Context, msg protocol.Message) (protocol.Response, error)
	Subscribe(ctx context.Context) (<-chan protocol.Message, error)
}

// View renders popup state.
type View interface {
	Status(text string)
	Connection(connected bool, domain string)
	Counts(archives, deleted int)
	Progress(percent float64)
	Log(entry string)
}

// ConfirmFunc asks the user a yes/no question.
type ConfirmFunc func(prompt string) bool

type Popup struct {
	transport Transport
	view      View
	store     options.Store
	confirm   ConfirmFunc
	logs      *LogView

	// RecheckDelay separates a successful open from the follow-up count.
	RecheckDelay time.Duration
	// ResetDelay is how long a finished deletion stays on screen.
	ResetDelay time.Duration

	mu        sync.Mutex
	connected bool
	domain    string
	total     int
	deleted   int
	deleting  bool
	status    string
}

func New(t Transport, v View, store options.Store, confirm ConfirmFunc) *Popup {
	return &Popup{
		transport:    t,
		view:         v,
		store:        store,
		confirm:      confirm,
		logs:         NewLogView(LogViewCapacity),
		RecheckDelay: time.Second,
		ResetDelay:   2 * time.Second,
	}
}

// Percent is current over total as a percentage, 0 for an empty total.
func Percent(current, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(current) / float64(total) * 100
}

func (p *Popup) setStatus(text string) {
	p.mu.Lock()
	p.status = text
	p.mu.Unlock()
	p.view.Status(text)
}

func (p *Popup) log(entry string) {
	p.logs.Add(entry)
	p.view.Log(entry)
}

func (p *Popup) Logs() []string { return p.logs.Entries() }

func (p *Popup) StatusText() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// CanDelete mirrors the enabled state of the delete button.
func (p *Popup) CanDelete() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected && p.total > 0 && !p.deleting
}

func (p *Popup) Total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

func (p *Popup) Deleted() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deleted
}

func (p *Popup) Deleting() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deleting
}

// CheckConnection verifies the tab is a chat page, probes the archives
// panel, replays the agent log and auto-opens the panel when configured.
func (p *Popup) CheckConnection(ctx context.Context) error {
	resp, err := p.transport.Send(ctx, protocol.Message{Action: protocol.ActionCheckConnection})
	if err != nil {
		p.setStatus("Error connecting to page")
		p.log("Cannot connect to ChatGPT page. Try reloading.")
		return fmt.Errorf("check connection: %w", err)
	}
	if !resp.Connected || !protocol.IsChatHost(resp.Domain) {
		p.mu.Lock()
		p.connected, p.domain = false, resp.Domain
		p.mu.Unlock()
		p.view.Connection(false, resp.Domain)
		p.setStatus(ErrNotChatHost.Error())
		p.log("Please navigate to chat.openai.com or chatgpt.com")
		return ErrNotChatHost
	}

	p.mu.Lock()
	p.connected, p.domain = true, resp.Domain
	p.mu.Unlock()
	p.view.Connection(true, resp.Domain)
	p.setStatus("Connected to " + resp.Domain)

	open, err := p.refreshArchives(ctx)
	if err != nil {
		slog.Warn("check archives status", "err", err)
	}
	if open {
		p.setStatus("Archives panel detected")
	}

	if err := p.replayLog(ctx); err != nil {
		slog.Warn("replay agent log", "err", err)
	}

	if p.store == nil || open {
		return nil
	}
	o, err := p.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load options: %w", err)
	}
	if o.AutoOpenArchives {
		return p.OpenArchives(ctx)
	}
	return nil
}

// refreshArchives asks whether the panel is open and records its count.
func (p *Popup) refreshArchives(ctx context.Context) (bool, error) {
	resp, err := p.transport.Send(ctx, protocol.Message{Action: protocol.ActionCheckArchivesStatus})
	if err != nil {
		return false, err
	}
	if !resp.ArchivesOpen {
		return false, nil
	}
	p.mu.Lock()
	p.total = resp.Count
	deleted := p.deleted
	p.mu.Unlock()
	p.view.Counts(resp.Count, deleted)
	p.log(fmt.Sprintf("Found %d archived conversations", resp.Count))
	return true, nil
}

func (p *Popup) replayLog(ctx context.Context) error {
	resp, err := p.transport.Send(ctx, protocol.Message{Action: protocol.ActionGetLogEntries})
	if err != nil {
		return err
	}
	for _, e := range resp.Entries {
		p.log(e)
	}
	return nil
}

// OpenArchives asks the agent to open the archives panel and then re-counts.
func (p *Popup) OpenArchives(ctx context.Context) error {
	p.mu.Lock()
	connected := p.connected
	p.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}

	p.setStatus("Opening archives panel...")
	p.log("Opening archives panel...")

	resp, err := p.transport.Send(ctx, protocol.Message{Action: protocol.ActionOpenArchivesPanel})
	if err != nil {
		p.setStatus("Error opening archives panel")
		p.log("Error: " + err.Error())
		return err
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "Failed to open archives panel"
		}
		p.setStatus("Failed to open archives panel")
		p.log("Error: " + msg)
		return errors.New(msg)
	}

	p.setStatus("Archives panel opened")
	p.log("Archives panel opened successfully")

	if p.RecheckDelay > 0 {
		select {
		case <-time.After(p.RecheckDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	_, err = p.refreshArchives(ctx)
	return err
}

// DeleteAll confirms with the user when configured and runs the deletion.
// It blocks until the agent answers; progress arrives through HandlePush.
func (p *Popup) DeleteAll(ctx context.Context) (protocol.Result, error) {
	p.mu.Lock()
	connected, total, deleting := p.connected, p.total, p.deleting
	p.mu.Unlock()
	switch {
	case !connected:
		return protocol.Result{}, ErrNotConnected
	case deleting:
		return protocol.Result{}, ErrBusy
	case total == 0:
		return protocol.Result{}, ErrNoArchives
	}

	confirm := options.Defaults().ConfirmBeforeDelete
	if p.store != nil {
		o, err := p.store.Load(ctx)
		if err != nil {
			return protocol.Result{}, fmt.Errorf("load options: %w", err)
		}
		confirm = o.ConfirmBeforeDelete
	}
	if confirm {
		prompt := fmt.Sprintf("Are you sure you want to delete all %d archived conversations? This action cannot be undone.", total)
		if p.confirm == nil || !p.confirm(prompt) {
			p.log(ErrCancelled.Error())
			return protocol.Result{}, ErrCancelled
		}
	}

	p.mu.Lock()
	p.deleting = true
	p.mu.Unlock()
	p.setStatus("Deleting archives...")
	p.log(fmt.Sprintf("Starting deletion of %d archives...", total))
	p.view.Progress(0)

	resp, err := p.transport.Send(ctx, protocol.Message{
		Action:  protocol.ActionDeleteAllArchives,
		Options: &protocol.DeleteOptions{ConfirmBeforeDelete: protocol.Bool(false)},
	})
	if err == nil && !resp.Success {
		err = errors.New(resp.Error)
	}
	if err != nil {
		p.mu.Lock()
		p.deleting = false
		p.mu.Unlock()
		p.setStatus("Deletion failed")
		p.log("Error: " + err.Error())
		return protocol.Result{}, err
	}

	var res protocol.Result
	if resp.Result != nil {
		res = *resp.Result
	}
	// The completion push may never come: the stream can be down or the
	// run can end before anything was deleted.
	p.finish(res.Deleted, res.Total)
	return res, nil
}

// Abort asks the agent to stop the running deletion.
func (p *Popup) Abort(ctx context.Context) error {
	resp, err := p.transport.Send(ctx, protocol.Message{Action: protocol.ActionAbortDeletion})
	if err != nil {
		return err
	}
	if !resp.Success {
		return errors.New(resp.Error)
	}
	p.setStatus("Aborting deletion...")
	return nil
}

// HandlePush applies one agent push to the popup.
func (p *Popup) HandlePush(msg protocol.Message) {
	switch msg.Action {
	case protocol.ActionLogUpdate:
		p.log(msg.Entry)
	case protocol.ActionUpdateDeleteProgress:
		p.mu.Lock()
		p.deleted = msg.Current
		total := p.total
		p.mu.Unlock()
		p.view.Progress(Percent(msg.Current, msg.Total))
		p.view.Counts(total, msg.Current)
		if msg.Completed {
			p.finish(msg.Current, msg.Total)
		}
	case protocol.ActionContentScriptLoaded:
		p.setStatus("Page agent attached")
		slog.Debug("agent attached", "url", msg.URL)
	default:
		slog.Debug("ignoring push", "action", msg.Action)
	}
}

// finish ends a run once. Whichever of the completion push and the
// deleteAllArchives answer arrives second is ignored.
func (p *Popup) finish(current, total int) {
	p.mu.Lock()
	if !p.deleting {
		p.mu.Unlock()
		return
	}
	p.deleting = false
	p.mu.Unlock()
	p.setStatus("Deletion completed")
	p.log(fmt.Sprintf("Deletion completed: %d/%d archives deleted", current, total))

	if p.ResetDelay <= 0 {
		p.reset()
		return
	}
	time.AfterFunc(p.ResetDelay, p.reset)
}

func (p *Popup) reset() {
	p.mu.Lock()
	if p.deleting {
		p.mu.Unlock()
		return
	}
	p.total = 0
	deleted := p.deleted
	p.mu.Unlock()
	p.setStatus("Ready to scrub archives")
	p.view.Counts(0, deleted)
}

// Attach subscribes to agent pushes and feeds them into HandlePush in the
// background. The subscription is live when Attach returns; done closes when
// ctx ends or the stream closes.
func (p *Popup) Attach(ctx context.Context) (done <-chan struct{}, err error) {
	pushes, err := p.transport.Subscribe(ctx)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ch := make(chan struct{})
	go func() {
		defer close(ch)
		for {
			select {
			case msg, ok := <-pushes:
				if !ok {
					return
				}
				p.HandlePush(msg)
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Follow feeds pushes into HandlePush until ctx ends or the stream closes.
func (p *Popup) Follow(ctx context.Context) error {
	done, err := p.Attach(ctx)
	if err != nil {
		return err
	}
	<-done
	return nil
}
