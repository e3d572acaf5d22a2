package scrubber

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XerolandRegent/unplug-suite/internal/locator"
	"github.com/XerolandRegent/unplug-suite/internal/options"
	"github.com/XerolandRegent/unplug-suite/internal/protocol"
	"github.com/XerolandRegent/unplug-suite/internal/router"
	"github.com/XerolandRegent/unplug-suite/internal/waitfor"
)

// fakePage models the archives panel as numbered rows plus a confirm dialog.
// The delete trigger resolves to the topmost row that was not skipped.
type fakePage struct {
	mu sync.Mutex

	url       string
	panelOpen bool
	rows      int

	ids     []int
	skipped map[int]bool
	current int
	tries   map[int]int
	noSkip  bool

	// 1-based trigger attempts that never show a confirm dialog
	confirmMissing map[int]bool
	// rows whose confirm dialog never shows
	stuck          map[int]bool
	alwaysMissing  bool
	attempts       int
	confirmShown   bool

	answer  bool
	prompts []string

	settings           bool
	archived           bool
	archivedOnSettings bool
	panelOnArchived    bool
	navigateOnSettings string

	clicks    []locator.Target
	onTrigger func(attempt int)
	onDeleted func(remaining int)
	block     chan struct{}
}

// initRows numbers the rows on first use. Callers hold mu.
func (p *fakePage) initRows() {
	if p.ids != nil {
		return
	}
	p.ids = []int{}
	for i := 1; i <= p.rows; i++ {
		p.ids = append(p.ids, i)
	}
	p.skipped = map[int]bool{}
	p.tries = map[int]int{}
}

func (p *fakePage) Location(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *fakePage) Find(ctx context.Context, t locator.Target) (bool, error) {
	if t == locator.TargetPanel && p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.initRows()
	switch t {
	case locator.TargetPanel:
		return p.panelOpen, nil
	case locator.TargetDeleteTrigger:
		if !p.panelOpen {
			return false, nil
		}
		for _, id := range p.ids {
			if !p.skipped[id] {
				p.current = id
				return true, nil
			}
		}
		return false, nil
	case locator.TargetConfirm:
		return p.confirmShown, nil
	case locator.TargetSettings:
		return p.settings, nil
	case locator.TargetArchivedChats:
		return p.archived, nil
	}
	return false, nil
}

func (p *fakePage) Click(ctx context.Context, t locator.Target) error {
	p.mu.Lock()
	p.initRows()
	p.clicks = append(p.clicks, t)
	var hook func()
	switch t {
	case locator.TargetDeleteTrigger:
		p.attempts++
		p.tries[p.current]++
		if !p.alwaysMissing && !p.confirmMissing[p.attempts] && !p.stuck[p.current] {
			p.confirmShown = true
		}
		if p.onTrigger != nil {
			n, f := p.attempts, p.onTrigger
			hook = func() { f(n) }
		}
	case locator.TargetConfirm:
		if p.confirmShown {
			p.confirmShown = false
			p.ids = lo.Without(p.ids, p.current)
			if p.onDeleted != nil {
				n, f := len(p.ids), p.onDeleted
				hook = func() { f(n) }
			}
		}
	case locator.TargetSettings:
		if p.navigateOnSettings != "" {
			p.url = p.navigateOnSettings
		}
		if p.archivedOnSettings {
			p.archived = true
		}
	case locator.TargetArchivedChats:
		if p.panelOnArchived {
			p.panelOpen = true
		}
	}
	p.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (p *fakePage) Present(ctx context.Context, t locator.Target) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t == locator.TargetConfirm {
		return p.confirmShown, nil
	}
	return false, nil
}

func (p *fakePage) Skip(ctx context.Context, t locator.Target) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.noSkip || p.current == 0 || p.skipped[p.current] {
		return false, nil
	}
	p.skipped[p.current] = true
	return true, nil
}

func (p *fakePage) ClearSkipped(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.initRows()
	p.skipped = map[int]bool{}
	return nil
}

func (p *fakePage) CountRows(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.initRows()
	return len(p.ids), nil
}

func (p *fakePage) triesOf(row int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tries[row]
}

func (p *fakePage) Confirm(ctx context.Context, prompt string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, prompt)
	return p.answer, nil
}

func (p *fakePage) clicked(t locator.Target) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.clicks {
		if c == t {
			n++
		}
	}
	return n
}

type recorder struct {
	mu   sync.Mutex
	msgs []protocol.Message
}

func (r *recorder) Push(msg protocol.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) progress() []protocol.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []protocol.Message
	for _, m := range r.msgs {
		if m.Action == protocol.ActionUpdateDeleteProgress {
			out = append(out, m)
		}
	}
	return out
}

var fast = waitfor.Policy{Initial: time.Millisecond, Max: 2 * time.Millisecond, Timeout: 20 * time.Millisecond}

func fastTimings() Timings {
	return Timings{Panel: fast, Confirm: fast, Settle: fast}
}

func newTestAgent(p *fakePage, store options.Store) (*Agent, *recorder) {
	rec := &recorder{}
	return NewAgent(p, rec, store, fastTimings()), rec
}

var noConfirm = &protocol.DeleteOptions{ConfirmBeforeDelete: protocol.Bool(false)}

func hasLog(a *Agent, substr string) bool {
	for _, e := range a.LogEntries() {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

func TestDeleteAllRemovesEveryRow(t *testing.T) {
	page := &fakePage{url: "https://chatgpt.com/", panelOpen: true, rows: 3}
	agent, rec := newTestAgent(page, nil)

	res, err := agent.DeleteAll(context.Background(), noConfirm)
	require.NoError(t, err)
	assert.Equal(t, protocol.Result{Deleted: 3, Total: 3}, res)

	progress := rec.progress()
	require.Len(t, progress, 4)
	for i, m := range progress[:3] {
		assert.Equal(t, i+1, m.Current)
		assert.Equal(t, 3, m.Total)
		assert.False(t, m.Completed)
	}
	assert.True(t, progress[3].Completed)
	assert.Equal(t, 3, progress[3].Current)

	assert.True(t, hasLog(agent, "Starting deletion of 3 archived conversations"))
	assert.True(t, hasLog(agent, "Deleted 3/3 archives"))
	assert.True(t, hasLog(agent, "Deletion completed: 3/3 archives deleted"))

	require.NotNil(t, agent.Last())
	assert.Equal(t, StateCompleted, agent.Last().State())
	assert.Nil(t, agent.Active())
	assert.Empty(t, page.prompts)
}

func TestDeleteAllMissingConfirmIsPerItemFailure(t *testing.T) {
	page := &fakePage{url: "https://chatgpt.com/", panelOpen: true, rows: 2, confirmMissing: map[int]bool{1: true}}
	agent, rec := newTestAgent(page, nil)

	res, err := agent.DeleteAll(context.Background(), noConfirm)
	require.NoError(t, err)
	assert.Equal(t, protocol.Result{Deleted: 1, Total: 2}, res)
	assert.Equal(t, 2, page.clicked(locator.TargetDeleteTrigger))
	assert.Equal(t, 1, page.clicked(locator.TargetConfirm))
	assert.True(t, hasLog(agent, "Failed to delete archive 1"))
	assert.Len(t, rec.progress(), 2)
}

func TestDeleteAllMovesPastRowThatNeverConfirms(t *testing.T) {
	page := &fakePage{url: "https://chatgpt.com/", panelOpen: true, rows: 3, stuck: map[int]bool{1: true}}
	agent, rec := newTestAgent(page, nil)

	res, err := agent.DeleteAll(context.Background(), noConfirm)
	require.NoError(t, err)
	assert.Equal(t, protocol.Result{Deleted: 2, Total: 3}, res)
	assert.Equal(t, 1, page.triesOf(1), "a failed row is not retried")
	assert.Equal(t, 1, page.triesOf(2))
	assert.Equal(t, 1, page.triesOf(3))
	assert.Equal(t, StateCompleted, agent.Last().State())

	progress := rec.progress()
	require.NotEmpty(t, progress)
	last := progress[len(progress)-1]
	assert.True(t, last.Completed)
	assert.Equal(t, 2, last.Current)
	assert.Equal(t, 3, last.Total)
	assert.True(t, hasLog(agent, "Failed to delete archive 1"))
	assert.True(t, hasLog(agent, "No more delete buttons found"))
	assert.True(t, hasLog(agent, "Deletion completed: 2/3 archives deleted"))
}

func TestDeleteAllEveryRowFailing(t *testing.T) {
	page := &fakePage{url: "https://chatgpt.com/", panelOpen: true, rows: 5, alwaysMissing: true}
	agent, rec := newTestAgent(page, nil)

	res, err := agent.DeleteAll(context.Background(), noConfirm)
	require.NoError(t, err)
	assert.Equal(t, protocol.Result{Deleted: 0, Total: 5}, res)
	assert.Equal(t, 5, page.clicked(locator.TargetDeleteTrigger))
	assert.True(t, hasLog(agent, "Failed to delete archive 5"))

	progress := rec.progress()
	require.Len(t, progress, 1)
	assert.True(t, progress[0].Completed)
}

func TestDeleteAllRetriesSkippedRowsOnNextRun(t *testing.T) {
	page := &fakePage{url: "https://chatgpt.com/", panelOpen: true, rows: 2, stuck: map[int]bool{1: true}}
	agent, _ := newTestAgent(page, nil)

	res, err := agent.DeleteAll(context.Background(), noConfirm)
	require.NoError(t, err)
	assert.Equal(t, protocol.Result{Deleted: 1, Total: 2}, res)

	page.mu.Lock()
	page.stuck = nil
	page.mu.Unlock()

	res, err = agent.DeleteAll(context.Background(), noConfirm)
	require.NoError(t, err)
	assert.Equal(t, protocol.Result{Deleted: 1, Total: 1}, res)
	assert.Equal(t, 2, page.triesOf(1))
}

func TestDeleteAllStallsWhenFailedRowCannotBeSkipped(t *testing.T) {
	page := &fakePage{url: "https://chatgpt.com/", panelOpen: true, rows: 5, alwaysMissing: true, noSkip: true}
	agent, rec := newTestAgent(page, nil)

	res, err := agent.DeleteAll(context.Background(), noConfirm)
	require.ErrorIs(t, err, ErrStalled)
	assert.Equal(t, protocol.Result{Deleted: 0, Total: 5}, res)
	assert.Equal(t, maxConsecutiveFailures, page.clicked(locator.TargetDeleteTrigger))
	assert.Empty(t, rec.progress(), "failed sessions emit no final progress")
	assert.Equal(t, StateFailed, agent.Last().State())
	assert.True(t, hasLog(agent, "Error during deletion: "+ErrStalled.Error()))
}

func TestDeleteAllPanelNotFound(t *testing.T) {
	page := &fakePage{url: "https://chatgpt.com/"}
	agent, rec := newTestAgent(page, nil)

	_, err := agent.DeleteAll(context.Background(), noConfirm)
	require.ErrorIs(t, err, ErrPanelNotFound)
	assert.Empty(t, rec.progress())
	assert.True(t, hasLog(agent, "Error during deletion: Archives panel not found"))
	assert.Nil(t, agent.Active(), "active flag must be reset after a failure")
}

func TestDeleteAllNothingToDelete(t *testing.T) {
	page := &fakePage{url: "https://chatgpt.com/", panelOpen: true}
	agent, rec := newTestAgent(page, nil)

	res, err := agent.DeleteAll(context.Background(), noConfirm)
	require.NoError(t, err)
	assert.Equal(t, protocol.Result{}, res)
	assert.Empty(t, rec.progress())
	assert.True(t, hasLog(agent, "No archives found to delete"))
}

func TestDeleteAllPanelClosedMidRun(t *testing.T) {
	page := &fakePage{url: "https://chatgpt.com/", panelOpen: true, rows: 3}
	page.onDeleted = func(int) {
		page.mu.Lock()
		page.panelOpen = false
		page.mu.Unlock()
	}
	agent, _ := newTestAgent(page, nil)

	res, err := agent.DeleteAll(context.Background(), noConfirm)
	require.ErrorIs(t, err, ErrPanelClosed)
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, StateFailed, agent.Last().State())
}

func TestDeleteAllRejectsConcurrentStart(t *testing.T) {
	page := &fakePage{url: "https://chatgpt.com/", panelOpen: true, rows: 1, block: make(chan struct{})}
	agent, _ := newTestAgent(page, nil)

	done := make(chan error, 1)
	go func() {
		_, err := agent.DeleteAll(context.Background(), noConfirm)
		done <- err
	}()
	require.Eventually(t, func() bool { return agent.Active() != nil }, time.Second, time.Millisecond)

	_, err := agent.DeleteAll(context.Background(), noConfirm)
	require.ErrorIs(t, err, ErrDeletionInProgress)

	close(page.block)
	require.NoError(t, <-done)
	assert.Equal(t, 1, agent.Last().Deleted(), "rejected start must not touch the running session")
}

func TestAbortStopsBetweenItems(t *testing.T) {
	page := &fakePage{url: "https://chatgpt.com/", panelOpen: true, rows: 3}
	agent, rec := newTestAgent(page, nil)
	page.onTrigger = func(attempt int) {
		if attempt == 1 {
			require.NoError(t, agent.Abort())
		}
	}

	res, err := agent.DeleteAll(context.Background(), noConfirm)
	require.NoError(t, err)
	assert.Equal(t, protocol.Result{Deleted: 1, Total: 3}, res, "the in-flight item completes")
	assert.Equal(t, StateAborted, agent.Last().State())

	progress := rec.progress()
	require.NotEmpty(t, progress)
	last := progress[len(progress)-1]
	assert.True(t, last.Completed)
	assert.Equal(t, 1, last.Current)
	assert.True(t, hasLog(agent, "Deletion process aborted by user"))
}

func TestCancelledRequestStopsLikeAbort(t *testing.T) {
	page := &fakePage{url: "https://chatgpt.com/", panelOpen: true, rows: 3}
	agent, _ := newTestAgent(page, nil)
	agent.timings.InterItem = 50 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	page.onTrigger = func(attempt int) {
		if attempt == 2 {
			cancel()
		}
	}

	res, err := agent.DeleteAll(ctx, noConfirm)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Deleted)
	assert.Equal(t, StateAborted, agent.Last().State())
}

func TestSessionCountsReadableDuringRun(t *testing.T) {
	page := &fakePage{url: "https://chatgpt.com/", panelOpen: true, rows: 3}
	agent, _ := newTestAgent(page, nil)

	stop := make(chan struct{})
	seen := make(chan int, 1)
	go func() {
		maxTotal := 0
		defer func() { seen <- maxTotal }()
		for {
			select {
			case <-stop:
				return
			default:
			}
			if s := agent.Active(); s != nil {
				res := s.Result()
				assert.LessOrEqual(t, res.Deleted, res.Total)
				maxTotal = max(maxTotal, s.Total())
			}
		}
	}()
	page.onTrigger = func(int) { time.Sleep(time.Millisecond) }

	res, err := agent.DeleteAll(context.Background(), noConfirm)
	close(stop)
	require.NoError(t, err)
	assert.Equal(t, protocol.Result{Deleted: 3, Total: 3}, res)
	assert.Equal(t, 3, <-seen, "a reader polling the active session sees the total")
}

func TestAbortWithoutSession(t *testing.T) {
	agent, _ := newTestAgent(&fakePage{}, nil)
	assert.ErrorIs(t, agent.Abort(), ErrNoDeletion)
}

func TestStoredOptionAsksInPage(t *testing.T) {
	page := &fakePage{url: "https://chatgpt.com/", panelOpen: true, rows: 2, answer: false}
	store := options.NewMemory(options.Defaults())
	agent, rec := newTestAgent(page, store)

	res, err := agent.DeleteAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, protocol.Result{Deleted: 0, Total: 2}, res)
	require.Len(t, page.prompts, 1)
	assert.Contains(t, page.prompts[0], "all 2 archived conversations")
	assert.Zero(t, page.clicked(locator.TargetDeleteTrigger))
	assert.Empty(t, rec.progress())
	assert.True(t, hasLog(agent, "Deletion cancelled by user"))
}

func TestStoredOptionOffSkipsPrompt(t *testing.T) {
	page := &fakePage{url: "https://chatgpt.com/", panelOpen: true, rows: 1}
	store := options.NewMemory(options.Options{ConfirmBeforeDelete: false})
	agent, _ := newTestAgent(page, store)

	res, err := agent.DeleteAll(context.Background(), &protocol.DeleteOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)
	assert.Empty(t, page.prompts)
}

func TestOpenArchivesPanel(t *testing.T) {
	page := &fakePage{url: "https://chatgpt.com/", settings: true, archivedOnSettings: true, panelOnArchived: true, navigateOnSettings: "https://chatgpt.com/#settings"}
	agent, _ := newTestAgent(page, nil)

	require.NoError(t, agent.OpenArchivesPanel(context.Background()))
	assert.Equal(t, []locator.Target{locator.TargetSettings, locator.TargetArchivedChats}, page.clicks)
}

func TestOpenArchivesPanelNotFound(t *testing.T) {
	tests := []struct {
		name string
		page *fakePage
		want error
	}{
		{"no settings", &fakePage{url: "https://chatgpt.com/"}, ErrSettingsNotFound},
		{"no archived chats", &fakePage{url: "https://chatgpt.com/", settings: true}, ErrArchivedChatsNotFound},
		{"panel never shows", &fakePage{url: "https://chatgpt.com/", settings: true, archivedOnSettings: true}, ErrPanelDidNotOpen},
		{"navigated away", &fakePage{url: "https://chatgpt.com/", settings: true, archivedOnSettings: true, navigateOnSettings: "https://chatgpt.com/c/123"}, ErrNavigationInterrupted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agent, _ := newTestAgent(tt.page, nil)
			err := agent.OpenArchivesPanel(context.Background())
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
		})
	}
}

func TestSameDocument(t *testing.T) {
	assert.True(t, sameDocument("https://chatgpt.com/", "https://chatgpt.com/#settings/DataControls"))
	assert.False(t, sameDocument("https://chatgpt.com/", "https://chatgpt.com/c/abc"))
	assert.False(t, sameDocument("https://chatgpt.com/", "https://chat.openai.com/"))
}

func TestRegisteredActions(t *testing.T) {
	page := &fakePage{url: "https://chatgpt.com/c/1", panelOpen: true, rows: 4}
	agent, rec := newTestAgent(page, nil)
	r := router.New()
	agent.Register(r)
	ctx := context.Background()

	agent.Announce(ctx)
	rec.mu.Lock()
	require.NotEmpty(t, rec.msgs)
	assert.Equal(t, protocol.ActionContentScriptLoaded, rec.msgs[len(rec.msgs)-1].Action)
	assert.Equal(t, "https://chatgpt.com/c/1", rec.msgs[len(rec.msgs)-1].URL)
	rec.mu.Unlock()

	resp, err := r.Dispatch(ctx, protocol.Message{Action: protocol.ActionCheckConnection})
	require.NoError(t, err)
	assert.True(t, resp.Connected)
	assert.Equal(t, "chatgpt.com", resp.Domain)

	resp, err = r.Dispatch(ctx, protocol.Message{Action: protocol.ActionCheckArchivesStatus})
	require.NoError(t, err)
	assert.True(t, resp.ArchivesOpen)
	assert.Equal(t, 4, resp.Count)

	resp, err = r.Dispatch(ctx, protocol.Message{Action: protocol.ActionGetLogEntries})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Entries)
	assert.Contains(t, resp.Entries[0], "Scrubber initialized")

	resp, err = r.Dispatch(ctx, protocol.Message{Action: protocol.ActionAbortDeletion})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "No deletion in progress", resp.Error)

	resp, err = r.Dispatch(ctx, protocol.Message{Action: protocol.ActionOpenArchivesPanel})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "Settings button not found", resp.Error)
	assert.True(t, hasLog(agent, "Error opening archives: Settings button not found"))

	resp, err = r.Dispatch(ctx, protocol.Message{Action: protocol.ActionDeleteAllArchives, Options: noConfirm})
	require.NoError(t, err)
	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, &protocol.Result{Deleted: 4, Total: 4}, resp.Result)
}

func TestLogIsBounded(t *testing.T) {
	agent, _ := newTestAgent(&fakePage{}, nil)
	for i := 0; i < 60; i++ {
		agent.addLog("entry %d", i)
	}
	entries := agent.LogEntries()
	assert.Len(t, entries, 50)
	assert.Contains(t, entries[0], "entry 10")
	assert.Contains(t, entries[49], "entry 59")
}
