package popup

import (
	"sync"

	"github.com/pterm/pterm"
)

// TermView renders the popup in a terminal.
type TermView struct {
	mu  sync.Mutex
	bar *pterm.ProgressbarPrinter
}

func NewTermView() *TermView {
	return &TermView{}
}

func (v *TermView) Status(text string) {
	pterm.Info.Println(text)
}

func (v *TermView) Connection(connected bool, domain string) {
	if connected {
		pterm.Success.Printf("Connected to %s\n", domain)
		return
	}
	if domain == "" {
		pterm.Warning.Println("Disconnected")
		return
	}
	pterm.Warning.Printf("Disconnected (%s)\n", domain)
}

func (v *TermView) Counts(archives, deleted int) {
	_ = pterm.DefaultTable.WithData(pterm.TableData{
		{"Archives", pterm.Sprint(archives)},
		{"Deleted", pterm.Sprint(deleted)},
	}).Render()
}

// Progress drives a single progress bar from 0 to 100.
func (v *TermView) Progress(percent float64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	target := int(percent + 0.5)
	if v.bar == nil {
		if target >= 100 {
			return
		}
		bar, err := pterm.DefaultProgressbar.WithTotal(100).WithTitle("Deleting archives").Start()
		if err != nil {
			return
		}
		v.bar = bar
	}
	if delta := target - v.bar.Current; delta > 0 {
		v.bar.Add(delta)
	}
	if target >= 100 {
		_, _ = v.bar.Stop()
		v.bar = nil
	}
}

func (v *TermView) Log(entry string) {
	pterm.Println(pterm.Gray(entry))
}

// Confirm asks on the terminal, defaulting to no.
func Confirm(prompt string) bool {
	pterm.DefaultInteractiveConfirm.DefaultText = prompt
	ok, _ := pterm.DefaultInteractiveConfirm.Show()
	return ok
}
