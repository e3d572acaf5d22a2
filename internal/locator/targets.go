package locator

import (
	"fmt"
	"sort"
	"sync"
)

// Target names a control of the chat UI. Its string form doubles as the mark.
type Target string

const (
	TargetPanel         Target = "panel"
	TargetDeleteTrigger Target = "trigger"
	TargetConfirm       Target = "confirm"
	TargetSettings      Target = "settings"
	TargetArchivedChats Target = "archived"
)

// RowsSelector selects one archived conversation under the panel.
const RowsSelector = "tbody > tr"

// DangerRGB is the rendered red of destructive buttons.
const DangerRGB = "rgb(239, 68, 68)"

// PanelFactory builds a panel-locating chain.
type PanelFactory func() Chain

var (
	panelMu       sync.RWMutex
	panelRegistry = make(map[string]PanelFactory)
)

// RegisterPanel adds a named panel strategy.
func RegisterPanel(name string, f PanelFactory) {
	panelMu.Lock()
	defer panelMu.Unlock()
	panelRegistry[name] = f
}

// PanelChain returns the chain registered under name.
func PanelChain(name string) (Chain, error) {
	panelMu.RLock()
	f, ok := panelRegistry[name]
	panelMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown panel strategy: %s (available: %v)", name, PanelNames())
	}
	return f(), nil
}

func PanelNames() []string {
	panelMu.RLock()
	defer panelMu.RUnlock()
	names := make([]string, 0, len(panelRegistry))
	for n := range panelRegistry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func init() {
	RegisterPanel("heading", func() Chain {
		return Chain{
			Text{Label: "heading", CSS: "h2", Contains: "Archived Chats", Closest: `[role="dialog"]`, Within: "table"},
		}
	})
	RegisterPanel("layered", func() Chain {
		return Chain{
			Selector{Label: "data-attribute", CSS: `[data-testid*="archived"] table, [data-testid*="archive-"] table`},
			Text{Label: "dialog-heading", CSS: `[role="dialog"] h2, [role="dialog"] h3`, Contains: "archived", Fold: true, Closest: `[role="dialog"]`, Within: "table"},
			Text{Label: "modal-text", CSS: `[role="dialog"], [aria-modal="true"], .modal`, Contains: "archived", Fold: true, Within: "table"},
		}
	})
}

// FailedMark tags rows whose deletion failed, so the trigger chain moves on
// to the next row.
const FailedMark = "failed"

// DeleteTriggerChain finds a delete control inside the located panel, outside
// rows tagged with FailedMark.
func DeleteTriggerChain() Chain {
	scope := string(TargetPanel)
	return Chain{
		Selector{Label: "aria-label", Scope: scope, CSS: `button[aria-label="Delete conversation"]`, Exclude: FailedMark},
		Text{Label: "text", Scope: scope, CSS: "button", Contains: "delete", Fold: true, Attrs: []string{"aria-label", "title"}, Exclude: FailedMark},
		Selector{Label: "row-action", Scope: scope, CSS: "tbody > tr td:last-child button:last-of-type", Exclude: FailedMark},
	}
}

// ConfirmChain finds the control that finalizes a pending deletion.
func ConfirmChain() Chain {
	panel := string(TargetPanel)
	return Chain{
		Selector{Label: "aria-label", CSS: `button[aria-label="Delete"], button[aria-label="Confirm deletion"]`},
		Text{Label: "text", CSS: `[role="dialog"] button, [role="alertdialog"] button`, Contains: "Delete", Exact: true},
		Selector{Label: "css-class", CSS: "button.btn.relative.btn-danger"},
		Color{Label: "background", CSS: "button", Property: "backgroundColor", RGB: DangerRGB, Exclude: panel},
		Color{Label: "foreground", CSS: "button", Property: "color", RGB: DangerRGB, Exclude: panel},
	}
}

func SettingsChain() Chain {
	return Chain{
		Selector{Label: "settings-link", CSS: `a[href="#settings"]`},
		Text{Label: "settings-text", CSS: `a, button, [role="menuitem"]`, Contains: "Settings", Exact: true},
		Selector{Label: "settings-testid", CSS: `[data-testid*="settings"]`},
	}
}

func ArchivedChatsChain() Chain {
	return Chain{
		Text{Label: "button-text", CSS: "button", Contains: "Archived chats", Fold: true},
		Text{Label: "clickable-text", CSS: `a, [role="button"], [role="tab"], [tabindex]`, Contains: "archived chats", Fold: true},
	}
}

// Set maps every target to its chain.
type Set map[Target]Chain

// NewSet assembles all chains, picking the panel strategy by name.
func NewSet(panelStrategy string) (Set, error) {
	panel, err := PanelChain(panelStrategy)
	if err != nil {
		return nil, err
	}
	return Set{
		TargetPanel:         panel,
		TargetDeleteTrigger: DeleteTriggerChain(),
		TargetConfirm:       ConfirmChain(),
		TargetSettings:      SettingsChain(),
		TargetArchivedChats: ArchivedChatsChain(),
	}, nil
}
