package locator

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// scriptedDriver answers Evaluate by matching a substring of the script.
type scriptedDriver struct {
	hits    map[string]bool
	fail    string
	scripts []string
}

func (d *scriptedDriver) Evaluate(ctx context.Context, expr string, out any) error {
	d.scripts = append(d.scripts, expr)
	if d.fail != "" && strings.Contains(expr, d.fail) {
		return errors.New("evaluate failed")
	}
	result := false
	for needle, v := range d.hits {
		if strings.Contains(expr, needle) {
			result = v
		}
	}
	if p, ok := out.(*bool); ok {
		*p = result
	}
	return nil
}

func TestChainFirstMatchWins(t *testing.T) {
	d := &scriptedDriver{hits: map[string]bool{"dialog-heading-needle": true, "modal-needle": true}}
	c := Chain{
		Selector{Label: "first", CSS: "#nothing"},
		Selector{Label: "second", CSS: "#dialog-heading-needle"},
		Selector{Label: "third", CSS: "#modal-needle"},
	}

	name, ok, err := c.Locate(context.Background(), d, "panel")
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if !ok || name != "second" {
		t.Errorf("Locate() = %q, %v; want second, true", name, ok)
	}
	if len(d.scripts) != 2 {
		t.Errorf("expected evaluation to stop after the match, ran %d scripts", len(d.scripts))
	}
}

func TestChainNotFoundIsNotAnError(t *testing.T) {
	d := &scriptedDriver{}
	name, ok, err := ConfirmChain().Locate(context.Background(), d, string(TargetConfirm))
	if err != nil || ok || name != "" {
		t.Errorf("Locate() = %q, %v, %v; want not found without error", name, ok, err)
	}
	if len(d.scripts) != len(ConfirmChain()) {
		t.Errorf("expected every strategy to run, ran %d", len(d.scripts))
	}
}

func TestChainErrorAborts(t *testing.T) {
	d := &scriptedDriver{fail: "#broken", hits: map[string]bool{"#later": true}}
	c := Chain{
		Selector{Label: "broken", CSS: "#broken"},
		Selector{Label: "later", CSS: "#later"},
	}
	if _, _, err := c.Locate(context.Background(), d, "x"); err == nil {
		t.Fatal("expected error")
	} else if !strings.Contains(err.Error(), "locator broken") {
		t.Errorf("error should name the strategy: %v", err)
	}
}

func TestConfirmChainOrder(t *testing.T) {
	want := []string{"aria-label", "text", "css-class", "background", "foreground"}
	got := ConfirmChain().Names()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("ConfirmChain order = %v, want %v", got, want)
	}
}

func TestLayeredPanelOrder(t *testing.T) {
	c, err := PanelChain("layered")
	if err != nil {
		t.Fatal(err)
	}
	want := "data-attribute,dialog-heading,modal-text"
	if got := strings.Join(c.Names(), ","); got != want {
		t.Errorf("layered chain = %s, want %s", got, want)
	}
}

func TestPanelRegistry(t *testing.T) {
	names := PanelNames()
	for _, n := range []string{"heading", "layered"} {
		found := false
		for _, have := range names {
			if have == n {
				found = true
			}
		}
		if !found {
			t.Errorf("panel strategy %q not registered (have %v)", n, names)
		}
	}
	if _, err := PanelChain("telepathy"); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

func TestNewSetCoversTargets(t *testing.T) {
	set, err := NewSet("heading")
	if err != nil {
		t.Fatal(err)
	}
	for _, target := range []Target{TargetPanel, TargetDeleteTrigger, TargetConfirm, TargetSettings, TargetArchivedChats} {
		if len(set[target]) == 0 {
			t.Errorf("no chain for %s", target)
		}
	}
}

func TestSelectorScriptScoped(t *testing.T) {
	s := Selector{Label: "x", Scope: "panel", CSS: `button[aria-label="Delete conversation"]`}
	script := s.Script("trigger")
	if !strings.Contains(script, `"[data-scrubber-panel]"`) {
		t.Error("scoped selector should query inside the panel")
	}
	if !strings.Contains(script, `button[aria-label=\"Delete conversation\"]`) {
		t.Errorf("selector should be embedded as a JS string literal:\n%s", script)
	}
	if !strings.Contains(script, `"data-scrubber-trigger"`) {
		t.Error("script should tag the match with the trigger mark")
	}
}

func TestTextScriptFoldsNeedle(t *testing.T) {
	txt := Text{Label: "t", CSS: "button", Contains: "  Archived Chats ", Fold: true, Closest: `[role="dialog"]`, Within: "table"}
	script := txt.Script("panel")
	if !strings.Contains(script, `const want = "archived chats"`) {
		t.Errorf("needle should be trimmed and lowercased:\n%s", script)
	}
	if !strings.Contains(script, "el.closest(") || !strings.Contains(script, `el.querySelector("table")`) {
		t.Error("closest/within hops missing")
	}
}

func TestColorScriptExcludesPanel(t *testing.T) {
	c := Color{Label: "bg", CSS: "button", Property: "backgroundColor", RGB: DangerRGB, Exclude: "panel"}
	script := c.Script("confirm")
	if !strings.Contains(script, `"rgb(239, 68, 68)"`) {
		t.Error("color missing from script")
	}
	if !strings.Contains(script, `"[data-scrubber-panel]"`) {
		t.Error("exclusion scope missing from script")
	}
}

func TestHelperScripts(t *testing.T) {
	if s := CountScript("panel", RowsSelector); !strings.Contains(s, `"tbody > tr"`) {
		t.Errorf("CountScript = %s", s)
	}
	if s := ClickScript("confirm"); !strings.Contains(s, "el.click()") {
		t.Errorf("ClickScript = %s", s)
	}
	if s := ConfirmScript(`say "yes"`); s != `window.confirm("say \"yes\"")` {
		t.Errorf("ConfirmScript = %s", s)
	}
}

func TestDeleteTriggerChainSkipsFailedRows(t *testing.T) {
	for _, l := range DeleteTriggerChain() {
		var script string
		switch m := l.(type) {
		case Selector:
			script = m.Script(string(TargetDeleteTrigger))
		case Text:
			script = m.Script(string(TargetDeleteTrigger))
		default:
			t.Fatalf("unexpected matcher %T", l)
		}
		if !strings.Contains(script, `const exclude = "[data-scrubber-failed]"`) {
			t.Errorf("%s should exclude failed rows:\n%s", l.Name(), script)
		}
		if !strings.Contains(script, "el.closest(exclude)") {
			t.Errorf("%s should test candidates against the exclusion", l.Name())
		}
	}
}

func TestSelectorWithoutExcludeUsesQuerySelector(t *testing.T) {
	script := Selector{Label: "x", CSS: "button"}.Script("confirm")
	if !strings.Contains(script, `root.querySelector("button")`) {
		t.Errorf("plain selector should use querySelector:\n%s", script)
	}
	if strings.Contains(script, "exclude") {
		t.Error("plain selector should not carry an exclusion")
	}
}

func TestSkipAndClearScripts(t *testing.T) {
	skip := SkipScript(string(TargetDeleteTrigger), FailedMark)
	for _, want := range []string{`"[data-scrubber-trigger]"`, `el.closest("tr") || el`, `"data-scrubber-failed"`} {
		if !strings.Contains(skip, want) {
			t.Errorf("SkipScript missing %s:\n%s", want, skip)
		}
	}
	if clear := ClearScript(FailedMark); !strings.Contains(clear, `"data-scrubber-failed"`) || !strings.Contains(clear, "removeAttribute") {
		t.Errorf("ClearScript = %s", clear)
	}
}
