// Package locator finds elements of the chat UI with ordered chains of
// heuristic matchers. The first matcher that finds something wins and tags
// the element with a data attribute, so later steps can address it with a
// plain CSS selector.
package locator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Driver evaluates a JavaScript expression in the page and decodes its result.
type Driver interface {
	Evaluate(ctx context.Context, expr string, out any) error
}

// Locator is one matching strategy.
type Locator interface {
	Name() string
	// Locate tags the matched element with MarkAttr(mark). It returns false,
	// not an error, when nothing matches.
	Locate(ctx context.Context, d Driver, mark string) (bool, error)
}

// MarkAttr is the attribute a successful Locate sets on its element.
func MarkAttr(mark string) string {
	return "data-scrubber-" + mark
}

// MarkSelector selects the element tagged with mark.
func MarkSelector(mark string) string {
	return "[" + MarkAttr(mark) + "]"
}

// Chain is an ordered list of strategies, evaluated until one matches.
type Chain []Locator

// Locate returns the name of the strategy that matched. A strategy error
// aborts the chain.
func (c Chain) Locate(ctx context.Context, d Driver, mark string) (string, bool, error) {
	for _, l := range c {
		ok, err := l.Locate(ctx, d, mark)
		if err != nil {
			return "", false, fmt.Errorf("locator %s: %w", l.Name(), err)
		}
		if ok {
			return l.Name(), true, nil
		}
	}
	return "", false, nil
}

func (c Chain) Names() []string {
	out := make([]string, len(c))
	for i, l := range c {
		out[i] = l.Name()
	}
	return out
}

// js renders s as a JavaScript string literal.
func js(s string) string {
	return literal(s)
}

func jsList(ss []string) string {
	if ss == nil {
		ss = []string{}
	}
	return literal(ss)
}

// literal keeps selector characters such as > readable in the script.
func literal(v any) string {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
	return strings.TrimSuffix(b.String(), "\n")
}

// rootExpr yields the statement that binds `root`, bailing out when the
// scoping element is gone.
func rootExpr(scope string) string {
	if scope == "" {
		return "const root = document;"
	}
	return fmt.Sprintf("const root = document.querySelector(%s); if (!root) return null;", js(MarkSelector(scope)))
}

// markScript wraps a finder body (statements returning an element or null)
// so the result is tagged and reported as a boolean.
func markScript(mark, find string) string {
	return fmt.Sprintf(`(() => {
  const attr = %s;
  document.querySelectorAll("[" + attr + "]").forEach(e => e.removeAttribute(attr));
  const el = (() => { %s })();
  if (!el) return false;
  el.setAttribute(attr, "");
  return true;
})()`, js(MarkAttr(mark)), find)
}

func locate(ctx context.Context, d Driver, script string) (bool, error) {
	var ok bool
	if err := d.Evaluate(ctx, script, &ok); err != nil {
		return false, err
	}
	return ok, nil
}

// excludeExpr yields the selector of the Exclude-tagged element, or null.
func excludeExpr(exclude string) string {
	if exclude == "" {
		return "null"
	}
	return js(MarkSelector(exclude))
}

// Selector matches the first element for a CSS selector that does not sit
// inside the Exclude-tagged element.
type Selector struct {
	Label   string
	Scope   string
	CSS     string
	Exclude string
}

func (s Selector) Name() string { return s.Label }

func (s Selector) Script(mark string) string {
	var find string
	if s.Exclude == "" {
		find = rootExpr(s.Scope) + fmt.Sprintf(" return root.querySelector(%s);", js(s.CSS))
	} else {
		find = rootExpr(s.Scope) + fmt.Sprintf(` const exclude = %s;
  return Array.from(root.querySelectorAll(%s)).find(el => !el.closest(exclude)) || null;`, excludeExpr(s.Exclude), js(s.CSS))
	}
	return markScript(mark, find)
}

func (s Selector) Locate(ctx context.Context, d Driver, mark string) (bool, error) {
	return locate(ctx, d, s.Script(mark))
}

// Text matches elements whose text content (or one of Attrs) contains, or
// with Exact equals, Contains. Closest and Within then hop to an ancestor
// and a descendant of the hit. Elements inside the Exclude-tagged element
// never match.
type Text struct {
	Label    string
	Scope    string
	CSS      string
	Contains string
	Exact    bool
	Fold     bool
	Attrs    []string
	Closest  string
	Within   string
	Exclude  string
}

func (t Text) Name() string { return t.Label }

func (t Text) Script(mark string) string {
	want := strings.TrimSpace(t.Contains)
	if t.Fold {
		want = strings.ToLower(want)
	}
	var b strings.Builder
	b.WriteString(rootExpr(t.Scope))
	fmt.Fprintf(&b, ` const want = %s; const fold = %t; const exact = %t; const attrs = %s; const exclude = %s;
  const norm = v => { const s = (v || "").trim(); return fold ? s.toLowerCase() : s; };
  const hit = el => (!exclude || !el.closest(exclude)) && [el.textContent].concat(attrs.map(a => el.getAttribute(a))).some(v => {
    const s = norm(v); return exact ? s === want : s.includes(want);
  });
  let el = Array.from(root.querySelectorAll(%s)).find(hit);
  if (!el) return null;`, js(want), t.Fold, t.Exact, jsList(t.Attrs), excludeExpr(t.Exclude), js(t.CSS))
	if t.Closest != "" {
		fmt.Fprintf(&b, " el = el.closest(%s); if (!el) return null;", js(t.Closest))
	}
	if t.Within != "" {
		fmt.Fprintf(&b, " el = el.querySelector(%s);", js(t.Within))
	}
	b.WriteString(" return el;")
	return markScript(mark, b.String())
}

func (t Text) Locate(ctx context.Context, d Driver, mark string) (bool, error) {
	return locate(ctx, d, t.Script(mark))
}

// Color matches elements whose computed style Property renders as RGB.
// Elements inside the Exclude-tagged element are skipped.
type Color struct {
	Label    string
	CSS      string
	Property string
	RGB      string
	Exclude  string
}

func (c Color) Name() string { return c.Label }

func (c Color) Script(mark string) string {
	exclude := excludeExpr(c.Exclude)
	find := fmt.Sprintf(`const want = %s.replace(/\s+/g, ""); const prop = %s; const exclude = %s;
  return Array.from(document.querySelectorAll(%s)).find(el => {
    if (exclude && el.closest(exclude)) return false;
    return (getComputedStyle(el)[prop] || "").replace(/\s+/g, "") === want;
  }) || null;`, js(c.RGB), js(c.Property), exclude, js(c.CSS))
	return markScript(mark, find)
}

func (c Color) Locate(ctx context.Context, d Driver, mark string) (bool, error) {
	return locate(ctx, d, c.Script(mark))
}

// PresentScript reports whether the element tagged with mark is still attached.
func PresentScript(mark string) string {
	return fmt.Sprintf(`(() => { const el = document.querySelector(%s); return !!(el && el.isConnected); })()`, js(MarkSelector(mark)))
}

// ClickScript clicks the element tagged with mark and reports whether it existed.
func ClickScript(mark string) string {
	return fmt.Sprintf(`(() => { const el = document.querySelector(%s); if (!el) return false; el.click(); return true; })()`, js(MarkSelector(mark)))
}

// CountScript counts rows under the element tagged with mark.
func CountScript(mark, rows string) string {
	return fmt.Sprintf(`(() => { const root = document.querySelector(%s); return root ? root.querySelectorAll(%s).length : 0; })()`, js(MarkSelector(mark)), js(rows))
}

// ConfirmScript asks the person at the page through window.confirm.
func ConfirmScript(prompt string) string {
	return fmt.Sprintf(`window.confirm(%s)`, js(prompt))
}

// SkipScript tags the row holding the element marked with mark (or the element
// itself outside a table) with skipMark, and reports whether it existed.
func SkipScript(mark, skipMark string) string {
	return fmt.Sprintf(`(() => { const el = document.querySelector(%s); if (!el) return false; (el.closest("tr") || el).setAttribute(%s, ""); return true; })()`, js(MarkSelector(mark)), js(MarkAttr(skipMark)))
}

// ClearScript removes skipMark from every element carrying it.
func ClearScript(skipMark string) string {
	return fmt.Sprintf(`(() => { const attr = %s; document.querySelectorAll("[" + attr + "]").forEach(e => e.removeAttribute(attr)); return true; })()`, js(MarkAttr(skipMark)))
}
