package rule

import (
	"regexp"
	"strings"

	"github.com/antchfx/htmlquery"

	"github.com/windvane/booksource/script"
)

// Evaluator runs compiled chains against elements. It carries the script
// context so literal interpolation, script rules and post-scripts all see
// the same bindings and variable store.
type Evaluator struct {
	ctx *script.Context
}

func NewEvaluator(ctx *script.Context) *Evaluator {
	return &Evaluator{ctx: ctx}
}

func (ev *Evaluator) Context() *script.Context { return ev.ctx }

// Elements evaluates the chain in element context: every alternative's
// segments act as selectors, and the first alternative producing at least
// one element wins. An alternative that errors falls through; the first
// error surfaces only when no alternative matches.
func (ev *Evaluator) Elements(root *Element, c *Chain) ([]*Element, error) {
	if c == nil {
		return nil, nil
	}
	var firstErr error
	for _, expr := range c.Exprs {
		els, err := ev.exprElements(root, expr)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if len(els) > 0 {
			return els, nil
		}
	}
	return nil, firstErr
}

// Strings evaluates in string context. An alternative wins when its
// selector yields at least one non-empty value; only then does its
// post-script run, once per value.
func (ev *Evaluator) Strings(root *Element, c *Chain) ([]string, error) {
	if c == nil {
		return nil, nil
	}
	var firstErr error
	for _, expr := range c.Exprs {
		vals, err := ev.exprStrings(root, expr)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if len(vals) > 0 {
			return vals, nil
		}
	}
	return nil, firstErr
}

// String is Strings joined with newlines.
func (ev *Evaluator) String(root *Element, c *Chain) (string, error) {
	vals, err := ev.Strings(root, c)
	if err != nil {
		return "", err
	}
	return strings.Join(vals, "\n"), nil
}

func (ev *Evaluator) exprElements(root *Element, expr *Expression) ([]*Element, error) {
	switch expr.Kind {
	case KindCSS:
		return cssElements(root, expr)
	case KindXPath:
		n, err := root.materializeNode()
		if err != nil {
			return nil, err
		}
		nodes := htmlquery.QuerySelectorAll(n, expr.xp)
		els := make([]*Element, 0, len(nodes))
		for _, nd := range nodes {
			els = append(els, FromNode(nd))
		}
		return els, nil
	case KindJSONPath:
		v, err := root.materializeJSON()
		if err != nil {
			return nil, err
		}
		results := expr.jp.Get(v)
		els := make([]*Element, 0, len(results))
		for _, r := range results {
			els = append(els, FromJSON(r))
		}
		return els, nil
	case KindRegex:
		var els []*Element
		for _, m := range regexMatches(expr.re, root.HTML()) {
			els = append(els, FromText(m))
		}
		return els, nil
	case KindScript:
		return ev.scriptElements(root, expr)
	default: // literal
		v, err := ev.ctx.Interp(expr.Body)
		if err != nil {
			return nil, err
		}
		if v == "" {
			return nil, nil
		}
		return []*Element{FromText(v)}, nil
	}
}

// exprStrings runs one alternative. Returning an empty slice means the
// selector did not match and the next alternative should be tried.
func (ev *Evaluator) exprStrings(root *Element, expr *Expression) ([]string, error) {
	vals, err := ev.rawStrings(root, expr)
	if err != nil {
		return nil, err
	}
	if expr.Pattern != nil {
		for i, v := range vals {
			vals[i] = expr.Pattern.ReplaceAllString(v, expr.Replace)
		}
	}
	if !anyNonEmpty(vals) {
		return nil, nil
	}
	if expr.PostScript != "" {
		for i, v := range vals {
			ev.ctx.SetResult(v)
			out, err := ev.ctx.Eval(expr.PostScript)
			if err != nil {
				return nil, err
			}
			vals[i] = out
		}
	}
	return vals, nil
}

func (ev *Evaluator) rawStrings(root *Element, expr *Expression) ([]string, error) {
	switch expr.Kind {
	case KindCSS:
		return cssStrings(root, expr)
	case KindXPath:
		n, err := root.materializeNode()
		if err != nil {
			return nil, err
		}
		nodes := htmlquery.QuerySelectorAll(n, expr.xp)
		vals := make([]string, 0, len(nodes))
		for _, nd := range nodes {
			vals = append(vals, strings.TrimSpace(htmlquery.InnerText(nd)))
		}
		return vals, nil
	case KindJSONPath:
		v, err := root.materializeJSON()
		if err != nil {
			return nil, err
		}
		results := expr.jp.Get(v)
		vals := make([]string, 0, len(results))
		for _, r := range results {
			vals = append(vals, jsonString(r))
		}
		return vals, nil
	case KindRegex:
		return regexMatches(expr.re, root.HTML()), nil
	case KindScript:
		return ev.scriptStrings(root, expr)
	default: // literal
		v, err := ev.ctx.Interp(expr.Body)
		if err != nil {
			return nil, err
		}
		return []string{v}, nil
	}
}

// regexMatches returns all matches; a pattern with capturing groups yields
// the first group, a bare pattern the whole match.
func regexMatches(re *regexp.Regexp, text string) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		if len(m) > 1 {
			out = append(out, m[1])
		} else {
			out = append(out, m[0])
		}
	}
	return out
}

func (ev *Evaluator) scriptStrings(root *Element, expr *Expression) ([]string, error) {
	ev.ctx.SetResult(root.Text())
	v, err := ev.ctx.EvalExport(expr.Body)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{t}, nil
	case []string:
		return t, nil
	case []any:
		vals := make([]string, 0, len(t))
		for _, item := range t {
			vals = append(vals, jsonString(item))
		}
		return vals, nil
	default:
		return []string{jsonString(t)}, nil
	}
}

func (ev *Evaluator) scriptElements(root *Element, expr *Expression) ([]*Element, error) {
	ev.ctx.SetResult(root.Text())
	v, err := ev.ctx.EvalExport(expr.Body)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		if t == "" {
			return nil, nil
		}
		return []*Element{FromText(t)}, nil
	case []string:
		els := make([]*Element, 0, len(t))
		for _, s := range t {
			els = append(els, FromText(s))
		}
		return els, nil
	case []any:
		els := make([]*Element, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				els = append(els, FromText(s))
				continue
			}
			els = append(els, FromJSON(item))
		}
		return els, nil
	default:
		return []*Element{FromJSON(t)}, nil
	}
}

func anyNonEmpty(vals []string) bool {
	for _, v := range vals {
		if v != "" {
			return true
		}
	}
	return false
}
