// Package rule parses and evaluates the selector expressions used by book
// source documents. A rule string is a chain of alternatives separated by
// ||; each alternative is classified into one selector language at compile
// time and evaluated first-match-wins at extraction time.
package rule

import (
	"regexp"
	"strings"

	"github.com/antchfx/xpath"
	"github.com/ohler55/ojg/jp"

	"github.com/windvane/booksource/errs"
)

type Kind int

const (
	KindCSS Kind = iota
	KindXPath
	KindJSONPath
	KindRegex
	KindScript
	KindLiteral
)

func (k Kind) String() string {
	switch k {
	case KindCSS:
		return "css"
	case KindXPath:
		return "xpath"
	case KindJSONPath:
		return "jsonpath"
	case KindRegex:
		return "regex"
	case KindScript:
		return "script"
	default:
		return "literal"
	}
}

// Expression is one compiled alternative of a chain.
type Expression struct {
	Kind Kind
	Body string

	// Steps is the @-split form of a CSS body, selector steps first, with
	// the extractor (when string extraction asks for one) at the tail.
	Steps []string

	// Rewrite from a ##pattern##replacement suffix, applied to every
	// extracted string.
	Pattern *regexp.Regexp
	Replace string

	// PostScript from a trailing @js: or <js>...</js> block, run with the
	// extracted value bound to result.
	PostScript string

	xp *xpath.Expr
	jp jp.Expr
	re *regexp.Regexp
}

// Chain is a compiled rule: one or more alternatives tried in order.
type Chain struct {
	Raw   string
	Exprs []*Expression
}

// Kinds lists the alternatives' selector languages, comma separated, for
// source inspection output.
func (c *Chain) Kinds() string {
	if c == nil {
		return ""
	}
	parts := make([]string, len(c.Exprs))
	for i, e := range c.Exprs {
		parts[i] = e.Kind.String()
	}
	return strings.Join(parts, ",")
}

// Parse compiles a raw rule string. An empty rule compiles to a nil chain,
// meaning the field is simply absent. Selector syntax errors are validation
// failures: they surface when the source document is compiled, not in the
// middle of an extraction.
func Parse(raw string) (*Chain, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	chain := &Chain{Raw: raw}
	for _, alt := range splitAlternatives(raw) {
		expr, err := parseExpression(alt)
		if err != nil {
			return nil, err
		}
		chain.Exprs = append(chain.Exprs, expr)
	}
	return chain, nil
}

// MustParse is for rules written in code, mainly tests.
func MustParse(raw string) *Chain {
	c, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return c
}

// splitAlternatives splits on || outside of {{...}} and script regions. A
// @js: marker opens a script region that runs to the end of the rule, so a
// || inside the post-script stays script; a <js>...</js> block closes.
func splitAlternatives(raw string) []string {
	var parts []string
	start := 0
	depth := 0
	inScript := false
	i := 0
	for i < len(raw) {
		rest := raw[i:]
		switch {
		case strings.HasPrefix(rest, "{{"):
			depth++
			i += 2
		case strings.HasPrefix(rest, "}}"):
			if depth > 0 {
				depth--
			}
			i += 2
		case strings.HasPrefix(rest, "<js>"):
			inScript = true
			i += 4
		case strings.HasPrefix(rest, "</js>"):
			inScript = false
			i += 5
		case strings.HasPrefix(rest, "@js:"):
			inScript = true
			i += 4
		case depth == 0 && !inScript && strings.HasPrefix(rest, "||"):
			parts = append(parts, raw[start:i])
			i += 2
			start = i
		default:
			i++
		}
	}
	return append(parts, raw[start:])
}

func parseExpression(alt string) (*Expression, error) {
	alt = strings.TrimSpace(alt)
	if alt == "" {
		return nil, errs.Validationf("empty rule alternative")
	}

	// Whole-rule script forms first: everything after the marker is code.
	if rest, ok := strings.CutPrefix(alt, "@js:"); ok {
		return &Expression{Kind: KindScript, Body: strings.TrimSpace(rest)}, nil
	}
	if rest, ok := strings.CutPrefix(alt, "<js>"); ok {
		rest = strings.TrimSuffix(strings.TrimSpace(rest), "</js>")
		return &Expression{Kind: KindScript, Body: strings.TrimSpace(rest)}, nil
	}

	expr := &Expression{}

	// Trailing script block.
	if idx := strings.Index(alt, "@js:"); idx >= 0 {
		expr.PostScript = strings.TrimSpace(alt[idx+len("@js:"):])
		alt = alt[:idx]
	} else if idx := strings.Index(alt, "<js>"); idx > 0 {
		post := strings.TrimSpace(alt[idx+len("<js>"):])
		expr.PostScript = strings.TrimSpace(strings.TrimSuffix(post, "</js>"))
		alt = alt[:idx]
	}

	// ##pattern##replacement rewrite suffix.
	if parts := strings.SplitN(alt, "##", 3); len(parts) > 1 {
		alt = parts[0]
		pat, err := regexp.Compile(parts[1])
		if err != nil {
			return nil, errs.ValidationWrap(err, "rewrite pattern %q", parts[1])
		}
		expr.Pattern = pat
		if len(parts) == 3 {
			expr.Replace = parts[2]
		}
	}

	body := strings.TrimSpace(alt)
	if err := classify(expr, body); err != nil {
		return nil, err
	}
	return expr, nil
}

func classify(expr *Expression, body string) error {
	switch {
	case strings.HasPrefix(body, "@XPath:"):
		return compileXPath(expr, strings.TrimSpace(body[len("@XPath:"):]))
	case strings.HasPrefix(body, "//"):
		return compileXPath(expr, body)
	case strings.HasPrefix(body, "@Json:"):
		return compileJSONPath(expr, strings.TrimSpace(body[len("@Json:"):]))
	case strings.HasPrefix(body, "$.") || strings.HasPrefix(body, "$["):
		return compileJSONPath(expr, body)
	case strings.HasPrefix(body, ":"):
		return compileRegex(expr, body[1:])
	case strings.HasPrefix(body, "@CSS:"):
		compileCSS(expr, strings.TrimSpace(body[len("@CSS:"):]))
		return nil
	case strings.Contains(body, "{{"):
		expr.Kind = KindLiteral
		expr.Body = body
		return nil
	case strings.ContainsAny(body, "@.#[>*, \t"):
		compileCSS(expr, body)
		return nil
	default:
		expr.Kind = KindLiteral
		expr.Body = body
		return nil
	}
}

func compileXPath(expr *Expression, body string) error {
	xp, err := xpath.Compile(body)
	if err != nil {
		return errs.ValidationWrap(err, "xpath %q", body)
	}
	expr.Kind = KindXPath
	expr.Body = body
	expr.xp = xp
	return nil
}

func compileJSONPath(expr *Expression, body string) error {
	x, err := jp.ParseString(body)
	if err != nil {
		return errs.ValidationWrap(err, "jsonpath %q", body)
	}
	expr.Kind = KindJSONPath
	expr.Body = body
	expr.jp = x
	return nil
}

func compileRegex(expr *Expression, body string) error {
	re, err := regexp.Compile(body)
	if err != nil {
		return errs.ValidationWrap(err, "regex %q", body)
	}
	expr.Kind = KindRegex
	expr.Body = body
	expr.re = re
	return nil
}

func compileCSS(expr *Expression, body string) {
	expr.Kind = KindCSS
	expr.Body = body
	for _, step := range strings.Split(body, "@") {
		step = strings.TrimSpace(step)
		if step == "" {
			continue
		}
		expr.Steps = append(expr.Steps, step)
	}
}

// Rewrite is a standalone regex cleanup, the compiled form of a content
// rule's replaceRegex field.
type Rewrite struct {
	Pattern *regexp.Regexp
	Replace string
}

// ParseRewrite compiles a replaceRegex value. Accepted forms are the bare
// pattern (matches are deleted) and ##pattern##replacement.
func ParseRewrite(raw string) (*Rewrite, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	pattern, replace := raw, ""
	if rest, ok := strings.CutPrefix(raw, "##"); ok {
		pattern = rest
		if p, r, found := strings.Cut(rest, "##"); found {
			pattern, replace = p, r
		}
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errs.ValidationWrap(err, "replace pattern %q", pattern)
	}
	return &Rewrite{Pattern: re, Replace: replace}, nil
}

func (r *Rewrite) Apply(s string) string {
	if r == nil {
		return s
	}
	return r.Pattern.ReplaceAllString(s, r.Replace)
}
