// Package script runs the JavaScript fragments embedded in source rules.
// Each evaluation gets a fresh interpreter with a small whitelisted surface:
// the page/key/baseUrl/result bindings and the get/put variable store. Host
// namespaces from the upstream rule dialect (java.*, source.*, cookie.*,
// cache.*, book.*) are rejected before the interpreter ever sees them.
package script

import (
	"regexp"
	"strings"
	"time"

	"github.com/robertkrimen/otto"

	"github.com/windvane/booksource/errs"
)

type options struct {
	timeout time.Duration
}

var defaultOptions = options{
	timeout: 1 * time.Second,
}

type Option func(opts *options)

// WithTimeout bounds a single evaluation. A script still running when the
// timeout fires is interrupted and reported as an extraction failure.
func WithTimeout(d time.Duration) Option {
	return func(opts *options) {
		opts.timeout = d
	}
}

// Context carries the bindings and the per-book variable store across the
// evaluations of one pipeline invocation. Not safe for concurrent use; the
// fan-out engine gives every source its own Context.
type Context struct {
	opts    options
	vars    map[string]string
	page    int
	baseURL string
	key     string
	result  string
}

func NewContext(opts ...Option) *Context {
	o := defaultOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &Context{
		opts: o,
		vars: map[string]string{},
	}
}

func (c *Context) SetPage(page int)    { c.page = page }
func (c *Context) SetBaseURL(u string) { c.baseURL = u }
func (c *Context) SetKey(key string)   { c.key = key }
func (c *Context) SetResult(s string)  { c.result = s }

// Put stores a variable from the host side, mirroring what put() does from
// script. Pipeline stages use it to seed the store from a previous stage.
func (c *Context) Put(name, value string) {
	c.vars[name] = value
}

func (c *Context) Get(name string) string {
	return c.vars[name]
}

// SetVars replaces the store with a copy of m.
func (c *Context) SetVars(m map[string]string) {
	c.vars = make(map[string]string, len(m))
	for k, v := range m {
		c.vars[k] = v
	}
}

// Vars returns a copy of the store, or nil when it is empty. The copy keeps
// later evaluations from mutating a snapshot already attached to a record.
func (c *Context) Vars() map[string]string {
	if len(c.vars) == 0 {
		return nil
	}
	out := make(map[string]string, len(c.vars))
	for k, v := range c.vars {
		out[k] = v
	}
	return out
}

// Eval runs src and coerces the completion value to a string. Undefined and
// null coerce to the empty string.
func (c *Context) Eval(src string) (string, error) {
	v, err := c.eval(src)
	if err != nil {
		return "", err
	}
	return valueString(v), nil
}

// EvalExport runs src and exports the completion value as a Go value, so
// callers can see arrays and objects instead of their string forms.
func (c *Context) EvalExport(src string) (any, error) {
	v, err := c.eval(src)
	if err != nil {
		return nil, err
	}
	if v.IsUndefined() || v.IsNull() {
		return nil, nil
	}
	exported, err := v.Export()
	if err != nil {
		return nil, errs.ExtractionWrap(err, "script result export")
	}
	return exported, nil
}

// Interp substitutes every {{...}} segment of tpl with the string result of
// evaluating its body. Text outside the braces passes through untouched.
func (c *Context) Interp(tpl string) (string, error) {
	return c.InterpFunc(tpl, nil)
}

// InterpFunc is Interp with a per-value transform, applied to each evaluated
// segment before substitution. URL building passes an escaping function here.
func (c *Context) InterpFunc(tpl string, transform func(string) string) (string, error) {
	if !strings.Contains(tpl, "{{") {
		return tpl, nil
	}
	var b strings.Builder
	rest := tpl
	for {
		i := strings.Index(rest, "{{")
		if i < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:i])
		rest = rest[i+2:]
		j := strings.Index(rest, "}}")
		if j < 0 {
			b.WriteString("{{")
			b.WriteString(rest)
			break
		}
		expr := rest[:j]
		rest = rest[j+2:]
		out, err := c.Eval(expr)
		if err != nil {
			return "", err
		}
		if transform != nil {
			out = transform(out)
		}
		b.WriteString(out)
	}
	return b.String(), nil
}

var blockedToken = regexp.MustCompile(`\b(?:java|source|cookie|cache|book)\.[A-Za-z_$][0-9A-Za-z_$]*`)

// BlockedTokens returns the host-namespace accesses in src, deduplicated in
// order of first appearance.
func BlockedTokens(src string) []string {
	matches := blockedToken.FindAllString(src, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

var errHalt = errs.Extractionf("script interrupted")

func (c *Context) eval(src string) (result otto.Value, err error) {
	if tokens := BlockedTokens(src); len(tokens) > 0 {
		return otto.Value{}, errs.Unsupported(tokens...)
	}

	vm := otto.New()
	if err := c.bind(vm); err != nil {
		return otto.Value{}, err
	}

	// Interrupt channel plus recover is otto's sanctioned way to stop a
	// runaway script; the panic unwinds the interpreter loop.
	vm.Interrupt = make(chan func(), 1)
	watchdog := time.AfterFunc(c.opts.timeout, func() {
		vm.Interrupt <- func() {
			panic(errHalt)
		}
	})
	defer watchdog.Stop()
	defer func() {
		if caught := recover(); caught != nil {
			if caught == errHalt {
				result = otto.Value{}
				err = errs.Extractionf("script interrupted after %s", c.opts.timeout)
				return
			}
			panic(caught)
		}
	}()

	v, runErr := vm.Eval(src)
	if runErr != nil {
		return otto.Value{}, errs.ExtractionWrap(runErr, "script error")
	}
	return v, nil
}

func (c *Context) bind(vm *otto.Otto) error {
	bindings := map[string]any{
		"page":    c.page,
		"baseUrl": c.baseURL,
		"key":     c.key,
		"result":  c.result,
	}
	for name, value := range bindings {
		if err := vm.Set(name, value); err != nil {
			return errs.ExtractionWrap(err, "bind %s", name)
		}
	}
	if err := vm.Set("get", func(call otto.FunctionCall) otto.Value {
		name := call.Argument(0).String()
		v, _ := otto.ToValue(c.vars[name])
		return v
	}); err != nil {
		return errs.ExtractionWrap(err, "bind get")
	}
	// put returns its value so it can sit inline in a larger expression.
	if err := vm.Set("put", func(call otto.FunctionCall) otto.Value {
		name := call.Argument(0).String()
		val := call.Argument(1)
		c.vars[name] = valueString(val)
		return val
	}); err != nil {
		return errs.ExtractionWrap(err, "bind put")
	}
	return nil
}

func valueString(v otto.Value) string {
	if v.IsUndefined() || v.IsNull() {
		return ""
	}
	return v.String()
}
