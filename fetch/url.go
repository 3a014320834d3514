// Package fetch resolves rule URL templates and retrieves pages with the
// compiled source's headers, decoding bodies to UTF-8 on the way in.
package fetch

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/windvane/booksource/errs"
	"github.com/windvane/booksource/script"
)

// Target is a fully resolved request: the URL plus the request options a
// template may carry in its trailing ,{...} block.
type Target struct {
	URL     string
	Method  string
	Body    string
	Headers map[string]string
	Charset string
}

type urlOptions struct {
	Method  string            `json:"method"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
	Charset string            `json:"charset"`
}

// Resolve builds a Target from a URL template: the base URL's fragment is
// dropped, {{...}} segments are evaluated with their values query-escaped,
// and the result is joined to the base per relative-URL rules. A trailing
// ,{...} options block selects method, body, extra headers and charset.
func Resolve(base, template string, ctx *script.Context) (*Target, error) {
	baseURL, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return nil, errs.Fetch(base, err)
	}
	baseURL.Fragment = ""

	rawURL, rawOpts := splitOptions(strings.TrimSpace(template))

	evaled, err := ctx.InterpFunc(rawURL, url.QueryEscape)
	if err != nil {
		return nil, err
	}
	ref, err := url.Parse(evaled)
	if err != nil {
		return nil, errs.Fetch(evaled, err)
	}

	target := &Target{
		URL:    baseURL.ResolveReference(ref).String(),
		Method: "GET",
	}
	if rawOpts == "" {
		return target, nil
	}

	var opts urlOptions
	if err := json.Unmarshal([]byte(rawOpts), &opts); err != nil {
		return nil, errs.ValidationWrap(err, "url options %q", rawOpts)
	}
	if opts.Method != "" {
		target.Method = strings.ToUpper(opts.Method)
	}
	if opts.Body != "" {
		body, err := ctx.Interp(opts.Body)
		if err != nil {
			return nil, err
		}
		target.Body = body
	}
	target.Headers = opts.Headers
	target.Charset = opts.Charset
	return target, nil
}

// splitOptions cuts the trailing ,{...} options block off a template,
// ignoring any ,{ that sits inside a {{...}} expression.
func splitOptions(template string) (string, string) {
	depth := 0
	for i := 0; i+1 < len(template); i++ {
		switch {
		case template[i] == '{' && template[i+1] == '{':
			depth++
			i++
		case template[i] == '}' && template[i+1] == '}':
			if depth > 0 {
				depth--
			}
			i++
		case depth == 0 && template[i] == ',' && template[i+1] == '{':
			return template[:i], strings.TrimSpace(template[i+1:])
		}
	}
	return template, ""
}
