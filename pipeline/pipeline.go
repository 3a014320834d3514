// Package pipeline drives the five extraction stages against live pages:
// search, explore, book info, chapter list and chapter content. Every stage
// follows the same shape: resolve the URL, fetch, select, extract fields,
// normalize. Each invocation gets its own script context seeded from the
// caller's variable snapshot and serializes the final store back onto every
// record it emits.
package pipeline

import (
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/windvane/booksource/fetch"
	"github.com/windvane/booksource/script"
)

type options struct {
	debug           bool
	logger          *zap.Logger
	scriptTimeout   time.Duration
	maxTocPages     int
	maxContentPages int
}

var defaultOptions = options{
	logger:          zap.NewNop(),
	scriptTimeout:   1 * time.Second,
	maxTocPages:     100,
	maxContentPages: 10,
}

type Option func(opts *options)

// WithDebug raises the first element's extraction failure in batch stages
// instead of silently dropping it, surfacing systemic rule errors early.
func WithDebug(debug bool) Option {
	return func(opts *options) {
		opts.debug = debug
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(opts *options) {
		opts.logger = logger
	}
}

func WithScriptTimeout(d time.Duration) Option {
	return func(opts *options) {
		opts.scriptTimeout = d
	}
}

// WithTocPageCap bounds how many paginated chapter-list pages one call will
// follow.
func WithTocPageCap(n int) Option {
	return func(opts *options) {
		if n > 0 {
			opts.maxTocPages = n
		}
	}
}

// WithContentPageCap bounds how many continuation pages one chapter fetch
// will follow.
func WithContentPageCap(n int) Option {
	return func(opts *options) {
		if n > 0 {
			opts.maxContentPages = n
		}
	}
}

// Extractor runs stages for compiled sources. Safe for concurrent use; all
// per-invocation state lives in the script context created per call.
type Extractor struct {
	client *fetch.Client
	opts   options
}

func New(client *fetch.Client, opts ...Option) *Extractor {
	o := defaultOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &Extractor{client: client, opts: o}
}

func (x *Extractor) newScriptContext(vars map[string]string) *script.Context {
	sctx := script.NewContext(script.WithTimeout(x.opts.scriptTimeout))
	if len(vars) > 0 {
		sctx.SetVars(vars)
	}
	return sctx
}

// Book is one search or explore hit.
type Book struct {
	Name        string            `json:"name"`
	Author      string            `json:"author,omitempty"`
	Kind        string            `json:"kind,omitempty"`
	CoverURL    string            `json:"coverUrl,omitempty"`
	Intro       string            `json:"intro,omitempty"`
	LastChapter string            `json:"lastChapter,omitempty"`
	WordCount   string            `json:"wordCount,omitempty"`
	BookURL     string            `json:"bookUrl"`
	Variables   map[string]string `json:"variables,omitempty"`
}

// BookInfo is the singleton record of the book-info stage.
type BookInfo struct {
	Name        string            `json:"name,omitempty"`
	Author      string            `json:"author,omitempty"`
	Kind        string            `json:"kind,omitempty"`
	CoverURL    string            `json:"coverUrl,omitempty"`
	Intro       string            `json:"intro,omitempty"`
	LastChapter string            `json:"lastChapter,omitempty"`
	WordCount   string            `json:"wordCount,omitempty"`
	TocURL      string            `json:"tocUrl"`
	Variables   map[string]string `json:"variables,omitempty"`
}

// Chapter is one chapter-list entry, in reading order.
type Chapter struct {
	Name      string            `json:"name"`
	URL       string            `json:"url"`
	Variables map[string]string `json:"variables,omitempty"`
}

// Content is the singleton record of the chapter-content stage. Text is
// paragraph-delimited with newlines.
type Content struct {
	Text      string            `json:"text"`
	NextURL   string            `json:"nextUrl,omitempty"`
	Variables map[string]string `json:"variables,omitempty"`
}

// joinURL resolves ref against base, returning ref untouched when either
// side refuses to parse. Link joining is best effort; a garbled href is
// still better surfaced than dropped.
func joinURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
