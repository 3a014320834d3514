package engine

import (
	"go.uber.org/zap"

	"github.com/windvane/booksource/limiter"
)

type Option func(opts *options)

type options struct {
	Logger         *zap.Logger
	MaxPages       int
	MinPageResults int
	DownloadDir    string
	FlushEvery     int
	Pacer          limiter.RateLimiter
	Store          ProgressStore
}

var defaultOptions = options{
	Logger:         zap.NewNop(),
	MaxPages:       3,
	MinPageResults: 5,
	DownloadDir:    "downloads",
	FlushEvery:     10,
}

func WithLogger(logger *zap.Logger) Option {
	return func(opts *options) {
		opts.Logger = logger
	}
}

// WithMaxPages caps how many result pages one source's search task walks.
func WithMaxPages(n int) Option {
	return func(opts *options) {
		if n > 0 {
			opts.MaxPages = n
		}
	}
}

// WithMinPageResults sets the page size below which pagination assumes the
// source has run out of results.
func WithMinPageResults(n int) Option {
	return func(opts *options) {
		if n > 0 {
			opts.MinPageResults = n
		}
	}
}

func WithDownloadDir(dir string) Option {
	return func(opts *options) {
		opts.DownloadDir = dir
	}
}

// WithFlushEvery sets how many downloaded chapters pass between progress
// checkpoints to the store.
func WithFlushEvery(n int) Option {
	return func(opts *options) {
		if n > 0 {
			opts.FlushEvery = n
		}
	}
}

func WithPacer(l limiter.RateLimiter) Option {
	return func(opts *options) {
		opts.Pacer = l
	}
}

func WithProgressStore(s ProgressStore) Option {
	return func(opts *options) {
		opts.Store = s
	}
}
