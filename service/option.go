package service

import (
	"go.uber.org/zap"

	"github.com/windvane/booksource/fetch"
	"github.com/windvane/booksource/pipeline"
	"github.com/windvane/booksource/store"
)

type Option func(opts *options)

type options struct {
	Logger    *zap.Logger
	Sources   SourceStore
	Library   LibraryStore
	Cache     *store.CompiledCache
	Extractor *pipeline.Extractor
	Searcher  Searcher
	Downloads DownloadManager
	Fetcher   *fetch.Client
}

var defaultOptions = options{
	Logger: zap.NewNop(),
}

func WithLogger(logger *zap.Logger) Option {
	return func(opts *options) {
		opts.Logger = logger
	}
}

func WithSourceStore(s SourceStore) Option {
	return func(opts *options) {
		opts.Sources = s
	}
}

func WithLibraryStore(l LibraryStore) Option {
	return func(opts *options) {
		opts.Library = l
	}
}

func WithCache(c *store.CompiledCache) Option {
	return func(opts *options) {
		opts.Cache = c
	}
}

func WithExtractor(x *pipeline.Extractor) Option {
	return func(opts *options) {
		opts.Extractor = x
	}
}

func WithSearcher(s Searcher) Option {
	return func(opts *options) {
		opts.Searcher = s
	}
}

func WithDownloadManager(d DownloadManager) Option {
	return func(opts *options) {
		opts.Downloads = d
	}
}

func WithFetcher(c *fetch.Client) Option {
	return func(opts *options) {
		opts.Fetcher = c
	}
}
