// Package engine fans the search pipeline out across many compiled sources
// and drives whole-book downloads. Fan-out issues one task per source and
// isolates every failure to the source that caused it: a broken site or a
// broken rule set costs that one source its results, never the batch.
package engine

import (
	"context"
	"runtime/debug"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/windvane/booksource/errs"
	"github.com/windvane/booksource/pipeline"
	"github.com/windvane/booksource/source"
)

// SourceResult is one source's contribution to a fan-out search. A failed
// source carries its error and no books.
type SourceResult struct {
	Source *source.Source
	Books  []*pipeline.Book
	Err    error
}

type Engine struct {
	extractor *pipeline.Extractor
	options
}

func New(x *pipeline.Extractor, opts ...Option) *Engine {
	o := defaultOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &Engine{extractor: x, options: o}
}

// SearchStream runs the search stage once per source concurrently and
// delivers each source's result as soon as its task completes, in
// completion order. The channel closes after the last source reports;
// that close is the end-of-stream marker. Cancelling ctx releases any
// tasks still trying to deliver.
func (e *Engine) SearchStream(ctx context.Context, sources []*source.Source, keyword string, page int) <-chan *SourceResult {
	out := make(chan *SourceResult)

	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func(src *source.Source) {
			defer wg.Done()
			books, err := e.searchSource(ctx, src, keyword, page)
			select {
			case out <- &SourceResult{Source: src, Books: books, Err: err}:
			case <-ctx.Done():
			}
		}(src)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// SearchAll is the gather mode: it waits for every source's task and
// returns the per-source results in input order.
func (e *Engine) SearchAll(ctx context.Context, sources []*source.Source, keyword string, page int) []*SourceResult {
	results := make([]*SourceResult, len(sources))

	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src *source.Source) {
			defer wg.Done()
			books, err := e.searchSource(ctx, src, keyword, page)
			results[i] = &SourceResult{Source: src, Books: books, Err: err}
		}(i, src)
	}
	wg.Wait()
	return results
}

// searchSource walks one source's result pages sequentially, starting at
// page, requesting the next page only while the current one came back full.
// A panic anywhere below is confined to this source's task.
func (e *Engine) searchSource(ctx context.Context, src *source.Source, keyword string, page int) (books []*pipeline.Book, err error) {
	defer func() {
		if caught := recover(); caught != nil {
			e.Logger.Error("search task panic",
				zap.Any("err", caught),
				zap.String("stack", string(debug.Stack())))
			books = nil
			err = errs.Extractionf("search task panic: %v", caught)
		}
	}()

	if page < 1 {
		page = 1
	}
	for fetched := 0; fetched < e.MaxPages; fetched++ {
		hits, herr := e.extractor.Search(ctx, src, keyword, page, nil)
		if herr != nil {
			if len(books) == 0 {
				return nil, herr
			}
			// later pages are best effort once something has been found
			e.Logger.Debug("pagination stopped",
				zap.String("source", src.Name),
				zap.Int("page", page),
				zap.Error(herr))
			return books, nil
		}
		books = append(books, filterKeyword(hits, keyword)...)
		if len(hits) < e.MinPageResults {
			break
		}
		page++
	}
	return books, nil
}

// filterKeyword drops hits whose name and author both miss the keyword,
// case-insensitively. Single-character keywords are too ambiguous to
// re-validate client side; those trust the source's own ranking.
func filterKeyword(hits []*pipeline.Book, keyword string) []*pipeline.Book {
	if utf8.RuneCountInString(keyword) < 2 {
		return hits
	}
	kw := strings.ToLower(keyword)
	var kept []*pipeline.Book
	for _, h := range hits {
		if strings.Contains(strings.ToLower(h.Name), kw) ||
			strings.Contains(strings.ToLower(h.Author), kw) {
			kept = append(kept, h)
		}
	}
	return kept
}
