package pipeline

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/windvane/booksource/errs"
	"github.com/windvane/booksource/fetch"
	"github.com/windvane/booksource/rule"
	"github.com/windvane/booksource/script"
	"github.com/windvane/booksource/source"
)

// batchPolicy is the index-guarded error policy for batch stages: a failed
// element is dropped, except that the first failure before anything has
// been collected is raised in debug mode so a broken rule set surfaces
// instead of quietly yielding nothing.
type batchPolicy struct {
	debug     bool
	collected int
}

func (p *batchPolicy) onFailure(err error) error {
	if p.collected == 0 && p.debug {
		return err
	}
	return nil
}

func (p *batchPolicy) onSuccess() {
	p.collected++
}

// Search runs the search stage for one page of one source.
func (x *Extractor) Search(ctx context.Context, src *source.Source, keyword string, page int, vars map[string]string) ([]*Book, error) {
	if src.SearchURL == "" || src.SearchRules == nil {
		return nil, errs.Validationf("source %q has no search stage", src.Name)
	}
	sctx := x.newScriptContext(vars)
	sctx.SetKey(keyword)
	sctx.SetPage(page)

	pg, err := x.client.Fetch(ctx, src.BaseURL, src.SearchURL, sctx, src.Headers)
	if err != nil {
		return nil, err
	}
	sctx.SetBaseURL(pg.RequestedURL)
	return x.listing(sctx, src.SearchRules, pg)
}

// Explore runs the explore stage for one category URL of one source. The
// URL template usually comes from one of the source's Explore entries.
func (x *Extractor) Explore(ctx context.Context, src *source.Source, exploreURL string, page int, vars map[string]string) ([]*Book, error) {
	if src.ExploreRules == nil {
		return nil, errs.Validationf("source %q has no explore stage", src.Name)
	}
	sctx := x.newScriptContext(vars)
	sctx.SetPage(page)

	pg, err := x.client.Fetch(ctx, src.BaseURL, exploreURL, sctx, src.Headers)
	if err != nil {
		return nil, err
	}
	sctx.SetBaseURL(pg.RequestedURL)
	return x.listing(sctx, src.ExploreRules, pg)
}

func (x *Extractor) listing(sctx *script.Context, rules *source.ListingRules, pg *fetch.Page) ([]*Book, error) {
	ev := rule.NewEvaluator(sctx)
	root := rule.FromText(pg.Body)

	els, err := ev.Elements(root, rules.BookList)
	if err != nil {
		return nil, err
	}

	books := make([]*Book, 0, len(els))
	policy := batchPolicy{debug: x.opts.debug}
	for i, el := range els {
		book, err := x.bookRecord(ev, el, rules, pg)
		if err != nil {
			x.opts.logger.Debug("listing element dropped",
				zap.Int("index", i), zap.Error(err))
			if perr := policy.onFailure(err); perr != nil {
				return nil, perr
			}
			continue
		}
		book.Variables = sctx.Vars()
		books = append(books, book)
		policy.onSuccess()
	}
	return books, nil
}

// bookRecord extracts one listing element. Identity fields (name, book
// URL) fail the record; optional fields fail only themselves.
func (x *Extractor) bookRecord(ev *rule.Evaluator, el *rule.Element, rules *source.ListingRules, pg *fetch.Page) (*Book, error) {
	name, err := ev.String(el, rules.Name)
	if err != nil {
		return nil, err
	}
	urls, err := ev.Strings(el, rules.BookURL)
	if err != nil {
		return nil, err
	}

	book := &Book{Name: formatBookName(name)}
	if len(urls) > 0 && strings.TrimSpace(urls[0]) != "" {
		// relative links resolve against the redirect target, not the
		// URL we asked for
		book.BookURL = joinURL(pg.FinalURL, urls[0])
	} else {
		book.BookURL = pg.RequestedURL
	}

	book.Author = formatAuthor(x.optString(ev, el, rules.Author, "author"))
	book.Kind = strings.TrimSpace(strings.Join(x.optStrings(ev, el, rules.Kind, "kind"), ","))
	book.CoverURL = joinURL(pg.FinalURL, x.optString(ev, el, rules.CoverURL, "coverUrl"))
	book.WordCount = formatWordCount(x.optString(ev, el, rules.WordCount, "wordCount"))
	book.Intro = formatHTML(x.optString(ev, el, rules.Intro, "intro"))
	book.LastChapter = strings.TrimSpace(x.optString(ev, el, rules.LastChapter, "lastChapter"))
	return book, nil
}

func (x *Extractor) optString(ev *rule.Evaluator, el *rule.Element, c *rule.Chain, field string) string {
	v, err := ev.String(el, c)
	if err != nil {
		x.opts.logger.Debug("optional field dropped",
			zap.String("field", field), zap.Error(err))
		return ""
	}
	return v
}

func (x *Extractor) optStrings(ev *rule.Evaluator, el *rule.Element, c *rule.Chain, field string) []string {
	vals, err := ev.Strings(el, c)
	if err != nil {
		x.opts.logger.Debug("optional field dropped",
			zap.String("field", field), zap.Error(err))
		return nil
	}
	return vals
}
