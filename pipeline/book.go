package pipeline

import (
	"context"
	"strings"

	"github.com/windvane/booksource/rule"
	"github.com/windvane/booksource/source"
)

// BookInfo runs the book-info stage: a singleton extraction over the book's
// page. Field failures drop the field, never the record; the returned
// TocURL falls back to the input URL when the rule yields nothing, since a
// missing rule usually means the info page doubles as the chapter list.
func (x *Extractor) BookInfo(ctx context.Context, src *source.Source, bookURL string, vars map[string]string) (*BookInfo, error) {
	sctx := x.newScriptContext(vars)

	pg, err := x.client.Fetch(ctx, src.BaseURL, bookURL, sctx, src.Headers)
	if err != nil {
		return nil, err
	}
	sctx.SetBaseURL(pg.RequestedURL)

	info := &BookInfo{TocURL: bookURL}
	rules := src.InfoRules
	if rules == nil {
		info.Variables = sctx.Vars()
		return info, nil
	}

	ev := rule.NewEvaluator(sctx)
	root := rule.FromText(pg.Body)

	info.Name = formatBookName(x.optString(ev, root, rules.Name, "name"))
	info.Author = formatAuthor(x.optString(ev, root, rules.Author, "author"))
	info.Kind = strings.TrimSpace(strings.Join(x.optStrings(ev, root, rules.Kind, "kind"), ","))
	info.CoverURL = joinURL(pg.FinalURL, x.optString(ev, root, rules.CoverURL, "coverUrl"))
	info.Intro = formatHTML(x.optString(ev, root, rules.Intro, "intro"))
	info.LastChapter = strings.TrimSpace(x.optString(ev, root, rules.LastChapter, "lastChapter"))
	info.WordCount = formatWordCount(x.optString(ev, root, rules.WordCount, "wordCount"))

	if toc := strings.TrimSpace(x.optString(ev, root, rules.TocURL, "tocUrl")); toc != "" {
		info.TocURL = joinURL(pg.FinalURL, toc)
	}
	info.Variables = sctx.Vars()
	return info, nil
}
