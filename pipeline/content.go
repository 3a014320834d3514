package pipeline

import (
	"context"
	"strings"

	"github.com/windvane/booksource/errs"
	"github.com/windvane/booksource/rule"
	"github.com/windvane/booksource/source"
)

// ChapterContent runs the chapter-content stage. Sources that split a
// chapter over several pages expose a next-content URL; those continuation
// pages are fetched and appended until the trail ends, revisits itself,
// reaches the caller's next-chapter hint (nextChapterURL), or hits the page
// cap. The hint distinguishes "next page of this chapter" from "first page
// of the next chapter" — sites use the same link element for both.
func (x *Extractor) ChapterContent(ctx context.Context, src *source.Source, chapterURL, nextChapterURL string, vars map[string]string) (*Content, error) {
	rules := src.ContentRules
	if rules == nil {
		return nil, errs.Validationf("source %q has no content stage", src.Name)
	}

	sctx := x.newScriptContext(vars)
	ev := rule.NewEvaluator(sctx)

	var paragraphs []string
	var pending string
	visited := map[string]struct{}{}
	pageURL := chapterURL

	for pageCount := 0; pageCount < x.opts.maxContentPages; pageCount++ {
		pg, err := x.client.Fetch(ctx, src.BaseURL, pageURL, sctx, src.Headers)
		if err != nil {
			return nil, err
		}
		// track the resolved form; continuation candidates come back absolute
		visited[pg.RequestedURL] = struct{}{}
		sctx.SetBaseURL(pg.RequestedURL)
		root := rule.FromText(pg.Body)

		vals, err := ev.Strings(root, rules.Content)
		if err != nil {
			// the only field of a singleton stage; nothing to salvage
			return nil, err
		}
		for _, v := range vals {
			paragraphs = append(paragraphs, rules.Replace.Apply(v))
		}

		pending = x.nextURL(ev, root, rules.NextContentURL, pg)
		if pending == "" {
			break
		}
		if pending == nextChapterURL {
			// continuation link walked into the next chapter
			pending = ""
			break
		}
		if _, seen := visited[pending]; seen {
			pending = ""
			break
		}
		pageURL = pending
	}

	return &Content{
		Text:      formatParagraphs(paragraphs),
		NextURL:   strings.TrimSpace(pending),
		Variables: sctx.Vars(),
	}, nil
}
