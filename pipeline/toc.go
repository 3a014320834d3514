package pipeline

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/windvane/booksource/errs"
	"github.com/windvane/booksource/fetch"
	"github.com/windvane/booksource/rule"
	"github.com/windvane/booksource/source"
)

// ChapterList runs the chapter-list stage, following nextTocUrl pagination
// until the rule yields nothing new or the page cap is hit. Entries come
// back exactly in matched order; that order is the reading-order contract.
func (x *Extractor) ChapterList(ctx context.Context, src *source.Source, tocURL string, vars map[string]string) ([]*Chapter, error) {
	rules := src.TocRules
	if rules == nil {
		return nil, errs.Validationf("source %q has no chapter list stage", src.Name)
	}

	sctx := x.newScriptContext(vars)
	ev := rule.NewEvaluator(sctx)

	var chapters []*Chapter
	policy := batchPolicy{debug: x.opts.debug}
	visited := map[string]struct{}{}
	pageURL := tocURL

	for pageCount := 0; pageCount < x.opts.maxTocPages; pageCount++ {
		pg, err := x.client.Fetch(ctx, src.BaseURL, pageURL, sctx, src.Headers)
		if err != nil {
			return nil, err
		}
		// track the resolved form; pagination candidates come back absolute
		visited[pg.RequestedURL] = struct{}{}
		sctx.SetBaseURL(pg.RequestedURL)
		root := rule.FromText(pg.Body)

		els, err := ev.Elements(root, rules.ChapterList)
		if err != nil {
			return nil, err
		}
		for i, el := range els {
			ch, err := x.chapterRecord(ev, el, rules, pg)
			if err != nil {
				x.opts.logger.Debug("chapter element dropped",
					zap.Int("index", i), zap.Error(err))
				if perr := policy.onFailure(err); perr != nil {
					return nil, perr
				}
				continue
			}
			if ch == nil {
				continue
			}
			ch.Variables = sctx.Vars()
			chapters = append(chapters, ch)
			policy.onSuccess()
		}

		next := x.nextURL(ev, root, rules.NextTocURL, pg)
		if next == "" {
			break
		}
		if _, seen := visited[next]; seen {
			break
		}
		pageURL = next
	}
	return chapters, nil
}

// chapterRecord extracts one chapter entry. A nil return with nil error
// means the entry had no usable target URL and is skipped.
func (x *Extractor) chapterRecord(ev *rule.Evaluator, el *rule.Element, rules *source.TocRules, pg *fetch.Page) (*Chapter, error) {
	name, err := ev.String(el, rules.ChapterName)
	if err != nil {
		return nil, err
	}
	target, err := ev.String(el, rules.ChapterURL)
	if err != nil {
		return nil, err
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, nil
	}
	return &Chapter{
		Name: strings.TrimSpace(name),
		URL:  joinURL(pg.FinalURL, target),
	}, nil
}

// nextURL evaluates a pagination chain against the page root, joining the
// first non-empty candidate against the final URL.
func (x *Extractor) nextURL(ev *rule.Evaluator, root *rule.Element, c *rule.Chain, pg *fetch.Page) string {
	vals, err := ev.Strings(root, c)
	if err != nil {
		x.opts.logger.Debug("pagination rule failed", zap.Error(err))
		return ""
	}
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return joinURL(pg.FinalURL, v)
		}
	}
	return ""
}
