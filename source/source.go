package source

import (
	"github.com/windvane/booksource/rule"
)

// Source is a compiled book source: identity, normalized base URL, parsed
// headers, and one compiled rule set per stage. Immutable once built;
// recompile when the underlying document changes.
type Source struct {
	Name        string
	BaseURL     string
	Group       string
	Comment     string
	LoginURL    string
	CustomOrder int
	Weight      int
	Enabled     bool
	ExploreOn   bool
	Headers     map[string]string
	SearchURL   string
	ExploreURL  string
	Explore     []ExploreEntry
	Fingerprint string

	SearchRules  *ListingRules
	ExploreRules *ListingRules
	InfoRules    *BookInfoRules
	TocRules     *TocRules
	ContentRules *ContentRules
}

// ExploreEntry is one discover category: a display title and a URL
// template.
type ExploreEntry struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// ListingRules drive the search and explore stages.
type ListingRules struct {
	BookList    *rule.Chain
	Name        *rule.Chain
	Author      *rule.Chain
	Kind        *rule.Chain
	CoverURL    *rule.Chain
	Intro       *rule.Chain
	LastChapter *rule.Chain
	WordCount   *rule.Chain
	BookURL     *rule.Chain
}

type BookInfoRules struct {
	Name        *rule.Chain
	Author      *rule.Chain
	Kind        *rule.Chain
	CoverURL    *rule.Chain
	Intro       *rule.Chain
	LastChapter *rule.Chain
	WordCount   *rule.Chain
	TocURL      *rule.Chain
}

type TocRules struct {
	ChapterList *rule.Chain
	ChapterName *rule.Chain
	ChapterURL  *rule.Chain
	NextTocURL  *rule.Chain
}

type ContentRules struct {
	Content        *rule.Chain
	NextContentURL *rule.Chain
	Replace        *rule.Rewrite
}

// Inspect reports each compiled field's selector language(s) per stage, for
// the source debugging endpoint. Absent fields are omitted.
func (s *Source) Inspect() map[string]map[string]string {
	out := map[string]map[string]string{}
	add := func(stage, field string, c *rule.Chain) {
		if c == nil {
			return
		}
		m, ok := out[stage]
		if !ok {
			m = map[string]string{}
			out[stage] = m
		}
		m[field] = c.Kinds()
	}
	if r := s.SearchRules; r != nil {
		addListing(add, "search", r)
	}
	if r := s.ExploreRules; r != nil {
		addListing(add, "explore", r)
	}
	if r := s.InfoRules; r != nil {
		add("bookInfo", "name", r.Name)
		add("bookInfo", "author", r.Author)
		add("bookInfo", "kind", r.Kind)
		add("bookInfo", "coverUrl", r.CoverURL)
		add("bookInfo", "intro", r.Intro)
		add("bookInfo", "lastChapter", r.LastChapter)
		add("bookInfo", "wordCount", r.WordCount)
		add("bookInfo", "tocUrl", r.TocURL)
	}
	if r := s.TocRules; r != nil {
		add("toc", "chapterList", r.ChapterList)
		add("toc", "chapterName", r.ChapterName)
		add("toc", "chapterUrl", r.ChapterURL)
		add("toc", "nextTocUrl", r.NextTocURL)
	}
	if r := s.ContentRules; r != nil {
		add("content", "content", r.Content)
		add("content", "nextContentUrl", r.NextContentURL)
	}
	return out
}

func addListing(add func(string, string, *rule.Chain), stage string, r *ListingRules) {
	add(stage, "bookList", r.BookList)
	add(stage, "name", r.Name)
	add(stage, "author", r.Author)
	add(stage, "kind", r.Kind)
	add(stage, "coverUrl", r.CoverURL)
	add(stage, "intro", r.Intro)
	add(stage, "lastChapter", r.LastChapter)
	add(stage, "wordCount", r.WordCount)
	add(stage, "bookUrl", r.BookURL)
}
