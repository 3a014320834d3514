// Package source decodes book source documents and compiles them into
// executable rule sets. A document is the JSON description users exchange;
// a Source is its validated, pre-classified form, compiled once and shared
// by every pipeline run.
package source

import (
	"bytes"
	"encoding/json"

	"github.com/windvane/booksource/errs"
)

// Document is the raw JSON shape of one book source. Field names follow the
// interchange format; unknown fields are ignored so documents exported by
// other tools still decode.
type Document struct {
	Name      string `json:"bookSourceName"`
	URL       string `json:"bookSourceUrl"`
	Group     string `json:"bookSourceGroup,omitempty"`
	Comment   string `json:"bookSourceComment,omitempty"`
	Type        int    `json:"bookSourceType,omitempty"`
	LoginURL    string `json:"loginUrl,omitempty"`
	CustomOrder int    `json:"customOrder,omitempty"`
	Weight      int    `json:"weight,omitempty"`
	Enabled     *bool  `json:"enabled,omitempty"`
	ExploreOn   *bool  `json:"enabledExplore,omitempty"`

	Header     json.RawMessage `json:"header,omitempty"`
	SearchURL  string          `json:"searchUrl,omitempty"`
	ExploreURL string          `json:"exploreUrl,omitempty"`

	RuleSearch   *ListingRuleDoc `json:"ruleSearch,omitempty"`
	RuleExplore  *ListingRuleDoc `json:"ruleExplore,omitempty"`
	RuleBookInfo *BookInfoDoc    `json:"ruleBookInfo,omitempty"`
	RuleToc      *TocDoc         `json:"ruleToc,omitempty"`
	RuleContent  *ContentDoc     `json:"ruleContent,omitempty"`
}

// ListingRuleDoc holds the raw rules shared by the search and explore
// stages.
type ListingRuleDoc struct {
	BookList    string `json:"bookList,omitempty"`
	Name        string `json:"name,omitempty"`
	Author      string `json:"author,omitempty"`
	Kind        string `json:"kind,omitempty"`
	CoverURL    string `json:"coverUrl,omitempty"`
	Intro       string `json:"intro,omitempty"`
	LastChapter string `json:"lastChapter,omitempty"`
	WordCount   string `json:"wordCount,omitempty"`
	BookURL     string `json:"bookUrl,omitempty"`
}

type BookInfoDoc struct {
	Name        string `json:"name,omitempty"`
	Author      string `json:"author,omitempty"`
	Kind        string `json:"kind,omitempty"`
	CoverURL    string `json:"coverUrl,omitempty"`
	Intro       string `json:"intro,omitempty"`
	LastChapter string `json:"lastChapter,omitempty"`
	WordCount   string `json:"wordCount,omitempty"`
	TocURL      string `json:"tocUrl,omitempty"`
}

type TocDoc struct {
	ChapterList string `json:"chapterList,omitempty"`
	ChapterName string `json:"chapterName,omitempty"`
	ChapterURL  string `json:"chapterUrl,omitempty"`
	NextTocURL  string `json:"nextTocUrl,omitempty"`
}

type ContentDoc struct {
	Content        string `json:"content,omitempty"`
	NextContentURL string `json:"nextContentUrl,omitempty"`
	ReplaceRegex   string `json:"replaceRegex,omitempty"`
}

// Decode parses a single document.
func Decode(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errs.ValidationWrap(err, "decode source document")
	}
	return &doc, nil
}

// DecodeList parses either a JSON array of documents or a single document,
// the two shapes import files come in.
func DecodeList(data []byte) ([]*Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errs.Validationf("empty source document")
	}
	if trimmed[0] == '[' {
		var docs []*Document
		if err := json.Unmarshal(trimmed, &docs); err != nil {
			return nil, errs.ValidationWrap(err, "decode source list")
		}
		return docs, nil
	}
	doc, err := Decode(trimmed)
	if err != nil {
		return nil, err
	}
	return []*Document{doc}, nil
}

// Marshal re-encodes the document in its canonical form.
func (d *Document) Marshal() ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, errs.ValidationWrap(err, "encode source document")
	}
	return data, nil
}
