package source

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"sort"
	"strings"

	"github.com/windvane/booksource/errs"
	"github.com/windvane/booksource/rule"
)

// blacklist names the host-API tokens the sandbox refuses to honor. The
// scan runs over the serialized document, so a token is caught no matter
// which rule or header it hides in.
var blacklist = []string{
	"java.ajax",
	"java.get",
	"java.put",
	"java.post",
	"java.base64Encode",
	"java.base64Decode",
	"java.getString",
	"java.toast",
	"java.log",
	"java.timeFormat",
	"java.hexDecodeToString",
	"source.getVariable",
	"source.setVariable",
	"source.getLoginInfoMap",
	"source.variable",
}

// Compile turns a raw document into an executable Source. It fails with a
// ValidationError for structural problems and an UnsupportedFeatureError
// when the document depends on blacklisted host capabilities. Compilation
// is pure: the same bytes always compile to an identical Source.
func Compile(data []byte) (*Source, error) {
	doc, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(doc.Name) == "" {
		return nil, errs.Validationf("source document missing bookSourceName")
	}
	if strings.TrimSpace(doc.URL) == "" {
		return nil, errs.Validationf("source document missing bookSourceUrl")
	}
	if tokens := scanBlacklist(string(data)); len(tokens) > 0 {
		return nil, errs.Unsupported(tokens...)
	}

	baseURL, err := normalizeBaseURL(doc.URL)
	if err != nil {
		return nil, err
	}
	headers, err := parseHeader(doc.Header)
	if err != nil {
		return nil, err
	}
	explore, err := ParseExplore(doc.ExploreURL)
	if err != nil {
		return nil, err
	}

	src := &Source{
		Name:        strings.TrimSpace(doc.Name),
		BaseURL:     baseURL,
		Group:       doc.Group,
		Comment:     doc.Comment,
		LoginURL:    doc.LoginURL,
		CustomOrder: doc.CustomOrder,
		Weight:      doc.Weight,
		Enabled:     doc.Enabled == nil || *doc.Enabled,
		ExploreOn:   doc.ExploreOn == nil || *doc.ExploreOn,
		Headers:     headers,
		SearchURL:   doc.SearchURL,
		ExploreURL:  doc.ExploreURL,
		Explore:     explore,
		Fingerprint: Fingerprint(data),
	}

	if src.SearchRules, err = compileListing(doc.RuleSearch); err != nil {
		return nil, err
	}
	if src.ExploreRules, err = compileListing(doc.RuleExplore); err != nil {
		return nil, err
	}
	if src.InfoRules, err = compileBookInfo(doc.RuleBookInfo); err != nil {
		return nil, err
	}
	if src.TocRules, err = compileToc(doc.RuleToc); err != nil {
		return nil, err
	}
	if src.ContentRules, err = compileContent(doc.RuleContent); err != nil {
		return nil, err
	}
	return src, nil
}

// CompileDocument compiles an already-decoded document via its canonical
// encoding, so the fingerprint and blacklist scan see the same bytes a
// stored document would.
func CompileDocument(doc *Document) (*Source, error) {
	data, err := doc.Marshal()
	if err != nil {
		return nil, err
	}
	return Compile(data)
}

// Fingerprint is the identity hash of a raw document, the same value the
// compiled Source carries. Callers use it to detect document edits without
// recompiling.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// scanBlacklist returns the blacklisted tokens present in text, ordered by
// first occurrence.
func scanBlacklist(text string) []string {
	type hit struct {
		token string
		pos   int
	}
	var hits []hit
	for _, token := range blacklist {
		if pos := strings.Index(text, token); pos >= 0 {
			hits = append(hits, hit{token: token, pos: pos})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.token
	}
	return out
}

func normalizeBaseURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", errs.ValidationWrap(err, "bookSourceUrl %q", raw)
	}
	if !u.IsAbs() {
		return "", errs.Validationf("bookSourceUrl %q is not absolute", raw)
	}
	u.Fragment = ""
	return u.String(), nil
}

// parseHeader accepts the two header encodings found in the wild: a JSON
// object, or a JSON string containing a JSON object.
func parseHeader(raw json.RawMessage) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	data := []byte(strings.TrimSpace(string(raw)))
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return nil, errs.ValidationWrap(err, "header")
		}
		inner = strings.TrimSpace(inner)
		if inner == "" {
			return nil, nil
		}
		data = []byte(inner)
	}
	var headers map[string]string
	if err := json.Unmarshal(data, &headers); err != nil {
		return nil, errs.ValidationWrap(err, "header")
	}
	if len(headers) == 0 {
		return nil, nil
	}
	return headers, nil
}

// ParseExplore parses the explore URL field into its category entries. Two
// encodings are accepted: a JSON array of {title,url} objects, or text
// entries separated by newlines or && with each entry written Title::URL.
func ParseExplore(raw string) ([]ExploreEntry, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if raw[0] == '[' {
		var entries []ExploreEntry
		if err := json.Unmarshal([]byte(raw), &entries); err != nil {
			return nil, errs.ValidationWrap(err, "exploreUrl")
		}
		return entries, nil
	}
	var entries []ExploreEntry
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == '\n' }) {
		for _, item := range strings.Split(part, "&&") {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			title, target, found := strings.Cut(item, "::")
			if !found {
				entries = append(entries, ExploreEntry{Title: item, URL: item})
				continue
			}
			entries = append(entries, ExploreEntry{
				Title: strings.TrimSpace(title),
				URL:   strings.TrimSpace(target),
			})
		}
	}
	return entries, nil
}

func compileListing(doc *ListingRuleDoc) (*ListingRules, error) {
	if doc == nil {
		return nil, nil
	}
	var (
		r   ListingRules
		err error
	)
	if r.BookList, err = parseField("bookList", doc.BookList); err != nil {
		return nil, err
	}
	if r.Name, err = parseField("name", doc.Name); err != nil {
		return nil, err
	}
	if r.Author, err = parseField("author", doc.Author); err != nil {
		return nil, err
	}
	if r.Kind, err = parseField("kind", doc.Kind); err != nil {
		return nil, err
	}
	if r.CoverURL, err = parseField("coverUrl", doc.CoverURL); err != nil {
		return nil, err
	}
	if r.Intro, err = parseField("intro", doc.Intro); err != nil {
		return nil, err
	}
	if r.LastChapter, err = parseField("lastChapter", doc.LastChapter); err != nil {
		return nil, err
	}
	if r.WordCount, err = parseField("wordCount", doc.WordCount); err != nil {
		return nil, err
	}
	if r.BookURL, err = parseField("bookUrl", doc.BookURL); err != nil {
		return nil, err
	}
	return &r, nil
}

func compileBookInfo(doc *BookInfoDoc) (*BookInfoRules, error) {
	if doc == nil {
		return nil, nil
	}
	var (
		r   BookInfoRules
		err error
	)
	if r.Name, err = parseField("name", doc.Name); err != nil {
		return nil, err
	}
	if r.Author, err = parseField("author", doc.Author); err != nil {
		return nil, err
	}
	if r.Kind, err = parseField("kind", doc.Kind); err != nil {
		return nil, err
	}
	if r.CoverURL, err = parseField("coverUrl", doc.CoverURL); err != nil {
		return nil, err
	}
	if r.Intro, err = parseField("intro", doc.Intro); err != nil {
		return nil, err
	}
	if r.LastChapter, err = parseField("lastChapter", doc.LastChapter); err != nil {
		return nil, err
	}
	if r.WordCount, err = parseField("wordCount", doc.WordCount); err != nil {
		return nil, err
	}
	if r.TocURL, err = parseField("tocUrl", doc.TocURL); err != nil {
		return nil, err
	}
	return &r, nil
}

func compileToc(doc *TocDoc) (*TocRules, error) {
	if doc == nil {
		return nil, nil
	}
	var (
		r   TocRules
		err error
	)
	if r.ChapterList, err = parseField("chapterList", doc.ChapterList); err != nil {
		return nil, err
	}
	if r.ChapterName, err = parseField("chapterName", doc.ChapterName); err != nil {
		return nil, err
	}
	if r.ChapterURL, err = parseField("chapterUrl", doc.ChapterURL); err != nil {
		return nil, err
	}
	if r.NextTocURL, err = parseField("nextTocUrl", doc.NextTocURL); err != nil {
		return nil, err
	}
	return &r, nil
}

func compileContent(doc *ContentDoc) (*ContentRules, error) {
	if doc == nil {
		return nil, nil
	}
	var (
		r   ContentRules
		err error
	)
	if r.Content, err = parseField("content", doc.Content); err != nil {
		return nil, err
	}
	if r.NextContentURL, err = parseField("nextContentUrl", doc.NextContentURL); err != nil {
		return nil, err
	}
	if r.Replace, err = rule.ParseRewrite(doc.ReplaceRegex); err != nil {
		return nil, errs.ValidationWrap(err, "rule replaceRegex")
	}
	return &r, nil
}

func parseField(field, raw string) (*rule.Chain, error) {
	c, err := rule.Parse(raw)
	if err != nil {
		return nil, errs.ValidationWrap(err, "rule %s", field)
	}
	return c, nil
}
