package pipeline

import (
	"html"
	"regexp"
	"strconv"
	"strings"
)

// Field normalizers, applied as the final pass after raw extraction for
// every stage that emits the field.

var (
	spaceRun     = regexp.MustCompile(`[\s\x{3000}]+`)
	authorPrefix = regexp.MustCompile(`^(?:作\s*者[:：\s]*|author[:：\s]+)`)
	authorSuffix = regexp.MustCompile(`(?:著|着)\s*$`)
	wordCountNum = regexp.MustCompile(`([0-9]+(?:[.,][0-9]+)?)\s*(万|萬|[kK])?\s*字?`)
	tagPattern   = regexp.MustCompile(`(?is)<[^>]*>`)
	brPattern    = regexp.MustCompile(`(?i)<br\s*/?>`)
)

// formatBookName trims decorations commonly pasted around titles: book
// quotes, surrounding whitespace, runs of inner whitespace.
func formatBookName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "《》")
	s = spaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// formatAuthor canonicalizes author strings: drops the 作者 label, the
// trailing 著 honorific and collapses whitespace.
func formatAuthor(s string) string {
	s = strings.TrimSpace(s)
	s = authorPrefix.ReplaceAllString(s, "")
	s = authorSuffix.ReplaceAllString(s, "")
	s = spaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// formatWordCount normalizes counts to a bare digit string: "12.5万字"
// becomes "125000", "380k" becomes "380000", "120,000" becomes "120000".
// Values with no recognizable number pass through trimmed.
func formatWordCount(s string) string {
	s = strings.TrimSpace(s)
	m := wordCountNum.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	num := strings.ReplaceAll(m[1], ",", "")
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return s
	}
	switch m[2] {
	case "万", "萬":
		f *= 10000
	case "k", "K":
		f *= 1000
	}
	return strconv.FormatInt(int64(f), 10)
}

// formatHTML strips markup from intro-style fields: <br> becomes a line
// break, other tags disappear, entities are unescaped, and blank lines are
// dropped.
func formatHTML(s string) string {
	s = brPattern.ReplaceAllString(s, "\n")
	s = tagPattern.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// formatParagraphs normalizes chapter text into paragraph-delimited form:
// every extracted value is split on newlines, trimmed, blanks dropped.
func formatParagraphs(vals []string) string {
	var out []string
	for _, v := range vals {
		for _, line := range strings.Split(v, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				out = append(out, line)
			}
		}
	}
	return strings.Join(out, "\n")
}
