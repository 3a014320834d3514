package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windvane/booksource/errs"
)

func TestParseClassification(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Kind
	}{
		{"xpath marker", "@XPath://div[@class='book']//a", KindXPath},
		{"bare xpath", "//div[@class='book']//a/@href", KindXPath},
		{"json marker", "@Json:$.data.name", KindJSONPath},
		{"bare jsonpath dot", "$.data.books[*]", KindJSONPath},
		{"bare jsonpath bracket", "$[0].name", KindJSONPath},
		{"regex", ":([0-9]+)", KindRegex},
		{"script marker", "@js:1+1", KindScript},
		{"script block", "<js>1+1</js>", KindScript},
		{"css marker", "@CSS:div.book@text", KindCSS},
		{"css by class cue", "div.book", KindCSS},
		{"css by step cue", "a@href", KindCSS},
		{"css by id cue", "#content", KindCSS},
		{"css by child cue", "ul > li", KindCSS},
		{"interpolated literal", "{{key}}", KindLiteral},
		{"interpolated literal with spaces", "prefix {{page}} suffix", KindLiteral},
		{"bare word literal", "ongoing", KindLiteral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse(tt.raw)
			require.NoError(t, err)
			require.Len(t, c.Exprs, 1)
			assert.Equal(t, tt.want, c.Exprs[0].Kind)
		})
	}
}

func TestParseEmptyRule(t *testing.T) {
	c, err := Parse("   ")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestParseAlternation(t *testing.T) {
	c, err := Parse("//a||div.book@text||@js:key")
	require.NoError(t, err)
	require.Len(t, c.Exprs, 3)
	assert.Equal(t, "xpath,css,script", c.Kinds())
}

func TestParseAlternationProtectedRegions(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantExprs int
	}{
		{"pipes inside interpolation", "{{a||b}}", 1},
		{"pipes after post-script marker", "a@text@js:x||y", 1},
		{"pipes after closed script block", "<js>a||b</js>||ongoing", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse(tt.raw)
			require.NoError(t, err)
			assert.Len(t, c.Exprs, tt.wantExprs)
		})
	}
}

func TestParsePostScript(t *testing.T) {
	c, err := Parse("div.book@a@text@js:result.trim()")
	require.NoError(t, err)
	require.Len(t, c.Exprs, 1)
	e := c.Exprs[0]
	assert.Equal(t, KindCSS, e.Kind)
	assert.Equal(t, []string{"div.book", "a", "text"}, e.Steps)
	assert.Equal(t, "result.trim()", e.PostScript)
}

func TestParsePostScriptBlockForm(t *testing.T) {
	c, err := Parse("div.book@a@text<js>result.trim()</js>")
	require.NoError(t, err)
	require.Len(t, c.Exprs, 1)
	e := c.Exprs[0]
	assert.Equal(t, KindCSS, e.Kind)
	assert.Equal(t, "result.trim()", e.PostScript)
}

func TestParseRewrite(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantPattern string
		wantReplace string
	}{
		{"strip", `a@text##\s+`, `\s+`, ""},
		{"replace", "a@href##^http:##https:", "^http:", "https:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse(tt.raw)
			require.NoError(t, err)
			require.Len(t, c.Exprs, 1)
			e := c.Exprs[0]
			require.NotNil(t, e.Pattern)
			assert.Equal(t, tt.wantPattern, e.Pattern.String())
			assert.Equal(t, tt.wantReplace, e.Replace)
		})
	}
}

func TestParseRewriteStandalone(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		in   string
		want string
	}{
		{"empty", "", "text", "text"},
		{"bare pattern strips", `广告`, "广告正文", "正文"},
		{"marked pattern strips", `##广告`, "广告正文", "正文"},
		{"pattern and replacement", "##http:##https:", "http://x", "https://x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rw, err := ParseRewrite(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, rw.Apply(tt.in))
		})
	}

	_, err := ParseRewrite("##[##")
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))
}

func TestParseValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"bad rewrite regex", "a@text##["},
		{"bad regex rule", ":["},
		{"bad xpath", "//a["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw)
			require.Error(t, err)
			assert.True(t, errs.IsValidation(err))
		})
	}
}

func TestMustParsePanicsOnBadRule(t *testing.T) {
	assert.Panics(t, func() { MustParse(":[") })
}
