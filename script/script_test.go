package script

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windvane/booksource/errs"
)

func TestEval(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"arithmetic", "1+2", "3"},
		{"string concat", "'a'+'b'", "ab"},
		{"number stays integral", "(3-1)*20", "40"},
		{"undefined coerces to empty", "undefined", ""},
		{"null coerces to empty", "null", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := NewContext()
			got, err := ctx.Eval(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBindings(t *testing.T) {
	ctx := NewContext()
	ctx.SetPage(3)
	ctx.SetKey("三体")
	ctx.SetBaseURL("https://example.com/search")
	ctx.SetResult("  raw  ")

	got, err := ctx.Eval("page")
	require.NoError(t, err)
	assert.Equal(t, "3", got)

	got, err = ctx.Eval("key")
	require.NoError(t, err)
	assert.Equal(t, "三体", got)

	got, err = ctx.Eval("baseUrl")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/search", got)

	got, err = ctx.Eval("result.trim()")
	require.NoError(t, err)
	assert.Equal(t, "raw", got)
}

func TestPutGetRoundTrip(t *testing.T) {
	ctx := NewContext()

	// put returns its value, so it can be used inline
	got, err := ctx.Eval("put('token', 'abc123')")
	require.NoError(t, err)
	assert.Equal(t, "abc123", got)

	got, err = ctx.Eval("get('token')")
	require.NoError(t, err)
	assert.Equal(t, "abc123", got)

	// and the store is visible from the host side
	assert.Equal(t, "abc123", ctx.Get("token"))

	got, err = ctx.Eval("get('missing')")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestVarsSnapshotIsACopy(t *testing.T) {
	ctx := NewContext()
	ctx.Put("a", "1")

	snap := ctx.Vars()
	ctx.Put("a", "2")

	assert.Equal(t, "1", snap["a"])
	assert.Equal(t, "2", ctx.Get("a"))
}

func TestVarsEmptyIsNil(t *testing.T) {
	assert.Nil(t, NewContext().Vars())
}

func TestInterp(t *testing.T) {
	tests := []struct {
		name string
		tpl  string
		page int
		key  string
		want string
	}{
		{
			name: "no braces passes through",
			tpl:  "https://example.com/list",
			want: "https://example.com/list",
		},
		{
			name: "single segment",
			tpl:  "https://example.com/search?q={{key}}",
			key:  "dune",
			want: "https://example.com/search?q=dune",
		},
		{
			name: "expression segment",
			tpl:  "https://example.com/list?start={{(page-1)*20}}",
			page: 3,
			want: "https://example.com/list?start=40",
		},
		{
			name: "multiple segments",
			tpl:  "/s/{{key}}/p/{{page}}",
			page: 2,
			key:  "go",
			want: "/s/go/p/2",
		},
		{
			name: "unterminated braces emit as-is",
			tpl:  "/s?q={{key",
			key:  "go",
			want: "/s?q={{key",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := NewContext()
			ctx.SetPage(tt.page)
			ctx.SetKey(tt.key)
			got, err := ctx.Interp(tt.tpl)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInterpFuncEscapes(t *testing.T) {
	ctx := NewContext()
	ctx.SetKey("hello world")
	got, err := ctx.InterpFunc("https://example.com/s?q={{key}}", url.QueryEscape)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/s?q=hello+world", got)
}

func TestBlockedTokens(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{
			name: "clean script",
			src:  "key.trim() + page",
			want: nil,
		},
		{
			name: "java namespace",
			src:  "java.ajax(baseUrl)",
			want: []string{"java.ajax"},
		},
		{
			name: "several namespaces deduplicated",
			src:  "java.get(u); source.getVariable(); java.get(u); book.name",
			want: []string{"java.get", "source.getVariable", "book.name"},
		},
		{
			name: "cookie and cache",
			src:  "cookie.getCookie(u) + cache.get('k')",
			want: []string{"cookie.getCookie", "cache.get"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BlockedTokens(tt.src))
		})
	}
}

func TestEvalRejectsHostNamespaces(t *testing.T) {
	ctx := NewContext()
	_, err := ctx.Eval("java.ajax('https://example.com')")
	require.Error(t, err)
	assert.True(t, errs.IsUnsupported(err))

	var uerr *errs.UnsupportedFeatureError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, []string{"java.ajax"}, uerr.Tokens)
}

func TestRunawayScriptInterrupted(t *testing.T) {
	ctx := NewContext(WithTimeout(50 * time.Millisecond))
	start := time.Now()
	_, err := ctx.Eval("while(true){}")
	require.Error(t, err)
	assert.True(t, errs.IsExtraction(err))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestScriptErrorIsExtraction(t *testing.T) {
	ctx := NewContext()
	_, err := ctx.Eval("throw new Error('boom')")
	require.Error(t, err)
	assert.True(t, errs.IsExtraction(err))
}

func TestEvalExport(t *testing.T) {
	ctx := NewContext()
	got, err := ctx.EvalExport("['a','b','c']")
	require.NoError(t, err)
	switch arr := got.(type) {
	case []string:
		assert.Equal(t, []string{"a", "b", "c"}, arr)
	case []any:
		assert.Equal(t, []any{"a", "b", "c"}, arr)
	default:
		t.Fatalf("unexpected export type %T", got)
	}

	got, err = ctx.EvalExport("null")
	require.NoError(t, err)
	assert.Nil(t, got)
}
