package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windvane/booksource/fetch"
	"github.com/windvane/booksource/source"
)

func compileTestSource(t *testing.T, baseURL, docTemplate string) *source.Source {
	t.Helper()
	src, err := source.Compile([]byte(fmt.Sprintf(docTemplate, baseURL)))
	require.NoError(t, err)
	return src
}

const searchDoc = `{
  "bookSourceName": "T",
  "bookSourceUrl": "%s",
  "searchUrl": "/search?q={{key}}&p={{page}}",
  "ruleSearch": {
    "bookList": "div.book",
    "name": "a@text",
    "author": "span.author@text",
    "bookUrl": "a@href",
    "coverUrl": "img@src",
    "wordCount": "span.wc@text"
  }
}`

func searchPage(n int, badIndex int) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("Book %d", i+1)
		if i == badIndex {
			name = "BAD"
		}
		fmt.Fprintf(&b, `<div class="book"><a href="/b/%d.html">%s</a>`+
			`<span class="author">Author %d</span>`+
			`<img src="/c/%d.jpg"/><span class="wc">%d万字</span></div>`,
			i+1, name, i+1, i+1, i+1)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "dune", r.URL.Query().Get("q"))
		assert.Equal(t, "1", r.URL.Query().Get("p"))
		_, _ = io.WriteString(w, searchPage(2, -1))
	}))
	defer srv.Close()

	src := compileTestSource(t, srv.URL, searchDoc)
	x := New(fetch.NewClient())

	books, err := x.Search(context.Background(), src, "dune", 1, nil)
	require.NoError(t, err)
	require.Len(t, books, 2)

	assert.Equal(t, "Book 1", books[0].Name)
	assert.Equal(t, "Author 1", books[0].Author)
	assert.Equal(t, srv.URL+"/b/1.html", books[0].BookURL)
	assert.Equal(t, srv.URL+"/c/1.jpg", books[0].CoverURL)
	assert.Equal(t, "10000", books[0].WordCount)
	assert.Equal(t, "Book 2", books[1].Name)
}

const throwingNameDoc = `{
  "bookSourceName": "T",
  "bookSourceUrl": "%s",
  "searchUrl": "/search",
  "ruleSearch": {
    "bookList": "div.book",
    "name": "a@text@js:if (result==='BAD') { boom(); }; result",
    "bookUrl": "a@href"
  }
}`

func TestSearchDropsElementWhosePostScriptThrows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, searchPage(10, 4))
	}))
	defer srv.Close()

	src := compileTestSource(t, srv.URL, throwingNameDoc)
	x := New(fetch.NewClient())

	books, err := x.Search(context.Background(), src, "book", 1, nil)
	require.NoError(t, err)
	require.Len(t, books, 9, "exactly the throwing element is omitted")
	for _, b := range books {
		assert.NotEqual(t, "BAD", b.Name)
	}
}

func TestSearchDebugRaisesFirstElementFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, searchPage(10, 0))
	}))
	defer srv.Close()

	src := compileTestSource(t, srv.URL, throwingNameDoc)

	// non-debug: first element dropped like any other
	books, err := New(fetch.NewClient()).Search(context.Background(), src, "book", 1, nil)
	require.NoError(t, err)
	assert.Len(t, books, 9)

	// debug: the same failure surfaces
	_, err = New(fetch.NewClient(), WithDebug(true)).Search(context.Background(), src, "book", 1, nil)
	require.Error(t, err)
}

func TestSearchDebugForgivesLaterFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, searchPage(10, 4))
	}))
	defer srv.Close()

	src := compileTestSource(t, srv.URL, throwingNameDoc)
	books, err := New(fetch.NewClient(), WithDebug(true)).Search(context.Background(), src, "book", 1, nil)
	require.NoError(t, err, "debug only escalates before anything is collected")
	assert.Len(t, books, 9)
}

const noHrefDoc = `{
  "bookSourceName": "T",
  "bookSourceUrl": "%s",
  "searchUrl": "/search",
  "ruleSearch": {
    "bookList": "div.book",
    "name": "b@text",
    "bookUrl": "a@href"
  }
}`

func TestSearchBookURLFallsBackToRequestedURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html><body><div class="book"><b>Linkless</b></div></body></html>`)
	}))
	defer srv.Close()

	src := compileTestSource(t, srv.URL, noHrefDoc)
	books, err := New(fetch.NewClient()).Search(context.Background(), src, "x", 1, nil)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, "Linkless", books[0].Name)
	assert.Equal(t, srv.URL+"/search", books[0].BookURL)
}

func TestSearchWithoutStage(t *testing.T) {
	src, err := source.Compile([]byte(`{"bookSourceName":"T","bookSourceUrl":"https://t.example.com"}`))
	require.NoError(t, err)
	_, err = New(fetch.NewClient()).Search(context.Background(), src, "x", 1, nil)
	require.Error(t, err)
}

const exploreDoc = `{
  "bookSourceName": "T",
  "bookSourceUrl": "%s",
  "exploreUrl": "Hot::/hot/{{page}}.html",
  "ruleExplore": {
    "bookList": "ul > li",
    "name": "a@text",
    "bookUrl": "a@href"
  }
}`

func TestExplore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/hot/2.html", r.URL.Path)
		_, _ = io.WriteString(w, `<html><body><ul>`+
			`<li><a href="/b/1.html">One</a></li>`+
			`<li><a href="/b/2.html">Two</a></li>`+
			`</ul></body></html>`)
	}))
	defer srv.Close()

	src := compileTestSource(t, srv.URL, exploreDoc)
	require.Len(t, src.Explore, 1)

	books, err := New(fetch.NewClient()).Explore(context.Background(), src, src.Explore[0].URL, 2, nil)
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, "One", books[0].Name)
	assert.Equal(t, srv.URL+"/b/2.html", books[1].BookURL)
}

const variableDoc = `{
  "bookSourceName": "T",
  "bookSourceUrl": "%s",
  "searchUrl": "/search",
  "ruleSearch": {
    "bookList": "div.book",
    "name": "a@text@js:put('seen', result); result",
    "bookUrl": "a@href"
  }
}`

func TestSearchRecordsCarryVariableSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, searchPage(2, -1))
	}))
	defer srv.Close()

	src := compileTestSource(t, srv.URL, variableDoc)
	books, err := New(fetch.NewClient()).Search(context.Background(), src, "x", 1, map[string]string{"token": "abc"})
	require.NoError(t, err)
	require.Len(t, books, 2)

	// seeded variables survive, script writes are visible
	assert.Equal(t, "abc", books[0].Variables["token"])
	assert.Equal(t, "Book 1", books[0].Variables["seen"])
	assert.Equal(t, "Book 2", books[1].Variables["seen"])
}
