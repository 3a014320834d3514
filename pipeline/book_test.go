package pipeline

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windvane/booksource/fetch"
	"github.com/windvane/booksource/source"
)

const infoDoc = `{
  "bookSourceName": "T",
  "bookSourceUrl": "%s",
  "ruleBookInfo": {
    "name": "h1@text",
    "author": "p.author@text",
    "kind": "span.tag@text",
    "coverUrl": "img.cover@src",
    "intro": "div.intro@html",
    "lastChapter": "p.last@text",
    "wordCount": "p.wc@text",
    "tocUrl": "a.toc@href"
  }
}`

const infoPage = `<html><body>
  <h1>《沧海》</h1>
  <p class="author">作者：凤歌 著</p>
  <span class="tag">武侠</span><span class="tag">连载</span>
  <img class="cover" src="/covers/1.jpg"/>
  <div class="intro">line one<br/><b>line two</b></div>
  <p class="last">第十章</p>
  <p class="wc">12.5万字</p>
  <a class="toc" href="/toc/1/">目录</a>
</body></html>`

func TestBookInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/book/1.html", r.URL.Path)
		_, _ = io.WriteString(w, infoPage)
	}))
	defer srv.Close()

	src := compileTestSource(t, srv.URL, infoDoc)
	info, err := New(fetch.NewClient()).BookInfo(context.Background(), src, "/book/1.html", nil)
	require.NoError(t, err)

	assert.Equal(t, "沧海", info.Name)
	assert.Equal(t, "凤歌", info.Author)
	assert.Equal(t, "武侠,连载", info.Kind)
	assert.Equal(t, srv.URL+"/covers/1.jpg", info.CoverURL)
	assert.Equal(t, "line one\nline two", info.Intro)
	assert.Equal(t, "第十章", info.LastChapter)
	assert.Equal(t, "125000", info.WordCount)
	assert.Equal(t, srv.URL+"/toc/1/", info.TocURL)
}

func TestBookInfoTocURLDefaultsToBookURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html><body><h1>Title</h1></body></html>`)
	}))
	defer srv.Close()

	src := compileTestSource(t, srv.URL, infoDoc)
	info, err := New(fetch.NewClient()).BookInfo(context.Background(), src, "/book/2.html", nil)
	require.NoError(t, err)

	assert.Equal(t, "Title", info.Name)
	assert.Equal(t, "", info.Author, "missing optional fields stay empty")
	assert.Equal(t, "/book/2.html", info.TocURL, "toc falls back to the book URL")
}

func TestBookInfoWithoutStageRules(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html><body>ignored</body></html>`)
	}))
	defer srv.Close()

	src, err := source.Compile([]byte(`{"bookSourceName":"T","bookSourceUrl":"` + srv.URL + `"}`))
	require.NoError(t, err)

	info, err := New(fetch.NewClient()).BookInfo(context.Background(), src, "/book/3.html", nil)
	require.NoError(t, err, "a source without ruleBookInfo still resolves the toc")
	assert.Equal(t, "/book/3.html", info.TocURL)
}

func TestBookInfoFetchErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	src := compileTestSource(t, srv.URL, infoDoc)
	_, err := New(fetch.NewClient()).BookInfo(context.Background(), src, "/gone", nil)
	require.Error(t, err)
}
