package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windvane/booksource/store"
)

const validDoc = `{
  "bookSourceName": "测试站",
  "bookSourceUrl": "https://novel.example.com",
  "bookSourceGroup": "精品",
  "bookSourceComment": "maintained",
  "weight": 7,
  "searchUrl": "/search?q={{key}}",
  "ruleSearch": {"bookList": "div.book", "name": "a@text", "bookUrl": "a@href"}
}`

func TestCreateSource(t *testing.T) {
	ts := newTestServer(t)

	w := doRaw(t, ts.Router(), http.MethodPost, "/api/v1/sources", validDoc)
	require.Equal(t, http.StatusCreated, w.Code)

	var rec store.SourceRecord
	decodeJSON(t, w, &rec)
	assert.Equal(t, int64(1), rec.ID)
	assert.Equal(t, "测试站", rec.Name)
	assert.Equal(t, "https://novel.example.com", rec.URL)
	assert.Equal(t, "精品", rec.Group)
	assert.Equal(t, 7, rec.Weight)
	assert.True(t, rec.Enabled)

	stored, err := ts.sources.GetSource(context.Background(), 1)
	require.NoError(t, err)
	assert.JSONEq(t, validDoc, stored.Raw)
}

func TestCreateSourceRejectsInvalidDocument(t *testing.T) {
	ts := newTestServer(t)

	w := doRaw(t, ts.Router(), http.MethodPost, "/api/v1/sources",
		`{"bookSourceName": "no url"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "bookSourceUrl")
}

func TestCreateSourceRejectsBlacklistedDocument(t *testing.T) {
	ts := newTestServer(t)

	doc := `{
	  "bookSourceName": "T",
	  "bookSourceUrl": "https://x.example.com",
	  "ruleSearch": {"name": "@js:java.ajax(url)"}
	}`
	w := doRaw(t, ts.Router(), http.MethodPost, "/api/v1/sources", doc)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "java.ajax")
}

func TestListSourcesFiltersEnabled(t *testing.T) {
	ts := newTestServer(t)

	require.Equal(t, http.StatusCreated,
		doRaw(t, ts.Router(), http.MethodPost, "/api/v1/sources", validDoc).Code)
	disabled := `{
	  "bookSourceName": "关站",
	  "bookSourceUrl": "https://dead.example.com",
	  "enabled": false
	}`
	require.Equal(t, http.StatusCreated,
		doRaw(t, ts.Router(), http.MethodPost, "/api/v1/sources", disabled).Code)

	var all struct {
		Sources []*store.SourceRecord `json:"sources"`
		Count   int                   `json:"count"`
	}
	w := doJSON(t, ts.Router(), http.MethodGet, "/api/v1/sources", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeJSON(t, w, &all)
	assert.Equal(t, 2, all.Count)

	w = doJSON(t, ts.Router(), http.MethodGet, "/api/v1/sources?enabled=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeJSON(t, w, &all)
	require.Equal(t, 1, all.Count)
	assert.Equal(t, "测试站", all.Sources[0].Name)
}

func TestGetSourceMissing(t *testing.T) {
	ts := newTestServer(t)

	w := doJSON(t, ts.Router(), http.MethodGet, "/api/v1/sources/99", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, ts.Router(), http.MethodGet, "/api/v1/sources/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateSourceRecompiles(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusCreated,
		doRaw(t, ts.Router(), http.MethodPost, "/api/v1/sources", validDoc).Code)

	renamed := `{
	  "bookSourceName": "改名站",
	  "bookSourceUrl": "https://novel.example.com",
	  "searchUrl": "/s?q={{key}}"
	}`
	w := doRaw(t, ts.Router(), http.MethodPut, "/api/v1/sources/1", renamed)
	require.Equal(t, http.StatusOK, w.Code)

	var rec store.SourceRecord
	decodeJSON(t, w, &rec)
	assert.Equal(t, "改名站", rec.Name)

	stored, err := ts.sources.GetSource(context.Background(), 1)
	require.NoError(t, err)
	assert.JSONEq(t, renamed, stored.Raw)
}

func TestUpdateSourceKeepsOldDocumentOnBadInput(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusCreated,
		doRaw(t, ts.Router(), http.MethodPost, "/api/v1/sources", validDoc).Code)

	w := doRaw(t, ts.Router(), http.MethodPut, "/api/v1/sources/1", `{"bookSourceName": ""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	stored, err := ts.sources.GetSource(context.Background(), 1)
	require.NoError(t, err)
	assert.JSONEq(t, validDoc, stored.Raw)
}

func TestDeleteSource(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusCreated,
		doRaw(t, ts.Router(), http.MethodPost, "/api/v1/sources", validDoc).Code)

	w := doJSON(t, ts.Router(), http.MethodDelete, "/api/v1/sources/1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, ts.Router(), http.MethodDelete, "/api/v1/sources/1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestImportSources(t *testing.T) {
	list := fmt.Sprintf(`[
	  %s,
	  {"bookSourceName": "broken"},
	  {"bookSourceName": "第二站", "bookSourceUrl": "https://two.example.com"}
	]`, validDoc)
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, list)
	}))
	defer remote.Close()

	ts := newTestServer(t)
	w := doJSON(t, ts.Router(), http.MethodPost, "/api/v1/sources/import",
		map[string]string{"url": remote.URL})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Imported int `json:"imported"`
		Failed   int `json:"failed"`
		Results  []struct {
			Index int    `json:"index"`
			Name  string `json:"name"`
			ID    int64  `json:"id"`
			Error string `json:"error"`
		} `json:"results"`
	}
	decodeJSON(t, w, &resp)
	assert.Equal(t, 2, resp.Imported)
	assert.Equal(t, 1, resp.Failed)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "测试站", resp.Results[0].Name)
	assert.NotZero(t, resp.Results[0].ID)
	assert.Contains(t, resp.Results[1].Error, "bookSourceUrl")
	assert.Equal(t, "第二站", resp.Results[2].Name)

	recs, err := ts.sources.ListSources(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestImportSourcesUnreachableURL(t *testing.T) {
	ts := newTestServer(t)
	w := doJSON(t, ts.Router(), http.MethodPost, "/api/v1/sources/import",
		map[string]string{"url": "http://127.0.0.1:1/sources.json"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestImportSourcesRejectsNonArrayPayload(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `"just a string"`)
	}))
	defer remote.Close()

	ts := newTestServer(t)
	w := doJSON(t, ts.Router(), http.MethodPost, "/api/v1/sources/import",
		map[string]string{"url": remote.URL})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInspectSource(t *testing.T) {
	ts := newTestServer(t)
	doc := `{
	  "bookSourceName": "混合站",
	  "bookSourceUrl": "https://mix.example.com",
	  "searchUrl": "/search?q={{key}}",
	  "ruleSearch": {
	    "bookList": "//div[@class='book']||div.book",
	    "name": "$.name",
	    "bookUrl": "a@href"
	  }
	}`
	require.Equal(t, http.StatusCreated,
		doRaw(t, ts.Router(), http.MethodPost, "/api/v1/sources", doc).Code)

	w := doJSON(t, ts.Router(), http.MethodGet, "/api/v1/sources/1/inspect", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Name  string                       `json:"name"`
		Rules map[string]map[string]string `json:"rules"`
	}
	decodeJSON(t, w, &resp)
	assert.Equal(t, "混合站", resp.Name)
	require.Contains(t, resp.Rules, "search")
	assert.Equal(t, "xpath,css", resp.Rules["search"]["bookList"])
	assert.Equal(t, "jsonpath", resp.Rules["search"]["name"])
	assert.Equal(t, "css", resp.Rules["search"]["bookUrl"])

	w = doJSON(t, ts.Router(), http.MethodGet, "/api/v1/sources/9/inspect", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSourceExplore(t *testing.T) {
	ts := newTestServer(t)
	doc := `{
	  "bookSourceName": "分类站",
	  "bookSourceUrl": "https://cat.example.com",
	  "exploreUrl": "玄幻::/list/xh/{{page}}.html&&都市::/list/ds/{{page}}.html"
	}`
	require.Equal(t, http.StatusCreated,
		doRaw(t, ts.Router(), http.MethodPost, "/api/v1/sources", doc).Code)

	w := doJSON(t, ts.Router(), http.MethodGet, "/api/v1/sources/1/explore", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Explore []struct {
			Title string `json:"title"`
			URL   string `json:"url"`
		} `json:"explore"`
		Count int `json:"count"`
	}
	decodeJSON(t, w, &resp)
	require.Equal(t, 2, resp.Count)
	assert.Equal(t, "玄幻", resp.Explore[0].Title)
	assert.Equal(t, "/list/xh/{{page}}.html", resp.Explore[0].URL)
	assert.Equal(t, "都市", resp.Explore[1].Title)
}
