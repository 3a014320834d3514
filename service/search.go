package service

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/windvane/booksource/engine"
	"github.com/windvane/booksource/pipeline"
	"github.com/windvane/booksource/source"
)

type searchRequest struct {
	Keyword string `json:"keyword" binding:"required"`
	Page    int    `json:"page"`
}

type searchResult struct {
	SourceID   int64            `json:"sourceId"`
	SourceName string           `json:"sourceName"`
	Books      []*pipeline.Book `json:"books"`
	Count      int              `json:"count"`
	Error      string           `json:"error,omitempty"`
}

// compiledSet is the enabled sources ready for a fan-out, with the record id
// of each compiled source and a failure entry for every stored document that
// no longer compiles.
type compiledSet struct {
	sources []*source.Source
	ids     map[*source.Source]int64
	failed  []searchResult
}

func (s *Server) enabledSources(ctx context.Context) (*compiledSet, error) {
	recs, err := s.Sources.ListSources(ctx, true)
	if err != nil {
		return nil, err
	}
	set := &compiledSet{ids: map[*source.Source]int64{}}
	for _, rec := range recs {
		src, err := s.Cache.Get(rec)
		if err != nil {
			s.Logger.Warn("stored source does not compile",
				zap.Int64("id", rec.ID), zap.String("name", rec.Name), zap.Error(err))
			set.failed = append(set.failed, searchResult{
				SourceID:   rec.ID,
				SourceName: rec.Name,
				Books:      []*pipeline.Book{},
				Error:      err.Error(),
			})
			continue
		}
		set.sources = append(set.sources, src)
		set.ids[src] = rec.ID
	}
	return set, nil
}

func (cs *compiledSet) result(res *engine.SourceResult) searchResult {
	out := searchResult{Books: res.Books, Count: len(res.Books)}
	if res.Source != nil {
		out.SourceID = cs.ids[res.Source]
		out.SourceName = res.Source.Name
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	if out.Books == nil {
		out.Books = []*pipeline.Book{}
	}
	return out
}

// handleSearch fans the keyword out across every enabled source and replies
// once all of them have finished, one result entry per source in stored
// order.
func (s *Server) handleSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBindError(c, err)
		return
	}
	set, err := s.enabledSources(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	results := append([]searchResult{}, set.failed...)
	for _, res := range s.Searcher.SearchAll(c.Request.Context(), set.sources, req.Keyword, req.Page) {
		results = append(results, set.result(res))
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}

// handleSearchStream is the server-sent-events variant: one "result" event
// per source the moment that source finishes, then a final "done" event.
// Closing the connection cancels the remaining sources through the request
// context.
func (s *Server) handleSearchStream(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBindError(c, err)
		return
	}
	set, err := s.enabledSources(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	for _, fail := range set.failed {
		c.SSEvent("result", fail)
	}
	c.Writer.Flush()

	delivered := len(set.failed)
	for res := range s.Searcher.SearchStream(c.Request.Context(), set.sources, req.Keyword, req.Page) {
		c.SSEvent("result", set.result(res))
		c.Writer.Flush()
		delivered++
	}
	c.SSEvent("done", gin.H{"count": delivered})
	c.Writer.Flush()
}

// handleSearchBySource searches one stored source, keyword and page taken
// from the query string.
func (s *Server) handleSearchBySource(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	keyword := c.Query("keyword")
	if keyword == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "keyword is required"})
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))

	src, err := s.compiledSource(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	res := s.Searcher.SearchAll(c.Request.Context(), []*source.Source{src}, keyword, page)[0]
	if res.Err != nil {
		s.respondError(c, res.Err)
		return
	}
	books := res.Books
	if books == nil {
		books = []*pipeline.Book{}
	}
	c.JSON(http.StatusOK, gin.H{"books": books, "count": len(books)})
}
