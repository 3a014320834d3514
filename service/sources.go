package service

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/windvane/booksource/errs"
	"github.com/windvane/booksource/fetch"
	"github.com/windvane/booksource/source"
	"github.com/windvane/booksource/store"
)

// recordFromDocument compiles a raw source document and projects its
// identity fields onto a store record. Compilation doubles as validation:
// a document that does not compile is never stored.
func recordFromDocument(raw []byte) (*store.SourceRecord, error) {
	src, err := source.Compile(raw)
	if err != nil {
		return nil, err
	}
	return &store.SourceRecord{
		Name:        src.Name,
		URL:         src.BaseURL,
		Group:       src.Group,
		Comment:     src.Comment,
		Enabled:     src.Enabled,
		CustomOrder: src.CustomOrder,
		Weight:      src.Weight,
		Raw:         string(raw),
	}, nil
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id", "details": c.Param("id")})
		return 0, false
	}
	return id, true
}

// handleCreateSource stores the raw book-source document sent as the request
// body, after compiling it once to validate and to fill the record's
// identity columns.
func (s *Server) handleCreateSource(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		s.respondBindError(c, err)
		return
	}
	rec, err := recordFromDocument(raw)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if err := s.Sources.CreateSource(c.Request.Context(), rec); err != nil {
		s.respondError(c, err)
		return
	}
	s.Logger.Info("source created", zap.Int64("id", rec.ID), zap.String("name", rec.Name))
	c.JSON(http.StatusCreated, rec)
}

func (s *Server) handleListSources(c *gin.Context) {
	enabledOnly := c.Query("enabled") == "true" || c.Query("enabled") == "1"
	recs, err := s.Sources.ListSources(c.Request.Context(), enabledOnly)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sources": recs, "count": len(recs)})
}

func (s *Server) handleGetSource(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	rec, err := s.Sources.GetSource(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// handleUpdateSource replaces a stored document with the request body,
// recompiling it first. The compiled-source cache entry is dropped so the
// next use picks up the new rules.
func (s *Server) handleUpdateSource(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	raw, err := c.GetRawData()
	if err != nil {
		s.respondBindError(c, err)
		return
	}
	rec, err := recordFromDocument(raw)
	if err != nil {
		s.respondError(c, err)
		return
	}
	rec.ID = id
	if err := s.Sources.UpdateSource(c.Request.Context(), rec); err != nil {
		s.respondError(c, err)
		return
	}
	if s.Cache != nil {
		s.Cache.Invalidate(id)
	}
	s.Logger.Info("source updated", zap.Int64("id", id), zap.String("name", rec.Name))

	updated, err := s.Sources.GetSource(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusOK, rec)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) handleDeleteSource(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if err := s.Sources.DeleteSource(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	if s.Cache != nil {
		s.Cache.Invalidate(id)
	}
	s.Logger.Info("source deleted", zap.Int64("id", id))
	c.JSON(http.StatusNoContent, nil)
}

type importRequest struct {
	URL string `json:"url" binding:"required"`
}

type importResult struct {
	Index int    `json:"index"`
	Name  string `json:"name,omitempty"`
	ID    int64  `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

// handleImportSources pulls a JSON array of source documents from a remote
// URL and stores each one that compiles, reporting success or failure per
// document. One bad document never blocks the rest.
func (s *Server) handleImportSources(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBindError(c, err)
		return
	}

	page, err := s.Fetcher.Open(c.Request.Context(), &fetch.Target{URL: req.URL, Method: "GET"}, nil)
	if err != nil {
		s.respondError(c, err)
		return
	}

	docs, err := splitDocuments([]byte(page.Body))
	if err != nil {
		s.respondError(c, err)
		return
	}

	results := make([]importResult, 0, len(docs))
	imported := 0
	for i, doc := range docs {
		res := importResult{Index: i}
		rec, err := recordFromDocument(doc)
		if err == nil {
			res.Name = rec.Name
			err = s.Sources.CreateSource(c.Request.Context(), rec)
		}
		if err != nil {
			res.Error = err.Error()
			s.Logger.Warn("import skipped document", zap.Int("index", i), zap.Error(err))
		} else {
			res.ID = rec.ID
			imported++
		}
		results = append(results, res)
	}

	s.Logger.Info("sources imported",
		zap.String("url", req.URL),
		zap.Int("imported", imported),
		zap.Int("failed", len(docs)-imported))
	c.JSON(http.StatusOK, gin.H{
		"imported": imported,
		"failed":   len(docs) - imported,
		"results":  results,
	})
}

// splitDocuments accepts either a JSON array of documents or one bare
// document; shared source lists in the wild come both ways.
func splitDocuments(data []byte) ([]json.RawMessage, error) {
	var docs []json.RawMessage
	if err := json.Unmarshal(data, &docs); err == nil {
		return docs, nil
	}
	var one json.RawMessage
	if err := json.Unmarshal(data, &one); err != nil || len(one) == 0 || one[0] != '{' {
		return nil, errs.Validationf("expected a JSON document array")
	}
	return []json.RawMessage{one}, nil
}

// handleSourceExplore reports the compiled explore entries of one source:
// the category titles and URL templates its discover section declares.
func (s *Server) handleSourceExplore(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	src, err := s.compiledSource(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	entries := src.Explore
	if entries == nil {
		entries = []source.ExploreEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"explore": entries, "count": len(entries)})
}

// handleInspectSource reports which selector language each compiled rule
// resolved to, per stage. Rule authors use it to see how their document was
// classified without running an extraction.
func (s *Server) handleInspectSource(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	src, err := s.compiledSource(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": src.Name, "rules": src.Inspect()})
}

// compiledSource loads a stored record and returns its compiled form via
// the cache.
func (s *Server) compiledSource(ctx context.Context, id int64) (*source.Source, error) {
	rec, err := s.Sources.GetSource(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Cache.Get(rec)
}
