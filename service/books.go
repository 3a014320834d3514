package service

import (
	"html"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/windvane/booksource/pipeline"
)

// bookRequest addresses one pipeline stage: the stored source to run it
// with, the page URL, and the caller's variable snapshot from the previous
// stage.
type bookRequest struct {
	SourceID  int64             `json:"sourceId" binding:"required"`
	URL       string            `json:"url" binding:"required"`
	NextURL   string            `json:"nextUrl"`
	Page      int               `json:"page"`
	Variables map[string]string `json:"variables"`
}

func (s *Server) handleBookInfo(c *gin.Context) {
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBindError(c, err)
		return
	}
	src, err := s.compiledSource(c.Request.Context(), req.SourceID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	info, err := s.Extractor.BookInfo(c.Request.Context(), src, req.URL, req.Variables)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleChapterList(c *gin.Context) {
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBindError(c, err)
		return
	}
	src, err := s.compiledSource(c.Request.Context(), req.SourceID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	chapters, err := s.Extractor.ChapterList(c.Request.Context(), src, req.URL, req.Variables)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chapters": chapters, "count": len(chapters)})
}

// handleChapterContent extracts one chapter's text and returns it as the
// <p>-wrapped HTML the reading frontend renders directly. nextUrl, when the
// caller knows it, stops continuation-page crawling at the next chapter.
func (s *Server) handleChapterContent(c *gin.Context) {
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBindError(c, err)
		return
	}
	src, err := s.compiledSource(c.Request.Context(), req.SourceID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	content, err := s.Extractor.ChapterContent(c.Request.Context(), src, req.URL, req.NextURL, req.Variables)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"text":      wrapParagraphs(content.Text),
		"nextUrl":   content.NextURL,
		"variables": content.Variables,
	})
}

func (s *Server) handleExplore(c *gin.Context) {
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBindError(c, err)
		return
	}
	src, err := s.compiledSource(c.Request.Context(), req.SourceID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	page := req.Page
	if page < 1 {
		page = 1
	}
	books, err := s.Extractor.Explore(c.Request.Context(), src, req.URL, page, req.Variables)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if books == nil {
		books = []*pipeline.Book{}
	}
	c.JSON(http.StatusOK, gin.H{"books": books, "count": len(books)})
}

// wrapParagraphs renders newline-delimited chapter text as a <p> sequence.
func wrapParagraphs(text string) string {
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(html.EscapeString(line))
		b.WriteString("</p>")
	}
	return b.String()
}
