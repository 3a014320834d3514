package service

import (
	"context"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/windvane/booksource/engine"
	"github.com/windvane/booksource/errs"
	"github.com/windvane/booksource/pipeline"
	"github.com/windvane/booksource/store"
)

// libraryAddRequest files a search or explore hit into the library under the
// source it came from.
type libraryAddRequest struct {
	SourceID int64         `json:"sourceId" binding:"required"`
	Book     pipeline.Book `json:"book"`
}

func (s *Server) handleAddLibraryBook(c *gin.Context) {
	var req libraryAddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBindError(c, err)
		return
	}
	if req.Book.BookURL == "" {
		s.respondError(c, errs.Validationf("book.bookUrl is required"))
		return
	}
	if _, err := s.Sources.GetSource(c.Request.Context(), req.SourceID); err != nil {
		s.respondError(c, err)
		return
	}

	b := &store.LibraryBook{
		SourceID:    req.SourceID,
		Name:        req.Book.Name,
		Author:      req.Book.Author,
		BookURL:     req.Book.BookURL,
		CoverURL:    req.Book.CoverURL,
		Kind:        req.Book.Kind,
		Intro:       req.Book.Intro,
		LastChapter: req.Book.LastChapter,
		WordCount:   req.Book.WordCount,
		Variables:   req.Book.Variables,
	}
	if err := s.Library.AddLibraryBook(c.Request.Context(), b); err != nil {
		s.respondError(c, err)
		return
	}
	s.Logger.Info("library book added", zap.Int64("id", b.ID), zap.String("name", b.Name))
	c.JSON(http.StatusCreated, b)
}

func (s *Server) handleListLibrary(c *gin.Context) {
	books, err := s.Library.ListLibrary(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"books": books, "count": len(books)})
}

func (s *Server) handleGetLibraryBook(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	book, err := s.Library.GetLibraryBook(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (s *Server) handleDeleteLibraryBook(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if err := s.Library.DeleteLibraryBook(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	s.Logger.Info("library book deleted", zap.Int64("id", id))
	c.JSON(http.StatusNoContent, nil)
}

// handleRefreshLibraryBook re-runs the book-info stage for a saved book and
// persists what it learns: the resolved toc URL and the source's updated
// variable snapshot. Returns the fresh metadata.
func (s *Server) handleRefreshLibraryBook(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	book, err := s.Library.GetLibraryBook(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	src, err := s.compiledSource(c.Request.Context(), book.SourceID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	info, err := s.Extractor.BookInfo(c.Request.Context(), src, book.BookURL, book.Variables)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if info.TocURL != "" && info.TocURL != book.TocURL {
		if err := s.Library.UpdateTocURL(c.Request.Context(), id, info.TocURL); err != nil {
			s.respondError(c, err)
			return
		}
	}
	if len(info.Variables) > 0 {
		if err := s.Library.UpdateVariables(c.Request.Context(), id, info.Variables); err != nil {
			s.respondError(c, err)
			return
		}
	}
	s.Logger.Info("library book refreshed",
		zap.Int64("id", id), zap.String("toc_url", info.TocURL))
	c.JSON(http.StatusOK, info)
}

// handleStartDownload kicks off a whole-book download in the background and
// replies immediately; progress is polled via the progress endpoint. The
// download runs on its own context so it outlives this request.
func (s *Server) handleStartDownload(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	book, err := s.Library.GetLibraryBook(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	src, err := s.compiledSource(c.Request.Context(), book.SourceID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	req := engine.DownloadRequest{
		BookID:  book.ID,
		Name:    book.Name,
		BookURL: book.BookURL,
		Vars:    book.Variables,
	}
	go func() {
		defer func() {
			if err := recover(); err != nil {
				s.Logger.Error("download panic",
					zap.Any("err", err),
					zap.String("stack", string(debug.Stack())))
			}
		}()
		if _, err := s.Downloads.Download(context.Background(), src, req); err != nil {
			s.Logger.Error("download failed", zap.Int64("book_id", book.ID), zap.Error(err))
		}
	}()

	s.Logger.Info("download started", zap.Int64("book_id", book.ID), zap.String("name", book.Name))
	c.JSON(http.StatusAccepted, gin.H{"bookId": book.ID, "status": "started"})
}

// handleDownloadProgress reports a download's progress: live from the
// manager when this process is running it, otherwise from the columns the
// last run checkpointed.
func (s *Server) handleDownloadProgress(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if p, found := s.Downloads.Progress(id); found {
		c.JSON(http.StatusOK, p)
		return
	}
	book, err := s.Library.GetLibraryBook(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, engine.Progress{
		BookID:   book.ID,
		Name:     book.Name,
		Total:    book.DownloadTotal,
		Done:     book.DownloadDone,
		Finished: book.Downloaded,
		Dir:      book.DownloadDir,
	})
}

func (s *Server) handleActiveDownloads(c *gin.Context) {
	list := s.Downloads.Active()
	if list == nil {
		list = []engine.Progress{}
	}
	c.JSON(http.StatusOK, gin.H{"downloads": list, "count": len(list)})
}
