// Package service exposes the extraction engine over HTTP: source document
// CRUD, multi-source search (gathered and streamed as server-sent events),
// the per-book pipeline stages, and a library with background downloads.
package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/windvane/booksource/engine"
	"github.com/windvane/booksource/errs"
	"github.com/windvane/booksource/source"
	"github.com/windvane/booksource/store"
)

// SourceStore is the slice of the store the source handlers need.
type SourceStore interface {
	CreateSource(ctx context.Context, rec *store.SourceRecord) error
	UpdateSource(ctx context.Context, rec *store.SourceRecord) error
	DeleteSource(ctx context.Context, id int64) error
	GetSource(ctx context.Context, id int64) (*store.SourceRecord, error)
	ListSources(ctx context.Context, enabledOnly bool) ([]*store.SourceRecord, error)
}

// LibraryStore is the slice of the store the library handlers need.
type LibraryStore interface {
	AddLibraryBook(ctx context.Context, b *store.LibraryBook) error
	GetLibraryBook(ctx context.Context, id int64) (*store.LibraryBook, error)
	ListLibrary(ctx context.Context) ([]*store.LibraryBook, error)
	DeleteLibraryBook(ctx context.Context, id int64) error
	UpdateTocURL(ctx context.Context, id int64, tocURL string) error
	UpdateVariables(ctx context.Context, id int64, vars map[string]string) error
}

// Searcher fans a keyword out across compiled sources.
type Searcher interface {
	SearchAll(ctx context.Context, sources []*source.Source, keyword string, page int) []*engine.SourceResult
	SearchStream(ctx context.Context, sources []*source.Source, keyword string, page int) <-chan *engine.SourceResult
}

// DownloadManager runs and reports on whole-book downloads.
type DownloadManager interface {
	Download(ctx context.Context, src *source.Source, req engine.DownloadRequest) (engine.Progress, error)
	Progress(bookID int64) (engine.Progress, bool)
	Active() []engine.Progress
}

// Server carries the handlers and their collaborators.
type Server struct {
	options
	router *gin.Engine
}

func New(opts ...Option) *Server {
	o := defaultOptions
	for _, opt := range opts {
		opt(&o)
	}
	s := &Server{options: o}
	s.router = s.buildRouter()
	return s
}

// Router returns the configured gin engine, ready to serve.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run blocks serving HTTP on addr until the listener fails.
func (s *Server) Run(addr string) error {
	s.Logger.Info("http server starting", zap.String("addr", addr))
	return s.router.Run(addr)
}

func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(s.requestLogger())
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		sources := v1.Group("/sources")
		{
			sources.POST("", s.handleCreateSource)
			sources.GET("", s.handleListSources)
			sources.POST("/import", s.handleImportSources)
			sources.GET("/:id", s.handleGetSource)
			sources.PUT("/:id", s.handleUpdateSource)
			sources.DELETE("/:id", s.handleDeleteSource)
			sources.GET("/:id/explore", s.handleSourceExplore)
			sources.GET("/:id/inspect", s.handleInspectSource)
		}

		v1.POST("/search", s.handleSearch)
		v1.POST("/search/stream", s.handleSearchStream)
		v1.GET("/search/by-source/:id", s.handleSearchBySource)

		books := v1.Group("/books")
		{
			books.POST("/info", s.handleBookInfo)
			books.POST("/chapters", s.handleChapterList)
			books.POST("/chapter/content", s.handleChapterContent)
		}
		v1.POST("/explore", s.handleExplore)

		library := v1.Group("/library")
		{
			library.POST("", s.handleAddLibraryBook)
			library.GET("", s.handleListLibrary)
			library.GET("/:id", s.handleGetLibraryBook)
			library.DELETE("/:id", s.handleDeleteLibraryBook)
			library.POST("/:id/refresh", s.handleRefreshLibraryBook)
			library.POST("/:id/download", s.handleStartDownload)
			library.GET("/:id/download/progress", s.handleDownloadProgress)
		}
		v1.GET("/downloads/active", s.handleActiveDownloads)
	}

	return router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.Logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status_code", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

// respondError translates an error's kind into an HTTP status: invalid
// documents or requests are the caller's fault, an unreachable upstream is a
// bad gateway, and a rule that fails against a live page is our failure to
// extract.
func (s *Server) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errs.IsValidation(err):
		status = http.StatusBadRequest
	case errs.IsUnsupported(err):
		status = http.StatusUnprocessableEntity
	case errs.IsFetch(err):
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		s.Logger.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
}
