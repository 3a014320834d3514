package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/windvane/booksource/limiter"
	"github.com/windvane/booksource/pipeline"
	"github.com/windvane/booksource/source"
)

// ProgressStore receives periodic download checkpoints so progress survives
// a restart. Called from the download goroutine.
type ProgressStore interface {
	UpdateDownload(ctx context.Context, bookID int64, done, total int, dir string, finished bool) error
}

// Progress is a point-in-time snapshot of one download.
type Progress struct {
	BookID   int64  `json:"bookId"`
	Name     string `json:"name"`
	Total    int    `json:"total"`
	Done     int    `json:"done"`
	Failed   int    `json:"failed"`
	Finished bool   `json:"finished"`
	Dir      string `json:"dir"`
}

// DownloadRequest identifies the book to download and where to file it.
type DownloadRequest struct {
	BookID  int64
	Name    string
	BookURL string
	Vars    map[string]string
}

// Downloader pulls whole books to disk: book info, chapter list, then every
// chapter's text in reading order, paced by the limiter so bulk pulls stay
// under a source's anti-crawl threshold. One fixed delay between chapter
// fetches, no retries; a chapter that fails extraction is counted and
// skipped.
type Downloader struct {
	extractor *pipeline.Extractor
	options

	mu       sync.Mutex
	registry map[int64]*Progress
}

func NewDownloader(x *pipeline.Extractor, opts ...Option) *Downloader {
	o := defaultOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.Pacer == nil {
		o.Pacer = limiter.Download()
	}
	return &Downloader{
		extractor: x,
		options:   o,
		registry:  map[int64]*Progress{},
	}
}

// Download writes the book under <dir>/<bookID>: info.json, chapters.json
// and chapters/NNNN.txt per chapter. It blocks until the book is done or
// ctx is cancelled, checkpointing progress to the store every FlushEvery
// chapters.
func (d *Downloader) Download(ctx context.Context, src *source.Source, req DownloadRequest) (Progress, error) {
	info, err := d.extractor.BookInfo(ctx, src, req.BookURL, req.Vars)
	if err != nil {
		return Progress{}, err
	}
	chapters, err := d.extractor.ChapterList(ctx, src, info.TocURL, info.Variables)
	if err != nil {
		return Progress{}, err
	}

	dir := filepath.Join(d.DownloadDir, fmt.Sprintf("%d", req.BookID))
	if err := os.MkdirAll(filepath.Join(dir, "chapters"), 0o755); err != nil {
		return Progress{}, err
	}
	if err := writeJSON(filepath.Join(dir, "info.json"), info); err != nil {
		return Progress{}, err
	}
	if err := writeJSON(filepath.Join(dir, "chapters.json"), chapters); err != nil {
		return Progress{}, err
	}

	d.track(req, len(chapters), dir)

	for i, ch := range chapters {
		if err := d.Pacer.Wait(ctx); err != nil {
			return d.snapshot(req.BookID), err
		}

		// the next entry doubles as the "this link is a new chapter, stop
		// following continuations" hint
		var hint string
		if i+1 < len(chapters) {
			hint = chapters[i+1].URL
		}
		content, err := d.extractor.ChapterContent(ctx, src, ch.URL, hint, ch.Variables)
		if err != nil {
			d.Logger.Warn("chapter download failed",
				zap.String("book", req.Name),
				zap.String("chapter", ch.Name),
				zap.Error(err))
			d.bump(req.BookID, false)
			continue
		}

		path := filepath.Join(dir, "chapters", fmt.Sprintf("%04d.txt", i+1))
		if err := os.WriteFile(path, []byte(ch.Name+"\n\n"+content.Text), 0o644); err != nil {
			return d.snapshot(req.BookID), err
		}
		d.bump(req.BookID, true)

		if d.Store != nil && (i+1)%d.FlushEvery == 0 {
			d.checkpoint(ctx, req.BookID, dir, false)
		}
	}

	d.finish(req.BookID)
	if d.Store != nil {
		d.checkpoint(ctx, req.BookID, dir, true)
	}
	return d.snapshot(req.BookID), nil
}

// Progress reports the registry entry for one book, if any download for it
// ran during this process's lifetime.
func (d *Downloader) Progress(bookID int64) (Progress, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.registry[bookID]
	if !ok {
		return Progress{}, false
	}
	return *p, true
}

// Active lists unfinished downloads, ordered by book id.
func (d *Downloader) Active() []Progress {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Progress
	for _, p := range d.registry {
		if !p.Finished {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BookID < out[j].BookID })
	return out
}

func (d *Downloader) track(req DownloadRequest, total int, dir string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.registry[req.BookID] = &Progress{
		BookID: req.BookID,
		Name:   req.Name,
		Total:  total,
		Dir:    dir,
	}
}

func (d *Downloader) bump(bookID int64, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p := d.registry[bookID]; p != nil {
		if ok {
			p.Done++
		} else {
			p.Failed++
		}
	}
}

func (d *Downloader) finish(bookID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p := d.registry[bookID]; p != nil {
		p.Finished = true
	}
}

func (d *Downloader) snapshot(bookID int64) Progress {
	p, _ := d.Progress(bookID)
	return p
}

func (d *Downloader) checkpoint(ctx context.Context, bookID int64, dir string, finished bool) {
	snap := d.snapshot(bookID)
	if err := d.Store.UpdateDownload(ctx, bookID, snap.Done, snap.Total, dir, finished); err != nil {
		d.Logger.Warn("download checkpoint failed",
			zap.Int64("book", bookID),
			zap.Error(err))
	}
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
