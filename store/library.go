package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
)

// LibraryBook is one saved book: the search hit that produced it, the
// variable snapshot its source needs to keep extracting it, and the state
// of any download.
type LibraryBook struct {
	ID            int64             `json:"id"`
	SourceID      int64             `json:"sourceId"`
	Name          string            `json:"name"`
	Author        string            `json:"author,omitempty"`
	BookURL       string            `json:"bookUrl"`
	TocURL        string            `json:"tocUrl,omitempty"`
	CoverURL      string            `json:"coverUrl,omitempty"`
	Kind          string            `json:"kind,omitempty"`
	Intro         string            `json:"intro,omitempty"`
	LastChapter   string            `json:"lastChapter,omitempty"`
	WordCount     string            `json:"wordCount,omitempty"`
	Variables     map[string]string `json:"variables,omitempty"`
	Downloaded    bool              `json:"downloaded"`
	DownloadDone  int               `json:"downloadDone"`
	DownloadTotal int               `json:"downloadTotal"`
	DownloadDir   string            `json:"downloadDir,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

const libraryColumns = `id, source_id, name, author, book_url, toc_url, cover_url, kind, intro,
	last_chapter, word_count, variables, downloaded, download_done, download_total, download_dir,
	created_at, updated_at`

// AddLibraryBook stores b under a freshly minted snowflake id, written back
// into b.ID.
func (s *Store) AddLibraryBook(ctx context.Context, b *LibraryBook) error {
	const stmt = `INSERT INTO library_books(id, source_id, name, author, book_url, toc_url, cover_url,
		kind, intro, last_chapter, word_count, variables)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	vars, err := encodeVars(b.Variables)
	if err != nil {
		return err
	}
	b.ID = s.idGen.Generate().Int64()
	s.logger.Debug("insert library book",
		zap.Int64("id", b.ID), zap.String("name", b.Name))

	_, err = s.db.ExecContext(ctx, stmt,
		b.ID, b.SourceID, b.Name, b.Author, b.BookURL, b.TocURL, b.CoverURL,
		b.Kind, b.Intro, b.LastChapter, b.WordCount, vars)
	return err
}

func (s *Store) GetLibraryBook(ctx context.Context, id int64) (*LibraryBook, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+libraryColumns+` FROM library_books WHERE id = ?`, id)
	return scanLibraryBook(row)
}

func (s *Store) ListLibrary(ctx context.Context) ([]*LibraryBook, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+libraryColumns+` FROM library_books ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*LibraryBook
	for rows.Next() {
		b, err := scanLibraryBook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) DeleteLibraryBook(ctx context.Context, id int64) error {
	s.logger.Debug("delete library book", zap.Int64("id", id))
	res, err := s.db.ExecContext(ctx, `DELETE FROM library_books WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return oneRowTouched(res)
}

// UpdateTocURL records the toc URL resolved by the book-info stage so later
// chapter fetches skip that hop.
func (s *Store) UpdateTocURL(ctx context.Context, id int64, tocURL string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE library_books SET toc_url = ? WHERE id = ?`, tocURL, id)
	return err
}

// UpdateVariables persists a fresh variable snapshot for the book.
func (s *Store) UpdateVariables(ctx context.Context, id int64, vars map[string]string) error {
	encoded, err := encodeVars(vars)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE library_books SET variables = ? WHERE id = ?`, encoded, id)
	return err
}

// UpdateDownload checkpoints download progress. It satisfies the engine's
// progress store contract.
func (s *Store) UpdateDownload(ctx context.Context, bookID int64, done, total int, dir string, finished bool) error {
	const stmt = `UPDATE library_books
		SET download_done = ?, download_total = ?, download_dir = ?, downloaded = ?
		WHERE id = ?`
	_, err := s.db.ExecContext(ctx, stmt, done, total, dir, finished, bookID)
	return err
}

func scanLibraryBook(row rowScanner) (*LibraryBook, error) {
	var b LibraryBook
	var intro, vars sql.NullString
	err := row.Scan(&b.ID, &b.SourceID, &b.Name, &b.Author, &b.BookURL, &b.TocURL, &b.CoverURL,
		&b.Kind, &intro, &b.LastChapter, &b.WordCount, &vars,
		&b.Downloaded, &b.DownloadDone, &b.DownloadTotal, &b.DownloadDir,
		&b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	b.Intro = intro.String
	if vars.String != "" {
		if err := json.Unmarshal([]byte(vars.String), &b.Variables); err != nil {
			return nil, err
		}
	}
	return &b, nil
}

func encodeVars(vars map[string]string) (string, error) {
	if len(vars) == 0 {
		return "", nil
	}
	data, err := json.Marshal(vars)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
