package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"
)

// SourceRecord is one stored source document plus its list metadata. Raw is
// the document exactly as imported; compilation always starts from Raw.
type SourceRecord struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	Group       string    `json:"group,omitempty"`
	Comment     string    `json:"comment,omitempty"`
	Enabled     bool      `json:"enabled"`
	CustomOrder int       `json:"customOrder"`
	Weight      int       `json:"weight"`
	Raw         string    `json:"raw"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

const sourceColumns = `id, name, url, source_group, comment, enabled, custom_order, weight, raw, created_at, updated_at`

func (s *Store) CreateSource(ctx context.Context, rec *SourceRecord) error {
	const stmt = `INSERT INTO book_sources(name, url, source_group, comment, enabled, custom_order, weight, raw)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	s.logger.Debug("insert source", zap.String("name", rec.Name))

	res, err := s.db.ExecContext(ctx, stmt,
		rec.Name, rec.URL, rec.Group, rec.Comment, rec.Enabled, rec.CustomOrder, rec.Weight, rec.Raw)
	if err != nil {
		return err
	}
	rec.ID, err = res.LastInsertId()
	return err
}

func (s *Store) UpdateSource(ctx context.Context, rec *SourceRecord) error {
	const stmt = `UPDATE book_sources
		SET name = ?, url = ?, source_group = ?, comment = ?, enabled = ?, custom_order = ?, weight = ?, raw = ?
		WHERE id = ?`
	s.logger.Debug("update source", zap.Int64("id", rec.ID))

	res, err := s.db.ExecContext(ctx, stmt,
		rec.Name, rec.URL, rec.Group, rec.Comment, rec.Enabled, rec.CustomOrder, rec.Weight, rec.Raw, rec.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// an update writing identical values also reports zero rows;
		// distinguish that from a missing id
		var one int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM book_sources WHERE id = ?`, rec.ID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Store) DeleteSource(ctx context.Context, id int64) error {
	s.logger.Debug("delete source", zap.Int64("id", id))
	res, err := s.db.ExecContext(ctx, `DELETE FROM book_sources WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return oneRowTouched(res)
}

func (s *Store) GetSource(ctx context.Context, id int64) (*SourceRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM book_sources WHERE id = ?`, id)
	return scanSource(row)
}

// ListSources returns sources ordered the way a reader arranges them:
// custom order first, then insertion order.
func (s *Store) ListSources(ctx context.Context, enabledOnly bool) ([]*SourceRecord, error) {
	stmt := `SELECT ` + sourceColumns + ` FROM book_sources`
	if enabledOnly {
		stmt += ` WHERE enabled = 1`
	}
	stmt += ` ORDER BY custom_order, id`

	rows, err := s.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*SourceRecord
	for rows.Next() {
		rec, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (*SourceRecord, error) {
	var rec SourceRecord
	var comment sql.NullString
	err := row.Scan(&rec.ID, &rec.Name, &rec.URL, &rec.Group, &comment,
		&rec.Enabled, &rec.CustomOrder, &rec.Weight, &rec.Raw,
		&rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.Comment = comment.String
	return &rec, nil
}

func oneRowTouched(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
