// Package store persists source documents and library books in MySQL and
// caches compiled sources in memory. The service layer owns a Store and
// passes compiled sources into the pipelines; nothing below this package
// touches the database.
package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

// ErrNotFound reports a lookup for an id the table does not hold.
var ErrNotFound = errors.New("store: not found")

type Store struct {
	options
	db    *sql.DB
	idGen *snowflake.Node
}

func New(opts ...Option) (*Store, error) {
	options := defaultOptions
	for _, opt := range opts {
		opt(&options)
	}

	s := &Store{}
	s.options = options

	node, err := snowflake.NewNode(s.nodeID)
	if err != nil {
		return nil, err
	}
	s.idGen = node

	if err := s.openDB(); err != nil {
		return nil, err
	}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) openDB() error {
	db, err := sql.Open("mysql", s.dsn)
	if err != nil {
		return err
	}

	db.SetMaxOpenConns(64)
	db.SetMaxIdleConns(16)
	db.SetConnMaxLifetime(time.Hour)

	if err = db.Ping(); err != nil {
		return err
	}

	s.db = db
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const sourcesSchema = `CREATE TABLE IF NOT EXISTS book_sources (
	id BIGINT NOT NULL PRIMARY KEY AUTO_INCREMENT,
	name VARCHAR(255) NOT NULL,
	url VARCHAR(1024) NOT NULL,
	source_group VARCHAR(255) NOT NULL DEFAULT '',
	comment TEXT,
	enabled TINYINT(1) NOT NULL DEFAULT 1,
	custom_order INT NOT NULL DEFAULT 0,
	weight INT NOT NULL DEFAULT 0,
	raw MEDIUMTEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`

const librarySchema = `CREATE TABLE IF NOT EXISTS library_books (
	id BIGINT NOT NULL PRIMARY KEY,
	source_id BIGINT NOT NULL,
	name VARCHAR(255) NOT NULL,
	author VARCHAR(255) NOT NULL DEFAULT '',
	book_url VARCHAR(1024) NOT NULL,
	toc_url VARCHAR(1024) NOT NULL DEFAULT '',
	cover_url VARCHAR(1024) NOT NULL DEFAULT '',
	kind VARCHAR(255) NOT NULL DEFAULT '',
	intro TEXT,
	last_chapter VARCHAR(255) NOT NULL DEFAULT '',
	word_count VARCHAR(64) NOT NULL DEFAULT '',
	variables TEXT,
	downloaded TINYINT(1) NOT NULL DEFAULT 0,
	download_done INT NOT NULL DEFAULT 0,
	download_total INT NOT NULL DEFAULT 0,
	download_dir VARCHAR(1024) NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
	KEY idx_source (source_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`

func (s *Store) ensureSchema() error {
	for _, stmt := range []string{sourcesSchema, librarySchema} {
		s.logger.Debug("create table", zap.String("sql", stmt))
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
