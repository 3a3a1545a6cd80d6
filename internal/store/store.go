package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Store is the SQLite data access layer for the raw Java facts of one
// session.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled. An empty
// path or MemoryPath opens an in-memory database restricted to a single
// connection, so callers must drain each result set before the next query.
func NewStore(dbPath string) (*Store, error) {
	memory := dbPath == "" || dbPath == MemoryPath
	dsn := dbPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000"
	if memory {
		dsn = "file::memory:?_foreign_keys=ON"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if memory {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS files (
  id              INTEGER PRIMARY KEY,
  path            TEXT NOT NULL UNIQUE,
  package         TEXT NOT NULL DEFAULT '',
  hash            TEXT,
  generation      INTEGER NOT NULL DEFAULT 0,
  last_indexed    TIMESTAMP
);

CREATE TABLE IF NOT EXISTS imports (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
  name            TEXT NOT NULL,
  is_static       BOOLEAN DEFAULT FALSE,
  is_wildcard     BOOLEAN DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS types (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
  name            TEXT NOT NULL,
  qualified       TEXT NOT NULL,
  kind            TEXT NOT NULL,
  parent_type_id  INTEGER REFERENCES types(id) ON DELETE CASCADE,
  line            INTEGER,
  col             INTEGER
);

CREATE TABLE IF NOT EXISTS supertypes (
  id              INTEGER PRIMARY KEY,
  type_id         INTEGER NOT NULL REFERENCES types(id) ON DELETE CASCADE,
  type_expr       TEXT NOT NULL,
  ordinal         INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS type_annotations (
  id              INTEGER PRIMARY KEY,
  type_id         INTEGER NOT NULL REFERENCES types(id) ON DELETE CASCADE,
  name            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS methods (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
  type_id         INTEGER NOT NULL REFERENCES types(id) ON DELETE CASCADE,
  name            TEXT NOT NULL,
  is_constructor  BOOLEAN DEFAULT FALSE,
  line            INTEGER,
  col             INTEGER,
  end_line        INTEGER,
  end_col         INTEGER
);

CREATE TABLE IF NOT EXISTS method_params (
  id              INTEGER PRIMARY KEY,
  method_id       INTEGER NOT NULL REFERENCES methods(id) ON DELETE CASCADE,
  ordinal         INTEGER NOT NULL,
  name            TEXT,
  type_expr       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS annotations (
  id              INTEGER PRIMARY KEY,
  method_id       INTEGER NOT NULL REFERENCES methods(id) ON DELETE CASCADE,
  name            TEXT NOT NULL,
  line            INTEGER,
  col             INTEGER
);

CREATE TABLE IF NOT EXISTS annotation_args (
  id              INTEGER PRIMARY KEY,
  annotation_id   INTEGER NOT NULL REFERENCES annotations(id) ON DELETE CASCADE,
  key             TEXT NOT NULL,
  value_kind      TEXT NOT NULL,
  value_expr      TEXT
);

CREATE TABLE IF NOT EXISTS calls (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
  type_id         INTEGER NOT NULL REFERENCES types(id) ON DELETE CASCADE,
  method_id       INTEGER REFERENCES methods(id) ON DELETE CASCADE,
  name            TEXT NOT NULL,
  receiver_kind   TEXT NOT NULL,
  receiver_expr   TEXT,
  arg_count       INTEGER NOT NULL,
  first_arg_expr  TEXT,
  line            INTEGER,
  col             INTEGER
);

CREATE TABLE IF NOT EXISTS creations (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
  type_id         INTEGER NOT NULL REFERENCES types(id) ON DELETE CASCADE,
  method_id       INTEGER REFERENCES methods(id) ON DELETE CASCADE,
  type_expr       TEXT NOT NULL,
  line            INTEGER,
  col             INTEGER
);

CREATE INDEX IF NOT EXISTS idx_imports_file ON imports(file_id);
CREATE INDEX IF NOT EXISTS idx_types_file ON types(file_id);
CREATE INDEX IF NOT EXISTS idx_types_qualified ON types(qualified);
CREATE INDEX IF NOT EXISTS idx_supertypes_type ON supertypes(type_id);
CREATE INDEX IF NOT EXISTS idx_type_annotations_type ON type_annotations(type_id);
CREATE INDEX IF NOT EXISTS idx_methods_file ON methods(file_id);
CREATE INDEX IF NOT EXISTS idx_method_params_method ON method_params(method_id);
CREATE INDEX IF NOT EXISTS idx_annotations_method ON annotations(method_id);
CREATE INDEX IF NOT EXISTS idx_annotations_name ON annotations(name);
CREATE INDEX IF NOT EXISTS idx_annotation_args_annotation ON annotation_args(annotation_id);
CREATE INDEX IF NOT EXISTS idx_calls_file ON calls(file_id);
CREATE INDEX IF NOT EXISTS idx_calls_name ON calls(name);
CREATE INDEX IF NOT EXISTS idx_creations_file ON creations(file_id);
`
