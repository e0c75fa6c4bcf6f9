// Package store persists document trees to SQLite and reconstructs them with
// stable ordering. All writes to one document are serialized through an
// in-process lock registry keyed by document id; atomicity within a write
// comes from SQLite transactions.
package store

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

const schema = `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		source_filename TEXT NOT NULL,
		metadata TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_created ON documents(created_at);

	CREATE TABLE IF NOT EXISTS sections (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		parent_id TEXT REFERENCES sections(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		level INTEGER NOT NULL,
		ord INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sections_document ON sections(document_id);
	CREATE INDEX IF NOT EXISTS idx_sections_parent ON sections(parent_id);

	CREATE TABLE IF NOT EXISTS content_blocks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		section_id TEXT REFERENCES sections(id) ON DELETE CASCADE,
		type TEXT NOT NULL,
		text TEXT,
		src TEXT,
		metadata TEXT,
		ord INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_blocks_document ON content_blocks(document_id);
	CREATE INDEX IF NOT EXISTS idx_blocks_section ON content_blocks(section_id);
	CREATE INDEX IF NOT EXISTS idx_blocks_type ON content_blocks(type);
`

// Store is the repository over a single SQLite database.
type Store struct {
	db    *sql.DB
	locks docLocks
}

// Open opens (and if needed creates) the database at path and applies the
// schema. Pass ":memory:" for an in-memory database in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == ":memory:" {
		// Each pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// docLocks hands out one RWMutex per document id so that writes to the same
// document never interleave while documents remain independent of each other.
type docLocks struct {
	mu sync.Mutex
	m  map[string]*sync.RWMutex
}

func (l *docLocks) get(id string) *sync.RWMutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.m == nil {
		l.m = make(map[string]*sync.RWMutex)
	}
	lk, ok := l.m[id]
	if !ok {
		lk = &sync.RWMutex{}
		l.m[id] = lk
	}
	return lk
}
