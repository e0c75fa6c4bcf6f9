package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgallion1/docstruct/internal/doctree"
)

// Save persists a fully built document tree in one transaction: the document
// row, then sections parent-before-child, then content blocks. Either the
// whole tree lands or none of it does. Persisting an id that already exists
// returns ErrConflict.
func (s *Store) Save(ctx context.Context, doc *doctree.Document) error {
	lock := s.locks.get(doc.ID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE id = ?`, doc.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check document: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("document %s: %w", doc.ID, ErrConflict)
	}

	metadata, err := marshalJSON(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal document metadata: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, title, source_filename, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, doc.ID, doc.Title, doc.SourceFilename, metadata, doc.CreatedAt.UnixNano(), doc.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}

	// Depth-first insertion guarantees every parent row precedes its
	// children, so the self-referencing foreign key always resolves.
	var insertSection func(sec *doctree.Section) error
	insertSection = func(sec *doctree.Section) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sections (id, document_id, parent_id, title, level, ord)
			VALUES (?, ?, ?, ?, ?, ?)
		`, sec.ID, sec.DocumentID, nullable(sec.ParentID), sec.Title, sec.Level, sec.Order)
		if err != nil {
			return fmt.Errorf("insert section %s: %w", sec.ID, err)
		}
		for _, child := range sec.Sections {
			if err := insertSection(child); err != nil {
				return err
			}
		}
		return nil
	}
	for _, sec := range doc.Sections {
		if err := insertSection(sec); err != nil {
			return err
		}
	}

	insertBlock := func(b *doctree.ContentBlock) error {
		meta, err := json.Marshal(b.Metadata)
		if err != nil {
			return fmt.Errorf("marshal block metadata: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO content_blocks (id, document_id, section_id, type, text, src, metadata, ord, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, b.ID, b.DocumentID, nullable(b.SectionID), string(b.Type), b.Text, b.Src, string(meta), b.Order, b.CreatedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("insert block %s: %w", b.ID, err)
		}
		return nil
	}
	var blockErr error
	doc.EachBlock(func(b *doctree.ContentBlock) {
		if blockErr == nil {
			blockErr = insertBlock(b)
		}
	})
	if blockErr != nil {
		return blockErr
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Get reconstructs the full tree for a document id, sections nested and
// ordered exactly as persisted. Returns ErrNotFound for an unknown id.
func (s *Store) Get(ctx context.Context, id string) (*doctree.Document, error) {
	lock := s.locks.get(id)
	lock.RLock()
	defer lock.RUnlock()

	doc := &doctree.Document{Sections: []*doctree.Section{}}
	var metadata sql.NullString
	var created, updated int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, source_filename, metadata, created_at, updated_at
		FROM documents WHERE id = ?
	`, id).Scan(&doc.ID, &doc.Title, &doc.SourceFilename, &metadata, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query document: %w", err)
	}
	doc.CreatedAt = time.Unix(0, created).UTC()
	doc.UpdatedAt = time.Unix(0, updated).UTC()
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("decode document metadata: %w", err)
		}
	}

	// Level-then-order scan: every parent (lower level) is materialized
	// before any of its children, and siblings arrive in order.
	byID := make(map[string]*doctree.Section)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, parent_id, title, level, ord
		FROM sections WHERE document_id = ?
		ORDER BY level, ord
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query sections: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		sec := &doctree.Section{}
		var parent sql.NullString
		if err := rows.Scan(&sec.ID, &sec.DocumentID, &parent, &sec.Title, &sec.Level, &sec.Order); err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		sec.ParentID = parent.String
		byID[sec.ID] = sec
		if sec.ParentID == "" {
			doc.Sections = append(doc.Sections, sec)
		} else if p, ok := byID[sec.ParentID]; ok {
			p.Sections = append(p.Sections, sec)
		} else {
			return nil, fmt.Errorf("section %s: dangling parent %s", sec.ID, sec.ParentID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sections: %w", err)
	}

	blockRows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, section_id, type, text, src, metadata, ord, created_at
		FROM content_blocks WHERE document_id = ?
		ORDER BY ord
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query blocks: %w", err)
	}
	defer blockRows.Close()
	for blockRows.Next() {
		b, sectionID, err := scanBlock(blockRows)
		if err != nil {
			return nil, err
		}
		if sectionID == "" {
			doc.Blocks = append(doc.Blocks, b)
		} else if sec, ok := byID[sectionID]; ok {
			sec.Blocks = append(sec.Blocks, b)
		} else {
			return nil, fmt.Errorf("block %s: dangling section %s", b.ID, sectionID)
		}
	}
	if err := blockRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blocks: %w", err)
	}

	return doc, nil
}

// List returns document summaries newest-first (ties broken by id), with
// offset/limit pagination.
func (s *Store) List(ctx context.Context, offset, limit int) ([]doctree.DocumentSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, source_filename, created_at, updated_at
		FROM documents
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	summaries := []doctree.DocumentSummary{}
	for rows.Next() {
		var d doctree.DocumentSummary
		var created, updated int64
		if err := rows.Scan(&d.ID, &d.Title, &d.SourceFilename, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.CreatedAt = time.Unix(0, created).UTC()
		d.UpdatedAt = time.Unix(0, updated).UTC()
		summaries = append(summaries, d)
	}
	return summaries, rows.Err()
}

// Count returns the total number of stored documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// Delete removes a document and the full transitive closure of its sections
// and content blocks in one transaction. Deleting an unknown id returns
// ErrNotFound.
func (s *Store) Delete(ctx context.Context, id string) error {
	lock := s.locks.get(id)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// UpdateBlockSummary writes an AI-generated summary into one content block's
// metadata. The narrow mutation entry point for out-of-band enrichment: it
// touches nothing but that block's metadata and runs under the owning
// document's write lock. Idempotent for a given summary string.
func (s *Store) UpdateBlockSummary(ctx context.Context, docID, blockID, summary string) error {
	lock := s.locks.get(docID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var raw sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT metadata FROM content_blocks WHERE id = ? AND document_id = ?
	`, blockID, docID).Scan(&raw)
	if err == sql.ErrNoRows {
		return fmt.Errorf("block %s: %w", blockID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("query block: %w", err)
	}

	var meta doctree.BlockMetadata
	if raw.Valid && raw.String != "" {
		if err := json.Unmarshal([]byte(raw.String), &meta); err != nil {
			return fmt.Errorf("decode block metadata: %w", err)
		}
	}
	meta.Summary = summary
	encoded, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode block metadata: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE content_blocks SET metadata = ? WHERE id = ?
	`, string(encoded), blockID); err != nil {
		return fmt.Errorf("update block: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBlock(r rowScanner) (*doctree.ContentBlock, string, error) {
	b := &doctree.ContentBlock{}
	var sectionID, text, src, meta sql.NullString
	var created int64
	var typ string
	if err := r.Scan(&b.ID, &b.DocumentID, &sectionID, &typ, &text, &src, &meta, &b.Order, &created); err != nil {
		return nil, "", fmt.Errorf("scan block: %w", err)
	}
	b.SectionID = sectionID.String
	b.Type = doctree.BlockType(typ)
	b.Text = text.String
	b.Src = src.String
	b.CreatedAt = time.Unix(0, created).UTC()
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &b.Metadata); err != nil {
			return nil, "", fmt.Errorf("decode block metadata: %w", err)
		}
	}
	return b, sectionID.String, nil
}

func collectBlocks(rows *sql.Rows) ([]*doctree.ContentBlock, error) {
	blocks := []*doctree.ContentBlock{}
	for rows.Next() {
		b, _, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

func unixNano(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}

func marshalJSON(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
