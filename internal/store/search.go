package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/dgallion1/docstruct/internal/doctree"
)

// SearchDocuments finds documents whose title or source filename contains the
// query, case-insensitively. Empty result sets are normal.
func (s *Store) SearchDocuments(ctx context.Context, query string, offset, limit int) ([]doctree.DocumentSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	pattern := likePattern(query)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, source_filename, created_at, updated_at
		FROM documents
		WHERE title LIKE ? ESCAPE '\' OR source_filename LIKE ? ESCAPE '\'
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?
	`, pattern, pattern, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	defer rows.Close()

	summaries := []doctree.DocumentSummary{}
	for rows.Next() {
		var d doctree.DocumentSummary
		var created, updated int64
		if err := rows.Scan(&d.ID, &d.Title, &d.SourceFilename, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.CreatedAt = unixNano(created)
		d.UpdatedAt = unixNano(updated)
		summaries = append(summaries, d)
	}
	return summaries, rows.Err()
}

// SearchContent finds content blocks whose text payload contains the query,
// case-insensitively, across all documents.
func (s *Store) SearchContent(ctx context.Context, query string, offset, limit int) ([]*doctree.ContentBlock, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, section_id, type, text, src, metadata, ord, created_at
		FROM content_blocks
		WHERE text LIKE ? ESCAPE '\'
		ORDER BY document_id, ord
		LIMIT ? OFFSET ?
	`, likePattern(query), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("search content: %w", err)
	}
	defer rows.Close()
	return collectBlocks(rows)
}

// BlocksByType returns every content block of the given type across all
// documents, paginated.
func (s *Store) BlocksByType(ctx context.Context, blockType doctree.BlockType, offset, limit int) ([]*doctree.ContentBlock, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, section_id, type, text, src, metadata, ord, created_at
		FROM content_blocks
		WHERE type = ?
		ORDER BY document_id, ord
		LIMIT ? OFFSET ?
	`, string(blockType), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("blocks by type: %w", err)
	}
	defer rows.Close()
	return collectBlocks(rows)
}

// likePattern builds a contains-match LIKE pattern, escaping the wildcard
// characters in the query. SQLite LIKE is case-insensitive for ASCII.
func likePattern(query string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(query)
	return "%" + escaped + "%"
}
