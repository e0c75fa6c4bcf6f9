// Package sidestore persists non-text block payloads (images, tabular data)
// to addressable storage and rewrites the in-memory tree to hold references
// instead of raw payload.
package sidestore

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dgallion1/docstruct/internal/doctree"
)

// Store is the side-content boundary: (document id, content type, sequence)
// in, a stable reference string out, read-back by the same reference.
type Store interface {
	Put(ctx context.Context, docID string, kind doctree.BlockType, seq int, data []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
}

// ExtractSideContent writes every image and table payload in the tree to the
// store and replaces the payload with the returned reference. It is
// idempotent per build: blocks already holding a reference are skipped. Any
// write failure aborts the whole pass — a block must never reach the
// repository with a dangling or partial reference.
func ExtractSideContent(ctx context.Context, doc *doctree.Document, store Store) error {
	var blocks []*doctree.ContentBlock
	doc.EachBlock(func(b *doctree.ContentBlock) {
		if b.Type == doctree.BlockImage || b.Type == doctree.BlockTable {
			blocks = append(blocks, b)
		}
	})

	imageSeq, tableSeq := 0, 0
	for _, b := range blocks {
		if b.Src != "" {
			continue
		}
		switch b.Type {
		case doctree.BlockImage:
			imageSeq++
			if len(b.Image) == 0 {
				continue
			}
			ref, err := store.Put(ctx, doc.ID, doctree.BlockImage, imageSeq, b.Image)
			if err != nil {
				return fmt.Errorf("store image %d: %w", imageSeq, err)
			}
			b.Src = ref
			b.Image = nil

		case doctree.BlockTable:
			tableSeq++
			if len(b.Rows) == 0 && len(b.Metadata.Columns) == 0 {
				continue
			}
			data, err := encodeCSV(b.Metadata.Columns, b.Rows)
			if err != nil {
				return fmt.Errorf("encode table %d: %w", tableSeq, err)
			}
			ref, err := store.Put(ctx, doc.ID, doctree.BlockTable, tableSeq, data)
			if err != nil {
				return fmt.Errorf("store table %d: %w", tableSeq, err)
			}
			b.Src = ref
			b.Rows = nil
		}
	}
	return nil
}

func encodeCSV(columns []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if len(columns) > 0 {
		if err := w.Write(columns); err != nil {
			return nil, err
		}
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// FSStore keeps side content on the local filesystem under
// root/<docID>/{images,tables}/<type>_<seq>.<ext>. References are
// slash-separated paths relative to root.
type FSStore struct {
	root string
}

func NewFSStore(root string) *FSStore {
	return &FSStore{root: root}
}

func (s *FSStore) Put(ctx context.Context, docID string, kind doctree.BlockType, seq int, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var dir, name string
	switch kind {
	case doctree.BlockImage:
		dir, name = "images", fmt.Sprintf("image_%04d.png", seq)
	case doctree.BlockTable:
		dir, name = "tables", fmt.Sprintf("table_%04d.csv", seq)
	default:
		return "", fmt.Errorf("unsupported side content type %q", kind)
	}

	ref := path.Join(docID, dir, name)
	full := filepath.Join(s.root, filepath.FromSlash(ref))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", ref, err)
	}
	return ref, nil
}

func (s *FSStore) Get(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// Refs are produced by Put; reject anything trying to climb out of root.
	clean := path.Clean(ref)
	if strings.HasPrefix(clean, "..") || path.IsAbs(clean) {
		return nil, fmt.Errorf("invalid reference %q", ref)
	}
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(clean)))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ref, err)
	}
	return data, nil
}

// RemoveDocument deletes every side-content file stored for a document.
// Called after the repository delete succeeds.
func (s *FSStore) RemoveDocument(docID string) error {
	if docID == "" || strings.ContainsAny(docID, "/\\.") {
		return fmt.Errorf("invalid document id %q", docID)
	}
	return os.RemoveAll(filepath.Join(s.root, docID))
}
