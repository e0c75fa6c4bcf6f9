package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dgallion1/docstruct/internal/doctree"
	"github.com/google/uuid"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// fixtureDoc builds a two-level tree with a root-level preamble block, a
// paragraph, and a table block carrying a side-content reference.
func fixtureDoc(title string) *doctree.Document {
	now := time.Now().UTC()
	doc := &doctree.Document{
		ID:             uuid.NewString(),
		Title:          title,
		SourceFilename: "report.pdf",
		Metadata:       map[string]any{"headers": []any{"ACME Corp"}},
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	doc.Blocks = []*doctree.ContentBlock{{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		Type:       doctree.BlockText,
		Text:       "Preamble.",
		Order:      0,
		CreatedAt:  now,
	}}

	intro := &doctree.Section{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		Title:      "Intro",
		Level:      1,
		Order:      0,
	}
	sub := &doctree.Section{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		ParentID:   intro.ID,
		Title:      "Sub",
		Level:      2,
		Order:      0,
	}
	intro.Sections = []*doctree.Section{sub}
	intro.Blocks = []*doctree.ContentBlock{
		{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			SectionID:  intro.ID,
			Type:       doctree.BlockText,
			Text:       "Intro paragraph about reactors.",
			Order:      0,
			CreatedAt:  now,
		},
		{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			SectionID:  intro.ID,
			Type:       doctree.BlockTable,
			Src:        doc.ID + "/tables/table_0001.csv",
			Metadata: doctree.BlockMetadata{
				Columns:     []string{"Name", "Qty"},
				ColumnCount: 2,
				RowCount:    3,
			},
			Order:     1,
			CreatedAt: now,
		},
	}
	doc.Sections = []*doctree.Section{intro}
	return doc
}

func TestSaveAndGet_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	doc := fixtureDoc("Reactor Report")
	if err := s.Save(ctx, doc); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Get(ctx, doc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if got.ID != doc.ID || got.Title != doc.Title || got.SourceFilename != doc.SourceFilename {
		t.Errorf("document fields mismatch: %+v", got)
	}
	if !got.CreatedAt.Equal(doc.CreatedAt) {
		t.Errorf("created_at mismatch: %v vs %v", got.CreatedAt, doc.CreatedAt)
	}
	if got.Metadata == nil {
		t.Error("expected metadata round-tripped")
	}

	if len(got.Blocks) != 1 || got.Blocks[0].Text != "Preamble." || got.Blocks[0].SectionID != "" {
		t.Fatalf("unexpected root blocks: %+v", got.Blocks)
	}

	if len(got.Sections) != 1 {
		t.Fatalf("expected 1 top-level section, got %d", len(got.Sections))
	}
	intro := got.Sections[0]
	if intro.Title != "Intro" || intro.Level != 1 || intro.Order != 0 {
		t.Errorf("unexpected intro: %+v", intro)
	}
	if len(intro.Sections) != 1 || intro.Sections[0].Title != "Sub" || intro.Sections[0].ParentID != intro.ID {
		t.Fatalf("unexpected subsections: %+v", intro.Sections)
	}
	if len(intro.Blocks) != 2 {
		t.Fatalf("expected 2 blocks in intro, got %d", len(intro.Blocks))
	}
	if intro.Blocks[0].Order != 0 || intro.Blocks[1].Order != 1 {
		t.Errorf("blocks out of order: %d, %d", intro.Blocks[0].Order, intro.Blocks[1].Order)
	}
	tbl := intro.Blocks[1]
	if tbl.Type != doctree.BlockTable || tbl.Src == "" {
		t.Errorf("unexpected table block: %+v", tbl)
	}
	if tbl.Metadata.ColumnCount != 2 || tbl.Metadata.RowCount != 3 {
		t.Errorf("table metadata lost: %+v", tbl.Metadata)
	}
	if len(tbl.Metadata.Columns) != 2 || tbl.Metadata.Columns[0] != "Name" {
		t.Errorf("columns lost: %v", tbl.Metadata.Columns)
	}
}

func TestSave_DuplicateIDConflicts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	doc := fixtureDoc("Once")
	if err := s.Save(ctx, doc); err != nil {
		t.Fatalf("save: %v", err)
	}
	err := s.Save(ctx, doc)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestGet_UnknownID(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(context.Background(), "no-such-doc")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestList_OrderAndPagination(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		doc := fixtureDoc(fmt.Sprintf("Doc %d", i))
		doc.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		doc.UpdatedAt = doc.CreatedAt
		if err := s.Save(ctx, doc); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	all, err := s.List(ctx, 0, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 documents, got %d", len(all))
	}
	if all[0].Title != "Doc 2" || all[2].Title != "Doc 0" {
		t.Errorf("expected newest first, got %q ... %q", all[0].Title, all[2].Title)
	}

	page, err := s.List(ctx, 1, 1)
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if len(page) != 1 || page[0].Title != "Doc 1" {
		t.Errorf("unexpected page: %+v", page)
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Errorf("expected count 3, got %d", n)
	}
}

func TestDelete_CascadesAndIsolates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	victim := fixtureDoc("Victim")
	keeper := fixtureDoc("Keeper")
	for _, d := range []*doctree.Document{victim, keeper} {
		if err := s.Save(ctx, d); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	if err := s.Delete(ctx, victim.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := s.Get(ctx, victim.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected victim gone, got %v", err)
	}

	// Cascade must remove every child row, not just the document.
	for _, q := range []string{
		`SELECT COUNT(*) FROM sections WHERE document_id = ?`,
		`SELECT COUNT(*) FROM content_blocks WHERE document_id = ?`,
	} {
		var n int
		if err := s.db.QueryRowContext(ctx, q, victim.ID).Scan(&n); err != nil {
			t.Fatalf("count rows: %v", err)
		}
		if n != 0 {
			t.Errorf("expected 0 rows for %q, got %d", q, n)
		}
	}

	// The other document is untouched.
	got, err := s.Get(ctx, keeper.ID)
	if err != nil {
		t.Fatalf("get keeper: %v", err)
	}
	if len(got.Sections) != 1 || len(got.Blocks) != 1 {
		t.Errorf("keeper tree damaged: %d sections, %d blocks", len(got.Sections), len(got.Blocks))
	}
}

func TestDelete_UnknownID(t *testing.T) {
	s := openTestStore(t)
	err := s.Delete(context.Background(), "no-such-doc")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateBlockSummary(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	doc := fixtureDoc("Summarized")
	if err := s.Save(ctx, doc); err != nil {
		t.Fatalf("save: %v", err)
	}
	tbl := doc.Sections[0].Blocks[1]

	if err := s.UpdateBlockSummary(ctx, doc.ID, tbl.ID, "Three inventory rows."); err != nil {
		t.Fatalf("update summary: %v", err)
	}

	got, err := s.Get(ctx, doc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	updated := got.Sections[0].Blocks[1]
	if updated.Metadata.Summary != "Three inventory rows." {
		t.Errorf("summary not stored: %+v", updated.Metadata)
	}
	// The rest of the metadata survives the rewrite.
	if updated.Metadata.ColumnCount != 2 || updated.Metadata.RowCount != 3 {
		t.Errorf("metadata clobbered: %+v", updated.Metadata)
	}

	err = s.UpdateBlockSummary(ctx, doc.ID, "no-such-block", "x")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown block, got %v", err)
	}
}
