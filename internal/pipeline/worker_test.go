package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/docstruct/internal/doctree"
	"github.com/dgallion1/docstruct/internal/enrich"
	"github.com/dgallion1/docstruct/internal/sidestore"
	"github.com/dgallion1/docstruct/internal/store"
)

func testWorker(t *testing.T) (*Worker, *store.Store, *sidestore.FSStore) {
	t.Helper()
	repo, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	side := sidestore.NewFSStore(t.TempDir())
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	// Empty API key: enrichment stays disabled.
	enricher := enrich.NewEnricher(enrich.NewClient("", ""), side, repo, log)
	return NewWorker(repo, side, enricher, log, false), repo, side
}

const sampleMarkdown = `# Report

Opening paragraph.

## Inventory

| Name | Qty |
|------|-----|
| bolts | 10 |
| nuts | 20 |
`

func TestWorker_ProcessMarkdown(t *testing.T) {
	w, repo, side := testWorker(t)
	ctx := context.Background()

	job := NewJob("report.md", "", []byte(sampleMarkdown))
	w.Process(ctx, job)

	snap := job.Snapshot()
	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", snap.Status, snap.Error)
	}
	if snap.DocID == "" {
		t.Fatal("expected a document id on the job")
	}
	if snap.Sections != 2 {
		t.Errorf("expected 2 sections, got %d", snap.Sections)
	}
	if snap.Blocks != 2 {
		t.Errorf("expected 2 blocks, got %d", snap.Blocks)
	}

	doc, err := repo.Get(ctx, snap.DocID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc.Title != "report" {
		t.Errorf("expected title from filename, got %q", doc.Title)
	}

	// The table payload lives in side storage, referenced from the block.
	var tableSrc string
	doc.EachBlock(func(b *doctree.ContentBlock) {
		if b.Type == doctree.BlockTable {
			tableSrc = b.Src
		}
	})
	if tableSrc == "" {
		t.Fatal("expected table block with side reference")
	}
	data, err := side.Get(ctx, tableSrc)
	if err != nil {
		t.Fatalf("side get: %v", err)
	}
	if !strings.Contains(string(data), "bolts,10") {
		t.Errorf("unexpected side content: %q", data)
	}
}

func TestWorker_TitleOverride(t *testing.T) {
	w, repo, _ := testWorker(t)
	ctx := context.Background()

	job := NewJob("report.md", "Custom Title", []byte(sampleMarkdown))
	w.Process(ctx, job)

	snap := job.Snapshot()
	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", snap.Status, snap.Error)
	}
	doc, err := repo.Get(ctx, snap.DocID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc.Title != "Custom Title" {
		t.Errorf("expected override title, got %q", doc.Title)
	}
}

func TestWorker_UnsupportedFormatFails(t *testing.T) {
	w, _, _ := testWorker(t)

	job := NewJob("binary.exe", "", []byte{0x4d, 0x5a})
	w.Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", snap.Status)
	}
	if snap.Phase != "extracting" {
		t.Errorf("expected failure in extracting phase, got %q", snap.Phase)
	}
}

func TestJobStore_Cleanup(t *testing.T) {
	s := NewJobStore(10 * time.Millisecond)

	stale := NewJob("old.md", "", nil)
	stale.UpdatedAt = time.Now().Add(-time.Minute)
	fresh := NewJob("new.md", "", nil)
	s.Put(stale)
	s.Put(fresh)

	s.Cleanup()

	if s.Get(stale.ID) != nil {
		t.Error("expected stale job evicted")
	}
	if s.Get(fresh.ID) == nil {
		t.Error("expected fresh job retained")
	}
}

func TestJob_Snapshot(t *testing.T) {
	job := NewJob("doc.md", "T", []byte("x"))
	job.SetStatus(StatusBuilding, "building")
	job.SetResult("doc-1", 3, 7)

	snap := job.Snapshot()
	if snap.Status != StatusBuilding || snap.DocID != "doc-1" || snap.Sections != 3 || snap.Blocks != 7 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}

	// Mutating the original after the snapshot leaves the copy untouched.
	job.Fail("storing", "boom")
	if snap.Status == StatusFailed {
		t.Error("snapshot mutated by later job update")
	}

	// Snapshots are the wire type; they carry no lock and marshal cleanly
	// while the job keeps changing.
	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	if !strings.Contains(string(data), `"job_id":"`+snap.ID+`"`) {
		t.Errorf("unexpected snapshot JSON: %s", data)
	}
}

func TestNewJob_StartsQueued(t *testing.T) {
	job := NewJob("doc.md", "", []byte("x"))
	snap := job.Snapshot()
	if snap.Status != StatusQueued || snap.Phase != "queued" {
		t.Errorf("expected queued snapshot, got %+v", snap)
	}
}
