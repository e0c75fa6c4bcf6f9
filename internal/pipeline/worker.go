package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgallion1/docstruct/internal/builder"
	"github.com/dgallion1/docstruct/internal/doctree"
	"github.com/dgallion1/docstruct/internal/enrich"
	"github.com/dgallion1/docstruct/internal/extractor"
	"github.com/dgallion1/docstruct/internal/sidestore"
	"github.com/dgallion1/docstruct/internal/store"
)

// Worker processes a single document job: extract → build → side-store →
// persist → enrich.
type Worker struct {
	repo        *store.Store
	side        *sidestore.FSStore
	enricher    *enrich.Enricher
	log         *slog.Logger
	pdfFallback bool
}

func NewWorker(repo *store.Store, side *sidestore.FSStore, enricher *enrich.Enricher, log *slog.Logger, pdfFallback bool) *Worker {
	return &Worker{
		repo:        repo,
		side:        side,
		enricher:    enricher,
		log:         log,
		pdfFallback: pdfFallback,
	}
}

// Process runs the full ingest pipeline for a job. Any failure before the
// persist commits leaves no trace: side-content files written for the
// aborted document are removed.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "filename", job.Filename)

	// Phase 1: extract the flat element stream.
	job.SetStatus(StatusExtracting, "extracting")
	ex, err := extractor.ForFile(job.Filename)
	if err != nil {
		log.Error("unsupported format", "error", err)
		job.Fail("extracting", err.Error())
		return
	}
	if pdfEx, ok := ex.(*extractor.PDFExtractor); ok {
		pdfEx.FallbackPdftotext = w.pdfFallback
	}
	title, elems, err := ex.Extract(bytes.NewReader(job.fileData), job.Filename)
	if err != nil {
		log.Error("extract failed", "error", err)
		job.Fail("extracting", fmt.Sprintf("extract: %s", err))
		return
	}
	if job.Title != "" {
		title = job.Title
	}

	// Phase 2: build the tree.
	job.SetStatus(StatusBuilding, "building")
	doc, err := builder.Build(elems, title, job.Filename, nil)
	if err != nil {
		log.Error("build failed", "error", err)
		job.Fail("building", fmt.Sprintf("build: %s", err))
		return
	}

	sections, blocks := countNodes(doc)
	job.SetResult(doc.ID, sections, blocks)
	log.Info("built document tree", "doc_id", doc.ID, "sections", sections, "blocks", blocks)

	// Phase 3: move image/table payloads to side storage.
	if err := sidestore.ExtractSideContent(ctx, doc, w.side); err != nil {
		log.Error("side content extraction failed", "error", err)
		w.cleanupSide(doc.ID, log)
		job.Fail("side_content", fmt.Sprintf("side content: %s", err))
		return
	}

	// Phase 4: persist the whole tree atomically.
	job.SetStatus(StatusStoring, "storing")
	if err := w.repo.Save(ctx, doc); err != nil {
		log.Error("persist failed", "error", err)
		w.cleanupSide(doc.ID, log)
		if errors.Is(err, store.ErrConflict) {
			job.Fail("storing", "document already exists")
		} else {
			job.Fail("storing", fmt.Sprintf("persist: %s", err))
		}
		return
	}

	// Phase 5: best-effort AI summaries, applied after persistence.
	if w.enricher != nil {
		job.SetStatus(StatusEnriching, "enriching")
		enriched := w.enricher.EnrichDocument(ctx, doc)
		job.SetEnriched(enriched)
		if enriched > 0 {
			log.Info("enriched blocks", "doc_id", doc.ID, "count", enriched)
		}
	}

	job.SetStatus(StatusCompleted, "done")
	log.Info("document ingested", "doc_id", doc.ID)
}

func (w *Worker) cleanupSide(docID string, log *slog.Logger) {
	if err := w.side.RemoveDocument(docID); err != nil {
		log.Warn("side content cleanup failed", "doc_id", docID, "error", err)
	}
}

func countNodes(doc *doctree.Document) (sections, blocks int) {
	doc.EachSection(func(*doctree.Section) { sections++ })
	doc.EachBlock(func(*doctree.ContentBlock) { blocks++ })
	return sections, blocks
}
