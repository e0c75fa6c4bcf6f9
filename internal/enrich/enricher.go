package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/dgallion1/docstruct/internal/doctree"
	"github.com/dgallion1/docstruct/internal/sidestore"
)

// maxCSVPromptBytes caps how much tabular payload goes into one prompt.
const maxCSVPromptBytes = 32 * 1024

// SummaryUpdater is the repository-side mutation entry point.
type SummaryUpdater interface {
	UpdateBlockSummary(ctx context.Context, docID, blockID, summary string) error
}

// Enricher walks a persisted document tree and writes an AI summary into
// each table and captioned image block.
type Enricher struct {
	client *Client
	side   sidestore.Store
	repo   SummaryUpdater
	log    *slog.Logger
}

func NewEnricher(client *Client, side sidestore.Store, repo SummaryUpdater, log *slog.Logger) *Enricher {
	return &Enricher{client: client, side: side, repo: repo, log: log}
}

// EnrichDocument summarizes every eligible block. Failures are logged and
// skipped — enrichment never fails an ingest. Returns the number of blocks
// enriched.
func (e *Enricher) EnrichDocument(ctx context.Context, doc *doctree.Document) int {
	if !e.client.Enabled() {
		return 0
	}
	log := e.log.With("doc_id", doc.ID)

	enriched := 0
	var blocks []*doctree.ContentBlock
	doc.EachBlock(func(b *doctree.ContentBlock) {
		blocks = append(blocks, b)
	})

	for _, b := range blocks {
		if ctx.Err() != nil {
			return enriched
		}
		prompt, ok := e.blockPrompt(ctx, doc.Title, b)
		if !ok {
			continue
		}
		summary, err := e.summarizeWithRetry(ctx, prompt)
		if err != nil {
			log.Warn("summarize block failed", "block_id", b.ID, "type", b.Type, "error", err)
			continue
		}
		if err := e.repo.UpdateBlockSummary(ctx, doc.ID, b.ID, summary); err != nil {
			log.Warn("store summary failed", "block_id", b.ID, "error", err)
			continue
		}
		enriched++
	}
	return enriched
}

func (e *Enricher) blockPrompt(ctx context.Context, docTitle string, b *doctree.ContentBlock) (string, bool) {
	switch b.Type {
	case doctree.BlockTable:
		if b.Src == "" {
			return "", false
		}
		data, err := e.side.Get(ctx, b.Src)
		if err != nil {
			e.log.Warn("read table payload failed", "block_id", b.ID, "error", err)
			return "", false
		}
		if len(data) > maxCSVPromptBytes {
			data = data[:maxCSVPromptBytes]
		}
		return tablePrompt(docTitle, b.Metadata.Caption, string(data)), true

	case doctree.BlockImage:
		if b.Metadata.Caption == "" {
			return "", false
		}
		return imagePrompt(docTitle, b.Metadata.Caption), true

	default:
		return "", false
	}
}

func tablePrompt(docTitle, caption, csvData string) string {
	var sb strings.Builder
	sb.WriteString("Summarize the following table from the document \"")
	sb.WriteString(docTitle)
	sb.WriteString("\".\n")
	if caption != "" {
		sb.WriteString("Caption: ")
		sb.WriteString(caption)
		sb.WriteString("\n")
	}
	sb.WriteString("\nCSV data:\n")
	sb.WriteString(csvData)
	return sb.String()
}

func imagePrompt(docTitle, caption string) string {
	return fmt.Sprintf("Describe, in one sentence, what a figure captioned %q in the document %q likely shows.", caption, docTitle)
}

func (e *Enricher) summarizeWithRetry(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		summary, err := e.client.Summarize(ctx, prompt)
		if err == nil {
			return summary, nil
		}
		lastErr = err
		if !isRetryable(err) {
			break
		}
		select {
		case <-time.After(backoff(attempt)):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", lastErr
}

const maxRetries = 3

func isRetryable(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}

// backoff returns a duration for attempt n (0-indexed) with jitter.
func backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int63n(int64(base) / 2))
	return base + jitter
}
