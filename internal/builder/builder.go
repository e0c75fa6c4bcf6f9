package builder

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgallion1/docstruct/internal/doctree"
	"github.com/google/uuid"
)

// Build consumes a flat element stream once and produces a rooted document
// tree. Heading elements open sections; everything else attaches to the
// current insertion point. An empty stream yields a document with no
// sections and no blocks — that is not an error.
//
// Heading levels in real extraction output jump around (1, 4, 2, ...). A
// level that would leave a gap greater than one below its parent is clamped
// to parent+1; the builder never invents intermediate sections and never
// rejects a gap.
func Build(elems []doctree.Element, title, filename string, metadata map[string]any) (*doctree.Document, error) {
	now := time.Now().UTC()
	if title == "" {
		title = "Untitled Document"
	}

	doc := &doctree.Document{
		ID:             uuid.NewString(),
		Title:          title,
		SourceFilename: filename,
		Metadata:       copyMetadata(metadata),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	b := &build{doc: doc, now: now}
	for i, el := range elems {
		if err := b.consume(el); err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
	}
	b.flushHeadersFooters()

	return doc, nil
}

// build tracks the open-section stack and the table-merge lookback while the
// stream is consumed.
type build struct {
	doc   *doctree.Document
	stack []*doctree.Section
	now   time.Time

	page      int                   // current 1-based page index
	lastTable *doctree.ContentBlock // merge candidate; nil once any content intervenes

	headers []string
	footers []string
}

func (b *build) consume(el doctree.Element) error {
	if el.Page > 0 {
		b.page = el.Page
	}

	switch el.Type {
	case doctree.ElementPageBreak:
		// A page break is only a marker for the elements that follow; it
		// never becomes a node and never breaks a table merge chain.
		if el.Page == 0 {
			b.page++
		}
		return nil

	case doctree.ElementPageHeader:
		if t := strings.TrimSpace(el.Text); t != "" {
			b.headers = appendUnique(b.headers, t)
		}
		return nil

	case doctree.ElementPageFooter:
		if t := strings.TrimSpace(el.Text); t != "" {
			b.footers = appendUnique(b.footers, t)
		}
		return nil

	case doctree.ElementHeading:
		b.lastTable = nil
		b.openSection(el)
		return nil

	case doctree.ElementParagraph:
		text := strings.TrimSpace(el.Text)
		if text == "" {
			return nil
		}
		b.lastTable = nil
		b.appendBlock(&doctree.ContentBlock{
			Type:     doctree.BlockText,
			Text:     text,
			Metadata: doctree.BlockMetadata{PageStart: b.page, PageEnd: b.page},
		})
		return nil

	case doctree.ElementImage:
		b.lastTable = nil
		b.appendBlock(&doctree.ContentBlock{
			Type:  doctree.BlockImage,
			Image: el.Image,
			Metadata: doctree.BlockMetadata{
				Caption:   el.Caption,
				PageStart: b.page,
				PageEnd:   b.page,
			},
		})
		return nil

	case doctree.ElementTable:
		b.appendTable(el)
		return nil

	default:
		return fmt.Errorf("%w: unknown element type %q", doctree.ErrInvalidInput, el.Type)
	}
}

// openSection pops the stack to the incoming heading's parent and pushes a
// new section there.
func (b *build) openSection(el doctree.Element) {
	level := el.Level
	if level < 1 {
		level = 1
	}
	for len(b.stack) > 0 && b.stack[len(b.stack)-1].Level >= level {
		b.stack = b.stack[:len(b.stack)-1]
	}

	parentLevel := 0
	if len(b.stack) > 0 {
		parentLevel = b.stack[len(b.stack)-1].Level
	}
	if level > parentLevel+1 {
		level = parentLevel + 1
	}

	sec := &doctree.Section{
		ID:         uuid.NewString(),
		DocumentID: b.doc.ID,
		Title:      strings.TrimSpace(el.Text),
		Level:      level,
	}
	if len(b.stack) == 0 {
		sec.Order = len(b.doc.Sections)
		b.doc.Sections = append(b.doc.Sections, sec)
	} else {
		parent := b.stack[len(b.stack)-1]
		sec.ParentID = parent.ID
		sec.Order = len(parent.Sections)
		parent.Sections = append(parent.Sections, sec)
	}
	b.stack = append(b.stack, sec)
}

// appendBlock attaches a block to the current insertion point: the innermost
// open section, or the document root if no heading has been seen yet.
func (b *build) appendBlock(block *doctree.ContentBlock) {
	block.ID = uuid.NewString()
	block.DocumentID = b.doc.ID
	block.CreatedAt = b.now
	if len(b.stack) == 0 {
		block.Order = len(b.doc.Blocks)
		b.doc.Blocks = append(b.doc.Blocks, block)
		return
	}
	sec := b.stack[len(b.stack)-1]
	block.SectionID = sec.ID
	block.Order = len(sec.Blocks)
	sec.Blocks = append(sec.Blocks, block)
}

// appendTable applies the single-lookback merge pass: an incoming table
// fragment joins the immediately preceding sibling table when nothing but a
// page-break marker separates them and the column counts match exactly.
func (b *build) appendTable(el doctree.Element) {
	cols := len(el.Columns)
	if cols == 0 && len(el.Rows) > 0 {
		cols = len(el.Rows[0])
	}

	if prev := b.lastTable; prev != nil && prev.Metadata.ColumnCount == cols && cols > 0 {
		rows := el.Rows
		// Continuation pages often repeat the header row verbatim; drop it.
		if len(el.Columns) > 0 && equalRow(el.Columns, prev.Metadata.Columns) {
			// Header carried separately, nothing to strip from Rows.
		} else if len(el.Columns) == 0 && len(rows) > 0 && equalRow(rows[0], prev.Metadata.Columns) {
			rows = rows[1:]
		}
		prev.Rows = append(prev.Rows, rows...)
		prev.Metadata.RowCount = len(prev.Rows)
		if b.page > prev.Metadata.PageEnd {
			prev.Metadata.PageEnd = b.page
		}
		return
	}

	block := &doctree.ContentBlock{
		Type: doctree.BlockTable,
		Rows: el.Rows,
		Metadata: doctree.BlockMetadata{
			Caption:     el.Caption,
			Columns:     el.Columns,
			ColumnCount: cols,
			RowCount:    len(el.Rows),
			PageStart:   b.page,
			PageEnd:     b.page,
		},
	}
	b.appendBlock(block)
	b.lastTable = block
}

func (b *build) flushHeadersFooters() {
	if len(b.headers) == 0 && len(b.footers) == 0 {
		return
	}
	if b.doc.Metadata == nil {
		b.doc.Metadata = map[string]any{}
	}
	if len(b.headers) > 0 {
		sort.Strings(b.headers)
		b.doc.Metadata["headers"] = b.headers
	}
	if len(b.footers) > 0 {
		sort.Strings(b.footers)
		b.doc.Metadata["footers"] = b.footers
	}
}

func copyMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func appendUnique(s []string, v string) []string {
	for _, existing := range s {
		if existing == v {
			return s
		}
	}
	return append(s, v)
}

func equalRow(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
