package doctree

import (
	"errors"
	"time"
)

// ErrInvalidInput marks a malformed element stream (e.g. an unknown element
// type). Builds that hit it are aborted whole; nothing partial is exposed.
var ErrInvalidInput = errors.New("invalid element stream")

// ElementType tags one item of the flat extraction stream.
type ElementType string

const (
	ElementHeading    ElementType = "heading"
	ElementParagraph  ElementType = "paragraph"
	ElementTable      ElementType = "table"
	ElementImage      ElementType = "image"
	ElementPageBreak  ElementType = "page_break"
	ElementPageHeader ElementType = "page_header"
	ElementPageFooter ElementType = "page_footer"
)

// Element is a single typed item of the flat extraction output. The stream
// is consumed once by the builder and never mutated.
type Element struct {
	Type    ElementType
	Level   int        // Heading nesting level (headings only, 1-based).
	Text    string     // Paragraph text, heading title, or header/footer text.
	Caption string     // Caption attached to a table or image.
	Columns []string   // Table header row (tables only).
	Rows    [][]string // Table data rows (tables only).
	Image   []byte     // Raw image bytes (images only).
	Page    int        // 1-based source page index, 0 if unknown.
}

// BlockType classifies a ContentBlock.
type BlockType string

const (
	BlockText  BlockType = "text"
	BlockImage BlockType = "image"
	BlockTable BlockType = "table"
)

// Document is the root aggregate: it owns all sections and, transitively,
// all content blocks. Content appearing before the first heading attaches
// directly to Blocks — there is no synthetic wrapper section.
type Document struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	SourceFilename string         `json:"source_filename"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`

	Sections []*Section      `json:"sections"`
	Blocks   []*ContentBlock `json:"blocks,omitempty"`
}

// Section is a node in the document tree. Level is 1 for top-level sections
// and always equals the parent's level + 1. Order is the dense, zero-based
// position among siblings.
type Section struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	ParentID   string `json:"parent_id,omitempty"` // empty for top-level sections
	Title      string `json:"title"`
	Level      int    `json:"level"`
	Order      int    `json:"order"`

	Sections []*Section      `json:"sections,omitempty"`
	Blocks   []*ContentBlock `json:"blocks,omitempty"`
}

// ContentBlock is a leaf holding actual content. Text blocks carry Text;
// image and table blocks carry Src, a side-storage reference written by the
// side-content extractor.
type ContentBlock struct {
	ID         string        `json:"id"`
	DocumentID string        `json:"document_id"`
	SectionID  string        `json:"section_id,omitempty"` // empty for root-level blocks
	Type       BlockType     `json:"type"`
	Text       string        `json:"text,omitempty"`
	Src        string        `json:"src,omitempty"`
	Metadata   BlockMetadata `json:"metadata"`
	Order      int           `json:"order"`
	CreatedAt  time.Time     `json:"created_at"`

	// In-memory payload carried from build to side-content extraction.
	// Cleared once written to side storage; never persisted.
	Rows  [][]string `json:"-"`
	Image []byte     `json:"-"`
}

// BlockMetadata holds type-dependent block attributes. Summary is filled in
// after initial persistence by the enrichment pass.
type BlockMetadata struct {
	Caption     string   `json:"caption,omitempty"`
	Columns     []string `json:"columns,omitempty"`
	ColumnCount int      `json:"column_count,omitempty"`
	RowCount    int      `json:"row_count,omitempty"`
	PageStart   int      `json:"page_start,omitempty"`
	PageEnd     int      `json:"page_end,omitempty"`
	Summary     string   `json:"summary,omitempty"`
}

// DocumentSummary is the list-view projection of a document: no tree.
type DocumentSummary struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	SourceFilename string    `json:"source_filename"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// EachBlock visits every content block in document order: root blocks first,
// then each section's blocks depth-first.
func (d *Document) EachBlock(fn func(*ContentBlock)) {
	for _, b := range d.Blocks {
		fn(b)
	}
	for _, s := range d.Sections {
		s.eachBlock(fn)
	}
}

func (s *Section) eachBlock(fn func(*ContentBlock)) {
	for _, b := range s.Blocks {
		fn(b)
	}
	for _, child := range s.Sections {
		child.eachBlock(fn)
	}
}

// EachSection visits every section depth-first in document order.
func (d *Document) EachSection(fn func(*Section)) {
	for _, s := range d.Sections {
		s.eachSection(fn)
	}
}

func (s *Section) eachSection(fn func(*Section)) {
	fn(s)
	for _, child := range s.Sections {
		child.eachSection(fn)
	}
}
