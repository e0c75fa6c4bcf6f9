package builder

import (
	"errors"
	"testing"

	"github.com/dgallion1/docstruct/internal/doctree"
)

func heading(level int, text string) doctree.Element {
	return doctree.Element{Type: doctree.ElementHeading, Level: level, Text: text}
}

func paragraph(text string) doctree.Element {
	return doctree.Element{Type: doctree.ElementParagraph, Text: text}
}

func table(columns []string, rows [][]string) doctree.Element {
	return doctree.Element{Type: doctree.ElementTable, Columns: columns, Rows: rows}
}

func TestBuild_EmptyStream(t *testing.T) {
	doc, err := Build(nil, "Empty", "empty.md", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.ID == "" {
		t.Error("expected a document id")
	}
	if doc.Title != "Empty" {
		t.Errorf("expected title %q, got %q", "Empty", doc.Title)
	}
	if len(doc.Sections) != 0 || len(doc.Blocks) != 0 {
		t.Errorf("expected empty tree, got %d sections, %d blocks", len(doc.Sections), len(doc.Blocks))
	}
}

func TestBuild_DefaultTitle(t *testing.T) {
	doc, err := Build(nil, "", "report.pdf", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Title != "Untitled Document" {
		t.Errorf("expected default title, got %q", doc.Title)
	}
}

func TestBuild_HeadingHierarchy(t *testing.T) {
	elems := []doctree.Element{
		heading(1, "Intro"),
		paragraph("First paragraph."),
		heading(2, "Background"),
		paragraph("Background text."),
		heading(1, "Methods"),
		paragraph("Methods text."),
	}
	doc, err := Build(elems, "Doc", "doc.md", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(doc.Sections) != 2 {
		t.Fatalf("expected 2 top-level sections, got %d", len(doc.Sections))
	}
	intro := doc.Sections[0]
	if intro.Title != "Intro" || intro.Level != 1 || intro.Order != 0 {
		t.Errorf("unexpected intro: title=%q level=%d order=%d", intro.Title, intro.Level, intro.Order)
	}
	if len(intro.Blocks) != 1 || intro.Blocks[0].Text != "First paragraph." {
		t.Fatalf("unexpected intro blocks: %+v", intro.Blocks)
	}
	if len(intro.Sections) != 1 {
		t.Fatalf("expected 1 subsection under intro, got %d", len(intro.Sections))
	}
	bg := intro.Sections[0]
	if bg.Title != "Background" || bg.Level != 2 || bg.ParentID != intro.ID {
		t.Errorf("unexpected background: title=%q level=%d parent=%q", bg.Title, bg.Level, bg.ParentID)
	}

	methods := doc.Sections[1]
	if methods.Title != "Methods" || methods.Order != 1 {
		t.Errorf("unexpected methods: title=%q order=%d", methods.Title, methods.Order)
	}
}

func TestBuild_LevelClamping(t *testing.T) {
	// Levels 1, 4, 2: the 4 clamps to 2 (parent is level 1), then the 2
	// becomes a sibling of the clamped section.
	elems := []doctree.Element{
		heading(1, "Top"),
		heading(4, "Jumped"),
		heading(2, "Normal"),
	}
	doc, err := Build(elems, "Doc", "doc.md", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(doc.Sections) != 1 {
		t.Fatalf("expected 1 top-level section, got %d", len(doc.Sections))
	}
	top := doc.Sections[0]
	if len(top.Sections) != 2 {
		t.Fatalf("expected 2 children under top, got %d", len(top.Sections))
	}
	if top.Sections[0].Title != "Jumped" || top.Sections[0].Level != 2 {
		t.Errorf("expected Jumped clamped to level 2, got level %d", top.Sections[0].Level)
	}
	if top.Sections[1].Title != "Normal" || top.Sections[1].Level != 2 {
		t.Errorf("expected Normal at level 2, got level %d", top.Sections[1].Level)
	}
	if top.Sections[0].Order != 0 || top.Sections[1].Order != 1 {
		t.Errorf("expected sibling orders 0,1, got %d,%d", top.Sections[0].Order, top.Sections[1].Order)
	}
}

func TestBuild_FirstHeadingDeepLevelClamps(t *testing.T) {
	doc, err := Build([]doctree.Element{heading(3, "Deep Start")}, "Doc", "doc.md", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Sections) != 1 || doc.Sections[0].Level != 1 {
		t.Fatalf("expected first heading clamped to level 1, got %+v", doc.Sections)
	}
}

func TestBuild_RootLevelContent(t *testing.T) {
	elems := []doctree.Element{
		paragraph("Preamble before any heading."),
		heading(1, "Body"),
		paragraph("Body text."),
	}
	doc, err := Build(elems, "Doc", "doc.md", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(doc.Blocks) != 1 {
		t.Fatalf("expected 1 root-level block, got %d", len(doc.Blocks))
	}
	root := doc.Blocks[0]
	if root.Text != "Preamble before any heading." || root.SectionID != "" || root.Order != 0 {
		t.Errorf("unexpected root block: %+v", root)
	}
	if root.DocumentID != doc.ID {
		t.Errorf("expected root block bound to document %q, got %q", doc.ID, root.DocumentID)
	}
}

func TestBuild_SeparateOrderSequences(t *testing.T) {
	// A section's child sections and child blocks each count from zero.
	elems := []doctree.Element{
		heading(1, "Intro"),
		paragraph("P one."),
		paragraph("P two."),
		heading(2, "Sub"),
	}
	doc, err := Build(elems, "Doc", "doc.md", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	intro := doc.Sections[0]
	if intro.Blocks[0].Order != 0 || intro.Blocks[1].Order != 1 {
		t.Errorf("expected block orders 0,1, got %d,%d", intro.Blocks[0].Order, intro.Blocks[1].Order)
	}
	if len(intro.Sections) != 1 || intro.Sections[0].Order != 0 {
		t.Errorf("expected subsection order 0, got %+v", intro.Sections)
	}
}

func TestBuild_BlankParagraphSkipped(t *testing.T) {
	doc, err := Build([]doctree.Element{paragraph("   \n\t ")}, "Doc", "doc.md", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Blocks) != 0 {
		t.Errorf("expected blank paragraph dropped, got %d blocks", len(doc.Blocks))
	}
}

func TestBuild_TableMergeAcrossPageBreak(t *testing.T) {
	cols := []string{"Name", "Qty"}
	elems := []doctree.Element{
		heading(1, "Inventory"),
		paragraph("Listing follows."),
		table(cols, [][]string{{"bolts", "10"}, {"nuts", "20"}, {"washers", "30"}}),
		{Type: doctree.ElementPageBreak},
		table(nil, [][]string{{"screws", "40"}, {"nails", "50"}}),
		heading(2, "Notes"),
		paragraph("End of list."),
	}
	doc, err := Build(elems, "Doc", "doc.pdf", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	inv := doc.Sections[0]
	if len(inv.Blocks) != 2 {
		t.Fatalf("expected 2 blocks (paragraph + merged table), got %d", len(inv.Blocks))
	}
	tbl := inv.Blocks[1]
	if tbl.Type != doctree.BlockTable {
		t.Fatalf("expected table block, got %q", tbl.Type)
	}
	if len(tbl.Rows) != 5 {
		t.Errorf("expected 5 merged rows, got %d", len(tbl.Rows))
	}
	if tbl.Metadata.RowCount != 5 {
		t.Errorf("expected row count 5, got %d", tbl.Metadata.RowCount)
	}
	if tbl.Metadata.ColumnCount != 2 {
		t.Errorf("expected column count 2, got %d", tbl.Metadata.ColumnCount)
	}
	if tbl.Metadata.PageStart >= tbl.Metadata.PageEnd {
		t.Errorf("expected merged table to span pages, got start=%d end=%d", tbl.Metadata.PageStart, tbl.Metadata.PageEnd)
	}
}

func TestBuild_TableMergeDropsRepeatedHeaderRow(t *testing.T) {
	cols := []string{"Name", "Qty"}
	elems := []doctree.Element{
		table(cols, [][]string{{"bolts", "10"}}),
		{Type: doctree.ElementPageBreak},
		table(nil, [][]string{{"Name", "Qty"}, {"nuts", "20"}}),
	}
	doc, err := Build(elems, "Doc", "doc.pdf", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tbl := doc.Blocks[0]
	if len(tbl.Rows) != 2 {
		t.Fatalf("expected repeated header dropped leaving 2 rows, got %d: %v", len(tbl.Rows), tbl.Rows)
	}
	if tbl.Rows[1][0] != "nuts" {
		t.Errorf("unexpected merged rows: %v", tbl.Rows)
	}
}

func TestBuild_TablesWithDifferentColumnCountsDoNotMerge(t *testing.T) {
	elems := []doctree.Element{
		table([]string{"A", "B"}, [][]string{{"1", "2"}}),
		{Type: doctree.ElementPageBreak},
		table([]string{"A", "B", "C"}, [][]string{{"1", "2", "3"}}),
	}
	doc, err := Build(elems, "Doc", "doc.pdf", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Blocks) != 2 {
		t.Fatalf("expected 2 separate tables, got %d", len(doc.Blocks))
	}
}

func TestBuild_InterveningParagraphBreaksMergeChain(t *testing.T) {
	cols := []string{"A", "B"}
	elems := []doctree.Element{
		table(cols, [][]string{{"1", "2"}}),
		paragraph("Interrupting text."),
		table(cols, [][]string{{"3", "4"}}),
	}
	doc, err := Build(elems, "Doc", "doc.md", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Blocks) != 3 {
		t.Fatalf("expected table, paragraph, table, got %d blocks", len(doc.Blocks))
	}
	if doc.Blocks[0].Type != doctree.BlockTable || doc.Blocks[2].Type != doctree.BlockTable {
		t.Errorf("unexpected block types: %q, %q, %q", doc.Blocks[0].Type, doc.Blocks[1].Type, doc.Blocks[2].Type)
	}
}

func TestBuild_HeadingBreaksMergeChain(t *testing.T) {
	cols := []string{"A", "B"}
	elems := []doctree.Element{
		heading(1, "One"),
		table(cols, [][]string{{"1", "2"}}),
		heading(1, "Two"),
		table(cols, [][]string{{"3", "4"}}),
	}
	doc, err := Build(elems, "Doc", "doc.md", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Sections[0].Blocks) != 1 || len(doc.Sections[1].Blocks) != 1 {
		t.Errorf("expected one table per section, got %d and %d",
			len(doc.Sections[0].Blocks), len(doc.Sections[1].Blocks))
	}
}

func TestBuild_HeadersAndFootersDeduplicated(t *testing.T) {
	elems := []doctree.Element{
		{Type: doctree.ElementPageHeader, Text: "ACME Corp"},
		paragraph("Page one."),
		{Type: doctree.ElementPageFooter, Text: "Confidential"},
		{Type: doctree.ElementPageBreak},
		{Type: doctree.ElementPageHeader, Text: "ACME Corp"},
		paragraph("Page two."),
		{Type: doctree.ElementPageFooter, Text: "Confidential"},
	}
	doc, err := Build(elems, "Doc", "doc.pdf", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	headers, _ := doc.Metadata["headers"].([]string)
	footers, _ := doc.Metadata["footers"].([]string)
	if len(headers) != 1 || headers[0] != "ACME Corp" {
		t.Errorf("unexpected headers: %v", headers)
	}
	if len(footers) != 1 || footers[0] != "Confidential" {
		t.Errorf("unexpected footers: %v", footers)
	}
	if len(doc.Blocks) != 2 {
		t.Errorf("expected headers/footers to produce no blocks, got %d blocks", len(doc.Blocks))
	}
}

func TestBuild_ImageBlock(t *testing.T) {
	elems := []doctree.Element{
		heading(1, "Figures"),
		{Type: doctree.ElementImage, Image: []byte{0x89, 0x50}, Caption: "Figure 1"},
	}
	doc, err := Build(elems, "Doc", "doc.docx", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	blocks := doc.Sections[0].Blocks
	if len(blocks) != 1 || blocks[0].Type != doctree.BlockImage {
		t.Fatalf("expected one image block, got %+v", blocks)
	}
	if blocks[0].Metadata.Caption != "Figure 1" {
		t.Errorf("expected caption carried into metadata, got %q", blocks[0].Metadata.Caption)
	}
	if len(blocks[0].Image) == 0 {
		t.Error("expected image payload retained for side extraction")
	}
}

func TestBuild_UnknownElementTypeRejected(t *testing.T) {
	elems := []doctree.Element{
		paragraph("fine"),
		{Type: doctree.ElementType("hologram")},
	}
	_, err := Build(elems, "Doc", "doc.md", nil)
	if err == nil {
		t.Fatal("expected error for unknown element type")
	}
	if !errors.Is(err, doctree.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestBuild_PageTracking(t *testing.T) {
	elems := []doctree.Element{
		paragraph("Page one text."),
		{Type: doctree.ElementPageBreak},
		paragraph("Page two text."),
	}
	doc, err := Build(elems, "Doc", "doc.pdf", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Blocks[0].Metadata.PageStart >= doc.Blocks[1].Metadata.PageStart {
		t.Errorf("expected second paragraph on a later page: %d vs %d",
			doc.Blocks[0].Metadata.PageStart, doc.Blocks[1].Metadata.PageStart)
	}
}
