package extractor

import (
	"bytes"
	"io"
	"strings"

	"github.com/dgallion1/docstruct/internal/doctree"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownExtractor handles Markdown files using goldmark with GFM tables.
type MarkdownExtractor struct{}

func (p *MarkdownExtractor) Extract(r io.Reader, filename string) (string, []doctree.Element, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return "", nil, err
	}

	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	reader := text.NewReader(src)
	doc := md.Parser().Parse(reader)

	var elems []doctree.Element
	var currentText bytes.Buffer

	flushText := func() {
		t := strings.TrimSpace(currentText.String())
		if t != "" {
			elems = append(elems, doctree.Element{Type: doctree.ElementParagraph, Text: t})
		}
		currentText.Reset()
	}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			flushText()
			elems = append(elems, doctree.Element{
				Type:  doctree.ElementHeading,
				Level: node.Level,
				Text:  string(node.Text(src)),
			})

		case *east.Table:
			flushText()
			elems = append(elems, tableElement(node, src))

		default:
			// Collect text content from non-heading blocks.
			t := extractText(n, src)
			if t != "" {
				if currentText.Len() > 0 {
					currentText.WriteString("\n\n")
				}
				currentText.WriteString(t)
			}
		}
	}
	flushText()

	return titleFromFilename(filename), elems, nil
}

// tableElement converts a GFM table node into a table element: header row
// becomes the column list, the remaining rows the data payload.
func tableElement(table *east.Table, src []byte) doctree.Element {
	el := doctree.Element{Type: doctree.ElementTable}
	for row := table.FirstChild(); row != nil; row = row.NextSibling() {
		var cells []string
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, strings.TrimSpace(string(cell.Text(src))))
		}
		if _, ok := row.(*east.TableHeader); ok && el.Columns == nil {
			el.Columns = cells
		} else {
			el.Rows = append(el.Rows, cells)
		}
	}
	return el
}

// extractText gets the text content of a goldmark AST node. A block node's
// source lines already cover its inline children, so a node contributes
// either its lines or its children, never both.
func extractText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	if n.Type() == ast.TypeBlock {
		if lines := n.Lines(); lines.Len() > 0 {
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				buf.Write(seg.Value(src))
			}
			return strings.TrimSpace(buf.String())
		}
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte('\n')
			}
		} else {
			if buf.Len() > 0 && c.Type() == ast.TypeBlock {
				buf.WriteByte('\n')
			}
			buf.WriteString(extractText(c, src))
		}
	}
	return strings.TrimSpace(buf.String())
}
