package extractor

import (
	"bufio"
	"io"
	"strings"

	"github.com/dgallion1/docstruct/internal/doctree"
)

// TextExtractor handles plain text files: each blank-line-separated
// paragraph becomes one paragraph element.
type TextExtractor struct{}

func (p *TextExtractor) Extract(r io.Reader, filename string) (string, []doctree.Element, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var elems []doctree.Element
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			elems = append(elems, doctree.Element{
				Type: doctree.ElementParagraph,
				Text: current.String(),
			})
			current.Reset()
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			flush()
		} else {
			if current.Len() > 0 {
				current.WriteString("\n")
			}
			current.WriteString(line)
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return "", nil, err
	}
	return titleFromFilename(filename), elems, nil
}
