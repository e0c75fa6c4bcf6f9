package extractor

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/dgallion1/docstruct/internal/doctree"
)

// CSVExtractor handles CSV files: the whole file becomes a single table
// element with the first record as the column list.
type CSVExtractor struct{}

func (p *CSVExtractor) Extract(r io.Reader, filename string) (string, []doctree.Element, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return "", nil, fmt.Errorf("parse csv: %w", err)
	}

	title := titleFromFilename(filename)
	if len(records) == 0 {
		return title, nil, nil
	}

	el := doctree.Element{
		Type:    doctree.ElementTable,
		Caption: title,
		Columns: records[0],
		Rows:    records[1:],
	}
	return title, []doctree.Element{el}, nil
}
