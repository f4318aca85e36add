package source

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/JonMunkholm/schoolfacts/internal/table"
)

// ParseXML collects every element named record, at any depth, into one row.
// Each child element becomes a column named after its tag holding the
// trimmed text; empty text is nil. Columns are ordered by first appearance.
// All values are strings; numeric coercion happens during reconciliation.
func ParseXML(r io.Reader, name, record string) (*table.Table, error) {
	dec := xml.NewDecoder(r)

	var columns []string
	seen := make(map[string]bool)
	var rows []table.Row

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid xml: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != record {
			continue
		}

		row, keys, err := decodeXMLRecord(dec, start)
		if err != nil {
			return nil, fmt.Errorf("invalid xml: %s %d: %w", record, len(rows)+1, err)
		}
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
		rows = append(rows, row)
	}

	return table.New(name, columns, rows), nil
}

// decodeXMLRecord reads the children of start until its end element.
func decodeXMLRecord(dec *xml.Decoder, start xml.StartElement) (table.Row, []string, error) {
	row := make(table.Row)
	var keys []string
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var text string
			if err := dec.DecodeElement(&text, &t); err != nil {
				return nil, nil, err
			}
			col := t.Name.Local
			if _, dup := row[col]; !dup {
				keys = append(keys, col)
			}
			text = strings.TrimSpace(text)
			if text == "" {
				row[col] = nil
			} else {
				row[col] = text
			}
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				return row, keys, nil
			}
		}
	}
}
