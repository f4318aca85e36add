package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/JonMunkholm/schoolfacts/internal/core"
	"github.com/JonMunkholm/schoolfacts/internal/table"
)

// ParseCSV reads a comma-separated file with one header row. Empty cells
// become nil; numeric cells become int64 or float64; everything else stays
// a string. Short rows are padded with nil.
func ParseCSV(r io.Reader, name string) (*table.Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return table.Empty(name), nil
	}
	if err != nil {
		return nil, fmt.Errorf("invalid csv: %w", err)
	}

	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = core.CleanCell(h)
	}
	if err := checkHeader(columns); err != nil {
		return nil, fmt.Errorf("invalid csv: %w", err)
	}

	var rows []table.Row
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid csv: %w", err)
		}
		if len(record) > len(columns) {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("invalid csv: line %d has %d fields, header has %d", line, len(record), len(columns))
		}
		if isEmptyRecord(record) {
			continue
		}
		row := make(table.Row, len(columns))
		for i, c := range columns {
			if i < len(record) {
				row[c] = inferCell(record[i])
			} else {
				row[c] = nil
			}
		}
		rows = append(rows, row)
	}

	return table.New(name, columns, rows), nil
}

// missingMarkers are cell spellings read as null, as spreadsheet exports
// write them.
var missingMarkers = map[string]bool{
	"NA": true, "N/A": true, "n/a": true, "NaN": true, "nan": true,
	"null": true, "NULL": true, "None": true, "#N/A": true,
}

// inferCell types a raw CSV cell the way a spreadsheet would.
func inferCell(s string) any {
	s = strings.TrimSpace(s)
	if s == "" || missingMarkers[s] {
		return nil
	}
	if n, ok := core.ToNumber(s); ok {
		return n
	}
	return s
}

func isEmptyRecord(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func checkHeader(columns []string) error {
	seen := make(map[string]bool, len(columns))
	for i, c := range columns {
		if c == "" {
			return fmt.Errorf("header column %d is empty", i+1)
		}
		if seen[c] {
			return fmt.Errorf("duplicate header column %q", c)
		}
		seen[c] = true
	}
	return nil
}
