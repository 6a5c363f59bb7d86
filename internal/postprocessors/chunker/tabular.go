package chunker

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/nomadai/kbase/internal/core/domain"
)

// table is CSV text split into rows, each kept as its original source text.
type table struct {
	header  string
	fields  []string
	rows    []string
	columns int
}

// parseTable reads text as RFC4180 CSV. Quoted fields may contain
// delimiters, escaped quotes and line breaks. Blank lines are dropped.
func parseTable(text string) (*table, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	var (
		t    table
		prev int64
	)
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		offset := r.InputOffset()
		raw := strings.Trim(text[prev:offset], "\r\n")
		prev = offset
		if strings.TrimSpace(raw) == "" {
			continue
		}

		if t.fields == nil {
			t.header = raw
			t.fields = trimFields(record)
			t.columns = len(record)
			continue
		}
		t.rows = append(t.rows, raw)
		t.columns = max(t.columns, len(record))
	}

	if t.fields == nil {
		return nil, errors.New("no header row")
	}
	return &t, nil
}

func trimFields(record []string) []string {
	out := make([]string, len(record))
	for i, f := range record {
		out[i] = strings.TrimSpace(f)
	}
	return out
}

// splitTable windows over data rows. The number of rows per chunk and
// of overlapping rows are derived from the average data row length, so
// irregular rows can over- or undershoot the chunk size.
func splitTable(text string, size, overlap int) ([]string, bool) {
	t, err := parseTable(text)
	if err != nil {
		return nil, false
	}
	if len(t.rows) == 0 {
		return []string{text}, true
	}

	total := 0
	for _, row := range t.rows {
		total += utf8.RuneCountInString(row)
	}
	avg := max(1, total/len(t.rows))

	rowsPerChunk := max(1, size/avg)
	overlapRows := 0
	if overlap > 0 {
		overlapRows = min(max(1, overlap/avg), rowsPerChunk-1)
	}

	spans := windows(len(t.rows), rowsPerChunk, overlapRows)
	chunks := make([]string, 0, len(spans))
	for _, s := range spans {
		var b strings.Builder
		b.WriteString(t.header)
		for _, row := range t.rows[s[0]:s[1]] {
			b.WriteByte('\n')
			b.WriteString(row)
		}
		chunks = append(chunks, b.String())
	}
	return chunks, true
}

// DescribeTable derives row count, column count and headers from CSV text.
// Returns nil when the text has no parseable header row.
func DescribeTable(text string) *domain.CSVInfo {
	t, err := parseTable(text)
	if err != nil {
		return nil
	}
	return &domain.CSVInfo{
		RowCount:    len(t.rows),
		ColumnCount: t.columns,
		Headers:     t.fields,
	}
}
