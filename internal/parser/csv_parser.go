package parser

import (
	"encoding/base64"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/arnabghosh/blazingmq-session/internal/domain"
)

// Reserved columns of a message file
const (
	ColumnPayload = "payload"
	ColumnQueue   = "queue"
)

// ErrEmptyRow is returned for rows without any column
var ErrEmptyRow = errors.New("empty row")

// CSVRecord is one message read from a message file
type CSVRecord struct {
	Row        int
	QueueURI   string
	Payload    []byte
	Properties map[string]any
	Types      map[string]domain.PropertyType
}

// column describes one property column. A header of the form name:type
// forces the property type; plain headers are STRING properties.
type column struct {
	index int
	name  string
	typ   domain.PropertyType
}

var columnTypes = map[string]domain.PropertyType{
	"bool":   domain.PropertyBool,
	"char":   domain.PropertyChar,
	"short":  domain.PropertyShort,
	"int32":  domain.PropertyInt32,
	"int64":  domain.PropertyInt64,
	"string": domain.PropertyString,
	"binary": domain.PropertyBinary,
}

// CSVParser parses message files: a payload column, an optional queue
// column and any number of property columns.
type CSVParser struct {
	payloadIdx int
	queueIdx   int
	columns    []column
	parsed     bool
}

// NewCSVParser creates a new CSV parser
func NewCSVParser() *CSVParser {
	return &CSVParser{
		payloadIdx: -1,
		queueIdx:   -1,
	}
}

// ParseHeader parses the CSV header and builds the column layout
func (p *CSVParser) ParseHeader(header []string) error {
	if len(header) == 0 {
		return ErrEmptyRow
	}

	seen := make(map[string]bool, len(header))
	for i, raw := range header {
		col := strings.TrimSpace(raw)
		switch col {
		case ColumnPayload:
			p.payloadIdx = i
			continue
		case ColumnQueue:
			p.queueIdx = i
			continue
		}

		name, typeName, typed := strings.Cut(col, ":")
		if name == "" {
			return fmt.Errorf("column %d: empty property name", i)
		}
		if seen[name] {
			return fmt.Errorf("duplicate property column: %s", name)
		}
		seen[name] = true

		t := domain.PropertyString
		if typed {
			var ok bool
			if t, ok = columnTypes[strings.ToLower(typeName)]; !ok {
				return fmt.Errorf("column %s: unknown property type %q", name, typeName)
			}
		}
		p.columns = append(p.columns, column{index: i, name: name, typ: t})
	}

	if p.payloadIdx < 0 {
		return fmt.Errorf("missing required column: %s", ColumnPayload)
	}

	p.parsed = true
	return nil
}

// ParseRow parses a single CSV row into a CSVRecord. Empty property cells
// are omitted from the message.
func (p *CSVParser) ParseRow(row []string) (*CSVRecord, error) {
	if len(row) == 0 {
		return nil, ErrEmptyRow
	}

	// Ensure we have parsed the header
	if !p.parsed {
		return nil, fmt.Errorf("header not parsed yet")
	}

	getCol := func(idx int) string {
		if idx >= 0 && idx < len(row) {
			return row[idx]
		}
		return ""
	}

	record := &CSVRecord{
		QueueURI: strings.TrimSpace(getCol(p.queueIdx)),
		Payload:  []byte(getCol(p.payloadIdx)),
	}

	for _, col := range p.columns {
		cell := strings.TrimSpace(getCol(col.index))
		if cell == "" {
			continue
		}
		v, err := convertCell(col.typ, cell)
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", col.name, err)
		}
		if record.Properties == nil {
			record.Properties = make(map[string]any, len(p.columns))
			record.Types = make(map[string]domain.PropertyType, len(p.columns))
		}
		record.Properties[col.name] = v
		record.Types[col.name] = col.typ
	}

	if len(record.Payload) == 0 {
		return nil, fmt.Errorf("missing required field: %s", ColumnPayload)
	}

	return record, nil
}

// convertCell turns a cell into the Go value expected for t.
// BINARY cells are base64 encoded.
func convertCell(t domain.PropertyType, cell string) (any, error) {
	switch t {
	case domain.PropertyBool:
		return strconv.ParseBool(cell)
	case domain.PropertyChar:
		if len(cell) != 1 {
			return nil, fmt.Errorf("CHAR value must be exactly 1 byte, got %d", len(cell))
		}
		return cell[0], nil
	case domain.PropertyShort, domain.PropertyInt32, domain.PropertyInt64:
		return strconv.ParseInt(cell, 10, 64)
	case domain.PropertyBinary:
		return base64.StdEncoding.DecodeString(cell)
	default:
		return cell, nil
	}
}

// StreamReader provides an iterator-like interface for reading CSV records
type StreamReader struct {
	reader *csv.Reader
	parser *CSVParser
	row    int
}

// NewStreamReader creates a new stream reader for CSV data
func NewStreamReader(r io.Reader) (*StreamReader, error) {
	csvReader := csv.NewReader(r)
	csvReader.TrimLeadingSpace = true
	csvReader.ReuseRecord = true // Optimize memory usage

	parser := NewCSVParser()

	// Read and parse header
	header, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	if err := parser.ParseHeader(header); err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	return &StreamReader{
		reader: csvReader,
		parser: parser,
		row:    1, // Row 1 is header
	}, nil
}

// Next reads the next record from CSV
// Returns (record, nil) on success
// Returns (nil, io.EOF) when end of file is reached
// Returns (nil, error) on parse error
func (sr *StreamReader) Next() (*CSVRecord, error) {
	row, err := sr.reader.Read()
	if err != nil {
		return nil, err // io.EOF or other error
	}

	sr.row++
	record, err := sr.parser.ParseRow(row)
	if err != nil {
		return nil, fmt.Errorf("row %d: %w", sr.row, err)
	}
	record.Row = sr.row

	return record, nil
}

// Row returns the current row number (1-indexed, including header)
func (sr *StreamReader) Row() int {
	return sr.row
}
