// Package tabular decodes uploaded mark sheets into header-keyed rows.
package tabular

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

const (
	ExtCSV  = ".csv"
	ExtXLSX = ".xlsx"

	// SampleLines is the number of lines handed to column resolution: the header and up to 4 data rows.
	SampleLines = 5
)

var (
	ErrUnsupported = errors.New("unsupported file type")
	ErrEmpty       = errors.New("file is empty")
	ErrEncoding    = errors.New("file is not valid UTF-8 text")

	utf8BOM = []byte{0xEF, 0xBB, 0xBF}
)

// Table is the result of parsing CSV text.
type Table struct {
	Headers []string            // literal header cells, in file order
	Rows    []map[string]string // header -> cell value
}

// HasHeader reports whether name is one of the parsed headers.
func (t Table) HasHeader(name string) bool {
	for _, h := range t.Headers {
		if h == name {
			return true
		}
	}
	return false
}

// ParseError is returned by Parse when the parser rejects a row.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Extension returns the lower-cased extension of filename.
func Extension(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

// Supported reports whether filename has one of the accepted extensions.
func Supported(filename string) bool {
	switch Extension(filename) {
	case ExtCSV, ExtXLSX:
		return true
	}
	return false
}

// Decode turns the uploaded bytes into CSV text. Spreadsheets are converted from their first sheet.
func Decode(filename string, data []byte) (string, error) {
	var text string
	switch Extension(filename) {
	case ExtCSV:
		data = bytes.TrimPrefix(data, utf8BOM)
		if !utf8.Valid(data) {
			return "", ErrEncoding
		}
		text = string(data)
	case ExtXLSX:
		var err error
		if text, err = XLSXToCSV(bytes.NewReader(data)); err != nil {
			return "", err
		}
	default:
		return "", ErrUnsupported
	}

	if strings.TrimSpace(text) == "" {
		return "", ErrEmpty
	}
	return text, nil
}

// Sample returns the first n lines of text.
func Sample(text string, n int) string {
	lines := strings.SplitN(text, "\n", n+1)
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}

// Parse reads CSV text whose first non-empty line is the header.
// Empty lines are skipped; every other row must have as many fields as the header.
func Parse(text string) (Table, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = 0 // set by the header

	header, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return Table{}, ErrEmpty
		}
		return Table{}, toParseError(err)
	}

	tbl := Table{Headers: header}
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Table{}, toParseError(err)
		}
		row := make(map[string]string, len(header))
		for i, h := range header {
			if _, dup := row[h]; dup {
				continue // first column wins on duplicate headers
			}
			row[h] = record[i]
		}
		tbl.Rows = append(tbl.Rows, row)
	}
	return tbl, nil
}

func toParseError(err error) error {
	var pErr *csv.ParseError
	if errors.As(err, &pErr) {
		return &ParseError{Line: pErr.Line, Err: pErr.Err}
	}
	return &ParseError{Err: err}
}
