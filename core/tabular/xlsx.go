package tabular

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

// XLSXToCSV converts the first sheet of a workbook to CSV text.
// Rows are padded to the widest row so every record has the same number of fields.
func XLSXToCSV(r io.Reader) (string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return "", errors.Wrap(err, "opening workbook")
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", ErrEmpty
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return "", errors.Wrapf(err, "reading sheet %q", sheets[0])
	}

	var width int
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	if width == 0 {
		return "", ErrEmpty
	}

	var sb strings.Builder
	w := csv.NewWriter(&sb)
	for _, row := range rows {
		record := make([]string, width)
		copy(record, row)
		if err := w.Write(record); err != nil {
			return "", errors.Wrap(err, "writing csv")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", errors.Wrap(err, "writing csv")
	}
	return sb.String(), nil
}
