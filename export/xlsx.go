/*
Package export serializes a recon.Report as an xlsx workbook and reads
stored workbooks back for preview.

LAYOUT:
  One worksheet per report sheet, in report order (CKH, KKH, tieu chi 1..3).
  Row 1 is the header in bold; every cell is written as text so account
  and customer ids keep their leading zeros and full precision.

SEE ALSO:
  - recon/report.go: Report
  - api/handlers.go: download and preview endpoints
*/
package export

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/warp/authz-report/recon"
	"github.com/xuri/excelize/v2"
)

// DefaultFileName is the report name used when none is configured.
const DefaultFileName = "DVKH_2241.xlsx"

// ContentType is the MIME type of the generated workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ErrSheetNotFound is returned by ReadSheet for an unknown sheet.
var ErrSheetNotFound = errors.New("sheet not found")

// WriteXLSX writes the report as a workbook.
func WriteXLSX(w io.Writer, r *recon.Report) error {
	if len(r.Sheets) == 0 {
		return errors.New("report has no sheets")
	}

	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	const placeholder = "Sheet1"
	for _, s := range r.Sheets {
		if _, err := f.NewSheet(s.Name); err != nil {
			return fmt.Errorf("sheet %q: %w", s.Name, err)
		}
		if err := writeSheet(f, s, header); err != nil {
			return fmt.Errorf("sheet %q: %w", s.Name, err)
		}
	}
	if err := f.DeleteSheet(placeholder); err != nil {
		return err
	}
	f.SetActiveSheet(0)

	return f.Write(w)
}

// Bytes renders the report into memory.
func Bytes(r *recon.Report) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, s recon.Sheet, headerStyle int) error {
	sw, err := f.NewStreamWriter(s.Name)
	if err != nil {
		return err
	}

	records := s.Table.Records()
	for i, rec := range records {
		row := make([]any, len(rec))
		for j, v := range rec {
			if i == 0 {
				row[j] = excelize.Cell{StyleID: headerStyle, Value: v}
			} else {
				row[j] = v
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return err
		}
	}
	return sw.Flush()
}

// =============================================================================
// PREVIEW
// =============================================================================

// Preview is the head of one sheet of a stored workbook.
type Preview struct {
	Sheet     string
	Columns   []string
	Rows      [][]string
	TotalRows int
}

// SheetNames lists the sheets of a workbook in order.
func SheetNames(data []byte) ([]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.GetSheetList(), nil
}

// ReadSheet returns the header and at most limit data rows of a sheet.
// Rows are padded to the header width. limit <= 0 returns every row.
func ReadSheet(data []byte, sheet string, limit int) (*Preview, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrSheetNotFound, sheet)
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	p := &Preview{Sheet: sheet}
	first := true
	for rows.Next() {
		cols, err := rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, err
		}
		if first {
			p.Columns = cols
			first = false
			continue
		}
		p.TotalRows++
		if limit > 0 && len(p.Rows) >= limit {
			continue
		}
		p.Rows = append(p.Rows, pad(cols, len(p.Columns)))
	}
	return p, rows.Error()
}

func pad(row []string, width int) []string {
	if len(row) >= width {
		return row[:width]
	}
	out := make([]string, width)
	copy(out, row)
	return out
}
