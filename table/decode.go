/*
decode.go - Raw extract decoding with ordered fallback strategies

PURPOSE:
  Turns the bytes of one acquired file into a Table. Core-banking extracts
  arrive in several shapes: real OOXML workbooks, legacy BIFF .xls files,
  and tab-delimited text that is sometimes saved under an .xls name.

STRATEGY ORDER:
  Spreadsheet hint: xlsx (excelize) -> xls (xlsReader) -> tsv
  Delimited hint:   tsv
  Date-formatted workbook cells are rendered as ISO text, every other cell
  keeps its raw value.
  The first strategy that succeeds wins. When every strategy fails the
  caller gets a *DecodeError naming the source and each attempt.

DELIMITED TEXT:
  - Lines are split on a literal tab; quotes carry no meaning
  - Rows whose field count differs from the header are skipped and counted
  - A UTF-8 BOM is stripped; non UTF-8 input is read as Windows-1258

SEE ALSO:
  - table.go: Table type
  - errors.go: DecodeError
*/
package table

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shakinm/xlsReader/xls"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

// Hint says what shape a source is expected to have.
type Hint int

const (
	HintSpreadsheet Hint = iota
	HintDelimited
)

func (h Hint) String() string {
	if h == HintDelimited {
		return "delimited"
	}
	return "spreadsheet"
}

// HintFor guesses the hint from a file name.
func HintFor(name string) Hint {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".tsv", ".csv", ".tab":
		return HintDelimited
	default:
		return HintSpreadsheet
	}
}

// Decoded is the outcome of a successful decode.
type Decoded struct {
	Table       *Table
	Strategy    string
	SkippedRows int
}

// Strategy decodes raw bytes into header + rows.
type Strategy struct {
	Name   string
	Decode func(data []byte) (rows [][]string, skipped int, err error)
}

var (
	spreadsheetStrategies = []Strategy{
		{Name: "xlsx", Decode: decodeXLSX},
		{Name: "xls", Decode: decodeXLS},
		{Name: "tsv", Decode: decodeTSVStrict},
	}
	delimitedStrategies = []Strategy{
		{Name: "tsv", Decode: decodeTSV},
	}
)

// Strategies returns the ordered strategies for a hint.
func Strategies(h Hint) []Strategy {
	if h == HintDelimited {
		return delimitedStrategies
	}
	return spreadsheetStrategies
}

// Decode runs the strategies for hint in order and returns the first success.
func Decode(name string, data []byte, h Hint) (*Decoded, error) {
	return DecodeWith(name, data, Strategies(h))
}

// DecodeWith is Decode with an explicit strategy list.
func DecodeWith(name string, data []byte, strategies []Strategy) (*Decoded, error) {
	decErr := &DecodeError{Source: name}
	for _, s := range strategies {
		rows, skipped, err := s.Decode(data)
		if err == nil && len(rows) == 0 {
			err = errNoHeader
		}
		if err != nil {
			decErr.Attempts = append(decErr.Attempts, Attempt{Strategy: s.Name, Err: err})
			continue
		}
		return &Decoded{
			Table:       FromRecords(name, rows[0], rows[1:]),
			Strategy:    s.Name,
			SkippedRows: skipped,
		}, nil
	}
	return nil, decErr
}

var (
	errNoHeader      = errors.New("no header row")
	errEmptyWorkbook = errors.New("workbook has no non-empty sheet")
	errNotText       = errors.New("content is not tab-delimited text")
)

// =============================================================================
// SPREADSHEETS
// =============================================================================

func decodeXLSX(data []byte) ([][]string, int, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	// Raw values keep long numeric ids (CUSTSEQ, IDXACNO) out of display formats.
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, 0, err
		}
		if len(rows) > 0 {
			if err := renderDateCells(f, sheet, rows); err != nil {
				return nil, 0, err
			}
			return rows, 0, nil
		}
	}
	return nil, 0, errEmptyWorkbook
}

// isoDateTime is how date-formatted cells come out of a workbook.
const isoDateTime = "2006-01-02 15:04:05"

// renderDateCells replaces the serial number of every date-formatted cell
// with ISO text in place.
func renderDateCells(f *excelize.File, sheet string, rows [][]string) error {
	var date1904 bool
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}

	dateStyle := map[int]bool{}
	for r, row := range rows {
		for c, raw := range row {
			serial, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return err
			}
			idx, err := f.GetCellStyle(sheet, cell)
			if err != nil {
				return err
			}
			isDate, seen := dateStyle[idx]
			if !seen {
				isDate = isDateStyle(f, idx)
				dateStyle[idx] = isDate
			}
			if !isDate {
				continue
			}
			t, err := excelize.ExcelDateToTime(serial, date1904)
			if err != nil {
				continue
			}
			row[c] = t.Format(isoDateTime)
		}
	}
	return nil
}

// builtInDateFormats are the built-in number formats that show a calendar
// date. Time-only formats (18-21, 45-47) are left as numbers.
var builtInDateFormats = map[int]bool{
	14: true, 15: true, 16: true, 17: true, 22: true,
	27: true, 28: true, 29: true, 30: true, 31: true, 32: true, 33: true, 34: true, 35: true, 36: true,
	50: true, 51: true, 52: true, 53: true, 54: true, 55: true, 56: true, 57: true, 58: true,
}

func isDateStyle(f *excelize.File, idx int) bool {
	if idx == 0 {
		return false
	}
	style, err := f.GetStyle(idx)
	if err != nil || style == nil {
		return false
	}
	if style.CustomNumFmt != nil {
		return isDateFormatCode(*style.CustomNumFmt)
	}
	return builtInDateFormats[style.NumFmt]
}

// isDateFormatCode reports whether a custom format code has a day or year
// token outside literal text and bracketed sections.
func isDateFormatCode(code string) bool {
	var quoted, bracket bool
	for _, r := range strings.ToLower(code) {
		switch {
		case r == '"':
			quoted = !quoted
		case quoted:
		case r == '[':
			bracket = true
		case r == ']':
			bracket = false
		case bracket:
		case r == 'd' || r == 'y':
			return true
		}
	}
	return false
}

// decodeXLS reads legacy BIFF workbooks. xlsReader only opens files by path.
func decodeXLS(data []byte) ([][]string, int, error) {
	tmp, err := os.CreateTemp("", "authz-*.xls")
	if err != nil {
		return nil, 0, err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, 0, err
	}
	if err := tmp.Close(); err != nil {
		return nil, 0, err
	}

	book, err := xls.OpenFile(tmp.Name())
	if err != nil {
		return nil, 0, err
	}
	for i := 0; i < book.GetNumberSheets(); i++ {
		sheet, err := book.GetSheet(i)
		if err != nil || sheet == nil {
			continue
		}
		var rows [][]string
		for _, r := range sheet.GetRows() {
			var row []string
			for _, col := range r.GetCols() {
				row = append(row, col.GetString())
			}
			rows = append(rows, row)
		}
		if len(rows) > 0 {
			return rows, 0, nil
		}
	}
	return nil, 0, errEmptyWorkbook
}

// =============================================================================
// DELIMITED TEXT
// =============================================================================

func decodeTSV(data []byte) ([][]string, int, error) {
	sc := bufio.NewScanner(bytes.NewReader(toUTF8(data)))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var (
		rows    [][]string
		skipped int
	)
	for sc.Scan() {
		line := strings.TrimSuffix(sc.Text(), "\r")
		if line == "" {
			continue
		}
		rec := strings.Split(line, "\t")
		if len(rows) > 0 && len(rec) != len(rows[0]) {
			skipped++
			continue
		}
		rows = append(rows, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, 0, fmt.Errorf("read delimited text: %w", err)
	}
	return rows, skipped, nil
}

// maxLineBytes bounds one line of delimited text.
const maxLineBytes = 16 << 20

// decodeTSVStrict is the spreadsheet fallback: it refuses binary content
// and single-column results so a corrupt workbook is not read as text.
func decodeTSVStrict(data []byte) ([][]string, int, error) {
	if bytes.IndexByte(data, 0) >= 0 {
		return nil, 0, errNotText
	}
	rows, skipped, err := decodeTSV(data)
	if err != nil {
		return nil, 0, err
	}
	if len(rows) == 0 || len(rows[0]) < 2 {
		return nil, 0, errNotText
	}
	return rows, skipped, nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// toUTF8 strips a BOM and decodes legacy Vietnamese code-page text.
func toUTF8(data []byte) []byte {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return data
	}
	out, err := charmap.Windows1258.NewDecoder().Bytes(data)
	if err != nil {
		return data
	}
	return out
}
