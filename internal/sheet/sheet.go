// Package sheet turns uploaded spreadsheets into core.Sheet values.
//
// CSV and XLSX are supported. Both readers locate the header row with the
// schema's IsHeader predicate, so title lines above the table are skipped.
package sheet

import (
	"strings"

	"github.com/JonMunkholm/medimport/internal/core"
)

// MaxHeaderSearchRows is how many leading lines are scanned for the header.
const MaxHeaderSearchRows = 20

// build converts raw records into a sheet. lines holds the 1-based file
// line of each record; when nil, record i is on line i+1.
func build(name string, records [][]string, lines []int, isHeader func([]string) bool) (*core.Sheet, error) {
	if len(records) == 0 || allEmpty(records) {
		return nil, core.ErrEmptySheet
	}

	headerIdx := findHeaderInRecords(records, isHeader)
	if headerIdx < 0 {
		return nil, core.ErrNoHeader
	}

	header := make([]string, len(records[headerIdx]))
	for i, h := range records[headerIdx] {
		header[i] = core.CleanCell(h)
	}

	sheet := &core.Sheet{
		Name:       name,
		Header:     header,
		HeaderLine: lineOf(lines, headerIdx),
	}
	for i := headerIdx + 1; i < len(records); i++ {
		rec := records[i]
		if isEmptyRow(rec) {
			continue
		}
		row := core.RawRow{Line: lineOf(lines, i), Cells: make([]core.Cell, 0, len(header))}
		for col, h := range header {
			if h == "" {
				continue
			}
			val := ""
			if col < len(rec) {
				val = rec[col]
			}
			row.Cells = append(row.Cells, core.Cell{Header: h, Value: val})
		}
		sheet.Rows = append(sheet.Rows, row)
	}
	return sheet, nil
}

func lineOf(lines []int, i int) int {
	if i < len(lines) {
		return lines[i]
	}
	return i + 1
}

func findHeaderInRecords(records [][]string, isHeader func([]string) bool) int {
	maxRows := MaxHeaderSearchRows
	if len(records) < maxRows {
		maxRows = len(records)
	}
	for i := 0; i < maxRows; i++ {
		if isHeader(records[i]) {
			return i
		}
	}
	return -1
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func allEmpty(records [][]string) bool {
	for _, r := range records {
		if !isEmptyRow(r) {
			return false
		}
	}
	return true
}
