package sheet

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/medimport/internal/core"
)

// XLSXReader reads one worksheet of an Office Open XML workbook.
type XLSXReader struct {
	name      string
	r         io.Reader
	worksheet string
}

// NewXLSXReader wraps r. An empty worksheet selects the first one.
func NewXLSXReader(name string, r io.Reader, worksheet string) *XLSXReader {
	return &XLSXReader{name: name, r: r, worksheet: worksheet}
}

// ReadSheet implements core.SheetReader. Cell values are read raw, so dates
// stored as numbers arrive as day serials and are decoded by the normalizer.
func (x *XLSXReader) ReadSheet(ctx context.Context, isHeader func([]string) bool) (*core.Sheet, error) {
	f, err := excelize.OpenReader(x.r)
	if err != nil {
		return nil, fmt.Errorf("invalid spreadsheet: %w", err)
	}
	defer f.Close()

	ws := x.worksheet
	if ws == "" {
		list := f.GetSheetList()
		if len(list) == 0 {
			return nil, core.ErrEmptySheet
		}
		ws = list[0]
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records, err := f.GetRows(ws, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("invalid spreadsheet: worksheet %q: %w", ws, err)
	}
	return build(ws, records, nil, isHeader)
}
