package sheet

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/JonMunkholm/medimport/internal/core"
)

// CSVReader reads a delimited text file. The delimiter is detected from the
// first lines: semicolon, comma or tab.
type CSVReader struct {
	name string
	r    io.Reader
}

// NewCSVReader wraps r. name is reported in errors and summaries.
func NewCSVReader(name string, r io.Reader) *CSVReader {
	return &CSVReader{name: name, r: r}
}

// ReadSheet implements core.SheetReader.
func (c *CSVReader) ReadSheet(ctx context.Context, isHeader func([]string) bool) (*core.Sheet, error) {
	raw, err := io.ReadAll(c.r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", c.name, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := decodeText(raw)
	if err != nil {
		return nil, err
	}

	records, lines, err := parseCSV(data, detectDelimiter(data))
	if err != nil {
		return nil, fmt.Errorf("invalid spreadsheet: %w", err)
	}
	return build(c.name, records, lines, isHeader)
}

// parseCSV returns the records and the file line each one starts on.
// encoding/csv skips empty lines and quoted cells may span several, so the
// record index alone does not give the line.
func parseCSV(data []byte, comma rune) ([][]string, []int, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var (
		records [][]string
		lines   []int
	)
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return records, lines, nil
		}
		if err != nil {
			return nil, nil, err
		}
		line, _ := r.FieldPos(0)
		records = append(records, rec)
		lines = append(lines, line)
	}
}

// detectDelimiter picks the candidate that appears most often in the first
// few non-empty lines. Ties favour the semicolon.
func detectDelimiter(data []byte) rune {
	candidates := []rune{';', ',', '\t'}
	counts := make(map[rune]int, len(candidates))

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for lines := 0; lines < 5 && sc.Scan(); {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines++
		for _, c := range candidates {
			counts[c] += strings.Count(line, string(c))
		}
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if counts[c] > counts[best] {
			best = c
		}
	}
	return best
}
