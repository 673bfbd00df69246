package sheet

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/medimport/internal/core"
)

var zipMagic = []byte("PK\x03\x04")

// Open picks a reader for the file from its extension, falling back to
// content sniffing when the extension is missing or unknown.
func Open(name string, r io.Reader) (core.SheetReader, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt", ".tsv":
		return NewCSVReader(name, r), nil
	case ".xlsx", ".xlsm":
		return NewXLSXReader(name, r, ""), nil
	case ".xls", ".ods":
		return nil, fmt.Errorf("unsupported file type %s: save the file as .xlsx or .csv", filepath.Ext(name))
	}

	br := bufio.NewReader(r)
	head, _ := br.Peek(len(zipMagic))
	if bytes.Equal(head, zipMagic) {
		return NewXLSXReader(name, br, ""), nil
	}
	return NewCSVReader(name, br), nil
}
