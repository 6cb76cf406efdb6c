// Package inventory loads the garment inventory feed, derives descriptions and runs the
// build phase that embeds and upserts every style into the hybrid index.
package inventory

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Record is one inventory row keyed by column header.
type Record map[string]string

// Table is a loaded inventory file: header order plus rows.
type Table struct {
	Columns []string
	Records []Record
}

// SupportedExtensions lists the inventory file formats LoadFile understands.
var SupportedExtensions = []string{".csv", ".xlsx", ".xlsm"}

// LoadFile reads a CSV or XLSX inventory file. The first row is the header; fully empty rows
// are skipped and short rows are padded with empty cells.
func LoadFile(path string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open inventory: %w", err)
		}
		defer f.Close()
		return LoadCSV(f)
	case ".xlsx", ".xlsm":
		return loadXLSX(path)
	default:
		return nil, fmt.Errorf("unsupported inventory format %q", filepath.Ext(path))
	}
}

// LoadCSV parses CSV inventory rows from r.
func LoadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse CSV: %w", err)
	}
	return buildTable(rows)
}

func loadXLSX(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("get rows for sheet %q: %w", sheets[0], err)
	}
	return buildTable(rows)
}

func buildTable(rows [][]string) (*Table, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("inventory has no header row")
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		h = strings.TrimPrefix(h, "\ufeff")
		header[i] = strings.TrimSpace(h)
	}
	t := &Table{Columns: header}
	for _, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		rec := make(Record, len(header))
		for i, col := range header {
			if col == "" {
				continue
			}
			if i < len(row) {
				rec[col] = strings.TrimSpace(row[i])
			} else {
				rec[col] = ""
			}
		}
		t.Records = append(t.Records, rec)
	}
	return t, nil
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
