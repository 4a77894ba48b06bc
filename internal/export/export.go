// Package export serializes ordered Lead Records into downloadable tables.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/lead-scraper/internal/lead"
)

// SheetName is the worksheet holding records in XLSX exports.
const SheetName = "Leads"

// WriterFunc writes records, in order, to w.
type WriterFunc func(w io.Writer, records []lead.Record) error

// Format describes one export encoding.
type Format struct {
	Name        string
	Extension   string
	ContentType string
	Write       WriterFunc
}

var formats = map[string]Format{
	"csv": {
		Name:        "csv",
		Extension:   ".csv",
		ContentType: "text/csv; charset=utf-8",
		Write:       WriteCSV,
	},
	"xlsx": {
		Name:        "xlsx",
		Extension:   ".xlsx",
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Write:       WriteXLSX,
	},
	"json": {
		Name:        "json",
		Extension:   ".json",
		ContentType: "application/json",
		Write:       WriteJSON,
	},
}

// ForFormat looks up a Format by case-insensitive name.
func ForFormat(name string) (Format, error) {
	f, ok := formats[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Format{}, fmt.Errorf("unsupported export format %q", name)
	}
	return f, nil
}

// ForContentType maps an Accept/Content-Type value onto a Format.
func ForContentType(contentType string) (Format, bool) {
	ct := strings.ToLower(contentType)
	for _, name := range []string{"xlsx", "csv", "json"} {
		f := formats[name]
		base, _, _ := strings.Cut(f.ContentType, ";")
		if strings.Contains(ct, base) {
			return f, true
		}
	}
	return Format{}, false
}

// ObjectPath builds the storage path for a batch export, e.g. leads/<batch>.csv.
func ObjectPath(prefix, batchID string, f Format) string {
	name := batchID + f.Extension
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// WriteCSV writes a header row followed by one row per record.
func WriteCSV(w io.Writer, records []lead.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(lead.Headers); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i, rec := range records {
		if err := cw.Write(rec.Columns()); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// WriteXLSX writes a single-sheet workbook with a bold header row.
func WriteXLSX(w io.Writer, records []lead.Record) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close workbook: %w", cerr)
		}
	}()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	if err := writeRow(f, 1, lead.Headers); err != nil {
		return err
	}
	for i, rec := range records {
		if err := writeRow(f, i+2, rec.Columns()); err != nil {
			return err
		}
	}

	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	lastCol, err := excelize.ColumnNumberToName(len(lead.Headers))
	if err != nil {
		return fmt.Errorf("resolve last column: %w", err)
	}
	if err := f.SetCellStyle(SheetName, "A1", lastCol+"1", style); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	if err := f.SetColWidth(SheetName, "A", lastCol, 32); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("resolve row %d: %w", row, err)
	}
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = v
	}
	if err := f.SetSheetRow(SheetName, cell, &cells); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}

// WriteJSON writes the records as an indented JSON array.
func WriteJSON(w io.Writer, records []lead.Record) error {
	if records == nil {
		records = []lead.Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}
