// Package importer loads table rows from XLSX or JSON files and turns them
// into new entries. Bad rows are skipped and reported, never fatal.
package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"tracker/internal/core"
	"tracker/internal/sanitize"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported import format")
	ErrNoSheets          = errors.New("no sheets found in workbook")
	ErrMissingColumns    = errors.New("could not find required columns (date, amount, category)")
)

// Result is the outcome of reading one file.
type Result struct {
	Entries  []core.Entry
	Rejected []core.RowError
}

// Total is the number of data rows read.
func (r Result) Total() int { return len(r.Entries) + len(r.Rejected) }

// Malformed counts rows rejected for an unparseable amount or id.
func (r Result) Malformed() int {
	n := 0
	for _, rej := range r.Rejected {
		if core.IsMalformed(rej.Err) {
			n++
		}
	}
	return n
}

// LoadFile reads path, picking the parser from the file extension.
func LoadFile(path string, loc *time.Location) (Result, error) {
	var (
		rows []core.TableRow
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		rows, err = ReadXLSX(path)
	case ".json":
		var f *os.File
		f, err = os.Open(path)
		if err != nil {
			return Result{}, fmt.Errorf("opening file: %w", err)
		}
		defer f.Close()
		rows, err = ReadJSON(f)
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		return Result{}, err
	}
	return Convert(rows, loc), nil
}

// Convert sanitizes rows and parses them as new entries. Ids in the file
// are ignored: every imported row becomes a new entry.
func Convert(rows []core.TableRow, loc *time.Location) Result {
	clean := make([]core.TableRow, len(rows))
	for i, row := range rows {
		row = sanitize.Row(row)
		row.ID = ""
		clean[i] = row
	}
	entries, rejected := core.ConvertRows(clean, loc)
	return Result{Entries: entries, Rejected: rejected}
}

// ReadJSON decodes a JSON array of table rows.
func ReadJSON(r io.Reader) ([]core.TableRow, error) {
	var rows []core.TableRow
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decoding rows: %w", err)
	}
	return rows, nil
}

// header names accepted for each column, lower case.
var columnNames = map[string][]string{
	"date":     {"date", "day", "data"},
	"amount":   {"amount", "value", "importo"},
	"category": {"category", "categoria"},
	"tags":     {"tags", "tag"},
	"comment":  {"comment", "comments", "note", "notes", "descrizione"},
}

func columnFor(cell string) string {
	cell = strings.ToLower(strings.TrimSpace(cell))
	for col, names := range columnNames {
		for _, n := range names {
			if cell == n {
				return col
			}
		}
	}
	return ""
}

// ReadXLSX reads table rows from the first sheet of a workbook. The header
// row is the first row naming the date, amount and category columns.
func ReadXLSX(path string) ([]core.TableRow, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoSheets
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("reading sheet: %w", err)
	}

	cols := map[string]int{}
	start := -1
	for i, row := range rows {
		found := map[string]int{}
		for j, cell := range row {
			if col := columnFor(cell); col != "" {
				if _, dup := found[col]; !dup {
					found[col] = j
				}
			}
		}
		_, hasDate := found["date"]
		_, hasAmount := found["amount"]
		_, hasCategory := found["category"]
		if hasDate && hasAmount && hasCategory {
			cols = found
			start = i + 1
			break
		}
	}
	if start < 0 {
		return nil, ErrMissingColumns
	}

	cell := func(row []string, col string) string {
		j, ok := cols[col]
		if !ok || j >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[j])
	}

	var out []core.TableRow
	for _, row := range rows[start:] {
		tr := core.TableRow{
			Amount:   cell(row, "amount"),
			Date:     xlsxDate(cell(row, "date")),
			Category: cell(row, "category"),
			Tags:     cell(row, "tags"),
			Comment:  cell(row, "comment"),
		}
		if tr.Amount == "" && tr.Date == "" && tr.Category == "" {
			continue
		}
		out = append(out, tr)
	}
	return out, nil
}

// xlsxDate converts a raw date cell. Date-formatted cells hold a serial
// day number; text cells are passed through.
func xlsxDate(raw string) string {
	serial, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return raw
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return raw
	}
	return t.Format(core.DateLayout)
}

// Creator stores one new entry.
type Creator interface {
	CreateEntry(ctx context.Context, e core.Entry) (int64, error)
}

// Store creates every entry in res, stopping at the first storage error.
// It returns the number of entries created.
func Store(ctx context.Context, c Creator, res Result) (int, error) {
	for i, e := range res.Entries {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if _, err := c.CreateEntry(ctx, e); err != nil {
			return i, fmt.Errorf("create entry %d: %w", i, err)
		}
	}
	return len(res.Entries), nil
}
