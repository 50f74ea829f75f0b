// Package report renders the summary tables for one product line into a
// spreadsheet workbook with an Accounts sheet and an Installations sheet.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/fieldscope-labs/fieldscope/internal/staging"
	"github.com/fieldscope-labs/fieldscope/internal/summary"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// Sheet names inside every workbook.
const (
	accountsSheet      = "Accounts"
	installationsSheet = "Installations"
)

// Column width bounds, in Excel character units.
const (
	minColWidth = 10
	maxColWidth = 50
)

// asciiOnly strips every rune outside the ASCII range. Downstream
// consumers of these workbooks choke on anything wider.
var asciiOnly = runes.Remove(runes.Predicate(func(r rune) bool { return r > unicode.MaxASCII }))

var headerCaser = cases.Title(language.English)

// Writer renders workbooks from the summary tables.
type Writer struct {
	store     *staging.Store
	outputDir string
	logger    *slog.Logger
}

// NewWriter creates a report writer emitting into outputDir. A nil logger
// uses a discard logger.
func NewWriter(store *staging.Store, outputDir string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Writer{store: store, outputDir: outputDir, logger: logger}
}

// Write renders the current summary tables into one workbook for product
// and returns the workbook path. The summary tables must have been built
// for the same product immediately beforehand.
func (w *Writer) Write(ctx context.Context, product string) (string, error) {
	accounts, err := w.store.ExecuteNamed(ctx,
		"SELECT * FROM "+summary.AccountTable+" ORDER BY account_name")
	if err != nil {
		return "", fmt.Errorf("failed to read account summary: %w", err)
	}
	installations, err := w.store.ExecuteNamed(ctx,
		"SELECT * FROM "+summary.InstallationTable+" ORDER BY account_name, inst_id")
	if err != nil {
		return "", fmt.Errorf("failed to read installation summary: %w", err)
	}

	dropEmptyColumns(accounts)
	dropEmptyColumns(installations)

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if _, err := f.NewSheet(accountsSheet); err != nil {
		return "", fmt.Errorf("failed to create sheet: %w", err)
	}
	if _, err := f.NewSheet(installationsSheet); err != nil {
		return "", fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return "", fmt.Errorf("failed to drop default sheet: %w", err)
	}

	if err := w.writeSheet(f, accountsSheet, accounts, true); err != nil {
		return "", err
	}
	if err := w.writeSheet(f, installationsSheet, installations, false); err != nil {
		return "", err
	}

	path := filepath.Join(w.outputDir, workbookName(product))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("failed to save workbook: %w", err)
	}

	w.logger.Info("workbook written",
		"product", product,
		"path", path,
		"accounts", len(accounts.Rows),
		"installations", len(installations.Rows))
	return path, nil
}

func workbookName(product string) string {
	return fmt.Sprintf("On-Prem Consumption Report - %s.xlsx", product)
}

// writeSheet writes the header row, the data rows, and the column widths.
// When linkFirstColumn is set, every first-column value links across to
// the Installations sheet; otherwise the sheet gets a back-link to the
// Accounts sheet beside its header.
func (w *Writer) writeSheet(f *excelize.File, sheet string, data *staging.NamedRows, linkFirstColumn bool) error {
	header := make([]any, len(data.Columns))
	for i, col := range data.Columns {
		header[i] = headerCaser.String(strings.ReplaceAll(col, "_", " "))
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header for %s: %w", sheet, err)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		lastCol, _ := excelize.ColumnNumberToName(len(data.Columns))
		_ = f.SetCellStyle(sheet, "A1", lastCol+"1", style)
	}

	widths := make([]int, len(data.Columns))
	for i := range widths {
		widths[i] = minColWidth
	}

	for r, row := range data.Rows {
		out := make([]any, len(row))
		for c, v := range row {
			out[c] = w.formatCell(v)
			if s, ok := out[c].(string); ok && len(s) > widths[c] {
				widths[c] = min(len(s), maxColWidth)
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return fmt.Errorf("failed to address row %d: %w", r+2, err)
		}
		if err := f.SetSheetRow(sheet, cell, &out); err != nil {
			return fmt.Errorf("failed to write row %d of %s: %w", r+2, sheet, err)
		}
		if linkFirstColumn {
			if err := f.SetCellHyperLink(sheet, cell, installationsSheet+"!A1", "Location"); err != nil {
				w.logger.Warn("failed to link cell", "sheet", sheet, "cell", cell, "error", err)
			}
		}
	}

	for i, width := range widths {
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			continue
		}
		if err := f.SetColWidth(sheet, name, name, float64(width)); err != nil {
			w.logger.Warn("failed to set column width", "sheet", sheet, "column", name, "error", err)
		}
	}

	if !linkFirstColumn {
		backCell, err := excelize.CoordinatesToCellName(len(data.Columns)+2, 1)
		if err == nil {
			if err := f.SetCellValue(sheet, backCell, accountsSheet); err == nil {
				_ = f.SetCellHyperLink(sheet, backCell, accountsSheet+"!A1", "Location")
			}
		}
	}
	return nil
}

// formatCell prepares one summary value for the sheet. Strings are
// ASCII-sanitized; sanitization failures are logged and the raw value
// passed through.
func (w *Writer) formatCell(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		clean, _, err := transform.String(asciiOnly, t)
		if err != nil {
			w.logger.Warn("failed to sanitize cell value", "error", err)
			return t
		}
		return clean
	case []byte:
		return w.formatCell(string(t))
	default:
		return v
	}
}

// dropEmptyColumns removes, in place, every column whose value is nil in
// all rows. Product lines that never produce a field do not get a blank
// column in their report.
func dropEmptyColumns(data *staging.NamedRows) {
	if len(data.Rows) == 0 {
		return
	}
	keep := make([]int, 0, len(data.Columns))
	for c := range data.Columns {
		for _, row := range data.Rows {
			if row[c] != nil {
				keep = append(keep, c)
				break
			}
		}
	}
	if len(keep) == len(data.Columns) {
		return
	}

	cols := make([]string, len(keep))
	for i, c := range keep {
		cols[i] = data.Columns[c]
	}
	for r, row := range data.Rows {
		next := make([]any, len(keep))
		for i, c := range keep {
			next[i] = row[c]
		}
		data.Rows[r] = next
	}
	data.Columns = cols
}
