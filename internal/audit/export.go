package audit

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
)

var exportHeader = []string{
	"created_at", "batch_id", "actor", "role", "site", "verb", "command",
	"delivered", "status_code", "error",
}

func exportRow(entry Entry) []string {
	return []string{
		entry.CreatedAt.UTC().Format(time.RFC3339),
		entry.BatchID,
		entry.Actor,
		entry.Role,
		entry.Site,
		entry.Verb,
		entry.Command,
		strconv.FormatBool(entry.Delivered),
		strconv.Itoa(entry.StatusCode),
		entry.Error,
	}
}

// BuildCSV renders entries as CSV with a header row.
func BuildCSV(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(exportHeader); err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if err := writer.Write(exportRow(entry)); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildXLSX renders a summary sheet and one row per entry.
func BuildXLSX(entries []Entry, from, to time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	entriesSheet := "dispatches"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(entriesSheet); err != nil {
		return nil, err
	}

	delivered := 0
	for _, entry := range entries {
		if entry.Delivered {
			delivered++
		}
	}
	_ = f.SetCellValue(summarySheet, "A1", "Fincas dispatch audit")
	_ = f.SetCellValue(summarySheet, "A3", "From")
	_ = f.SetCellValue(summarySheet, "B3", formatBound(from))
	_ = f.SetCellValue(summarySheet, "A4", "To")
	_ = f.SetCellValue(summarySheet, "B4", formatBound(to))
	_ = f.SetCellValue(summarySheet, "A5", "Dispatches")
	_ = f.SetCellValue(summarySheet, "B5", len(entries))
	_ = f.SetCellValue(summarySheet, "A6", "Delivered")
	_ = f.SetCellValue(summarySheet, "B6", delivered)
	_ = f.SetCellValue(summarySheet, "A7", "Failed")
	_ = f.SetCellValue(summarySheet, "B7", len(entries)-delivered)

	for col, title := range exportHeader {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		_ = f.SetCellValue(entriesSheet, cell, title)
	}
	for i, entry := range entries {
		row := i + 2
		_ = f.SetCellValue(entriesSheet, fmt.Sprintf("A%d", row), entry.CreatedAt.UTC().Format(time.RFC3339))
		_ = f.SetCellValue(entriesSheet, fmt.Sprintf("B%d", row), entry.BatchID)
		_ = f.SetCellValue(entriesSheet, fmt.Sprintf("C%d", row), entry.Actor)
		_ = f.SetCellValue(entriesSheet, fmt.Sprintf("D%d", row), entry.Role)
		_ = f.SetCellValue(entriesSheet, fmt.Sprintf("E%d", row), entry.Site)
		_ = f.SetCellValue(entriesSheet, fmt.Sprintf("F%d", row), entry.Verb)
		_ = f.SetCellValue(entriesSheet, fmt.Sprintf("G%d", row), entry.Command)
		_ = f.SetCellValue(entriesSheet, fmt.Sprintf("H%d", row), entry.Delivered)
		_ = f.SetCellValue(entriesSheet, fmt.Sprintf("I%d", row), entry.StatusCode)
		_ = f.SetCellValue(entriesSheet, fmt.Sprintf("J%d", row), entry.Error)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildPDF renders a landscape table of entries.
func BuildPDF(entries []Entry, from, to time.Time) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.Cell(0, 8, "Fincas dispatch audit")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("From: %s", formatBound(from)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("To: %s", formatBound(to)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Dispatches: %d", len(entries)))
	pdf.Ln(8)

	widths := []float64{42, 35, 30, 95, 18, 57}
	headers := []string{"Time", "Actor", "Site", "Command", "Status", "Error"}
	pdf.SetFont("Arial", "B", 9)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 6, h, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 8)
	for _, entry := range entries {
		status := strconv.Itoa(entry.StatusCode)
		if !entry.Delivered && entry.StatusCode == 0 {
			status = "-"
		}
		cells := []string{
			entry.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			entry.Actor,
			entry.Site,
			entry.Command,
			status,
			entry.Error,
		}
		for i, cell := range cells {
			pdf.CellFormat(widths[i], 6, tr(truncate(cell, int(widths[i]/1.8))), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatBound(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func truncate(value string, max int) string {
	runes := []rune(value)
	if max <= 3 || len(runes) <= max {
		return value
	}
	return string(runes[:max-3]) + "..."
}
