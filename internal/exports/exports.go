// Package exports renders stored readings and the sent-alert history into
// downloadable documents.
package exports

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	alerting "geomon-cloud/internal/alerting/domain"
	reading "geomon-cloud/internal/readings/domain"
)

// BuildReadingsXLSX renders readings for one node into a workbook.
func BuildReadingsXLSX(nodeID int64, readings []reading.Reading) ([]byte, error) {
	f := excelize.NewFile()
	sheet := "readings"
	f.SetSheetName("Sheet1", sheet)

	_ = f.SetCellValue(sheet, "A1", "Node")
	_ = f.SetCellValue(sheet, "B1", nodeID)
	_ = f.SetCellValue(sheet, "A2", "Exported")
	_ = f.SetCellValue(sheet, "B2", time.Now().UTC().Format(time.RFC3339))

	_ = f.SetCellValue(sheet, "A4", "Timestamp")
	_ = f.SetCellValue(sheet, "B4", "X")
	_ = f.SetCellValue(sheet, "C4", "Y")
	_ = f.SetCellValue(sheet, "D4", "Z")
	for i, rd := range readings {
		row := i + 5
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), rd.Timestamp)
		setAxisCell(f, sheet, fmt.Sprintf("B%d", row), rd, reading.AxisX)
		setAxisCell(f, sheet, fmt.Sprintf("C%d", row), rd, reading.AxisY)
		setAxisCell(f, sheet, fmt.Sprintf("D%d", row), rd, reading.AxisZ)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func setAxisCell(f *excelize.File, sheet, cell string, rd reading.Reading, axis reading.Axis) {
	if v, ok := rd.Values[axis]; ok {
		_ = f.SetCellValue(sheet, cell, v)
	}
}

// BuildAlertHistoryPDF renders the sent-alert ledger into a report.
func BuildAlertHistoryPDF(instrumentID string, records []alerting.SentAlert) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Alert Notification History")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	scope := instrumentID
	if scope == "" {
		scope = "all instruments"
	}
	pdf.Cell(0, 6, fmt.Sprintf("Scope: %s", scope))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", time.Now().UTC().Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Records: %d", len(records)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(45, 6, "Instrument", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Device", "1", 0, "C", false, 0, "")
	pdf.CellFormat(55, 6, "Reading Time", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Level", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Sent At", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, rec := range records {
		pdf.CellFormat(45, 6, rec.InstrumentID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%d", rec.DeviceID), "1", 0, "R", false, 0, "")
		pdf.CellFormat(55, 6, rec.Timestamp, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, rec.AlertType, "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, rec.CreatedAt.UTC().Format("2006-01-02 15:04"), "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
