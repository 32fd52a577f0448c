package httpadapter

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
)

const exportSheet = "Uploads"

var exportHeaders = []string{
	"Item ID",
	"File",
	"State",
	"Progress",
	"Retries",
	"Added",
	"Completed",
	"Document ID",
	"Type",
	"Confidence",
	"Enhanced",
	"Error Code",
	"Error Message",
}

// writeQueueWorkbook renders one row per queue item, in queue order.
func writeQueueWorkbook(w io.Writer, snap domain.QueueSnapshot) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(exportSheet, cell, h)
	}

	for i, item := range snap.Items {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(exportSheet, cell, v)
		}
		write(1, item.ID)
		write(2, item.File.Name)
		write(3, string(item.State))
		write(4, item.Progress)
		write(5, item.RetryCount)
		write(6, item.AddedAt.UTC().Format(time.RFC3339))
		if item.CompletedAt != nil {
			write(7, item.CompletedAt.UTC().Format(time.RFC3339))
		}
		if item.Result != nil && item.Result.Document != nil {
			doc := item.Result.Document
			write(8, doc.ID)
			write(9, string(doc.Classification.Type))
			write(10, doc.Classification.Confidence)
			write(11, doc.Enhanced)
		}
		if item.Error != nil {
			write(12, string(item.Error.Code))
			write(13, item.Error.Message)
		}
	}

	_ = f.SetColWidth(exportSheet, "A", "A", 38)
	_ = f.SetColWidth(exportSheet, "B", "B", 32)
	_ = f.SetColWidth(exportSheet, "F", "G", 22)
	_ = f.SetColWidth(exportSheet, "H", "H", 38)
	_ = f.SetColWidth(exportSheet, "M", "M", 48)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
