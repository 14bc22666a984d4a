package pipeline

import (
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"mailcrm/internal"
)

func ExportRecordsToXLSX(records []internal.ProductRecord, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	headers := []string{"no", "name", "code", "price", "unit", "description"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, rec := range records {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}

		set(1, rec.Number)
		set(2, rec.Name)
		set(3, rec.Code)
		set(4, rec.Price)
		set(5, rec.Unit)
		set(6, rec.Description)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}
