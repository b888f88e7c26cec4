package manifest

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// DecodeWorkbook reads the first sheet of an Excel workbook into raw string
// rows. Formatting and formulas are not evaluated; cells come back as their
// displayed values.
func DecodeWorkbook(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}
