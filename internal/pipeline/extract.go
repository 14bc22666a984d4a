package pipeline

import (
	"bytes"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"mailcrm/internal"
	"mailcrm/internal/util"
)

type Extraction struct {
	HeaderCode string
	Rows       []internal.ProductRow
	Skipped    []internal.SkippedRow
}

type Extractor struct {
	opts   Options
	logger *slog.Logger
}

func NewExtractor(opts Options, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{opts: opts, logger: logger}
}

// keyResult is the outcome of coercing one key cell: either a value or the
// reason the row was dropped.
type keyResult struct {
	index  int
	value  float64
	raw    string
	reason string
}

func (k keyResult) ok() bool { return k.reason == "" }

func (e *Extractor) Extract(doc []byte) (*Extraction, error) {
	rows, err := readFirstSheet(doc)
	if err != nil {
		return nil, err
	}

	out := &Extraction{HeaderCode: e.headerCode(rows)}

	skip := e.opts.DataSkipRows
	headerRow := skip + 1
	if len(rows) <= skip {
		return nil, &SchemaError{Column: e.opts.KeyColumn, HeaderRow: headerRow}
	}

	columns := columnIndex(rows[skip])
	keyIdx, ok := columns[e.opts.KeyColumn]
	if !ok {
		return nil, &SchemaError{Column: e.opts.KeyColumn, HeaderRow: headerRow}
	}

	data := rows[skip+1:]
	firstByValue := map[float64]int{}
	values := make([]float64, 0, len(data))
	for _, res := range e.coerceKeys(data, keyIdx) {
		if !res.ok() {
			sheetRow := headerRow + 1 + res.index
			e.logger.Warn("key value ignored", "column", e.opts.KeyColumn, "row", sheetRow, "value", res.raw, "reason", res.reason)
			out.Skipped = append(out.Skipped, internal.SkippedRow{SheetRow: sheetRow, Raw: res.raw, Reason: res.reason})
			continue
		}
		if _, seen := firstByValue[res.value]; seen {
			continue
		}
		firstByValue[res.value] = res.index
		values = append(values, res.value)
	}
	sort.Float64s(values)

	for _, v := range values {
		idx := firstByValue[v]
		out.Rows = append(out.Rows, internal.ProductRow{
			Number:   v,
			SheetRow: headerRow + 1 + idx,
			Cells:    rowCells(columns, data[idx]),
		})
	}

	e.logger.Info("spreadsheet extracted", "header_code", out.HeaderCode, "products", len(out.Rows), "skipped", len(out.Skipped))
	return out, nil
}

func readFirstSheet(doc []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(doc), excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, &ParseError{Stage: "workbook", Err: err}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &ParseError{Stage: "workbook", Err: errors.New("no sheets")}
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, &ParseError{Stage: "sheet", Input: sheets[0], Err: err}
	}
	return rows, nil
}

// headerCode scans the designated header row left to right within the first
// HeaderScanRows rows; the first cell with the code prefix wins.
func (e *Extractor) headerCode(rows [][]string) string {
	idx := e.opts.HeaderCodeRow
	if idx < 0 || idx >= len(rows) || idx >= e.opts.HeaderScanRows {
		return e.opts.DefaultHeaderCode
	}
	for _, cell := range rows[idx] {
		if cell != "" && strings.HasPrefix(cell, e.opts.HeaderCodePrefix) {
			return strings.TrimSpace(cell)
		}
	}
	return e.opts.DefaultHeaderCode
}

func (e *Extractor) coerceKeys(data [][]string, keyIdx int) []keyResult {
	out := make([]keyResult, 0, len(data))
	for i, row := range data {
		raw := cellAt(row, keyIdx)
		if strings.TrimSpace(raw) == "" {
			continue
		}
		v, err := util.ParseNumber(raw)
		if err != nil {
			out = append(out, keyResult{index: i, raw: raw, reason: "not a number"})
			continue
		}
		out = append(out, keyResult{index: i, value: v, raw: raw})
	}
	return out
}

// columnIndex maps header text to column position. Duplicate headers keep
// their first position.
func columnIndex(header []string) map[string]int {
	out := make(map[string]int, len(header))
	for i, name := range header {
		if name == "" {
			continue
		}
		if _, exists := out[name]; !exists {
			out[name] = i
		}
	}
	return out
}

func rowCells(columns map[string]int, row []string) map[string]string {
	cells := make(map[string]string, len(columns))
	for name, idx := range columns {
		cells[name] = cellAt(row, idx)
	}
	return cells
}

func cellAt(row []string, idx int) string {
	if idx >= 0 && idx < len(row) {
		return row[idx]
	}
	return ""
}
