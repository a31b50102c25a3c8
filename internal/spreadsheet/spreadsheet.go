// Package spreadsheet reads price sheets into desired rows and writes catalog
// exports and row outcome tables as xlsx workbooks.
package spreadsheet

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"b2b-pricing/internal/model"
)

// ContentType is the MIME type of the workbooks this package writes.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Column headers as exported. Import matches them case-insensitively,
// ignoring spaces, underscores and hyphens.
const (
	ColumnSKU          = "SKU"
	ColumnPrice        = "Price"
	ColumnCompareAt    = "CompareAt Price"
	ColumnSpecialPrice = "B2B Price"
	ColumnReason       = "Reason"
)

const sheetName = "Products"

// ExportHeaders is the column order of an export workbook.
var ExportHeaders = []string{ColumnSKU, ColumnPrice, ColumnCompareAt, ColumnSpecialPrice}

// Sheet is a parsed price sheet.
type Sheet struct {
	Headers []string // header row as written, blank headers dropped
	Rows    []model.DesiredRow
}

// ReadRows parses the first worksheet of an xlsx workbook. The first row is
// the header row. Rows without a SKU are skipped. A column that is missing
// from the header leaves the matching DesiredRow field nil; a blank cell in a
// present column yields "".
func ReadRows(r io.Reader) (*Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, model.NewValidationError("file", fmt.Sprintf("not a readable xlsx workbook: %v", err))
	}
	defer f.Close()

	name := f.GetSheetName(0)
	if name == "" {
		return nil, model.NewValidationError("file", "workbook has no sheets")
	}
	rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", name, err)
	}
	if len(rows) == 0 {
		return nil, model.NewValidationError("file", "sheet is empty")
	}

	cols := mapColumns(rows[0])
	if cols.sku < 0 {
		return nil, model.NewValidationError("file", "missing SKU column")
	}

	sheet := &Sheet{Rows: make([]model.DesiredRow, 0, len(rows)-1)}
	for _, h := range rows[0] {
		if h = strings.TrimSpace(h); h != "" {
			sheet.Headers = append(sheet.Headers, h)
		}
	}

	for i, cells := range rows[1:] {
		sku := model.NormalizeSKU(cell(cells, cols.sku))
		if sku == "" {
			continue
		}
		row := model.DesiredRow{
			Line:           i + 2,
			SKU:            sku,
			Price:          optionalCell(cells, cols.price),
			CompareAtPrice: optionalCell(cells, cols.compareAt),
			SpecialPrice:   optionalCell(cells, cols.special),
			Source:         make(map[string]string, len(rows[0])),
		}
		for j, h := range rows[0] {
			if h = strings.TrimSpace(h); h != "" {
				row.Source[h] = cell(cells, j)
			}
		}
		sheet.Rows = append(sheet.Rows, row)
	}
	return sheet, nil
}

type columns struct {
	sku, price, compareAt, special int
}

// mapColumns finds each known column in the header row; -1 when absent.
// The first matching header wins.
func mapColumns(header []string) columns {
	cols := columns{sku: -1, price: -1, compareAt: -1, special: -1}
	set := func(dst *int, i int) {
		if *dst < 0 {
			*dst = i
		}
	}
	for i, h := range header {
		switch headerKey(h) {
		case "sku":
			set(&cols.sku, i)
		case "price":
			set(&cols.price, i)
		case "compareatprice", "compareat":
			set(&cols.compareAt, i)
		case "b2bprice", "specialprice":
			set(&cols.special, i)
		}
	}
	return cols
}

func headerKey(h string) string {
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.ToLower(strings.TrimSpace(h)))
}

func cell(cells []string, i int) string {
	if i < 0 || i >= len(cells) {
		return ""
	}
	return cells[i]
}

func optionalCell(cells []string, i int) *string {
	if i < 0 {
		return nil
	}
	v := strings.TrimSpace(cell(cells, i))
	return &v
}

// WriteExport writes every variant as one row of SKU, price, compare-at price
// and special price. Absent optional prices are written as blank cells, so the
// workbook re-imports without changes.
func WriteExport(w io.Writer, variants []model.VariantSnapshot) error {
	f, err := newWorkbook(ExportHeaders)
	if err != nil {
		return err
	}
	defer f.Close()

	for i, v := range variants {
		values := []any{v.SKU, v.Price, "", ""}
		if v.CompareAtPrice != nil {
			values[2] = *v.CompareAtPrice
		}
		if v.SpecialPrice != nil {
			values[3] = *v.SpecialPrice
		}
		if err := setRow(f, i+2, values); err != nil {
			return err
		}
	}
	return writeWorkbook(f, w)
}

// WriteOutcomes writes outcome rows under the original headers plus a Reason
// column. Rows without source cells fall back to their SKU.
func WriteOutcomes(w io.Writer, headers []string, outcomes []model.RowOutcome) error {
	if len(headers) == 0 {
		headers = []string{ColumnSKU}
	}
	f, err := newWorkbook(append(append([]string{}, headers...), ColumnReason))
	if err != nil {
		return err
	}
	defer f.Close()

	skuCol := mapColumns(headers).sku
	for i, o := range outcomes {
		values := make([]any, len(headers)+1)
		for j, h := range headers {
			values[j] = o.Source[h]
		}
		if len(o.Source) == 0 && skuCol >= 0 {
			values[skuCol] = o.SKU
		}
		values[len(headers)] = o.Reason
		if err := setRow(f, i+2, values); err != nil {
			return err
		}
	}
	return writeWorkbook(f, w)
}

func newWorkbook(headers []string) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		f.Close()
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	values := make([]any, len(headers))
	for i, h := range headers {
		values[i] = h
	}
	if err := setRow(f, 1, values); err != nil {
		f.Close()
		return nil, err
	}

	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("creating header style: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := f.SetCellStyle(sheetName, "A1", last, style); err != nil {
		f.Close()
		return nil, fmt.Errorf("styling header: %w", err)
	}
	return f, nil
}

func setRow(f *excelize.File, row int, values []any) error {
	start, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheetName, start, &values); err != nil {
		return fmt.Errorf("writing row %d: %w", row, err)
	}
	return nil
}

func writeWorkbook(f *excelize.File, w io.Writer) error {
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}
