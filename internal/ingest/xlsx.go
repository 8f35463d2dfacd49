package ingest

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/adaptivedocs/corrigo/internal/model"
)

// XLSXOptions selects which sheet to read and how many leading rows to
// skip before the header row.
type XLSXOptions struct {
	SheetIndex int
	SheetName  string
	SkipRows   int
}

// ReadXLSX parses a header-mapped XLSX worksheet into invoices.
func ReadXLSX(path string, opts XLSXOptions) ([]model.Invoice, error) {
	wb, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open xlsx file")
	}
	if len(wb.Sheets) == 0 {
		return nil, eris.New("ingest: workbook has no sheets")
	}

	sheet := wb.Sheets[0]
	if opts.SheetName != "" {
		named, ok := wb.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("ingest: sheet %q not found", opts.SheetName)
		}
		sheet = named
	} else if opts.SheetIndex > 0 {
		if opts.SheetIndex >= len(wb.Sheets) {
			return nil, eris.Errorf("ingest: sheet index %d out of range", opts.SheetIndex)
		}
		sheet = wb.Sheets[opts.SheetIndex]
	}

	rows := sheet.Rows
	if opts.SkipRows > 0 {
		if opts.SkipRows >= len(rows) {
			return nil, eris.Errorf("ingest: skip_rows %d exceeds sheet length", opts.SkipRows)
		}
		rows = rows[opts.SkipRows:]
	}
	if len(rows) == 0 {
		return nil, eris.New("ingest: sheet is empty")
	}

	idx, err := indexHeaders(rowToStrings(rows[0]))
	if err != nil {
		return nil, err
	}

	var invoices []model.Invoice
	for i, row := range rows[1:] {
		cells := rowToStrings(row)
		if isBlankRow(cells) {
			continue
		}
		inv, err := rowToInvoice(idx, cells)
		if err != nil {
			zap.L().Warn("skipping malformed xlsx row",
				zap.Int("row", opts.SkipRows+i+2),
				zap.Error(err))
			continue
		}
		invoices = append(invoices, inv)
	}
	return invoices, nil
}

func rowToStrings(row *xlsx.Row) []string {
	out := make([]string, len(row.Cells))
	for i, cell := range row.Cells {
		out[i] = cell.String()
	}
	return out
}

func isBlankRow(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
