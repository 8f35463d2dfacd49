package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "invoices.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadCSV(t *testing.T) {
	path := writeCSV(t, `vendor,invoice_number,invoice_date,currency,total,raw_text
Acme GmbH,INV-001,2026-01-15,EUR,1190.00,Total incl. VAT
Beta AG,INV-002,2026-01-16,,“500”,
`)

	invoices, err := ReadCSV(path)
	require.NoError(t, err)
	require.Len(t, invoices, 1) // the bad-total row is skipped

	assert.Equal(t, "Acme GmbH", invoices[0].Vendor)
	assert.Equal(t, "INV-001", invoices[0].InvoiceNumber)
	assert.Equal(t, "EUR", invoices[0].Currency)
	assert.Equal(t, 1190.00, invoices[0].Total)
	assert.Equal(t, "Total incl. VAT", invoices[0].RawText)
}

func TestReadCSV_ThousandSeparators(t *testing.T) {
	path := writeCSV(t, `vendor,invoice_number,invoice_date,total
Acme GmbH,INV-001,2026-01-15,"12,345.67"
`)

	invoices, err := ReadCSV(path)
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, 12345.67, invoices[0].Total)
}

func TestReadCSV_HeaderCaseInsensitive(t *testing.T) {
	path := writeCSV(t, `Vendor,Invoice_Number,Invoice_Date
Acme GmbH,INV-001,2026-01-15
`)

	invoices, err := ReadCSV(path)
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, "Acme GmbH", invoices[0].Vendor)
}

func TestReadCSV_MissingRequiredColumn(t *testing.T) {
	path := writeCSV(t, `vendor,invoice_date
Acme GmbH,2026-01-15
`)

	_, err := ReadCSV(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invoice_number")
}

func TestReadCSV_SkipsRowMissingVendor(t *testing.T) {
	path := writeCSV(t, `vendor,invoice_number,invoice_date
,INV-001,2026-01-15
Acme GmbH,INV-002,2026-01-16
`)

	invoices, err := ReadCSV(path)
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, "INV-002", invoices[0].InvoiceNumber)
}

func TestReadCSV_FileNotFound(t *testing.T) {
	_, err := ReadCSV(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func writeXLSX(t *testing.T, sheetName string, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	require.NoError(t, err)
	for _, cells := range rows {
		row := sheet.AddRow()
		for _, v := range cells {
			row.AddCell().SetString(v)
		}
	}
	path := filepath.Join(t.TempDir(), "invoices.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadXLSX(t *testing.T) {
	path := writeXLSX(t, "Invoices", [][]string{
		{"vendor", "invoice_number", "invoice_date", "total", "po_number"},
		{"Acme GmbH", "INV-001", "2026-01-15", "1190.00", "4500123456"},
		{"", "", "", "", ""}, // blank rows are skipped
		{"Beta AG", "INV-002", "2026-01-16", "", ""},
	})

	invoices, err := ReadXLSX(path, XLSXOptions{})
	require.NoError(t, err)
	require.Len(t, invoices, 2)

	assert.Equal(t, "Acme GmbH", invoices[0].Vendor)
	assert.Equal(t, 1190.00, invoices[0].Total)
	assert.Equal(t, "4500123456", invoices[0].PONumber)
	assert.Equal(t, "Beta AG", invoices[1].Vendor)
	assert.Zero(t, invoices[1].Total)
}

func TestReadXLSX_SheetByName(t *testing.T) {
	path := writeXLSX(t, "Q1", [][]string{
		{"vendor", "invoice_number", "invoice_date"},
		{"Acme GmbH", "INV-001", "2026-01-15"},
	})

	invoices, err := ReadXLSX(path, XLSXOptions{SheetName: "Q1"})
	require.NoError(t, err)
	assert.Len(t, invoices, 1)

	_, err = ReadXLSX(path, XLSXOptions{SheetName: "Q2"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestReadXLSX_SkipRows(t *testing.T) {
	path := writeXLSX(t, "Invoices", [][]string{
		{"Exported 2026-08-01"},
		{"vendor", "invoice_number", "invoice_date"},
		{"Acme GmbH", "INV-001", "2026-01-15"},
	})

	invoices, err := ReadXLSX(path, XLSXOptions{SkipRows: 1})
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, "Acme GmbH", invoices[0].Vendor)
}

func TestReadXLSX_FileNotFound(t *testing.T) {
	_, err := ReadXLSX(filepath.Join(t.TempDir(), "missing.xlsx"), XLSXOptions{})
	assert.Error(t, err)
}
