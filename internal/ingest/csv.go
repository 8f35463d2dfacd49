package ingest

import (
	"encoding/csv"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/adaptivedocs/corrigo/internal/model"
)

// ReadCSV parses a header-mapped CSV file into invoices. Rows that cannot
// be mapped are logged and skipped rather than failing the whole file.
func ReadCSV(path string) ([]model.Invoice, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open csv file")
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, eris.Wrap(err, "ingest: read csv header")
	}
	idx, err := indexHeaders(header)
	if err != nil {
		return nil, err
	}

	var invoices []model.Invoice
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: read csv row %d", line+1)
		}
		line++
		inv, err := rowToInvoice(idx, row)
		if err != nil {
			zap.L().Warn("skipping malformed csv row",
				zap.Int("line", line),
				zap.Error(err))
			continue
		}
		invoices = append(invoices, inv)
	}
	return invoices, nil
}
