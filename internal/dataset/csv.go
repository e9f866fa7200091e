package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"arbfee/internal/model"
)

// Columns appended to every output row, in order.
var ResultColumns = []string{"strategy", "arbitrage(%)", "total_fees", "arbitrage_after_fees"}

var errEmptyHeader = errors.New("csv has no header row")

// Table is a CSV file held in memory.
type Table struct {
	Header []string
	Rows   [][]string
}

// Read loads a headed CSV document.
func Read(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errEmptyHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	t := &Table{Header: header}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(t.Rows), err)
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

// PriceRow returns row i as column/value cells in header order.
func (t *Table) PriceRow(i int) model.PriceRow {
	rec := t.Rows[i]
	row := make(model.PriceRow, len(t.Header))
	for j, col := range t.Header {
		row[j] = model.Cell{Column: col, Value: rec[j]}
	}
	return row
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Write emits header and rows as CSV.
func Write(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

// ResultCells renders a scan result as the appended output columns.
func ResultCells(r model.ScanResult) []string {
	return []string{r.Strategy, r.ArbitragePct.String(), r.TotalFees.String(), r.ArbitrageAfterFees.String()}
}

// InvalidCells renders the appended columns for a row that failed to scan.
func InvalidCells(err error) []string {
	return []string{"invalid: " + err.Error(), "", "", ""}
}
