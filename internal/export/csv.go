// Package export serializes ledger rows to a spreadsheet-compatible CSV
// file. Pure I/O: no business logic lives here.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/shopspring/decimal"

	"tienda/pos/internal/domain"
)

var header = []string{"producto", "cantidad", "total", "fecha"}

// WriteSales writes one row per ledger entry to path, overwriting any
// existing file of the same name.
func WriteSales(path string, sales []domain.Sale) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		_ = f.Close()
		return err
	}
	for _, sale := range sales {
		record := []string{
			sale.Product,
			strconv.Itoa(sale.Quantity),
			sale.Total.String(),
			sale.Date,
		}
		if err := w.Write(record); err != nil {
			_ = f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ReadSales parses a file written by WriteSales. Used to verify exports
// round-trip.
func ReadSales(path string) ([]domain.Sale, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: missing header row", path)
	}

	sales := make([]domain.Sale, 0, len(records)-1)
	for _, record := range records[1:] {
		if len(record) != len(header) {
			return nil, fmt.Errorf("%s: expected %d columns, got %d", path, len(header), len(record))
		}
		qty, err := strconv.Atoi(record[1])
		if err != nil {
			return nil, fmt.Errorf("%s: bad quantity %q: %w", path, record[1], err)
		}
		total, err := decimal.NewFromString(record[2])
		if err != nil {
			return nil, fmt.Errorf("%s: bad total %q: %w", path, record[2], err)
		}
		sales = append(sales, domain.Sale{
			Product:  record[0],
			Quantity: qty,
			Total:    total,
			Date:     record[3],
		})
	}
	return sales, nil
}
