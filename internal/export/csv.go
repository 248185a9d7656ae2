package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/softwareone-finops/cloud-billing/internal/billing"
)

// recordHeader is the column order for provider-neutral records. It is
// fixed so exports of the same data are byte-identical.
var recordHeader = []string{
	"provider",
	"account_id",
	"account_name",
	"billing_period",
	"product",
	"instance_id",
	"cost",
	"payable_amount",
	"currency",
	"usage_quantity",
	"usage_unit",
	"region",
	"resource_group",
	"charge_type",
}

// Records flattens billing records into a header and rows ready for Write.
func Records(records []billing.Record) (header []string, rows [][]string) {
	rows = make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			string(r.Provider),
			r.AccountID,
			r.AccountName,
			r.BillingPeriod,
			r.Product,
			r.InstanceID,
			formatFloat(r.Cost),
			formatFloat(r.PayableAmount),
			r.Currency,
			r.UsageQuantity,
			r.UsageUnit,
			r.Region,
			r.ResourceGroup,
			r.ChargeType,
		})
	}
	return recordHeader, rows
}

// Write emits the header followed by the rows with standard CSV quoting.
// The header is written even when there are no rows.
func Write(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for i, row := range rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile writes a CSV file at path, replacing any existing file.
func WriteFile(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := Write(f, header, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteRecords writes billing records to a CSV file in the fixed record
// column order.
func WriteRecords(path string, records []billing.Record) error {
	header, rows := Records(records)
	return WriteFile(path, header, rows)
}

// formatFloat renders a cost with the shortest representation that parses
// back to the same value.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
