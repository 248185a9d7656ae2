package azure

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"

	"github.com/softwareone-finops/cloud-billing/internal/billing"
)

// ReservationCharge is one row of a generated cost details report CSV,
// trimmed to the columns the toolkit consumes. Date columns keep the
// provider's string format.
type ReservationCharge struct {
	InvoiceID              string
	BillingAccountID       string
	BillingAccountName     string
	BillingProfileID       string
	BillingProfileName     string
	BillingPeriodStartDate string
	BillingPeriodEndDate   string
	Date                   string
	ServiceFamily          string
	ConsumedService        string
	MeterID                string
	MeterName              string
	MeterCategory          string
	MeterSubCategory       string
	ProductName            string
	SubscriptionID         string
	SubscriptionName       string
	ResourceGroupName      string
	ResourceID             string
	ResourceLocation       string
	UnitOfMeasure          string
	ChargeType             string
	PricingModel           string
	ReservationID          string
	ReservationName        string
	Term                   string
	PublisherName          string
	BillingCurrency        string
	PricingCurrency        string
	Tags                   string

	Quantity              float64
	EffectivePrice        float64
	UnitPrice             float64
	CostInBillingCurrency float64
	CostInUSD             float64
}

// Record converts a report row to the provider-neutral form.
func (rc ReservationCharge) Record() billing.Record {
	period := rc.Date
	if period == "" {
		period = rc.BillingPeriodStartDate
	}
	return billing.Record{
		Provider:      billing.ProviderAzure,
		AccountID:     rc.BillingAccountID,
		AccountName:   rc.BillingAccountName,
		BillingPeriod: period,
		Product:       rc.ProductName,
		InstanceID:    rc.ResourceID,
		Cost:          rc.CostInBillingCurrency,
		PayableAmount: rc.CostInBillingCurrency,
		Currency:      rc.BillingCurrency,
		UsageQuantity: strconv.FormatFloat(rc.Quantity, 'f', -1, 64),
		UsageUnit:     rc.UnitOfMeasure,
		Region:        rc.ResourceLocation,
		ResourceGroup: rc.ResourceGroupName,
		ChargeType:    rc.ChargeType,
		Extensions: map[string]string{
			"MeterCategory":   rc.MeterCategory,
			"PricingModel":    rc.PricingModel,
			"ReservationId":   rc.ReservationID,
			"ReservationName": rc.ReservationName,
			"Tags":            rc.Tags,
		},
	}
}

// ChargeSeq is a lazy, finite, non-restartable sequence of report rows.
type ChargeSeq = iter.Seq2[ReservationCharge, error]

// ParseCharges streams a report CSV body row by row, mapping columns by
// header name. Unknown columns are ignored and missing columns leave zero
// values. A row that fails to parse yields an error for that row alone so
// one malformed row does not discard the rest of the report.
func ParseCharges(r io.Reader) ChargeSeq {
	return func(yield func(ReservationCharge, error) bool) {
		br := bufio.NewReader(r)
		skipBOM(br)

		cr := csv.NewReader(br)
		cr.FieldsPerRecord = -1

		header, err := cr.Read()
		if err == io.EOF {
			return
		}
		if err != nil {
			yield(ReservationCharge{}, fmt.Errorf("failed to read CSV header: %w", err))
			return
		}
		cols := columnIndex(header)

		for line := 2; ; line++ {
			row, err := cr.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				if !yield(ReservationCharge{}, fmt.Errorf("line %d: %w", line, err)) {
					return
				}
				continue
			}

			charge, err := parseChargeRow(row, cols)
			if err != nil {
				err = fmt.Errorf("line %d: %w", line, err)
			}
			if !yield(charge, err) {
				return
			}
		}
	}
}

// skipBOM drops a UTF-8 byte order mark if present. Report blobs are
// written with one.
func skipBOM(br *bufio.Reader) {
	bom, err := br.Peek(3)
	if err == nil && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		br.Discard(3)
	}
}

// columnIndex maps lowercased header names to their positions.
func columnIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return cols
}

func parseChargeRow(row []string, cols map[string]int) (ReservationCharge, error) {
	get := func(name string) string {
		if idx, ok := cols[name]; ok && idx < len(row) {
			return strings.TrimSpace(row[idx])
		}
		return ""
	}

	charge := ReservationCharge{
		InvoiceID:              get("invoiceid"),
		BillingAccountID:       get("billingaccountid"),
		BillingAccountName:     get("billingaccountname"),
		BillingProfileID:       get("billingprofileid"),
		BillingProfileName:     get("billingprofilename"),
		BillingPeriodStartDate: get("billingperiodstartdate"),
		BillingPeriodEndDate:   get("billingperiodenddate"),
		Date:                   get("date"),
		ServiceFamily:          get("servicefamily"),
		ConsumedService:        get("consumedservice"),
		MeterID:                get("meterid"),
		MeterName:              get("metername"),
		MeterCategory:          get("metercategory"),
		MeterSubCategory:       get("metersubcategory"),
		ProductName:            get("productname"),
		SubscriptionID:         get("subscriptionid"),
		SubscriptionName:       get("subscriptionname"),
		ResourceGroupName:      get("resourcegroupname"),
		ResourceID:             get("resourceid"),
		ResourceLocation:       get("resourcelocation"),
		UnitOfMeasure:          get("unitofmeasure"),
		ChargeType:             get("chargetype"),
		PricingModel:           get("pricingmodel"),
		ReservationID:          get("reservationid"),
		ReservationName:        get("reservationname"),
		Term:                   get("term"),
		PublisherName:          get("publishername"),
		BillingCurrency:        get("billingcurrency"),
		PricingCurrency:        get("pricingcurrency"),
		Tags:                   get("tags"),
	}

	var err error
	if charge.Quantity, err = parseNumeric("quantity", get("quantity")); err != nil {
		return charge, err
	}
	if charge.EffectivePrice, err = parseNumeric("effectivePrice", get("effectiveprice")); err != nil {
		return charge, err
	}
	if charge.UnitPrice, err = parseNumeric("unitPrice", get("unitprice")); err != nil {
		return charge, err
	}
	if charge.CostInBillingCurrency, err = parseNumeric("costInBillingCurrency", get("costinbillingcurrency")); err != nil {
		return charge, err
	}
	if charge.CostInUSD, err = parseNumeric("costInUsd", get("costinusd")); err != nil {
		return charge, err
	}

	return charge, nil
}

// parseNumeric converts a CSV numeric field, treating empty as zero the way
// the provider's own exports do.
func parseNumeric(name, value string) (float64, error) {
	if value == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("column %s: %q is not numeric", name, value)
	}
	return f, nil
}
