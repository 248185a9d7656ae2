package azure

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/costmanagement/armcostmanagement"

	"github.com/softwareone-finops/cloud-billing/internal/billing"
)

// QueryMonthCosts retrieves daily actual costs for one subscription and one
// YYYY-MM billing cycle through the Cost Management query API, grouped by
// service name and resource group.
func (c *Client) QueryMonthCosts(ctx context.Context, subscriptionID, cycle string) ([]billing.Record, error) {
	if subscriptionID == "" {
		return nil, &billing.ValidationError{Field: "subscription", Reason: "must not be empty"}
	}
	startStr, endStr, err := billing.CycleBounds(cycle)
	if err != nil {
		return nil, err
	}
	start, _ := time.Parse("2006-01-02", startStr)
	end, _ := time.Parse("2006-01-02", endStr)

	scope := fmt.Sprintf("/subscriptions/%s", subscriptionID)
	queryType := armcostmanagement.ExportTypeActualCost
	timeframe := armcostmanagement.TimeframeTypeCustom
	granularity := armcostmanagement.GranularityTypeDaily

	queryDef := armcostmanagement.QueryDefinition{
		Type:      &queryType,
		Timeframe: &timeframe,
		TimePeriod: &armcostmanagement.QueryTimePeriod{
			From: &start,
			To:   &end,
		},
		Dataset: &armcostmanagement.QueryDataset{
			Granularity: &granularity,
			Aggregation: map[string]*armcostmanagement.QueryAggregation{
				"totalCost": {
					Name:     stringPtr("Cost"),
					Function: functionPtr(armcostmanagement.FunctionTypeSum),
				},
			},
			Grouping: []*armcostmanagement.QueryGrouping{
				newGrouping("ServiceName"),
				newGrouping("ResourceGroup"),
			},
		},
	}

	resp, err := c.query.Usage(ctx, scope, queryDef, nil)
	if err != nil {
		return nil, classifyARMError(err)
	}

	return c.parseUsageResult(resp.QueryResult, subscriptionID, cycle), nil
}

// MonthlyBill implements billing.MonthlySource against the subscription the
// client was configured with.
func (c *Client) MonthlyBill(ctx context.Context, cycle string) ([]billing.Record, error) {
	return c.QueryMonthCosts(ctx, c.subscription, cycle)
}

// parseUsageResult converts a Cost Management query result into records.
// Rows missing the Cost or UsageDate columns are dropped.
func (c *Client) parseUsageResult(result armcostmanagement.QueryResult, subscriptionID, cycle string) []billing.Record {
	var records []billing.Record

	if result.Properties == nil || result.Properties.Rows == nil {
		return records
	}

	columnMap := buildColumnMap(result.Properties.Columns)
	costIdx, hasCost := columnMap["Cost"]
	dateIdx, hasDate := columnMap["UsageDate"]
	if !hasCost || !hasDate {
		return records
	}

	for _, row := range result.Properties.Rows {
		if len(row) <= costIdx || len(row) <= dateIdx {
			continue
		}
		record := billing.Record{
			Provider:      billing.ProviderAzure,
			AccountID:     subscriptionID,
			BillingPeriod: parseUsageDate(row[dateIdx]),
			Product:       getStringFromRow(row, columnMap, "ServiceName"),
			Cost:          parseCost(row[costIdx]),
			PayableAmount: parseCost(row[costIdx]),
			Currency:      getStringFromRow(row, columnMap, "Currency"),
			ResourceGroup: getStringFromRow(row, columnMap, "ResourceGroup"),
		}
		if record.BillingPeriod == "" {
			record.BillingPeriod = cycle
		}
		records = append(records, record)
	}

	return records
}

// buildColumnMap creates a map of column names to their indices.
func buildColumnMap(columns []*armcostmanagement.QueryColumn) map[string]int {
	columnMap := make(map[string]int)
	for i, col := range columns {
		if col.Name != nil {
			columnMap[*col.Name] = i
		}
	}
	return columnMap
}

// getStringFromRow extracts a string value from a row by column name.
func getStringFromRow(row []interface{}, columnMap map[string]int, columnName string) string {
	if idx, ok := columnMap[columnName]; ok && len(row) > idx {
		value := fmt.Sprintf("%v", row[idx])
		if value != "" && value != "<nil>" {
			return value
		}
	}
	return ""
}

// parseCost extracts and converts a cost value to float64.
func parseCost(value interface{}) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0.0
	}
}

// parseUsageDate normalizes the UsageDate column (numeric YYYYMMDD or a
// date string) to YYYY-MM-DD.
func parseUsageDate(value interface{}) string {
	var raw string
	switch v := value.(type) {
	case float64:
		raw = fmt.Sprintf("%.0f", v)
	case int, int64:
		raw = fmt.Sprintf("%d", v)
	case string:
		raw = v
	default:
		raw = fmt.Sprintf("%v", v)
	}

	var digits strings.Builder
	for _, ch := range raw {
		if ch >= '0' && ch <= '9' {
			digits.WriteRune(ch)
		}
	}
	d := digits.String()
	if len(d) >= 8 {
		return fmt.Sprintf("%s-%s-%s", d[0:4], d[4:6], d[6:8])
	}
	return d
}

// classifyARMError maps SDK response errors onto the error taxonomy.
func classifyARMError(err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &billing.AuthenticationError{Provider: billing.ProviderAzure, Err: err}
		case http.StatusTooManyRequests:
			return &billing.RateLimitError{Provider: billing.ProviderAzure, Message: respErr.ErrorCode}
		default:
			return &billing.ProviderError{
				Provider:   billing.ProviderAzure,
				StatusCode: respErr.StatusCode,
				Code:       respErr.ErrorCode,
				Message:    err.Error(),
			}
		}
	}
	return fmt.Errorf("cost query failed: %w", err)
}

func newGrouping(name string) *armcostmanagement.QueryGrouping {
	groupType := armcostmanagement.QueryColumnTypeDimension
	n := name
	return &armcostmanagement.QueryGrouping{Type: &groupType, Name: &n}
}

func stringPtr(s string) *string { return &s }

func functionPtr(f armcostmanagement.FunctionType) *armcostmanagement.FunctionType {
	return &f
}
