package azure

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/costmanagement/armcostmanagement"

	"github.com/softwareone-finops/cloud-billing/internal/billing"
	"github.com/softwareone-finops/cloud-billing/internal/logger"
)

type fakeQuerier struct {
	response armcostmanagement.QueryClientUsageResponse
	err      error

	gotScope string
	calls    int
}

func (f *fakeQuerier) Usage(_ context.Context, scope string, _ armcostmanagement.QueryDefinition, _ *armcostmanagement.QueryClientUsageOptions) (armcostmanagement.QueryClientUsageResponse, error) {
	f.calls++
	f.gotScope = scope
	if f.err != nil {
		return armcostmanagement.QueryClientUsageResponse{}, f.err
	}
	return f.response, nil
}

func usageResponse(columns []string, rows [][]interface{}) armcostmanagement.QueryClientUsageResponse {
	cols := make([]*armcostmanagement.QueryColumn, len(columns))
	for i := range columns {
		name := columns[i]
		cols[i] = &armcostmanagement.QueryColumn{Name: &name}
	}
	return armcostmanagement.QueryClientUsageResponse{
		QueryResult: armcostmanagement.QueryResult{
			Properties: &armcostmanagement.QueryProperties{
				Columns: cols,
				Rows:    rows,
			},
		},
	}
}

func newResponseError(status int) *azcore.ResponseError {
	return &azcore.ResponseError{
		StatusCode: status,
		ErrorCode:  http.StatusText(status),
		RawResponse: &http.Response{
			StatusCode: status,
			Status:     http.StatusText(status),
			Header:     http.Header{},
			Body:       io.NopCloser(strings.NewReader("")),
			Request: &http.Request{
				Method: http.MethodPost,
				URL:    &url.URL{Scheme: "https", Host: "management.azure.com", Path: "/query"},
			},
		},
	}
}

func newUsageClient(q costQuerier) *Client {
	return &Client{
		query:        q,
		subscription: "sub-prod",
		logger:       logger.Discard(),
	}
}

func TestQueryMonthCosts_ParsesRows(t *testing.T) {
	fake := &fakeQuerier{
		response: usageResponse(
			[]string{"Cost", "UsageDate", "ServiceName", "ResourceGroup", "Currency"},
			[][]interface{}{
				{12.5, float64(20240115), "Virtual Machines", "rg-prod", "USD"},
				{0.8, float64(20240116), "Storage", "rg-data", "USD"},
			},
		),
	}
	c := newUsageClient(fake)

	records, err := c.QueryMonthCosts(context.Background(), "sub-prod", "2024-01")
	if err != nil {
		t.Fatalf("QueryMonthCosts() error = %v", err)
	}
	if fake.gotScope != "/subscriptions/sub-prod" {
		t.Errorf("scope = %q", fake.gotScope)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	first := records[0]
	if first.Provider != billing.ProviderAzure || first.AccountID != "sub-prod" {
		t.Errorf("identity fields = %+v", first)
	}
	if first.BillingPeriod != "2024-01-15" {
		t.Errorf("BillingPeriod = %q, want 2024-01-15", first.BillingPeriod)
	}
	if first.Product != "Virtual Machines" || first.ResourceGroup != "rg-prod" {
		t.Errorf("dimensions = %+v", first)
	}
	if first.Cost != 12.5 || first.Currency != "USD" {
		t.Errorf("cost fields = %+v", first)
	}
}

func TestQueryMonthCosts_InputValidation(t *testing.T) {
	fake := &fakeQuerier{}
	c := newUsageClient(fake)

	tests := []struct {
		name         string
		subscription string
		cycle        string
	}{
		{"empty subscription", "", "2024-01"},
		{"malformed cycle", "sub-prod", "202401"},
		{"month out of range", "sub-prod", "2024-13"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.QueryMonthCosts(context.Background(), tc.subscription, tc.cycle)
			var verr *billing.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error = %v, want ValidationError", err)
			}
		})
	}
	if fake.calls != 0 {
		t.Errorf("query calls = %d, want 0", fake.calls)
	}
}

func TestQueryMonthCosts_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(t *testing.T, err error)
	}{
		{
			"unauthorized", http.StatusUnauthorized,
			func(t *testing.T, err error) {
				var aerr *billing.AuthenticationError
				if !errors.As(err, &aerr) {
					t.Fatalf("error = %v, want AuthenticationError", err)
				}
			},
		},
		{
			"throttled", http.StatusTooManyRequests,
			func(t *testing.T, err error) {
				var rerr *billing.RateLimitError
				if !errors.As(err, &rerr) {
					t.Fatalf("error = %v, want RateLimitError", err)
				}
			},
		},
		{
			"server error", http.StatusInternalServerError,
			func(t *testing.T, err error) {
				var perr *billing.ProviderError
				if !errors.As(err, &perr) {
					t.Fatalf("error = %v, want ProviderError", err)
				}
				if perr.StatusCode != http.StatusInternalServerError {
					t.Errorf("StatusCode = %d", perr.StatusCode)
				}
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newUsageClient(&fakeQuerier{err: newResponseError(tc.status)})
			_, err := c.QueryMonthCosts(context.Background(), "sub-prod", "2024-01")
			tc.check(t, err)
		})
	}
}

func TestQueryMonthCosts_MissingRequiredColumns(t *testing.T) {
	fake := &fakeQuerier{
		response: usageResponse(
			[]string{"ServiceName"},
			[][]interface{}{{"Virtual Machines"}},
		),
	}
	c := newUsageClient(fake)

	records, err := c.QueryMonthCosts(context.Background(), "sub-prod", "2024-01")
	if err != nil {
		t.Fatalf("QueryMonthCosts() error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("records = %d, want none without Cost and UsageDate columns", len(records))
	}
}

func TestMonthlyBill_UsesConfiguredSubscription(t *testing.T) {
	fake := &fakeQuerier{
		response: usageResponse(
			[]string{"Cost", "UsageDate"},
			[][]interface{}{{1.0, float64(20240201)}},
		),
	}
	c := newUsageClient(fake)

	records, err := c.MonthlyBill(context.Background(), "2024-02")
	if err != nil {
		t.Fatalf("MonthlyBill() error = %v", err)
	}
	if fake.gotScope != "/subscriptions/sub-prod" {
		t.Errorf("scope = %q", fake.gotScope)
	}
	if len(records) != 1 || records[0].BillingPeriod != "2024-02-01" {
		t.Errorf("records = %+v", records)
	}
}
