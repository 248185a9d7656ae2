package alibaba

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/aliyun/alibaba-cloud-sdk-go/sdk/requests"

	"github.com/softwareone-finops/cloud-billing/internal/billing"
	"github.com/softwareone-finops/cloud-billing/internal/logger"
)

// fakeTransport replays canned response bodies and records every request.
type fakeTransport struct {
	responses [][]byte
	err       error
	requests  []*requests.CommonRequest
}

func (f *fakeTransport) Execute(req *requests.CommonRequest) ([]byte, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.requests) > len(f.responses) {
		return nil, fmt.Errorf("unexpected request %d", len(f.requests))
	}
	return f.responses[len(f.requests)-1], nil
}

func newTestClient(t *testing.T, ft *fakeTransport) *Client {
	t.Helper()
	return &Client{
		transport: ft,
		regionID:  "cn-hangzhou",
		logger:    logger.New("error"),
	}
}

// billPage marshals a DescribeInstanceBill response with n generated items.
func billPage(t *testing.T, cycle string, n int, firstIndex int, nextToken string) []byte {
	t.Helper()
	items := make([]InstanceBillItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, InstanceBillItem{
			ProductName:   "ECS",
			InstanceID:    fmt.Sprintf("i-%05d", firstIndex+i),
			PretaxAmount:  1.5,
			PaymentAmount: 1.5,
			Currency:      "CNY",
		})
	}
	body, err := json.Marshal(instanceBillResponse{
		RequestID: "req-1",
		Code:      "Success",
		Success:   true,
		Data: instanceBillData{
			BillingCycle: cycle,
			TotalCount:   n,
			NextToken:    nextToken,
			MaxResults:   n,
			Items:        items,
		},
	})
	if err != nil {
		t.Fatalf("failed to marshal fixture: %v", err)
	}
	return body
}

func TestFetchInstanceBill_TwoPages(t *testing.T) {
	ft := &fakeTransport{responses: [][]byte{
		billPage(t, "2024-01", 100, 0, "token-page-2"),
		billPage(t, "2024-01", 40, 100, ""),
	}}
	client := newTestClient(t, ft)

	items, err := client.FetchInstanceBill(context.Background(), "2024-01", &BillOptions{PageSize: 100})
	if err != nil {
		t.Fatalf("FetchInstanceBill failed: %v", err)
	}

	if len(items) != 140 {
		t.Errorf("got %d items, want 140", len(items))
	}
	if len(ft.requests) != 2 {
		t.Errorf("got %d HTTP calls, want 2", len(ft.requests))
	}

	// Native order preserved across pages
	if items[0].InstanceID != "i-00000" {
		t.Errorf("first item = %s, want i-00000", items[0].InstanceID)
	}
	if items[139].InstanceID != "i-00139" {
		t.Errorf("last item = %s, want i-00139", items[139].InstanceID)
	}

	// Second request carries the token from the first page
	if got := ft.requests[1].QueryParams["NextToken"]; got != "token-page-2" {
		t.Errorf("second request NextToken = %q, want token-page-2", got)
	}
}

func TestFetchInstanceBill_ShortPageStops(t *testing.T) {
	// A short page stops accumulation even when a stale token is present.
	ft := &fakeTransport{responses: [][]byte{
		billPage(t, "2024-01", 40, 0, "stale-token"),
	}}
	client := newTestClient(t, ft)

	items, err := client.FetchInstanceBill(context.Background(), "2024-01", &BillOptions{PageSize: 100})
	if err != nil {
		t.Fatalf("FetchInstanceBill failed: %v", err)
	}
	if len(items) != 40 {
		t.Errorf("got %d items, want 40", len(items))
	}
	if len(ft.requests) != 1 {
		t.Errorf("got %d HTTP calls, want 1", len(ft.requests))
	}
}

func TestFetchInstanceBill_InvalidCycle(t *testing.T) {
	tests := []string{"202401", "2024-1", "2024/01", "jan-2024", "2024-13", ""}

	for _, cycle := range tests {
		t.Run(cycle, func(t *testing.T) {
			ft := &fakeTransport{}
			client := newTestClient(t, ft)

			_, err := client.FetchInstanceBill(context.Background(), cycle, nil)
			var vErr *billing.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("got error %v, want *billing.ValidationError", err)
			}
			if len(ft.requests) != 0 {
				t.Errorf("issued %d HTTP calls before validation, want 0", len(ft.requests))
			}
		})
	}
}

func TestFetchInstanceBill_DailyGranularity(t *testing.T) {
	ft := &fakeTransport{responses: [][]byte{
		billPage(t, "2024-01", 1, 0, ""),
	}}
	client := newTestClient(t, ft)

	_, err := client.FetchInstanceBill(context.Background(), "2024-01", &BillOptions{BillingDate: "2024-01-15"})
	if err != nil {
		t.Fatalf("FetchInstanceBill failed: %v", err)
	}

	req := ft.requests[0]
	if got := req.QueryParams["BillingDate"]; got != "2024-01-15" {
		t.Errorf("BillingDate = %q, want 2024-01-15", got)
	}
	if got := req.QueryParams["Granularity"]; got != "DAILY" {
		t.Errorf("Granularity = %q, want DAILY", got)
	}
}

func TestFetchInstanceBill_APIFailure(t *testing.T) {
	body, _ := json.Marshal(instanceBillResponse{
		RequestID: "req-1",
		Code:      "InvalidBillingCycle",
		Message:   "The specified BillingCycle is invalid.",
		Success:   false,
	})
	ft := &fakeTransport{responses: [][]byte{body}}
	client := newTestClient(t, ft)

	_, err := client.FetchInstanceBill(context.Background(), "2024-01", nil)
	var pErr *billing.ProviderError
	if !errors.As(err, &pErr) {
		t.Fatalf("got error %v, want *billing.ProviderError", err)
	}
	if pErr.Code != "InvalidBillingCycle" {
		t.Errorf("error code = %q, want InvalidBillingCycle", pErr.Code)
	}
}

func TestFetchInstanceBill_ContextCancelled(t *testing.T) {
	ft := &fakeTransport{responses: [][]byte{billPage(t, "2024-01", 1, 0, "")}}
	client := newTestClient(t, ft)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.FetchInstanceBill(ctx, "2024-01", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got error %v, want context.Canceled", err)
	}
	if len(ft.requests) != 0 {
		t.Errorf("issued %d HTTP calls after cancellation, want 0", len(ft.requests))
	}
}

func TestFetchAllPages_ConvertsRecords(t *testing.T) {
	ft := &fakeTransport{responses: [][]byte{
		billPage(t, "2024-01", 3, 0, ""),
	}}
	client := newTestClient(t, ft)

	records, err := client.FetchAllPages(context.Background(), "2024-01", 100)
	if err != nil {
		t.Fatalf("FetchAllPages failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}

	r := records[0]
	if r.Provider != billing.ProviderAlibaba {
		t.Errorf("Provider = %q, want alibaba", r.Provider)
	}
	if r.BillingPeriod != "2024-01" {
		t.Errorf("BillingPeriod = %q, want 2024-01", r.BillingPeriod)
	}
	if r.Cost != 1.5 {
		t.Errorf("Cost = %v, want 1.5", r.Cost)
	}
	if r.Currency != "CNY" {
		t.Errorf("Currency = %q, want CNY", r.Currency)
	}
}

func TestFetchAmortizedCost_Pagination(t *testing.T) {
	page := func(n int, token string) []byte {
		items := make([]AmortizedItem, n)
		for i := range items {
			items[i] = AmortizedItem{ProductName: "ECS", PretaxAmount: 2.0}
		}
		body, err := json.Marshal(amortizedResponse{
			Code:    "Success",
			Success: true,
			Data:    amortizedData{TotalCount: n, NextToken: token, Items: items},
		})
		if err != nil {
			t.Fatalf("failed to marshal fixture: %v", err)
		}
		return body
	}

	ft := &fakeTransport{responses: [][]byte{page(2, "more"), page(1, "")}}
	client := newTestClient(t, ft)

	items, err := client.FetchAmortizedCost(context.Background(), "2024-02")
	if err != nil {
		t.Fatalf("FetchAmortizedCost failed: %v", err)
	}
	if len(items) != 3 {
		t.Errorf("got %d items, want 3", len(items))
	}
	if len(ft.requests) != 2 {
		t.Errorf("got %d HTTP calls, want 2", len(ft.requests))
	}
	if got := ft.requests[0].ApiName; got != "DescribeInstanceAmortizedCostByAmortizationPeriod" {
		t.Errorf("ApiName = %q", got)
	}
}
