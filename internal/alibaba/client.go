package alibaba

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aliyun/alibaba-cloud-sdk-go/sdk"
	alierrors "github.com/aliyun/alibaba-cloud-sdk-go/sdk/errors"
	"github.com/aliyun/alibaba-cloud-sdk-go/sdk/requests"

	"github.com/softwareone-finops/cloud-billing/internal/billing"
	"github.com/softwareone-finops/cloud-billing/internal/logger"
)

// BSS OpenAPI endpoint constants
const (
	apiDomain  = "business.aliyuncs.com"
	apiVersion = "2017-12-14"

	// DefaultPageSize is the maximum page size the BSS OpenAPI accepts
	DefaultPageSize = 300
)

// transport executes a signed BSS OpenAPI request and returns the raw
// response body. Declared as an interface so tests can substitute canned
// responses without hitting the API.
type transport interface {
	Execute(req *requests.CommonRequest) ([]byte, error)
}

// acsTransport signs and sends requests through the Alibaba Cloud SDK.
type acsTransport struct {
	client *sdk.Client
}

func (t *acsTransport) Execute(req *requests.CommonRequest) ([]byte, error) {
	resp, err := t.client.ProcessCommonRequest(req)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, &billing.ProviderError{
			Provider:   billing.ProviderAlibaba,
			StatusCode: resp.GetHttpStatus(),
			Message:    resp.GetHttpContentString(),
		}
	}
	return resp.GetHttpContentBytes(), nil
}

// Client queries the Alibaba Cloud BSS OpenAPI for billing data.
// Each client owns its own credentials; instances are independent and safe
// to use concurrently with each other.
type Client struct {
	transport transport
	regionID  string
	logger    *logger.Logger
}

// Verify the capability tier at compile time
var _ billing.PaginatedSource = (*Client)(nil)

// NewClient creates a BSS OpenAPI client for the given access key pair.
func NewClient(accessKeyID, accessKeySecret, regionID string, log *logger.Logger) (*Client, error) {
	acs, err := sdk.NewClientWithAccessKey(regionID, accessKeyID, accessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create Alibaba Cloud client: %w", err)
	}
	return &Client{
		transport: &acsTransport{client: acs},
		regionID:  regionID,
		logger:    log,
	}, nil
}

// Provider returns the provider identifier.
func (c *Client) Provider() billing.Provider { return billing.ProviderAlibaba }

// BillOptions tune an instance bill query.
type BillOptions struct {
	// BillingDate restricts the query to one day (YYYY-MM-DD) with daily
	// granularity. Empty means the whole cycle.
	BillingDate string

	// PageSize is the page size requested per API call. Zero means
	// DefaultPageSize.
	PageSize int
}

// FetchInstanceBill fetches the instance-level bill for a YYYY-MM billing
// cycle, following NextToken pagination until the provider signals the last
// page. Page order is preserved in the returned slice.
func (c *Client) FetchInstanceBill(ctx context.Context, cycle string, opts *BillOptions) ([]InstanceBillItem, error) {
	if err := billing.ValidateCycle(cycle); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &BillOptions{}
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	var items []InstanceBillItem
	nextToken := ""
	page := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page++

		req := c.buildBillRequest(cycle, opts.BillingDate, pageSize, nextToken)
		body, err := c.transport.Execute(req)
		if err != nil {
			return nil, classifyError(err)
		}

		var resp instanceBillResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("failed to parse DescribeInstanceBill response: %w", err)
		}
		if !resp.Success {
			return nil, &billing.ProviderError{
				Provider: billing.ProviderAlibaba,
				Code:     resp.Code,
				Message:  resp.Message,
			}
		}

		items = append(items, resp.Data.Items...)
		c.logger.Debug("Fetched instance bill page",
			"billing_cycle", cycle,
			"page", page,
			"page_items", len(resp.Data.Items),
			"total_items", len(items))

		// The provider omits NextToken on the last page. A short page is
		// honored as a secondary stop condition.
		if strings.TrimSpace(resp.Data.NextToken) == "" || len(resp.Data.Items) < pageSize {
			break
		}
		nextToken = resp.Data.NextToken
	}

	return items, nil
}

// FetchAllPages implements billing.PaginatedSource over FetchInstanceBill.
func (c *Client) FetchAllPages(ctx context.Context, cycle string, pageSize int) ([]billing.Record, error) {
	items, err := c.FetchInstanceBill(ctx, cycle, &BillOptions{PageSize: pageSize})
	if err != nil {
		return nil, err
	}
	records := make([]billing.Record, 0, len(items))
	for _, it := range items {
		records = append(records, it.Record(cycle))
	}
	return records, nil
}

// FetchAmortizedCost fetches instance amortized cost by amortization period
// for a YYYY-MM billing cycle, following the same pagination contract as
// FetchInstanceBill.
func (c *Client) FetchAmortizedCost(ctx context.Context, cycle string) ([]AmortizedItem, error) {
	if err := billing.ValidateCycle(cycle); err != nil {
		return nil, err
	}

	var items []AmortizedItem
	nextToken := ""
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req := c.buildAmortizedRequest(cycle, nextToken)
		body, err := c.transport.Execute(req)
		if err != nil {
			return nil, classifyError(err)
		}

		var resp amortizedResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("failed to parse amortized cost response: %w", err)
		}
		if !resp.Success {
			return nil, &billing.ProviderError{
				Provider: billing.ProviderAlibaba,
				Code:     resp.Code,
				Message:  resp.Message,
			}
		}

		items = append(items, resp.Data.Items...)

		if strings.TrimSpace(resp.Data.NextToken) == "" {
			break
		}
		nextToken = resp.Data.NextToken
	}

	return items, nil
}

func (c *Client) buildBillRequest(cycle, billingDate string, pageSize int, nextToken string) *requests.CommonRequest {
	req := newCommonRequest("DescribeInstanceBill")
	req.QueryParams["BillingCycle"] = cycle
	req.QueryParams["MaxResults"] = strconv.Itoa(pageSize)
	if billingDate != "" {
		req.QueryParams["BillingDate"] = billingDate
		req.QueryParams["Granularity"] = "DAILY"
	}
	if nextToken != "" {
		req.QueryParams["NextToken"] = nextToken
	}
	return req
}

func (c *Client) buildAmortizedRequest(cycle, nextToken string) *requests.CommonRequest {
	req := newCommonRequest("DescribeInstanceAmortizedCostByAmortizationPeriod")
	req.QueryParams["BillingCycle"] = cycle
	req.QueryParams["MaxResults"] = strconv.Itoa(DefaultPageSize)
	if nextToken != "" {
		req.QueryParams["NextToken"] = nextToken
	}
	return req
}

func newCommonRequest(apiName string) *requests.CommonRequest {
	req := requests.NewCommonRequest()
	req.Method = "POST"
	req.Scheme = "https"
	req.Domain = apiDomain
	req.Version = apiVersion
	req.ApiName = apiName
	return req
}

// classifyError maps SDK failures onto the shared error taxonomy.
func classifyError(err error) error {
	var provErr *billing.ProviderError
	if errors.As(err, &provErr) {
		return provErr
	}

	var srvErr *alierrors.ServerError
	if errors.As(err, &srvErr) {
		code := srvErr.ErrorCode()
		switch {
		case isAuthCode(code):
			return &billing.AuthenticationError{Provider: billing.ProviderAlibaba, Err: err}
		case strings.HasPrefix(code, "Throttling"):
			return &billing.RateLimitError{Provider: billing.ProviderAlibaba, Message: srvErr.Message()}
		default:
			return &billing.ProviderError{
				Provider:   billing.ProviderAlibaba,
				StatusCode: srvErr.HttpStatus(),
				Code:       code,
				Message:    srvErr.Message(),
			}
		}
	}

	return fmt.Errorf("alibaba cloud request failed: %w", err)
}

func isAuthCode(code string) bool {
	switch code {
	case "InvalidAccessKeyId.NotFound", "InvalidAccessKeyId.Inactive", "SignatureDoesNotMatch", "Forbidden", "Forbidden.AccessKeyDisabled":
		return true
	}
	return false
}
