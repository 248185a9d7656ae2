package huawei

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/softwareone-finops/cloud-billing/internal/billing"
	"github.com/softwareone-finops/cloud-billing/internal/logger"
)

const (
	// bssEndpoint hosts the Billing Center APIs. BSS is a global service
	// and does not vary by region.
	bssEndpoint = "https://bss.myhuaweicloud.com"

	resRecordsPath = "/v2/bills/customer-bills/res-records"

	// DefaultPageSize is the res-records page size. The API caps limit at 1000.
	DefaultPageSize = 100

	defaultHTTPTimeout = 30 * time.Second
)

// ResourceRecord is one resource-level consumption record from the BSS
// billing API, trimmed to the fields the toolkit consumes.
type ResourceRecord struct {
	BillDate          string  `json:"bill_date"`
	BillType          int     `json:"bill_type"`
	CustomerID        string  `json:"customer_id"`
	Region            string  `json:"region"`
	CloudServiceType  string  `json:"cloud_service_type"`
	ResourceType      string  `json:"resource_type"`
	ResourceID        string  `json:"resource_id"`
	ResourceName      string  `json:"resource_name"`
	ChargeMode        string  `json:"charge_mode"`
	ConsumeAmount     float64 `json:"consume_amount"`
	OfficialAmount    float64 `json:"official_amount"`
	UsageAmount       float64 `json:"usage"`
	UsageMeasureUnit  string  `json:"unit"`
	ProductName       string  `json:"product_name"`
	EnterpriseProject string  `json:"enterprise_project_id"`
}

// Record converts a resource record to the provider-neutral form. The
// currency comes from the response envelope, not the record itself.
func (r ResourceRecord) Record(currency string) billing.Record {
	return billing.Record{
		Provider:      billing.ProviderHuawei,
		AccountID:     r.CustomerID,
		BillingPeriod: r.BillDate,
		Product:       r.ProductName,
		InstanceID:    r.ResourceID,
		Cost:          r.OfficialAmount,
		PayableAmount: r.ConsumeAmount,
		Currency:      currency,
		UsageQuantity: strconv.FormatFloat(r.UsageAmount, 'f', -1, 64),
		UsageUnit:     r.UsageMeasureUnit,
		Region:        r.Region,
		ChargeType:    r.ChargeMode,
		Extensions: map[string]string{
			"CloudServiceType":    r.CloudServiceType,
			"ResourceType":        r.ResourceType,
			"ResourceName":        r.ResourceName,
			"EnterpriseProjectId": r.EnterpriseProject,
		},
	}
}

type resourceRecordsResponse struct {
	TotalCount int              `json:"total_count"`
	Currency   string           `json:"currency"`
	ResRecords []ResourceRecord `json:"res_records"`
}

type apiError struct {
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

// Client retrieves resource-level billing records from the Huawei Cloud
// Billing Center (BSS) API. Requests are signed with the APIG
// SDK-HMAC-SHA256 scheme.
type Client struct {
	http     *resty.Client
	endpoint string
	signer   *Signer
	logger   *logger.Logger
}

var _ billing.MonthlySource = (*Client)(nil)

// NewClient creates a BSS billing client for an AK/SK pair.
func NewClient(accessKey, secretKey string, log *logger.Logger) *Client {
	c := &Client{
		http:     resty.New().SetTimeout(defaultHTTPTimeout),
		endpoint: bssEndpoint,
		signer:   &Signer{AccessKey: accessKey, SecretKey: secretKey},
		logger:   log,
	}
	c.http.SetPreRequestHook(func(_ *resty.Client, req *http.Request) error {
		var body []byte
		if req.GetBody != nil {
			rc, err := req.GetBody()
			if err != nil {
				return err
			}
			defer rc.Close()
			if body, err = io.ReadAll(rc); err != nil {
				return err
			}
		}
		return c.signer.Sign(req, body, time.Now())
	})
	return c
}

// Provider returns the provider identifier.
func (c *Client) Provider() billing.Provider { return billing.ProviderHuawei }

// MonthlyResourceRecords retrieves every resource consumption record for a
// YYYY-MM billing cycle, following offset pagination until total_count
// records have been fetched. The second return value is the account
// currency reported by the API.
func (c *Client) MonthlyResourceRecords(ctx context.Context, cycle string) ([]ResourceRecord, string, error) {
	if err := billing.ValidateCycle(cycle); err != nil {
		return nil, "", err
	}

	var (
		records  []ResourceRecord
		currency string
		offset   int
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}

		page, err := c.fetchPage(ctx, cycle, offset, DefaultPageSize)
		if err != nil {
			return nil, "", err
		}
		if page.Currency != "" {
			currency = page.Currency
		}
		records = append(records, page.ResRecords...)

		c.logger.Debug("Fetched resource record page",
			"cycle", cycle,
			"offset", offset,
			"page_records", len(page.ResRecords),
			"total_count", page.TotalCount)

		offset += len(page.ResRecords)
		if offset >= page.TotalCount || len(page.ResRecords) == 0 {
			break
		}
	}

	return records, currency, nil
}

// MonthlyBill implements billing.MonthlySource.
func (c *Client) MonthlyBill(ctx context.Context, cycle string) ([]billing.Record, error) {
	resRecords, currency, err := c.MonthlyResourceRecords(ctx, cycle)
	if err != nil {
		return nil, err
	}
	records := make([]billing.Record, 0, len(resRecords))
	for _, r := range resRecords {
		records = append(records, r.Record(currency))
	}
	return records, nil
}

func (c *Client) fetchPage(ctx context.Context, cycle string, offset, limit int) (*resourceRecordsResponse, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"cycle":  cycle,
			"offset": strconv.Itoa(offset),
			"limit":  strconv.Itoa(limit),
		}).
		Get(c.endpoint + resRecordsPath)
	if err != nil {
		return nil, fmt.Errorf("resource records request failed: %w", err)
	}

	if err := classifyResponse(resp); err != nil {
		return nil, err
	}

	var page resourceRecordsResponse
	if err := json.Unmarshal(resp.Body(), &page); err != nil {
		return nil, fmt.Errorf("failed to parse resource records response: %w", err)
	}
	return &page, nil
}

// classifyResponse maps non-success BSS responses onto the error taxonomy,
// extracting the error_code/error_msg envelope when present.
func classifyResponse(resp *resty.Response) error {
	code := resp.StatusCode()
	if code >= 200 && code <= 299 {
		return nil
	}

	var detail apiError
	_ = json.Unmarshal(resp.Body(), &detail)
	message := detail.ErrorMsg
	if message == "" {
		message = resp.String()
	}

	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &billing.AuthenticationError{
			Provider: billing.ProviderHuawei,
			Err:      fmt.Errorf("HTTP %d %s: %s", code, detail.ErrorCode, message),
		}
	case http.StatusTooManyRequests:
		return &billing.RateLimitError{Provider: billing.ProviderHuawei, Message: message}
	default:
		return &billing.ProviderError{
			Provider:   billing.ProviderHuawei,
			StatusCode: code,
			Code:       detail.ErrorCode,
			Message:    message,
		}
	}
}
