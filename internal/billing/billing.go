package billing

import (
	"context"
	"io"
	"iter"
	"time"
)

// Provider identifies a cloud billing provider
type Provider string

// Supported billing providers
const (
	ProviderAlibaba  Provider = "alibaba"
	ProviderAzure    Provider = "azure"
	ProviderAWS      Provider = "aws"
	ProviderHuawei   Provider = "huawei"
	ProviderKubecost Provider = "kubecost"
)

// Record represents a single billing line item from any cloud provider.
// Records are immutable once parsed from a provider response.
type Record struct {
	// Common fields across all providers
	Provider      Provider `json:"provider"`       // Billing provider the record came from
	AccountID     string   `json:"account_id"`     // Billing account, subscription or owner ID
	AccountName   string   `json:"account_name"`   // Friendly name for the account
	BillingPeriod string   `json:"billing_period"` // YYYY-MM cycle or YYYY-MM-DD date, provider format
	Product       string   `json:"product"`        // Product/service name (ECS, Storage, etc.)
	InstanceID    string   `json:"instance_id"`    // Instance or resource identifier
	Cost          float64  `json:"cost"`           // Pre-tax cost amount, provider native currency
	PayableAmount float64  `json:"payable_amount"` // Amount payable after discounts and deductions
	Currency      string   `json:"currency"`       // Currency code (CNY, USD, ...)

	// Optional detailed fields (may be empty for some providers)
	UsageQuantity string `json:"usage_quantity,omitempty"` // Usage amount as reported by the provider
	UsageUnit     string `json:"usage_unit,omitempty"`     // Unit for UsageQuantity
	Region        string `json:"region,omitempty"`         // Region/location
	ResourceGroup string `json:"resource_group,omitempty"` // Resource group or equivalent organizational unit
	ChargeType    string `json:"charge_type,omitempty"`    // Subscription type: PayAsYouGo, Subscription, Usage, Purchase, ...

	// Extensions carries provider-specific fields that have no
	// provider-neutral column. Keys are the provider's field names.
	Extensions map[string]string `json:"extensions,omitempty"`
}

// Source is implemented by every provider billing client.
type Source interface {
	// Provider returns the provider identifier (alibaba, azure, aws, ...)
	Provider() Provider
}

// MonthlySource fetches a full month of billing line items in one call.
type MonthlySource interface {
	Source

	// MonthlyBill returns the line items for the given YYYY-MM billing cycle.
	MonthlyBill(ctx context.Context, cycle string) ([]Record, error)
}

// PaginatedSource fetches a month of billing line items through a
// page-size-limited API. Implementations preserve the provider's native
// record order across pages.
type PaginatedSource interface {
	Source

	// FetchAllPages accumulates every page for the given YYYY-MM billing
	// cycle. A *ValidationError is returned before any HTTP request when the
	// cycle is malformed.
	FetchAllPages(ctx context.Context, cycle string, pageSize int) ([]Record, error)
}

// RecordSeq is a lazy, finite, non-restartable sequence of billing records.
// A row that fails to parse yields a non-nil error for that row alone;
// iteration continues with the next row.
type RecordSeq = iter.Seq2[Record, error]

// ReportSource produces billing data through an asynchronous report job:
// request the report, poll until a download URL appears, then stream the
// resulting rows.
type ReportSource interface {
	Source

	// RequestReport submits report generation for the date range and returns
	// the operation status URL to poll.
	RequestReport(ctx context.Context, start, end string) (string, error)

	// PollUntilReady polls the operation URL every interval until the report
	// is ready, failed, or the retry budget is exhausted.
	PollUntilReady(ctx context.Context, operationURL string, maxChecks int, interval time.Duration) (string, error)

	// DownloadReport streams the generated report. The caller must drain the
	// sequence or close the returned closer.
	DownloadReport(ctx context.Context, downloadURL string) (RecordSeq, io.Closer, error)
}
