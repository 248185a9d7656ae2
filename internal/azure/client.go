package azure

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/cloud"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/costmanagement/armcostmanagement"
	"github.com/go-resty/resty/v2"

	"github.com/softwareone-finops/cloud-billing/internal/billing"
	"github.com/softwareone-finops/cloud-billing/internal/logger"
)

// Azure Resource Manager endpoints
const (
	publicManagementEndpoint = "https://management.azure.com"
	chinaManagementEndpoint  = "https://management.chinacloudapi.cn"

	// DefaultHTTPTimeout bounds each individual request; the polling loop
	// has its own budget on top of this.
	DefaultHTTPTimeout = 30 * time.Second
)

// costQuerier is the slice of armcostmanagement.QueryClient the usage tier
// needs. Declared as an interface so tests can substitute canned responses.
type costQuerier interface {
	Usage(ctx context.Context, scope string, parameters armcostmanagement.QueryDefinition, options *armcostmanagement.QueryClientUsageOptions) (armcostmanagement.QueryClientUsageResponse, error)
}

// Client retrieves Azure billing data. It supports two capability tiers:
// a synchronous Cost Management usage query per subscription, and the
// asynchronous Reserved-Instance cost details report workflow per billing
// account (request, poll, download CSV).
//
// Each client owns its own credential; instances are independent.
type Client struct {
	cred           azcore.TokenCredential
	query          costQuerier
	http           *resty.Client
	endpoint       string
	subscription   string
	billingAccount string
	logger         *logger.Logger
}

// Compile-time capability checks
var (
	_ billing.MonthlySource = (*Client)(nil)
	_ billing.ReportSource  = (*Client)(nil)
)

// Options configure a Client beyond the credential triple.
type Options struct {
	// China selects the Azure China (21Vianet) endpoints.
	China bool

	// SubscriptionID enables the monthly usage query tier. The report
	// workflow does not need it.
	SubscriptionID string

	// BillingAccountID is the default billing account for the report
	// workflow tier.
	BillingAccountID string
}

// NewClient creates a billing client authenticated with a service principal
// (tenant/client/secret triple). The credentials are held by the underlying
// SDK credential and never persisted by this package.
func NewClient(tenantID, clientID, clientSecret string, opts *Options, log *logger.Logger) (*Client, error) {
	if opts == nil {
		opts = &Options{}
	}

	credOpts := &azidentity.ClientSecretCredentialOptions{}
	endpoint := publicManagementEndpoint
	if opts.China {
		credOpts.ClientOptions.Cloud = cloud.AzureChina
		endpoint = chinaManagementEndpoint
	}

	cred, err := azidentity.NewClientSecretCredential(tenantID, clientID, clientSecret, credOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	queryClient, err := armcostmanagement.NewQueryClient(cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cost management client: %w", err)
	}

	return &Client{
		cred:           cred,
		query:          queryClient,
		http:           resty.New().SetTimeout(DefaultHTTPTimeout),
		endpoint:       endpoint,
		subscription:   opts.SubscriptionID,
		billingAccount: opts.BillingAccountID,
		logger:         log,
	}, nil
}

// Provider returns the provider identifier.
func (c *Client) Provider() billing.Provider { return billing.ProviderAzure }

// token acquires a bearer token for the management endpoint.
func (c *Client) token(ctx context.Context) (string, error) {
	tok, err := c.cred.GetToken(ctx, policy.TokenRequestOptions{
		Scopes: []string{c.endpoint + "/.default"},
	})
	if err != nil {
		return "", &billing.AuthenticationError{Provider: billing.ProviderAzure, Err: err}
	}
	return tok.Token, nil
}
