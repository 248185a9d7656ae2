package awscloud

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/aws/smithy-go"

	"github.com/softwareone-finops/cloud-billing/internal/billing"
	"github.com/softwareone-finops/cloud-billing/internal/logger"
)

const costMetric = "UnblendedCost"

// costExplorerAPI is the slice of the Cost Explorer client this package
// uses. Declared as an interface so tests can substitute canned responses.
type costExplorerAPI interface {
	GetCostAndUsage(ctx context.Context, params *costexplorer.GetCostAndUsageInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error)
}

// Client retrieves monthly service-level costs through Cost Explorer.
type Client struct {
	ce        costExplorerAPI
	accountID string
	logger    *logger.Logger
}

var _ billing.MonthlySource = (*Client)(nil)

// NewClient creates a Cost Explorer client with static credentials.
// accountID is carried onto the returned records and may be empty.
func NewClient(ctx context.Context, accessKeyID, secretAccessKey, region, accountID string, log *logger.Logger) (*Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	return &Client{
		ce:        costexplorer.NewFromConfig(cfg),
		accountID: accountID,
		logger:    log,
	}, nil
}

// Provider returns the provider identifier.
func (c *Client) Provider() billing.Provider { return billing.ProviderAWS }

// MonthlyCostsByService retrieves one month of costs grouped by service.
// Cost Explorer treats the end date as exclusive, so the window runs from
// the first day of the cycle to the first day of the following month. The
// result pages are followed until NextPageToken is absent.
func (c *Client) MonthlyCostsByService(ctx context.Context, cycle string) ([]billing.Record, error) {
	startStr, _, err := billing.CycleBounds(cycle)
	if err != nil {
		return nil, err
	}
	start, _ := time.Parse("2006-01-02", startStr)
	endStr := start.AddDate(0, 1, 0).Format("2006-01-02")

	input := &costexplorer.GetCostAndUsageInput{
		TimePeriod: &cetypes.DateInterval{
			Start: aws.String(startStr),
			End:   aws.String(endStr),
		},
		Granularity: cetypes.GranularityMonthly,
		Metrics:     []string{costMetric},
		GroupBy: []cetypes.GroupDefinition{
			{Type: cetypes.GroupDefinitionTypeDimension, Key: aws.String("SERVICE")},
		},
	}

	var records []billing.Record
	page := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page++

		out, err := c.ce.GetCostAndUsage(ctx, input)
		if err != nil {
			return nil, classifyError(err)
		}

		for _, result := range out.ResultsByTime {
			records = append(records, c.parseResult(result, cycle)...)
		}

		c.logger.Debug("Fetched cost and usage page",
			"cycle", cycle,
			"page", page,
			"records", len(records))

		if out.NextPageToken == nil || *out.NextPageToken == "" {
			break
		}
		input.NextPageToken = out.NextPageToken
	}

	return records, nil
}

// MonthlyBill implements billing.MonthlySource.
func (c *Client) MonthlyBill(ctx context.Context, cycle string) ([]billing.Record, error) {
	return c.MonthlyCostsByService(ctx, cycle)
}

func (c *Client) parseResult(result cetypes.ResultByTime, cycle string) []billing.Record {
	records := make([]billing.Record, 0, len(result.Groups))
	for _, group := range result.Groups {
		if len(group.Keys) == 0 {
			continue
		}
		metric, ok := group.Metrics[costMetric]
		if ok {
			records = append(records, billing.Record{
				Provider:      billing.ProviderAWS,
				AccountID:     c.accountID,
				BillingPeriod: cycle,
				Product:       group.Keys[0],
				Cost:          parseAmount(metric.Amount),
				PayableAmount: parseAmount(metric.Amount),
				Currency:      aws.ToString(metric.Unit),
			})
		}
	}
	return records
}

func parseAmount(amount *string) float64 {
	if amount == nil {
		return 0
	}
	f, err := strconv.ParseFloat(*amount, 64)
	if err != nil {
		return 0
	}
	return f
}

// classifyError maps Cost Explorer API errors onto the error taxonomy.
func classifyError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch {
		case isAuthCode(code):
			return &billing.AuthenticationError{Provider: billing.ProviderAWS, Err: err}
		case code == "ThrottlingException" || code == "LimitExceededException":
			return &billing.RateLimitError{Provider: billing.ProviderAWS, Message: apiErr.ErrorMessage()}
		default:
			return &billing.ProviderError{
				Provider: billing.ProviderAWS,
				Code:     code,
				Message:  apiErr.ErrorMessage(),
			}
		}
	}
	return fmt.Errorf("cost and usage query failed: %w", err)
}

func isAuthCode(code string) bool {
	switch code {
	case "UnrecognizedClientException", "InvalidClientTokenId", "ExpiredTokenException":
		return true
	}
	return strings.Contains(code, "AccessDenied")
}
