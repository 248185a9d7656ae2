package azure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"

	"github.com/softwareone-finops/cloud-billing/internal/billing"
)

const costDetailsAPIVersion = "2022-05-01"

// Report polling defaults
const (
	DefaultPollInterval = 10 * time.Second
	DefaultMaxChecks    = 30
)

// ReportStatus classifies one observation of an asynchronous report job.
type ReportStatus string

// Report job states. Succeeded and Failed are terminal.
const (
	ReportRunning   ReportStatus = "running"
	ReportSucceeded ReportStatus = "succeeded"
	ReportFailed    ReportStatus = "failed"
)

// Metric names accepted by the cost details report API
const (
	MetricActualCost    = "ActualCost"
	MetricAmortizedCost = "AmortizedCost"
)

// errStillRunning marks a poll observation that should be retried.
var errStillRunning = errors.New("report generation still running")

type reportRequest struct {
	Metric     string           `json:"metric"`
	TimePeriod reportTimePeriod `json:"timePeriod"`
}

type reportTimePeriod struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type operationResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Manifest struct {
		Blobs []struct {
			BlobLink string `json:"blobLink"`
		} `json:"blobs"`
	} `json:"manifest"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// RequestReportWithMetric submits cost details report generation for the
// billing account and date range and returns the operation status URL to
// poll. Metric is MetricActualCost or MetricAmortizedCost.
func (c *Client) RequestReportWithMetric(ctx context.Context, billingAccountID, start, end, metric string) (string, error) {
	if err := validateDateRange(start, end); err != nil {
		return "", err
	}
	if billingAccountID == "" {
		return "", &billing.ValidationError{Field: "billing account", Reason: "must not be empty"}
	}
	if metric == "" {
		metric = MetricActualCost
	}

	tok, err := c.token(ctx)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf(
		"%s/providers/Microsoft.Billing/billingAccounts/%s/providers/Microsoft.CostManagement/generateCostDetailsReport?api-version=%s",
		c.endpoint, billingAccountID, costDetailsAPIVersion)

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+tok).
		SetHeader("Content-Type", "application/json").
		SetBody(reportRequest{
			Metric:     metric,
			TimePeriod: reportTimePeriod{Start: start, End: end},
		}).
		Post(url)
	if err != nil {
		return "", fmt.Errorf("report generation request failed: %w", err)
	}

	if err := classifyHTTPStatus(resp); err != nil {
		return "", err
	}

	operationURL := resp.Header().Get("Location")
	if operationURL == "" {
		return "", &billing.ProviderError{
			Provider:   billing.ProviderAzure,
			StatusCode: resp.StatusCode(),
			Message:    "report accepted but no operation URL returned",
		}
	}

	c.logger.Debug("Report generation started",
		"billing_account", billingAccountID,
		"start", start,
		"end", end,
		"metric", metric)

	return operationURL, nil
}

// RequestReport implements billing.ReportSource with the ActualCost metric.
func (c *Client) RequestReport(ctx context.Context, start, end string) (string, error) {
	return c.RequestReportWithMetric(ctx, c.billingAccount, start, end, MetricActualCost)
}

// CheckReport performs a single non-blocking status check against the
// operation URL. When the status is ReportSucceeded the returned URL points
// at the generated CSV blob.
func (c *Client) CheckReport(ctx context.Context, operationURL string) (ReportStatus, string, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return ReportFailed, "", err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+tok).
		Get(operationURL)
	if err != nil {
		return ReportFailed, "", fmt.Errorf("report status check failed: %w", err)
	}

	// The operation endpoint answers 202 with no body while the report is
	// still being generated.
	if resp.StatusCode() == http.StatusAccepted {
		return ReportRunning, "", nil
	}
	if err := classifyHTTPStatus(resp); err != nil {
		return ReportFailed, "", err
	}

	var op operationResponse
	if err := unmarshalBody(resp, &op); err != nil {
		return ReportFailed, "", err
	}

	switch op.Status {
	case "Completed":
		if len(op.Manifest.Blobs) == 0 || op.Manifest.Blobs[0].BlobLink == "" {
			return ReportFailed, "", &billing.ProviderError{
				Provider:   billing.ProviderAzure,
				StatusCode: resp.StatusCode(),
				Message:    "report completed but no download URL returned",
			}
		}
		return ReportSucceeded, op.Manifest.Blobs[0].BlobLink, nil
	case "Failed", "NoDataFound":
		return ReportFailed, "", &billing.ReportGenerationError{
			Status:  op.Status,
			Message: op.Error.Message,
		}
	default:
		return ReportRunning, "", nil
	}
}

// PollUntilReady polls the operation URL on a fixed interval until the
// report succeeds, fails, or the retry budget is exhausted. Exactly
// maxChecks status checks are issued before a TimeoutError; a terminal
// failure stops polling immediately regardless of remaining budget.
func (c *Client) PollUntilReady(ctx context.Context, operationURL string, maxChecks int, interval time.Duration) (string, error) {
	if maxChecks <= 0 {
		return "", &billing.ValidationError{Field: "max checks", Reason: "must be positive"}
	}

	var downloadURL string
	checks := 0

	operation := func() error {
		checks++
		status, url, err := c.CheckReport(ctx, operationURL)
		if err != nil {
			return backoff.Permanent(err)
		}
		switch status {
		case ReportSucceeded:
			downloadURL = url
			return nil
		default:
			c.logger.Debug("Report not ready yet", "check", checks, "max_checks", maxChecks)
			return errStillRunning
		}
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), uint64(maxChecks-1)),
		ctx)

	if err := backoff.Retry(operation, bo); err != nil {
		if errors.Is(err, errStillRunning) {
			return "", &billing.TimeoutError{Checks: checks, Interval: interval}
		}
		return "", err
	}

	return downloadURL, nil
}

// DownloadCharges streams the generated report CSV. The returned sequence is
// lazy, finite and not restartable; a malformed row yields an error for that
// row alone. The closer must be closed unless the sequence is fully drained.
func (c *Client) DownloadCharges(ctx context.Context, downloadURL string) (ChargeSeq, io.Closer, error) {
	// The blob link carries its own SAS authorization; no bearer token here.
	resp, err := c.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(downloadURL)
	if err != nil {
		return nil, nil, fmt.Errorf("report download failed: %w", err)
	}

	body := resp.RawBody()
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		body.Close()
		return nil, nil, &billing.ProviderError{
			Provider:   billing.ProviderAzure,
			StatusCode: resp.StatusCode(),
			Message:    "report download rejected",
		}
	}

	return ParseCharges(body), body, nil
}

// DownloadReport implements billing.ReportSource, converting each CSV row to
// the provider-neutral record form.
func (c *Client) DownloadReport(ctx context.Context, downloadURL string) (billing.RecordSeq, io.Closer, error) {
	charges, closer, err := c.DownloadCharges(ctx, downloadURL)
	if err != nil {
		return nil, nil, err
	}
	seq := func(yield func(billing.Record, error) bool) {
		for charge, err := range charges {
			if err != nil {
				if !yield(billing.Record{}, err) {
					return
				}
				continue
			}
			if !yield(charge.Record(), nil) {
				return
			}
		}
	}
	return seq, closer, nil
}

func validateDateRange(start, end string) error {
	s, err := time.Parse("2006-01-02", start)
	if err != nil {
		return &billing.ValidationError{Field: "start date", Reason: fmt.Sprintf("%q does not match YYYY-MM-DD", start)}
	}
	e, err := time.Parse("2006-01-02", end)
	if err != nil {
		return &billing.ValidationError{Field: "end date", Reason: fmt.Sprintf("%q does not match YYYY-MM-DD", end)}
	}
	if e.Before(s) {
		return &billing.ValidationError{Field: "date range", Reason: fmt.Sprintf("end %s before start %s", end, start)}
	}
	return nil
}

func unmarshalBody(resp *resty.Response, v any) error {
	if err := json.Unmarshal(resp.Body(), v); err != nil {
		return fmt.Errorf("failed to parse operation status response: %w", err)
	}
	return nil
}

// classifyHTTPStatus maps non-success REST responses onto the error taxonomy.
func classifyHTTPStatus(resp *resty.Response) error {
	code := resp.StatusCode()
	switch {
	case code >= 200 && code <= 299:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return &billing.AuthenticationError{
			Provider: billing.ProviderAzure,
			Err:      fmt.Errorf("HTTP %d: %s", code, resp.String()),
		}
	case code == http.StatusTooManyRequests:
		return &billing.RateLimitError{Provider: billing.ProviderAzure, Message: resp.String()}
	default:
		return &billing.ProviderError{
			Provider:   billing.ProviderAzure,
			StatusCode: code,
			Message:    resp.String(),
		}
	}
}
