package kubecost

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/softwareone-finops/cloud-billing/internal/clock"
	"github.com/softwareone-finops/cloud-billing/internal/logger"
)

const (
	allocationPath = "/model/allocation"

	// DefaultStep is the allocation window step.
	DefaultStep = "1d"

	defaultHTTPTimeout = 30 * time.Second

	windowTimeFmt = "2006-01-02T15:04:05Z"
)

// DefaultAggregates is the aggregation used when the caller passes none.
var DefaultAggregates = []string{"cluster", "namespace"}

// Client queries the allocation API of a Kubecost installation.
type Client struct {
	http     *resty.Client
	endpoint string
	cluster  string
	clock    clock.Clock
	logger   *logger.Logger
}

// NewClient creates a client for the Kubecost service at baseURL, such as
// http://kubecost.example.com:9090.
func NewClient(baseURL string, log *logger.Logger) *Client {
	return &Client{
		http:     resty.New().SetTimeout(defaultHTTPTimeout),
		endpoint: strings.TrimRight(baseURL, "/"),
		clock:    clock.RealClock{},
		logger:   log,
	}
}

// WithCluster returns a client whose queries are filtered to one cluster.
func (c *Client) WithCluster(name string) *Client {
	scoped := *c
	scoped.cluster = name
	return &scoped
}

type allocationResponse struct {
	Data []map[string]json.RawMessage `json:"data"`
}

// queryAllocation issues one allocation API request and returns the raw
// per-window entry batches.
func (c *Client) queryAllocation(ctx context.Context, start, end time.Time, step, aggregate string) ([]map[string]json.RawMessage, error) {
	window := fmt.Sprintf("%s,%s",
		start.UTC().Format(windowTimeFmt),
		end.UTC().Format(windowTimeFmt))

	params := map[string]string{
		"window":     window,
		"step":       step,
		"aggregate":  aggregate,
		"accumulate": "false",
	}
	if c.cluster != "" {
		params["filter"] = "cluster:" + c.cluster
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(c.endpoint + allocationPath)
	if err != nil {
		return nil, fmt.Errorf("allocation request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("allocation request failed: HTTP %d: %s", resp.StatusCode(), resp.String())
	}

	var body allocationResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("failed to parse allocation response: %w", err)
	}
	if body.Data == nil {
		return nil, fmt.Errorf("allocation response carries no data field")
	}
	return body.Data, nil
}

// Allocations retrieves cost allocations for the window, aggregated by the
// given dimensions. Entries whose shape does not parse are skipped rather
// than failing the whole response; the aggregation key of each entry is
// split as cluster/namespace[/workload].
func (c *Client) Allocations(ctx context.Context, start, end time.Time, step string, aggregates []string) ([]Allocation, error) {
	if step == "" {
		step = DefaultStep
	}
	if len(aggregates) == 0 {
		aggregates = DefaultAggregates
	}

	data, err := c.queryAllocation(ctx, start, end, step, strings.Join(aggregates, ","))
	if err != nil {
		return nil, err
	}

	var allocations []Allocation
	for _, batch := range data {
		for key, raw := range batch {
			var entry allocationEntry
			if err := json.Unmarshal(raw, &entry); err != nil {
				c.logger.Warn("Skipping malformed allocation entry", "key", key, "error", err)
				continue
			}
			if a, ok := entry.toAllocation(key); ok {
				allocations = append(allocations, a)
			}
		}
	}

	c.logger.Debug("Fetched allocations",
		"aggregates", strings.Join(aggregates, ","),
		"allocations", len(allocations))

	return allocations, nil
}

// TestConnection issues a one-day allocation query to verify the service is
// reachable and answering.
func (c *Client) TestConnection(ctx context.Context) error {
	now := c.clock.Now()
	_, err := c.Allocations(ctx, now.Add(-24*time.Hour), now, DefaultStep, nil)
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}
