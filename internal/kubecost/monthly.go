package kubecost

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/softwareone-finops/cloud-billing/internal/billing"
)

// CostSummary carries month-level cluster totals.
type CostSummary struct {
	CPUCost     float64
	MemoryCost  float64
	StorageCost float64
	NetworkCost float64
	TotalCost   float64
}

// NamespaceCost is the monthly cost breakdown for one namespace.
type NamespaceCost struct {
	Namespace     string
	CPUCost       float64
	MemoryCost    float64
	StorageCost   float64
	NetworkCost   float64
	TotalCost     float64
	CPUCoreHours  float64
	MemoryGBHours float64
}

// WorkloadCost is the monthly cost breakdown for one pod.
type WorkloadCost struct {
	Pod            string
	Namespace      string
	ControllerKind string
	CPUCost        float64
	MemoryCost     float64
	StorageCost    float64
	NetworkCost    float64
	TotalCost      float64
}

// MonthlyCostSummary sums cluster-level costs for one calendar month.
func (c *Client) MonthlyCostSummary(ctx context.Context, year, month int) (CostSummary, error) {
	entries, err := c.monthlyEntries(ctx, year, month, "cluster")
	if err != nil {
		return CostSummary{}, err
	}

	var summary CostSummary
	for _, e := range entries {
		summary.CPUCost += e.entry.CPUCost
		summary.MemoryCost += e.entry.RAMCost
		summary.StorageCost += e.entry.PVCost
		summary.NetworkCost += e.entry.NetworkCost
		summary.TotalCost += e.entry.TotalCost
	}
	return summary, nil
}

// MonthlyNamespaceCosts breaks one calendar month down by namespace,
// most expensive first.
func (c *Client) MonthlyNamespaceCosts(ctx context.Context, year, month int) ([]NamespaceCost, error) {
	entries, err := c.monthlyEntries(ctx, year, month, "namespace")
	if err != nil {
		return nil, err
	}

	namespaces := make([]NamespaceCost, 0, len(entries))
	for _, e := range entries {
		namespaces = append(namespaces, NamespaceCost{
			Namespace:     e.key,
			CPUCost:       e.entry.CPUCost,
			MemoryCost:    e.entry.RAMCost,
			StorageCost:   e.entry.PVCost,
			NetworkCost:   e.entry.NetworkCost,
			TotalCost:     e.entry.TotalCost,
			CPUCoreHours:  e.entry.CPUCoreHours,
			MemoryGBHours: e.entry.RAMByteHours / bytesPerGB,
		})
	}

	sort.Slice(namespaces, func(i, j int) bool {
		return namespaces[i].TotalCost > namespaces[j].TotalCost
	})
	return namespaces, nil
}

// MonthlyWorkloadCosts breaks one calendar month down by pod, most expensive
// first. A non-empty namespace restricts the result to that namespace.
func (c *Client) MonthlyWorkloadCosts(ctx context.Context, year, month int, namespace string) ([]WorkloadCost, error) {
	entries, err := c.monthlyEntries(ctx, year, month, "pod")
	if err != nil {
		return nil, err
	}

	var workloads []WorkloadCost
	for _, e := range entries {
		w := WorkloadCost{
			Pod:         e.key,
			CPUCost:     e.entry.CPUCost,
			MemoryCost:  e.entry.RAMCost,
			StorageCost: e.entry.PVCost,
			NetworkCost: e.entry.NetworkCost,
			TotalCost:   e.entry.TotalCost,
		}
		if p := e.entry.Properties; p != nil {
			w.Namespace = p.Namespace
			w.ControllerKind = p.Controller
		}
		if namespace != "" && w.Namespace != namespace {
			continue
		}
		workloads = append(workloads, w)
	}

	sort.Slice(workloads, func(i, j int) bool {
		return workloads[i].TotalCost > workloads[j].TotalCost
	})
	return workloads, nil
}

// keyedEntry pairs an aggregation key with its decoded entry.
type keyedEntry struct {
	key   string
	entry allocationEntry
}

// monthlyEntries queries one calendar month aggregated by a single
// dimension and flattens the per-window batches, skipping malformed
// entries.
func (c *Client) monthlyEntries(ctx context.Context, year, month int, aggregate string) ([]keyedEntry, error) {
	start, end, err := monthBounds(year, month)
	if err != nil {
		return nil, err
	}

	data, err := c.queryAllocation(ctx, start, end, DefaultStep, aggregate)
	if err != nil {
		return nil, err
	}

	var entries []keyedEntry
	for _, batch := range data {
		for key, raw := range batch {
			var entry allocationEntry
			if err := json.Unmarshal(raw, &entry); err != nil {
				c.logger.Warn("Skipping malformed allocation entry", "key", key, "error", err)
				continue
			}
			entries = append(entries, keyedEntry{key: key, entry: entry})
		}
	}
	return entries, nil
}

// monthBounds returns the half-open UTC window for a calendar month.
func monthBounds(year, month int) (time.Time, time.Time, error) {
	if month < 1 || month > 12 {
		return time.Time{}, time.Time{}, &billing.ValidationError{
			Field:  "month",
			Reason: fmt.Sprintf("month %d out of range 1-12", month),
		}
	}
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0), nil
}
