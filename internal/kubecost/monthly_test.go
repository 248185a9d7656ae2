package kubecost

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/softwareone-finops/cloud-billing/internal/billing"
)

func TestMonthlyCostSummary(t *testing.T) {
	var gotQuery map[string]string
	srv := newFixtureServer(t, "monthly_cluster_response.json", &gotQuery)
	defer srv.Close()

	c := newFixtureClient(srv)
	summary, err := c.MonthlyCostSummary(context.Background(), 2024, 3)
	if err != nil {
		t.Fatalf("MonthlyCostSummary() error = %v", err)
	}

	if gotQuery["window"] != "2024-03-01T00:00:00Z,2024-04-01T00:00:00Z" {
		t.Errorf("window = %q", gotQuery["window"])
	}
	if gotQuery["aggregate"] != "cluster" || gotQuery["step"] != "1d" {
		t.Errorf("aggregate = %q, step = %q", gotQuery["aggregate"], gotQuery["step"])
	}

	// Two window batches summed together.
	if !almostEqual(summary.CPUCost, 11) || !almostEqual(summary.MemoryCost, 6) {
		t.Errorf("summary = %+v", summary)
	}
	if !almostEqual(summary.StorageCost, 2) || !almostEqual(summary.NetworkCost, 1) {
		t.Errorf("summary = %+v", summary)
	}
	if !almostEqual(summary.TotalCost, 20) {
		t.Errorf("TotalCost = %v", summary.TotalCost)
	}
}

func TestMonthlyCostSummary_ClusterFilter(t *testing.T) {
	var gotQuery map[string]string
	srv := newFixtureServer(t, "monthly_cluster_response.json", &gotQuery)
	defer srv.Close()

	c := newFixtureClient(srv).WithCluster("cluster-one")
	if _, err := c.MonthlyCostSummary(context.Background(), 2024, 3); err != nil {
		t.Fatalf("MonthlyCostSummary() error = %v", err)
	}
	if gotQuery["filter"] != "cluster:cluster-one" {
		t.Errorf("filter = %q", gotQuery["filter"])
	}
}

func TestMonthlyNamespaceCosts(t *testing.T) {
	srv := newFixtureServer(t, "monthly_namespace_response.json", nil)
	defer srv.Close()

	c := newFixtureClient(srv)
	namespaces, err := c.MonthlyNamespaceCosts(context.Background(), 2024, 3)
	if err != nil {
		t.Fatalf("MonthlyNamespaceCosts() error = %v", err)
	}
	if len(namespaces) != 2 {
		t.Fatalf("namespaces = %d, want 2", len(namespaces))
	}

	// Most expensive namespace first.
	if namespaces[0].Namespace != "frontend" || namespaces[1].Namespace != "payments" {
		t.Errorf("order = %q, %q", namespaces[0].Namespace, namespaces[1].Namespace)
	}

	payments := namespaces[1]
	if !almostEqual(payments.TotalCost, 2.35) || !almostEqual(payments.CPUCoreHours, 12) {
		t.Errorf("payments = %+v", payments)
	}
	if !almostEqual(payments.MemoryGBHours, 3) {
		t.Errorf("MemoryGBHours = %v, want 3", payments.MemoryGBHours)
	}
}

func TestMonthlyWorkloadCosts(t *testing.T) {
	srv := newFixtureServer(t, "monthly_pod_response.json", nil)
	defer srv.Close()

	c := newFixtureClient(srv)
	workloads, err := c.MonthlyWorkloadCosts(context.Background(), 2024, 3, "")
	if err != nil {
		t.Fatalf("MonthlyWorkloadCosts() error = %v", err)
	}
	if len(workloads) != 3 {
		t.Fatalf("workloads = %d, want 3", len(workloads))
	}
	if workloads[0].Pod != "worker-3a1e" || !almostEqual(workloads[0].TotalCost, 6) {
		t.Errorf("first workload = %+v", workloads[0])
	}
	if workloads[0].ControllerKind != "statefulset" {
		t.Errorf("ControllerKind = %q", workloads[0].ControllerKind)
	}
}

func TestMonthlyWorkloadCosts_NamespaceFilter(t *testing.T) {
	srv := newFixtureServer(t, "monthly_pod_response.json", nil)
	defer srv.Close()

	c := newFixtureClient(srv)
	workloads, err := c.MonthlyWorkloadCosts(context.Background(), 2024, 3, "frontend")
	if err != nil {
		t.Fatalf("MonthlyWorkloadCosts() error = %v", err)
	}
	if len(workloads) != 1 || workloads[0].Pod != "web-5b2d" {
		t.Errorf("workloads = %+v", workloads)
	}
	if workloads[0].Namespace != "frontend" {
		t.Errorf("Namespace = %q", workloads[0].Namespace)
	}
}

func TestMonthlyCostSummary_InvalidMonth(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	c := newFixtureClient(srv)
	_, err := c.MonthlyCostSummary(context.Background(), 2024, 13)

	var verr *billing.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	if calls != 0 {
		t.Errorf("server calls = %d, want 0", calls)
	}
}
