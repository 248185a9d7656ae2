package kubecost

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/softwareone-finops/cloud-billing/internal/clock"
	"github.com/softwareone-finops/cloud-billing/internal/logger"
)

func newFixtureServer(t *testing.T, fixture string, gotQuery *map[string]string) *httptest.Server {
	t.Helper()
	body, err := os.ReadFile("testdata/" + fixture)
	if err != nil {
		t.Fatalf("failed to read fixture: %v", err)
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gotQuery != nil {
			q := map[string]string{}
			for key := range r.URL.Query() {
				q[key] = r.URL.Query().Get(key)
			}
			*gotQuery = q
		}
		w.Write(body)
	}))
}

func newFixtureClient(srv *httptest.Server) *Client {
	return &Client{
		http:     resty.New(),
		endpoint: srv.URL,
		clock:    clock.FixedClock{Instant: time.Date(2025, 10, 7, 0, 0, 0, 0, time.UTC)},
		logger:   logger.Discard(),
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestAllocations_ParsesEntries(t *testing.T) {
	var gotQuery map[string]string
	srv := newFixtureServer(t, "allocation_response.json", &gotQuery)
	defer srv.Close()

	c := newFixtureClient(srv)
	start := time.Date(2025, 10, 6, 23, 0, 0, 0, time.UTC)
	end := time.Date(2025, 10, 7, 0, 0, 0, 0, time.UTC)

	allocations, err := c.Allocations(context.Background(), start, end, "", nil)
	if err != nil {
		t.Fatalf("Allocations() error = %v", err)
	}
	if len(allocations) != 1 {
		t.Fatalf("allocations = %d, want 1", len(allocations))
	}

	a := allocations[0]
	if a.Cluster != "cluster-one" || a.Namespace != "utc" || a.Workload != "" {
		t.Errorf("key split = %q/%q/%q", a.Cluster, a.Namespace, a.Workload)
	}
	if !almostEqual(a.CPUCost, 0.00092) || !almostEqual(a.MemoryCost, 0.00064) {
		t.Errorf("costs = cpu %v memory %v", a.CPUCost, a.MemoryCost)
	}
	if !almostEqual(a.TotalCost, 0.00156) {
		t.Errorf("TotalCost = %v", a.TotalCost)
	}
	if a.Labels["app"] != "utc-project-tool" {
		t.Errorf("labels = %v", a.Labels)
	}
	if a.Region != "chinanorth3" {
		t.Errorf("Region = %q", a.Region)
	}
	if a.CloudProvider != "azure" {
		t.Errorf("CloudProvider = %q", a.CloudProvider)
	}
	if !a.WindowStart.Equal(time.Date(2025, 10, 6, 23, 0, 0, 0, time.UTC)) {
		t.Errorf("WindowStart = %v", a.WindowStart)
	}
	if !a.WindowEnd.Equal(time.Date(2025, 10, 7, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("WindowEnd = %v", a.WindowEnd)
	}

	// 35 minutes of 0.02917 core hours is 0.05 cores allocated.
	if !almostEqual(a.CPUCoresAllocated, 0.05000571) {
		t.Errorf("CPUCoresAllocated = %v", a.CPUCoresAllocated)
	}
}

func TestAllocations_QueryParameters(t *testing.T) {
	var gotQuery map[string]string
	srv := newFixtureServer(t, "allocation_response.json", &gotQuery)
	defer srv.Close()

	c := newFixtureClient(srv)
	start := time.Date(2025, 10, 6, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 10, 7, 0, 0, 0, 0, time.UTC)

	if _, err := c.Allocations(context.Background(), start, end, "", nil); err != nil {
		t.Fatalf("Allocations() error = %v", err)
	}
	if gotQuery["window"] != "2025-10-06T00:00:00Z,2025-10-07T00:00:00Z" {
		t.Errorf("window = %q", gotQuery["window"])
	}
	if gotQuery["step"] != "1d" || gotQuery["aggregate"] != "cluster,namespace" {
		t.Errorf("defaults = step %q aggregate %q", gotQuery["step"], gotQuery["aggregate"])
	}
	if gotQuery["accumulate"] != "false" {
		t.Errorf("accumulate = %q", gotQuery["accumulate"])
	}
}

func TestAllocations_SkipsMalformedEntries(t *testing.T) {
	body := `{"data":[{
		"bad-key-no-namespace": {"totalCost": 1},
		"cluster/ns": "not an object",
		"cluster-two/payments": {"totalCost": 2.5, "minutes": 1440}
	}]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	c := newFixtureClient(srv)
	allocations, err := c.Allocations(context.Background(), time.Now().Add(-time.Hour), time.Now(), "", nil)
	if err != nil {
		t.Fatalf("Allocations() error = %v", err)
	}
	if len(allocations) != 1 {
		t.Fatalf("allocations = %d, want only the well-formed entry", len(allocations))
	}
	if allocations[0].Cluster != "cluster-two" || allocations[0].TotalCost != 2.5 {
		t.Errorf("allocation = %+v", allocations[0])
	}
}

func TestAllocations_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newFixtureClient(srv)
	_, err := c.Allocations(context.Background(), time.Now().Add(-time.Hour), time.Now(), "", nil)
	if err == nil || !strings.Contains(err.Error(), "HTTP 500") {
		t.Fatalf("error = %v, want HTTP 500", err)
	}
}

func TestAllocations_MissingDataField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":200}`))
	}))
	defer srv.Close()

	c := newFixtureClient(srv)
	_, err := c.Allocations(context.Background(), time.Now().Add(-time.Hour), time.Now(), "", nil)
	if err == nil {
		t.Fatal("Allocations() must fail when the data field is absent")
	}
}

func TestTestConnection(t *testing.T) {
	var gotQuery map[string]string
	srv := newFixtureServer(t, "allocation_response.json", &gotQuery)
	defer srv.Close()

	c := newFixtureClient(srv)
	if err := c.TestConnection(context.Background()); err != nil {
		t.Fatalf("TestConnection() error = %v", err)
	}
	if gotQuery["window"] != "2025-10-06T00:00:00Z,2025-10-07T00:00:00Z" {
		t.Errorf("window = %q, want the day before the fixed clock", gotQuery["window"])
	}

	srv.Close()
	if err := c.TestConnection(context.Background()); err == nil {
		t.Error("TestConnection() against a closed server must fail")
	}
}
