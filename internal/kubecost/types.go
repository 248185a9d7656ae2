package kubecost

import (
	"strings"
	"time"
)

const bytesPerGB = 1 << 30

// Allocation is one aggregated cost allocation from the Kubecost
// allocation API. Zero-valued cost and resource fields mean the dimension
// was absent or zero in the source entry.
type Allocation struct {
	Cluster      string
	Namespace    string
	Workload     string
	WorkloadType string
	Container    string

	WindowStart time.Time
	WindowEnd   time.Time

	TotalCost   float64
	CPUCost     float64
	MemoryCost  float64
	StorageCost float64
	NetworkCost float64

	CPUCoresAllocated  float64
	CPUCoresUsed       float64
	MemoryGBAllocated  float64
	MemoryGBUsed       float64
	StorageGBAllocated float64

	Labels      map[string]string
	Annotations map[string]string

	CloudProvider string
	Region        string
}

// allocationEntry is the wire form of one allocation value.
type allocationEntry struct {
	Name                string                `json:"name"`
	Minutes             float64               `json:"minutes"`
	CPUCoreHours        float64               `json:"cpuCoreHours"`
	CPUCoreUsageAverage float64               `json:"cpuCoreUsageAverage"`
	CPUCost             float64               `json:"cpuCost"`
	RAMByteHours        float64               `json:"ramByteHours"`
	RAMByteUsageAverage float64               `json:"ramByteUsageAverage"`
	RAMCost             float64               `json:"ramCost"`
	PVByteHours         float64               `json:"pvByteHours"`
	PVCost              float64               `json:"pvCost"`
	NetworkCost         float64               `json:"networkCost"`
	LoadBalancerCost    float64               `json:"loadBalancerCost"`
	TotalCost           float64               `json:"totalCost"`
	Properties          *allocationProperties `json:"properties"`
	Window              allocationWindow      `json:"window"`
}

type allocationProperties struct {
	Cluster     string            `json:"cluster"`
	Namespace   string            `json:"namespace"`
	Container   string            `json:"container"`
	Controller  string            `json:"controller"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
}

type allocationWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// toAllocation converts a wire entry keyed by its aggregation name, which is
// a slash-separated cluster/namespace[/workload] path.
func (e *allocationEntry) toAllocation(key string) (Allocation, bool) {
	parts := strings.Split(key, "/")
	if len(parts) < 2 {
		return Allocation{}, false
	}

	a := Allocation{
		Cluster:     parts[0],
		Namespace:   parts[1],
		TotalCost:   e.TotalCost,
		CPUCost:     e.CPUCost,
		MemoryCost:  e.RAMCost,
		StorageCost: e.PVCost,
		NetworkCost: e.NetworkCost + e.LoadBalancerCost,
	}
	if len(parts) > 2 {
		a.Workload = parts[2]
	}

	hours := e.Minutes / 60
	if hours > 0 {
		a.CPUCoresAllocated = e.CPUCoreHours / hours
		a.MemoryGBAllocated = e.RAMByteHours / hours / bytesPerGB
		a.StorageGBAllocated = e.PVByteHours / hours / bytesPerGB
	}
	a.CPUCoresUsed = e.CPUCoreUsageAverage
	a.MemoryGBUsed = e.RAMByteUsageAverage / bytesPerGB

	if p := e.Properties; p != nil {
		a.Container = p.Container
		a.Labels = p.Labels
		a.Annotations = p.Annotations
		if len(p.Labels) == 0 {
			if p.Cluster != "" {
				a.Cluster = p.Cluster
			}
			if p.Namespace != "" {
				a.Namespace = p.Namespace
			}
		}
	}

	a.WorkloadType = workloadType(a.Labels)
	a.CloudProvider = detectCloudProvider(a.Labels, a.Cluster)
	a.Region = detectRegion(a.Labels)
	a.WindowStart = parseTime(e.Window.Start)
	a.WindowEnd = parseTime(e.Window.End)

	return a, true
}

func workloadType(labels map[string]string) string {
	if v, ok := labels["app.kubernetes.io/component"]; ok {
		return v
	}
	if _, ok := labels["workload.user.cattle.io/workloadselector"]; ok {
		return "Deployment"
	}
	for k, v := range labels {
		lower := strings.ToLower(k)
		if strings.Contains(lower, "workload") || strings.Contains(lower, "component") {
			return v
		}
	}
	return ""
}

// detectCloudProvider guesses the hosting cloud from label names, falling
// back to hints in the cluster name.
func detectCloudProvider(labels map[string]string, cluster string) string {
	for k := range labels {
		switch lower := strings.ToLower(k); {
		case strings.Contains(lower, "alibaba") || strings.Contains(lower, "aliyun"):
			return "alibaba"
		case strings.Contains(lower, "azure") || strings.Contains(lower, "microsoft"):
			return "azure"
		case strings.Contains(lower, "aws") || strings.Contains(lower, "amazon"):
			return "aws"
		case strings.Contains(lower, "gcp") || strings.Contains(lower, "google"):
			return "gcp"
		}
	}

	switch lower := strings.ToLower(cluster); {
	case strings.Contains(lower, "alibaba") || strings.Contains(lower, "aliyun"):
		return "alibaba"
	case strings.Contains(lower, "azure") || strings.Contains(lower, "aks"):
		return "azure"
	case strings.Contains(lower, "aws") || strings.Contains(lower, "eks"):
		return "aws"
	case strings.Contains(lower, "gcp") || strings.Contains(lower, "gke"):
		return "gcp"
	}
	return "unknown"
}

func detectRegion(labels map[string]string) string {
	for _, key := range []string{
		"topology.kubernetes.io/region",
		"failure-domain.beta.kubernetes.io/region",
		"kubernetes.io/region",
	} {
		if v, ok := labels[key]; ok {
			return v
		}
	}
	// Region labels win over zone labels regardless of map order.
	for _, fragment := range []string{"region", "zone"} {
		for k, v := range labels {
			if strings.Contains(strings.ToLower(k), fragment) {
				return v
			}
		}
	}
	return ""
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
