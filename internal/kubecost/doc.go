// Package kubecost queries the allocation API of a Kubecost installation
// for per-namespace and per-workload cost data.
package kubecost
