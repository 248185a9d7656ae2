// Package server implements the stateless billing HTTP API.
//
// Provider credentials arrive in each request body, are used for that
// request only and are never persisted. The Azure report workflow is split
// into start and poll endpoints so the caller drives the polling loop.
//
// Endpoints:
//
//	GET  /api/health                  liveness probe
//	POST /api/alibaba/billing         instance bill as JSON
//	POST /api/alibaba/billing/csv     instance bill as CSV attachment
//	POST /api/alibaba/amortized       amortized costs as JSON
//	POST /api/azure/billing/start     submit report generation
//	POST /api/azure/billing/poll      single non-blocking status check
//	POST /api/azure/billing/csv       completed report as CSV attachment
//	GET  /metrics                     prometheus request metrics
package server
