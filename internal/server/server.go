package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/softwareone-finops/cloud-billing/internal/alibaba"
	"github.com/softwareone-finops/cloud-billing/internal/azure"
	"github.com/softwareone-finops/cloud-billing/internal/config"
	"github.com/softwareone-finops/cloud-billing/internal/logger"
)

// HTTP server timeout constants
const (
	DefaultReadTimeout  = 15 * time.Second  // Maximum duration for reading the entire request
	DefaultWriteTimeout = 120 * time.Second // Full-month provider fetches can take minutes
	DefaultIdleTimeout  = 60 * time.Second  // Maximum amount of time to wait for the next request
)

// alibabaAPI is the slice of the Alibaba client the handlers use.
type alibabaAPI interface {
	FetchInstanceBill(ctx context.Context, cycle string, opts *alibaba.BillOptions) ([]alibaba.InstanceBillItem, error)
	FetchAmortizedCost(ctx context.Context, cycle string) ([]alibaba.AmortizedItem, error)
}

// azureAPI is the slice of the Azure client the handlers use.
type azureAPI interface {
	RequestReportWithMetric(ctx context.Context, billingAccountID, start, end, metric string) (string, error)
	CheckReport(ctx context.Context, operationURL string) (azure.ReportStatus, string, error)
	DownloadCharges(ctx context.Context, downloadURL string) (azure.ChargeSeq, io.Closer, error)
}

// Server is the stateless billing HTTP API. Provider credentials arrive in
// each request body, are used for that request only and are never stored.
type Server struct {
	server  *http.Server
	cfg     *config.Config
	logger  *logger.Logger
	metrics *metrics

	// Client constructors, replaceable in tests.
	newAlibaba func(accessKeyID, accessKeySecret, regionID string) (alibabaAPI, error)
	newAzure   func(tenantID, clientID, clientSecret string) (azureAPI, error)
}

// NewServer creates the billing API server.
func NewServer(cfg *config.Config, log *logger.Logger) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &Server{
		cfg:     cfg,
		logger:  log,
		metrics: newMetrics(registry),
		newAlibaba: func(accessKeyID, accessKeySecret, regionID string) (alibabaAPI, error) {
			return alibaba.NewClient(accessKeyID, accessKeySecret, regionID, log)
		},
		newAzure: func(tenantID, clientID, clientSecret string) (azureAPI, error) {
			return azure.NewClient(tenantID, clientID, clientSecret, nil, log)
		},
	}

	mux := http.NewServeMux()
	s.route(mux, http.MethodGet, "/api/health", s.handleHealth)
	s.route(mux, http.MethodPost, "/api/alibaba/billing", s.handleAlibabaBilling)
	s.route(mux, http.MethodPost, "/api/alibaba/billing/csv", s.handleAlibabaBillingCSV)
	s.route(mux, http.MethodPost, "/api/alibaba/amortized", s.handleAlibabaAmortized)
	s.route(mux, http.MethodPost, "/api/azure/billing/start", s.handleAzureStart)
	s.route(mux, http.MethodPost, "/api/azure/billing/poll", s.handleAzurePoll)
	s.route(mux, http.MethodPost, "/api/azure/billing/csv", s.handleAzureCSV)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      mux,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
		IdleTimeout:  DefaultIdleTimeout,
	}

	return s
}

// route registers an instrumented handler restricted to one method.
func (s *Server) route(mux *http.ServeMux, method, path string, handler http.HandlerFunc) {
	mux.HandleFunc(path, s.metrics.instrument(path, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Detail: "method not allowed"})
			return
		}
		handler(w, r)
	}))
}

// Handler exposes the request handler for tests.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", "address", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles liveness probes.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
