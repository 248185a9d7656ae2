package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/softwareone-finops/cloud-billing/internal/alibaba"
	"github.com/softwareone-finops/cloud-billing/internal/azure"
	"github.com/softwareone-finops/cloud-billing/internal/billing"
	"github.com/softwareone-finops/cloud-billing/internal/export"
)

type errorResponse struct {
	Detail string `json:"detail"`
}

type alibabaRequest struct {
	AccessKeyID     string `json:"access_key_id"`
	AccessKeySecret string `json:"access_key_secret"`
	RegionID        string `json:"region_id"`
	BillingCycle    string `json:"billing_cycle"`
	BillingDate     string `json:"billing_date"`
}

type azureCredentials struct {
	TenantID     string `json:"tenant_id"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type azureStartRequest struct {
	azureCredentials
	BillingAccountID string `json:"billing_account_id"`
	StartDate        string `json:"start_date"`
	EndDate          string `json:"end_date"`
	Metric           string `json:"metric"`
}

type azurePollRequest struct {
	azureCredentials
	LocationURL string `json:"location_url"`
}

const defaultRegionID = "cn-hangzhou"

// handleAlibabaBilling fetches a full instance bill and returns the items
// as JSON.
func (s *Server) handleAlibabaBilling(w http.ResponseWriter, r *http.Request) {
	req, client, ok := s.alibabaClient(w, r)
	if !ok {
		return
	}

	items, err := client.FetchInstanceBill(r.Context(), req.BillingCycle, &alibaba.BillOptions{
		BillingDate: req.BillingDate,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"billing_cycle": req.BillingCycle,
		"total":         len(items),
		"items":         items,
	})
}

// handleAlibabaBillingCSV fetches a full instance bill and streams it back
// as a CSV attachment in the provider-neutral column order.
func (s *Server) handleAlibabaBillingCSV(w http.ResponseWriter, r *http.Request) {
	req, client, ok := s.alibabaClient(w, r)
	if !ok {
		return
	}

	items, err := client.FetchInstanceBill(r.Context(), req.BillingCycle, &alibaba.BillOptions{
		BillingDate: req.BillingDate,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	if len(items) == 0 {
		writeJSON(w, http.StatusNotFound, errorResponse{Detail: "No billing data found for the given cycle."})
		return
	}

	records := make([]billing.Record, 0, len(items))
	for _, item := range items {
		records = append(records, item.Record(req.BillingCycle))
	}
	s.writeCSV(w, fmt.Sprintf("alibaba_billing_%s.csv", req.BillingCycle), records)
}

// handleAlibabaAmortized fetches amortized costs by amortization period.
func (s *Server) handleAlibabaAmortized(w http.ResponseWriter, r *http.Request) {
	req, client, ok := s.alibabaClient(w, r)
	if !ok {
		return
	}

	items, err := client.FetchAmortizedCost(r.Context(), req.BillingCycle)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"billing_cycle": req.BillingCycle,
		"total":         len(items),
		"items":         items,
	})
}

// handleAzureStart submits report generation and returns the operation URL
// the caller should poll.
func (s *Server) handleAzureStart(w http.ResponseWriter, r *http.Request) {
	var req azureStartRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !requireFields(w, map[string]string{
		"tenant_id":          req.TenantID,
		"client_id":          req.ClientID,
		"client_secret":      req.ClientSecret,
		"billing_account_id": req.BillingAccountID,
	}) {
		return
	}

	client, err := s.newAzure(req.TenantID, req.ClientID, req.ClientSecret)
	if err != nil {
		s.writeError(w, err)
		return
	}

	operationURL, err := client.RequestReportWithMetric(r.Context(),
		req.BillingAccountID, req.StartDate, req.EndDate, req.Metric)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"location_url": operationURL,
		"message":      "Report generation started. Poll /api/azure/billing/poll for status.",
	})
}

// handleAzurePoll performs a single non-blocking status check. The browser
// drives the polling loop; credentials travel with every poll.
func (s *Server) handleAzurePoll(w http.ResponseWriter, r *http.Request) {
	req, client, ok := s.azurePollClient(w, r)
	if !ok {
		return
	}

	status, downloadURL, err := client.CheckReport(r.Context(), req.LocationURL)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if status != azure.ReportSucceeded {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "pending",
			"message": "Report is still being generated, please retry.",
		})
		return
	}

	records, err := s.downloadRecords(r, client, downloadURL)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "completed",
		"csv_url": downloadURL,
		"records": records,
	})
}

// handleAzureCSV downloads a completed report as a CSV attachment.
func (s *Server) handleAzureCSV(w http.ResponseWriter, r *http.Request) {
	req, client, ok := s.azurePollClient(w, r)
	if !ok {
		return
	}

	status, downloadURL, err := client.CheckReport(r.Context(), req.LocationURL)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if status != azure.ReportSucceeded {
		writeJSON(w, http.StatusAccepted, errorResponse{Detail: "Report is still being generated, please poll first."})
		return
	}

	records, err := s.downloadRecords(r, client, downloadURL)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeCSV(w, "azure_billing.csv", records)
}

func (s *Server) alibabaClient(w http.ResponseWriter, r *http.Request) (*alibabaRequest, alibabaAPI, bool) {
	var req alibabaRequest
	if !decodeBody(w, r, &req) {
		return nil, nil, false
	}
	if !requireFields(w, map[string]string{
		"access_key_id":     req.AccessKeyID,
		"access_key_secret": req.AccessKeySecret,
		"billing_cycle":     req.BillingCycle,
	}) {
		return nil, nil, false
	}
	if req.RegionID == "" {
		req.RegionID = defaultRegionID
	}

	client, err := s.newAlibaba(req.AccessKeyID, req.AccessKeySecret, req.RegionID)
	if err != nil {
		s.writeError(w, err)
		return nil, nil, false
	}
	return &req, client, true
}

func (s *Server) azurePollClient(w http.ResponseWriter, r *http.Request) (*azurePollRequest, azureAPI, bool) {
	var req azurePollRequest
	if !decodeBody(w, r, &req) {
		return nil, nil, false
	}
	if !requireFields(w, map[string]string{
		"tenant_id":     req.TenantID,
		"client_id":     req.ClientID,
		"client_secret": req.ClientSecret,
		"location_url":  req.LocationURL,
	}) {
		return nil, nil, false
	}

	client, err := s.newAzure(req.TenantID, req.ClientID, req.ClientSecret)
	if err != nil {
		s.writeError(w, err)
		return nil, nil, false
	}
	return &req, client, true
}

// downloadRecords drains a report download into provider-neutral records,
// skipping rows that fail to parse.
func (s *Server) downloadRecords(r *http.Request, client azureAPI, downloadURL string) ([]billing.Record, error) {
	charges, closer, err := client.DownloadCharges(r.Context(), downloadURL)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	var records []billing.Record
	for charge, err := range charges {
		if err != nil {
			s.logger.Warn("Skipping malformed report row", "error", err)
			continue
		}
		records = append(records, charge.Record())
	}
	return records, nil
}

func (s *Server) writeCSV(w http.ResponseWriter, filename string, records []billing.Record) {
	header, rows := export.Records(records)

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := export.Write(w, header, rows); err != nil {
		s.logger.Error("Failed to stream CSV response", "error", err)
	}
}

// writeError maps the error taxonomy onto HTTP status codes. Anything not
// caller-attributable is reported as a bad gateway, since the failure came
// from the provider.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		verr *billing.ValidationError
		aerr *billing.AuthenticationError
		rerr *billing.RateLimitError
	)
	status := http.StatusBadGateway
	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
	case errors.As(err, &aerr):
		status = http.StatusUnauthorized
	case errors.As(err, &rerr):
		status = http.StatusTooManyRequests
	}

	s.logger.Error("Request failed", "status", status, "error", err)
	writeJSON(w, status, errorResponse{Detail: err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: fmt.Sprintf("invalid request body: %v", err)})
		return false
	}
	return true
}

func requireFields(w http.ResponseWriter, fields map[string]string) bool {
	for name, value := range fields {
		if value == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Detail: fmt.Sprintf("missing required field %s", name)})
			return false
		}
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
