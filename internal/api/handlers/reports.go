package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/coinfolio/taxledger-backend/internal/api/request"
	"github.com/coinfolio/taxledger-backend/internal/api/response"
	"github.com/coinfolio/taxledger-backend/internal/apperrors"
	"github.com/coinfolio/taxledger-backend/internal/model"
	"github.com/coinfolio/taxledger-backend/internal/service"
	"github.com/coinfolio/taxledger-backend/internal/validation"
)

// defaultUserID is used when a report request does not name a user.
const defaultUserID = "default"

// ReportHandler handles HTTP requests for report endpoints.
// It serves as the HTTP layer adapter, parsing requests and delegating
// run orchestration to the reportService.
type ReportHandler struct {
	reportService *service.ReportService
	defaultPolicy model.TaxPolicy
}

// NewReportHandler creates a new ReportHandler with the provided service
// dependency and the server's default tax policy.
func NewReportHandler(reportService *service.ReportService, defaultPolicy model.TaxPolicy) *ReportHandler {
	return &ReportHandler{
		reportService: reportService,
		defaultPolicy: defaultPolicy,
	}
}

// CreateReportResponse acknowledges an accepted report run.
type CreateReportResponse struct {
	ID string `json:"id"`
}

// CreateReport handles POST requests to start a report run.
// The run executes in the background; poll the status endpoint for progress.
//
// Endpoint: POST /api/report
// Request Body: CreateReportRequest (startTime, endTime, optional userId and policy overrides)
// Response: 202 Accepted with CreateReportResponse
// Error: 400 Bad Request if validation fails or request body is invalid
// Error: 409 Conflict if a run for the same user is already in progress
// Error: 500 Internal Server Error if the run cannot be started
func (h *ReportHandler) CreateReport(w http.ResponseWriter, r *http.Request) {
	req, err := parseJSON[request.CreateReportRequest](r)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if err := validation.ValidateCreateReport(req); err != nil {
		response.RespondError(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	start, _ := time.Parse(time.RFC3339, req.StartTime)
	end, _ := time.Parse(time.RFC3339, req.EndTime)

	userID := req.UserID
	if userID == "" {
		userID = defaultUserID
	}

	id, err := h.reportService.StartReport(userID, start, end, h.resolvePolicy(req.Policy))
	if err != nil {
		if errors.Is(err, apperrors.ErrReportInProgress) {
			response.RespondError(w, http.StatusConflict, apperrors.ErrReportInProgress.Error(), "")
			return
		}
		response.RespondError(w, http.StatusInternalServerError, apperrors.ErrFailedToStartReport.Error(), err.Error())
		return
	}

	response.RespondJSON(w, http.StatusAccepted, CreateReportResponse{ID: id})
}

// ReportStatus handles GET requests to retrieve the status of a report run.
// The snapshot carries status, progress and any warnings, but not the records.
//
// Endpoint: GET /api/report/{uuid}
// Response: 200 OK with ReportRun snapshot
// Error: 400 Bad Request if the run ID is invalid (validated by middleware)
// Error: 404 Not Found if no such run exists
func (h *ReportHandler) ReportStatus(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "uuid")

	run, err := h.reportService.GetStatus(runID)
	if err != nil {
		if errors.Is(err, apperrors.ErrRunNotFound) {
			response.RespondError(w, http.StatusNotFound, apperrors.ErrRunNotFound.Error(), "")
			return
		}
		response.RespondError(w, http.StatusInternalServerError, apperrors.ErrFailedToRetrieveReport.Error(), err.Error())
		return
	}

	response.RespondJSON(w, http.StatusOK, run)
}

// CancelReport handles POST requests to cancel a running report.
// Cancellation is cooperative: the run stops at the next event boundary.
// Cancelling an already finished run has no effect.
//
// Endpoint: POST /api/report/{uuid}/cancel
// Response: 202 Accepted
// Error: 400 Bad Request if the run ID is invalid (validated by middleware)
// Error: 404 Not Found if no such run exists
func (h *ReportHandler) CancelReport(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "uuid")

	if err := h.reportService.Cancel(runID); err != nil {
		if errors.Is(err, apperrors.ErrRunNotFound) {
			response.RespondError(w, http.StatusNotFound, apperrors.ErrRunNotFound.Error(), "")
			return
		}
		response.RespondError(w, http.StatusInternalServerError, "failed to cancel report", err.Error())
		return
	}

	response.RespondJSON(w, http.StatusAccepted, nil)
}

// ReportResult handles GET requests to retrieve a finished report.
// Returns the full report including gain/loss records and totals.
//
// Endpoint: GET /api/report/{uuid}/result
// Response: 200 OK with ReportRun including records
// Error: 400 Bad Request if the run ID is invalid (validated by middleware)
// Error: 404 Not Found if no such run exists
// Error: 409 Conflict if the run has not finished yet
// Error: 410 Gone if the run was cancelled
// Error: 500 Internal Server Error if the run failed
func (h *ReportHandler) ReportResult(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "uuid")

	run, err := h.reportService.GetResult(runID)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrRunNotFound):
			response.RespondError(w, http.StatusNotFound, apperrors.ErrRunNotFound.Error(), "")
		case errors.Is(err, apperrors.ErrReportNotReady):
			response.RespondError(w, http.StatusConflict, apperrors.ErrReportNotReady.Error(), "")
		case errors.Is(err, apperrors.ErrReportCancelled):
			response.RespondError(w, http.StatusGone, apperrors.ErrReportCancelled.Error(), "")
		default:
			response.RespondError(w, http.StatusInternalServerError, apperrors.ErrReportFailed.Error(), err.Error())
		}
		return
	}

	response.RespondJSON(w, http.StatusOK, run)
}

// AllReports handles GET requests to list persisted reports.
// Returns report summaries without their records, newest first.
//
// Endpoint: GET /api/report
// Response: 200 OK with array of ReportRun summaries
// Error: 500 Internal Server Error if retrieval fails
func (h *ReportHandler) AllReports(w http.ResponseWriter, _ *http.Request) {
	reports, err := h.reportService.ListReports()
	if err != nil {
		response.RespondError(w, http.StatusInternalServerError, apperrors.ErrFailedToRetrieveReports.Error(), err.Error())
		return
	}

	response.RespondJSON(w, http.StatusOK, reports)
}

// resolvePolicy applies request overrides on top of the server defaults.
func (h *ReportHandler) resolvePolicy(override *request.TaxPolicyOverride) model.TaxPolicy {
	policy := h.defaultPolicy
	if override == nil {
		return policy
	}
	if override.TaxFreePeriodDays != nil {
		policy.TaxFreePeriodDays = *override.TaxFreePeriodDays
	}
	if override.IncludeCryptoToCrypto != nil {
		policy.IncludeCryptoToCrypto = *override.IncludeCryptoToCrypto
	}
	if override.AccountForMarginEvents != nil {
		policy.AccountForMarginEvents = *override.AccountForMarginEvents
	}
	if override.ReferenceCurrency != nil {
		policy.ReferenceCurrency = *override.ReferenceCurrency
	}
	return policy
}
