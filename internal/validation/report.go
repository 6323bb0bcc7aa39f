package validation

import (
	"strings"
	"time"

	"github.com/coinfolio/taxledger-backend/internal/api/request"
)

// ValidateCreateReport validates a report creation request.
//
// Required fields:
//   - startTime: Must be RFC 3339
//   - endTime: Must be RFC 3339 and strictly after startTime
//
// Optional policy overrides are range-checked when present.
//
// Returns a validation Error with field-specific error messages if validation fails.
func ValidateCreateReport(req request.CreateReportRequest) error {
	errors := make(map[string]string)

	var start, end time.Time
	var err error

	if strings.TrimSpace(req.StartTime) == "" {
		errors["startTime"] = "startTime is required"
	} else if start, err = time.Parse(time.RFC3339, req.StartTime); err != nil {
		errors["startTime"] = err.Error()
	}

	if strings.TrimSpace(req.EndTime) == "" {
		errors["endTime"] = "endTime is required"
	} else if end, err = time.Parse(time.RFC3339, req.EndTime); err != nil {
		errors["endTime"] = err.Error()
	}

	if len(errors) == 0 && !start.Before(end) {
		errors["endTime"] = "endTime must be after startTime"
	}

	if req.Policy != nil {
		if req.Policy.TaxFreePeriodDays != nil && *req.Policy.TaxFreePeriodDays < 0 {
			errors["taxFreePeriodDays"] = "taxFreePeriodDays must not be negative"
		}
		if req.Policy.ReferenceCurrency != nil && strings.TrimSpace(*req.Policy.ReferenceCurrency) == "" {
			errors["referenceCurrency"] = "referenceCurrency must not be empty"
		}
	}

	if len(errors) > 0 {
		return &Error{Fields: errors}
	}

	return nil
}
