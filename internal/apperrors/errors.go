package apperrors

import "errors"

// Run lifecycle errors surface the state machine of report generation to
// callers. These are expected conditions, not faults.
var (
	// ErrReportInProgress indicates a report run is already Running for
	// this user. The caller must cancel it or wait; requests are never
	// queued.
	ErrReportInProgress = errors.New("a report is already being generated")

	// ErrRunNotFound indicates that no report run with the given ID exists.
	ErrRunNotFound = errors.New("report run not found")

	// ErrReportNotReady indicates the run has not reached a terminal
	// state yet, so no result can be returned.
	ErrReportNotReady = errors.New("report is not ready")

	// ErrReportFailed indicates the run terminated with an error and its
	// partial results are not authoritative.
	ErrReportFailed = errors.New("report generation failed")

	// ErrReportCancelled indicates the run was cancelled before completion.
	ErrReportCancelled = errors.New("report generation was cancelled")

	// ErrReportNotPersisted indicates that a persisted report with the
	// given ID does not exist in storage.
	ErrReportNotPersisted = errors.New("persisted report not found")
)

// Data acquisition errors cover faults in connectors and the price
// source. Per-record and per-location faults are recovered with a
// warning; only total failure compromises a run.
var (
	// ErrPriceUnavailable indicates the historical price source has no
	// price for the requested pair and timestamp. Recovered by a
	// zero-value fallback with a warning.
	ErrPriceUnavailable = errors.New("historical price unavailable")

	// ErrConnectorFailure indicates one location could not be fetched.
	// Recovered by skipping that location with a warning.
	ErrConnectorFailure = errors.New("connector fetch failed")

	// ErrAllConnectorsFailed indicates every configured location failed,
	// which fails the whole run.
	ErrAllConnectorsFailed = errors.New("all connectors failed")

	// ErrMalformedRecord indicates a single raw record could not be
	// mapped to an accounting event. Recovered by skipping the record
	// with a warning.
	ErrMalformedRecord = errors.New("malformed connector record")

	// ErrOutOfOrderEvent indicates the event stream violated the
	// non-decreasing timestamp invariant. This is a programming error in
	// the normalizer merge, never a data condition.
	ErrOutOfOrderEvent = errors.New("event timestamp out of order")
)

// Business validation errors represent rejected requests.
var (
	// ErrInvalidDateRange indicates that the provided date range is invalid
	// (e.g., start date is after end date).
	ErrInvalidDateRange = errors.New("invalid date range")

	// ErrInvalidUUID indicates that a provided ID is not a valid UUID format.
	ErrInvalidUUID = errors.New("invalid UUID format")

	// ErrNegativeAmount indicates that an amount field has an invalid negative value.
	ErrNegativeAmount = errors.New("amount cannot be negative")

	// ErrUnknownLocation indicates a location name with no registered adapter.
	ErrUnknownLocation = errors.New("unknown location")

	// ErrInvalidTaxPolicy indicates policy options outside their allowed range.
	ErrInvalidTaxPolicy = errors.New("invalid tax policy")
)

// Credential errors cover stored exchange API keys.
var (
	// ErrCredentialNotFound indicates no credentials are stored for the location.
	ErrCredentialNotFound = errors.New("exchange credentials not found")

	// ErrInvalidFernetKey indicates the configured encryption key cannot
	// be decoded.
	ErrInvalidFernetKey = errors.New("invalid fernet encryption key")

	// ErrDecryptFailed indicates stored credentials could not be
	// decrypted with the configured key.
	ErrDecryptFailed = errors.New("failed to decrypt credentials")
)

// Operation failure errors represent system-level failures when retrieving
// or processing data.
var (
	ErrFailedToRetrieveReports     = errors.New("failed to retrieve reports")
	ErrFailedToRetrieveReport      = errors.New("failed to retrieve report")
	ErrFailedToPersistReport       = errors.New("failed to persist report")
	ErrFailedToRetrieveCredentials = errors.New("failed to retrieve credentials")
	ErrFailedToStoreCredentials    = errors.New("failed to store credentials")
	ErrFailedToDeleteCredentials   = errors.New("failed to delete credentials")
	ErrFailedToStartReport         = errors.New("failed to start report generation")
)
