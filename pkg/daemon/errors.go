package daemon

import (
	"errors"
	"net/http"

	"github.com/jamesainslie/fopt/pkg/fopt/compactor"
	"github.com/jamesainslie/fopt/pkg/fopt/decompactor"
	"github.com/jamesainslie/fopt/pkg/fopt/filter"
	"github.com/jamesainslie/fopt/pkg/fopt/manifest"
	"github.com/jamesainslie/fopt/pkg/fopt/scanner"
	"github.com/jamesainslie/fopt/pkg/fopt/types"
)

// Error codes carried in ErrorBody.
const (
	CodeScanInProgress       = "SCAN_IN_PROGRESS"
	CodeCompactionInProgress = "COMPACTION_IN_PROGRESS"
	CodeUnknownJob           = "UNKNOWN_JOB"
	CodeUnknownArchive       = "UNKNOWN_ARCHIVE"
	CodeNotFound             = "NOT_FOUND"
	CodeHistoryDisabled      = "HISTORY_DISABLED"
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeExtractionFailed     = "EXTRACTION_FAILED"
	CodeCompactionFailed     = "COMPACTION_FAILED"
	CodeOpenFailed           = "OPEN_FAILED"
	CodeInternal             = "INTERNAL_ERROR"
)

// ErrorBody is the error envelope of every failed API request. Result is
// set by compact, open and restore so callers still get the structured
// outcome.
type ErrorBody struct {
	Error  APIError `json:"error"`
	Result any      `json:"result,omitempty"`
}

// APIError holds a machine-readable code and a human message.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var codeErrors = []struct {
	err    error
	status int
	code   string
}{
	{scanner.ErrScanInProgress, http.StatusConflict, CodeScanInProgress},
	{compactor.ErrCompactionInProgress, http.StatusConflict, CodeCompactionInProgress},
	{scanner.ErrUnknownJob, http.StatusNotFound, CodeUnknownJob},
	{decompactor.ErrUnknownArchive, http.StatusNotFound, CodeUnknownArchive},
	{manifest.ErrEntryNotFound, http.StatusNotFound, CodeNotFound},
	{ErrHistoryDisabled, http.StatusNotFound, CodeHistoryDisabled},
	{scanner.ErrInvalidThreshold, http.StatusBadRequest, CodeInvalidRequest},
	{filter.ErrUnknownTypeGroup, http.StatusBadRequest, CodeInvalidRequest},
	{types.ErrInvalidSize, http.StatusBadRequest, CodeInvalidRequest},
	{types.ErrNegativeSize, http.StatusBadRequest, CodeInvalidRequest},
	{decompactor.ErrExtraction, http.StatusUnprocessableEntity, CodeExtractionFailed},
	{compactor.ErrNotRegularFile, http.StatusUnprocessableEntity, CodeCompactionFailed},
	{compactor.ErrSourceUnreadable, http.StatusUnprocessableEntity, CodeCompactionFailed},
}

// StatusFor maps an error to an HTTP status and error code.
func StatusFor(err error) (int, string) {
	for _, ce := range codeErrors {
		if errors.Is(err, ce.err) {
			return ce.status, ce.code
		}
	}
	return http.StatusInternalServerError, CodeInternal
}

// SentinelFor returns the error a code stands for, or nil for codes
// without a dedicated sentinel.
func SentinelFor(code string) error {
	switch code {
	case CodeInvalidRequest, CodeCompactionFailed, CodeOpenFailed, CodeInternal, "":
		return nil
	}
	for _, ce := range codeErrors {
		if ce.code == code {
			return ce.err
		}
	}
	return nil
}
