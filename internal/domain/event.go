package domain

import (
	"time"
)

// DiagnosticStatus tags an entry in the diagnostic trail.
type DiagnosticStatus string

const (
	DiagnosticStart       DiagnosticStatus = "START"
	DiagnosticSuccess     DiagnosticStatus = "SUCCESS"
	DiagnosticFail        DiagnosticStatus = "FAIL"
	DiagnosticEmptyResult DiagnosticStatus = "EMPTY_RESULT"
	DiagnosticSkipped     DiagnosticStatus = "SKIPPED"

	DiagnosticAuthorRefreshOK   DiagnosticStatus = "AUTHOR_REFRESH_OK"
	DiagnosticAuthorRefreshFail DiagnosticStatus = "AUTHOR_REFRESH_FAIL"
	DiagnosticURLExpandOK       DiagnosticStatus = "URL_EXPAND_OK"
	DiagnosticURLExpandFail     DiagnosticStatus = "URL_EXPAND_FAIL"
)

// DiagnosticEntry is one line of the diagnostic trail.
type DiagnosticEntry struct {
	Time       time.Time        `json:"timeUtc"`
	Status     DiagnosticStatus `json:"status"`
	Message    string           `json:"message"`
	Action     ShareAction      `json:"action,omitempty"`
	MimeType   string           `json:"mimeType,omitempty"`
	SharedText string           `json:"sharedText,omitempty"`
	SharedURI  string           `json:"sharedUri,omitempty"`
	ErrorType  string           `json:"errorType,omitempty"`
	Detail     string           `json:"detail,omitempty"`
}

// DiagnosticRecorder receives diagnostic entries. Implementations must not
// block the caller for long and must never fail the caller.
type DiagnosticRecorder interface {
	Record(entry DiagnosticEntry)
}

// NopRecorder discards entries.
type NopRecorder struct{}

// Record implements DiagnosticRecorder.
func (NopRecorder) Record(DiagnosticEntry) {}
