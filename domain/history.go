package domain

import (
	"fmt"
	"strings"
	"time"
)

// HistoryStatus is the outcome stored for a finished deployment.
type HistoryStatus string

const (
	HistoryStatusSuccess HistoryStatus = "Success"
	HistoryStatusFailed  HistoryStatus = "Failed"
)

func (s HistoryStatus) String() string {
	return string(s)
}

func ParseHistoryStatus(s string) (HistoryStatus, error) {
	switch HistoryStatus(s) {
	case HistoryStatusSuccess, HistoryStatusFailed:
		return HistoryStatus(s), nil
	default:
		return "", fmt.Errorf("invalid history status: %q", s)
	}
}

// HistoryDateLayout is used for records created by torpedo itself. Imported
// dates are kept verbatim.
const HistoryDateLayout = time.RFC3339

// HistoryRecord is one entry of the deployment history.
type HistoryRecord struct {
	URL    string
	Date   string
	Status HistoryStatus
}

func NewHistoryRecord(url string, at time.Time, status HistoryStatus) HistoryRecord {
	return HistoryRecord{
		URL:    url,
		Date:   at.UTC().Format(HistoryDateLayout),
		Status: status,
	}
}

func (r HistoryRecord) Validate() error {
	const op = "validate history record"
	if strings.TrimSpace(r.URL) == "" {
		return ValidationError(op, "url is required")
	}
	if strings.TrimSpace(r.Date) == "" {
		return ValidationError(op, "date is required")
	}
	if _, err := ParseHistoryStatus(string(r.Status)); err != nil {
		return ValidationError(op, "status must be %q or %q, got %q", HistoryStatusSuccess, HistoryStatusFailed, r.Status)
	}
	return nil
}

// HistoryStatusFor maps a terminal attempt state to the recorded status.
// Cancelled attempts are not recorded.
func HistoryStatusFor(state AttemptState) (HistoryStatus, bool) {
	switch state {
	case AttemptStateSuccess:
		return HistoryStatusSuccess, true
	case AttemptStateFailed:
		return HistoryStatusFailed, true
	default:
		return "", false
	}
}
