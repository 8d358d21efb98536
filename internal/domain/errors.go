package domain

import "errors"

var (
	ErrDuplicateExternalID = errors.New("duplicate external id")
	ErrInvalidTransition   = errors.New("invalid session status transition")
	ErrSessionNotFound     = errors.New("session not found")
	ErrMissingNaturalKey   = errors.New("record has no external id or agency")
	ErrInvalidLogEntry     = errors.New("invalid processing log entry")
)

// RecordError ties a per-record failure to the external id it happened on.
type RecordError struct {
	ExternalID string
	Reason     string
}

func (e RecordError) Error() string {
	if e.ExternalID == "" {
		return e.Reason
	}
	return e.ExternalID + ": " + e.Reason
}
