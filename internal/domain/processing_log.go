package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ProcessingLogEntry is the append-only audit row written for each page.
type ProcessingLogEntry struct {
	ID            int64             `json:"id"`
	SessionID     string            `json:"session_id"`
	Agency        Agency            `json:"agency"`
	DataType      DataType          `json:"data_type"`
	BatchOrPage   int               `json:"batch_or_page"`
	ItemsFound    int               `json:"items_found"`
	ItemsCreated  int               `json:"items_created"`
	ItemsExisting int               `json:"items_existing"`
	ItemsFailed   int               `json:"items_failed"`
	Errors        []string          `json:"errors"`
	ScrapedItems  []json.RawMessage `json:"scraped_items"`
	CreatedAt     time.Time         `json:"created_at"`
}

func (e *ProcessingLogEntry) Validate() error {
	if e.SessionID == "" {
		return fmt.Errorf("%w: missing session id", ErrInvalidLogEntry)
	}
	if e.BatchOrPage < 1 {
		return fmt.Errorf("%w: page %d", ErrInvalidLogEntry, e.BatchOrPage)
	}
	if e.ItemsFound < 0 || e.ItemsCreated < 0 || e.ItemsExisting < 0 || e.ItemsFailed < 0 {
		return fmt.Errorf("%w: negative counter", ErrInvalidLogEntry)
	}
	return nil
}

// Balanced reports whether found == created + existing + failed.
// This is advisory; counts are accumulated at different stages.
func (e *ProcessingLogEntry) Balanced() bool {
	return e.ItemsFound == e.ItemsCreated+e.ItemsExisting+e.ItemsFailed
}

// ProgressEvent is broadcast once per processed page.
type ProgressEvent struct {
	SessionID     string        `json:"session_id"`
	Agency        Agency        `json:"agency"`
	DataType      DataType      `json:"data_type"`
	Page          int           `json:"page"`
	ItemsFound    int           `json:"items_found"`
	ItemsCreated  int           `json:"items_created"`
	ItemsExisting int           `json:"items_existing"`
	ItemsFailed   int           `json:"items_failed"`
	Status        SessionStatus `json:"status"`
	Timestamp     time.Time     `json:"timestamp"`
}

func NewProgressEvent(s *Session, e *ProcessingLogEntry, at time.Time) ProgressEvent {
	return ProgressEvent{
		SessionID:     s.ID,
		Agency:        s.Agency,
		DataType:      s.DataType,
		Page:          e.BatchOrPage,
		ItemsFound:    e.ItemsFound,
		ItemsCreated:  e.ItemsCreated,
		ItemsExisting: e.ItemsExisting,
		ItemsFailed:   e.ItemsFailed,
		Status:        s.Status,
		Timestamp:     at,
	}
}
