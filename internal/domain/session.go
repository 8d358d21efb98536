package domain

import (
	"fmt"
	"time"
)

type SessionStatus string

const (
	StatusPending   SessionStatus = "pending"
	StatusRunning   SessionStatus = "running"
	StatusCompleted SessionStatus = "completed"
	StatusFailed    SessionStatus = "failed"
	StatusCancelled SessionStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CanTransition reports whether s -> to is a legal move.
func (s SessionStatus) CanTransition(to SessionStatus) bool {
	switch s {
	case StatusPending:
		return to == StatusRunning || to == StatusCancelled || to == StatusFailed
	case StatusRunning:
		return to.Terminal()
	}
	return false
}

// SessionConfig is the per-run configuration consumed by the coordinator.
type SessionConfig struct {
	StartPage              int        `json:"start_page"`
	MaxPages               int        `json:"max_pages"`
	BatchSize              int        `json:"batch_size"`
	DateFrom               *time.Time `json:"date_from,omitempty"`
	DateTo                 *time.Time `json:"date_to,omitempty"`
	MaxPageErrors          int        `json:"max_page_errors"`
	StopAfterExistingPages int        `json:"stop_after_existing_pages"`
	FetchDetails           bool       `json:"fetch_details"`
}

// EndPage is the last page the run is configured to process.
func (c SessionConfig) EndPage() int {
	return c.StartPage + c.MaxPages - 1
}

func (c SessionConfig) Validate() error {
	if c.StartPage < 1 {
		return fmt.Errorf("start page must be >= 1, got %d", c.StartPage)
	}
	if c.MaxPages < 1 {
		return fmt.Errorf("max pages must be >= 1, got %d", c.MaxPages)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be >= 1, got %d", c.BatchSize)
	}
	if c.MaxPageErrors < 1 {
		return fmt.Errorf("max page errors must be >= 1, got %d", c.MaxPageErrors)
	}
	if c.DateFrom != nil && c.DateTo != nil && c.DateTo.Before(*c.DateFrom) {
		return fmt.Errorf("date range ends before it starts")
	}
	return nil
}

// Session tracks one scraping run.
type Session struct {
	ID            string        `json:"id" db:"id"`
	Agency        Agency        `json:"agency" db:"agency_code"`
	DataType      DataType      `json:"data_type" db:"data_type"`
	Status        SessionStatus `json:"status" db:"status"`
	Config        SessionConfig `json:"config" db:"-"`
	CurrentPage   int           `json:"current_page" db:"current_page"`
	PagesScraped  int           `json:"pages_scraped" db:"pages_scraped"`
	TotalFound    int           `json:"total_found" db:"total_found"`
	TotalCreated  int           `json:"total_created" db:"total_created"`
	TotalExisting int           `json:"total_existing" db:"total_existing"`
	TotalErrors   int           `json:"total_errors" db:"total_errors"`
	ErrorMessage  string        `json:"error_message,omitempty" db:"error_message"`
	StartedAt     *time.Time    `json:"started_at,omitempty" db:"started_at"`
	FinishedAt    *time.Time    `json:"finished_at,omitempty" db:"finished_at"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at" db:"updated_at"`
}

// Transition moves the session to a new status, stamping start and finish times.
func (s *Session) Transition(to SessionStatus, at time.Time) error {
	if !s.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, to)
	}
	s.Status = to
	s.UpdatedAt = at
	if to == StatusRunning {
		s.StartedAt = &at
	}
	if to.Terminal() {
		s.FinishedAt = &at
	}
	return nil
}

// Fail moves the session to failed and records why.
func (s *Session) Fail(reason string, at time.Time) error {
	if err := s.Transition(StatusFailed, at); err != nil {
		return err
	}
	s.ErrorMessage = reason
	return nil
}
