package fetch

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindOther Kind = iota
	KindRateLimited
	KindHTTPStatus
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindHTTPStatus:
		return "http_status"
	case KindTimeout:
		return "timeout"
	}
	return "other"
}

// Error is returned by Fetch once it gives up on a URL.
type Error struct {
	Kind     Kind
	Status   int
	URL      string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindHTTPStatus:
		return fmt.Sprintf("fetch %s: http status %d after %d attempts", e.URL, e.Status, e.Attempts)
	case KindRateLimited:
		return fmt.Sprintf("fetch %s: rate limited after %d attempts", e.URL, e.Attempts)
	case KindTimeout:
		return fmt.Sprintf("fetch %s: timed out after %d attempts", e.URL, e.Attempts)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt may succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindTimeout:
		return true
	case KindHTTPStatus:
		return e.Status >= 500
	}
	return false
}

// IsKind reports whether err is a fetch Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == kind
}
