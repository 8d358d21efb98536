// Package testutil holds small helpers shared by tests.
package testutil

import "time"

func Ptr[T any](v T) *T {
	return &v
}

// Date returns midnight UTC on the given day.
func Date(year int, month time.Month, day int) *time.Time {
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &d
}
