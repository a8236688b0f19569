package storage

import "errors"

var (
	// ErrNoStrategy is returned when a record has no strategy name.
	ErrNoStrategy = errors.New("trade record has no strategy")

	// ErrBadHeader is returned when a CSV log has no header row.
	ErrBadHeader = errors.New("trade log has no header")
)
