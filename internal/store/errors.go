package store

import "errors"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a conditional write lost a race with another
// writer.
var ErrConflict = errors.New("conflict")
