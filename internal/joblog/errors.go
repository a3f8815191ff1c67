package joblog

import (
	"errors"
	"fmt"
)

// ErrMalformedPayload marks a document that cannot be parsed as a job
// log at all. Individual broken entries inside an otherwise valid
// document are reported as EntryError values instead.
var ErrMalformedPayload = errors.New("joblog: malformed payload")

// EntryError describes one job log entry that could not be decoded.
// The surrounding document keeps decoding; callers decide whether to
// surface or count these.
type EntryError struct {
	Index int
	Field string
	Err   error
}

func (e *EntryError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("joblog: entry %d field %s: %v", e.Index, e.Field, e.Err)
	}
	return fmt.Sprintf("joblog: entry %d: %v", e.Index, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

var errMissing = errors.New("required element missing")

func entryErr(index int, field string, err error) *EntryError {
	return &EntryError{Index: index, Field: field, Err: err}
}
