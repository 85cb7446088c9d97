package cqm

import (
	"errors"
	"fmt"
)

// ErrInvalidMeasure is returned when the measure payload is missing or cannot
// be decoded. It rejects the whole batch.
var ErrInvalidMeasure = errors.New("measure is empty or invalid")

// ErrMalformedTestCase is matched by every MalformedTestCaseError.
var ErrMalformedTestCase = errors.New("malformed test case")

// MalformedTestCaseError reports a test case whose fields or clinical data
// payload could not be decoded. It only affects the test case at Index.
type MalformedTestCaseError struct {
	Index int
	Err   error
}

func (e *MalformedTestCaseError) Error() string {
	return fmt.Sprintf("test case %d is malformed: %v", e.Index+1, e.Err)
}

func (e *MalformedTestCaseError) Unwrap() error { return e.Err }

func (e *MalformedTestCaseError) Is(target error) bool {
	return target == ErrMalformedTestCase
}
