package search

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned by NewProcess when the configuration cannot
// describe a runnable search.
var ErrInvalidConfig = errors.New("invalid search config")

// TrialError reports a predicate fault. It is fatal for the whole process:
// a faulting trial is never treated as "not found".
type TrialError struct {
	Key    uint64 // Candidate being tested when the predicate failed
	Peer   int    // Peer index of the process
	Thread int    // Worker index within the process
	Err    error  // Underlying predicate error
}

func (e *TrialError) Error() string {
	return fmt.Sprintf("trial key %d (peer %d, thread %d): %v", e.Key, e.Peer, e.Thread, e.Err)
}

func (e *TrialError) Unwrap() error {
	return e.Err
}
