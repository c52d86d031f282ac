package audit

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when a job id is unknown.
var ErrNotFound = errors.New("job not found")

// AggregationError reports a failed report assembly: required raw data was
// missing, or one of the concurrent detail fetches failed. The job record is
// preserved so the client may re-poll.
type AggregationError struct {
	JobID string
	Err   error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregation failed for job %s: %v", e.JobID, e.Err)
}

func (e *AggregationError) Unwrap() error {
	return e.Err
}

// ValidationError reports a malformed client request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
