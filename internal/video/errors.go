package video

import "fmt"

// TimeoutError means the avatar service did not answer within the request
// deadline, distinguishable from other transport failures so callers can
// offer a retry.
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("video service timed out during %s", e.Op)
}

// MalformedResponseError means the service answered 2xx but the payload was
// missing a field the caller cannot proceed without.
type MalformedResponseError struct {
	Missing string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("video service response missing %s", e.Missing)
}

// ConcurrencyLimitError means the service rejected creation because its
// concurrent-session cap was hit, usually because a previous session has not
// finished tearing down yet.
type ConcurrencyLimitError struct {
	Detail string
}

func (e *ConcurrencyLimitError) Error() string {
	return fmt.Sprintf("video service concurrency limit reached: %s", e.Detail)
}

// RemoteError is any other failure reported by the service.
type RemoteError struct {
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("video service returned status %d: %s", e.Status, e.Body)
}
