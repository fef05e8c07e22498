package engine

// VirtError marks a recoverable failure during a worker cycle: one the
// outer loop logs and retries after a full interval, as opposed to a
// bug that happens to surface as an error. Backends and destination
// managers raise this for expected failure modes (connection refused,
// auth rejected, malformed response).
type VirtError struct {
	Err error
}

// NewVirtError wraps err as a recoverable cycle failure.
func NewVirtError(err error) *VirtError {
	return &VirtError{Err: err}
}

func (e *VirtError) Error() string {
	return e.Err.Error()
}

func (e *VirtError) Unwrap() error {
	return e.Err
}
