package cluster

import "errors"

var (
	// ErrValidation is returned for malformed or missing input. Never retried.
	ErrValidation = errors.New("validation error")

	// ErrNotFound is returned when a referenced swarm, node or service does not exist.
	ErrNotFound = errors.New("not found")

	// ErrClusterUnreachable is returned when every manager candidate failed or the
	// node's own endpoint could not be contacted. Callers may retry.
	ErrClusterUnreachable = errors.New("cluster unreachable")

	// ErrConflictRejected is returned when the control plane refused an update,
	// e.g. a stale version index or an invalid state transition.
	ErrConflictRejected = errors.New("update rejected by control plane")

	// ErrAlreadyExists is returned when a unique name or address is already taken.
	ErrAlreadyExists = errors.New("already exists")
)

// IsRetryable reports whether err is an infrastructure failure worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrClusterUnreachable)
}
