package utils

import "errors"

var (
	// ErrUnauthenticated - no caller identity
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrUnauthorized - caller is not the owner of the resource
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound - referenced record is absent
	ErrNotFound = errors.New("not found")
	// ErrQuotaExceeded - usage limit refused the request
	ErrQuotaExceeded = errors.New("limit exceeded")
	// ErrProviderFailure - transcription or text generation call failed
	ErrProviderFailure = errors.New("provider failure")
	// ErrTimeout - transcription job did not finish in time
	ErrTimeout = errors.New("timeout")
	// ErrValidation - malformed input
	ErrValidation = errors.New("validation error")
)

// ErrNonRestorableUsage indicates non restoreable usage error
// on any error system tries to restore users usage counter
// but on this error it does not
type ErrNonRestorableUsage struct {
	err error
}

// NewErrNonRestorableUsage creates new error
func NewErrNonRestorableUsage(err error) error {
	return &ErrNonRestorableUsage{err: err}
}

func (e *ErrNonRestorableUsage) Error() string {
	return "non restorable usage error: " + e.err.Error()
}

func (e *ErrNonRestorableUsage) Unwrap() error {
	return e.err
}

// IsRestorableUsage returns false if err is marked as non restorable
func IsRestorableUsage(err error) bool {
	var nrErr *ErrNonRestorableUsage
	return !errors.As(err, &nrErr)
}
