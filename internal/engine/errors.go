package engine

import "errors"

// Terminal outcomes for a single event. Each is reported to the
// originating actor only and never partially applied.
var (
	// ErrForbidden: authenticated but not entitled to the target room or
	// action.
	ErrForbidden = errors.New("not allowed")

	// ErrNotFound: the referenced room, message or membership does not
	// exist. Raised before any persistence.
	ErrNotFound = errors.New("not found")
)

// PersistenceError wraps a durable-store failure. The event is aborted
// and nothing is delivered.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return "persistence failure in " + e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// persistErr classifies a store error: the not-found sentinel passes
// through, anything else becomes a PersistenceError.
func persistErr(op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return &PersistenceError{Op: op, Err: err}
}
