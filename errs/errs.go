// Package errs defines the error taxonomy shared by every dirtabase
// component. Each sentinel is wrapped with github.com/pkg/errors as it
// propagates so that callers retain both the kind (via errors.Is against
// the sentinel, or errors.Cause) and the operator/stage context that
// produced it.
package errs

import "github.com/pkg/errors"

// Sentinel error kinds, matched against spec.md §7.
var (
	// ErrMalformedArchive is returned when an archive fails to decode.
	ErrMalformedArchive = errors.New("malformed archive")

	// ErrIllegalPath is returned when a path normalizes outside its root,
	// or contains a character reserved in a label archive.
	ErrIllegalPath = errors.New("illegal path")

	// ErrMissingReferent is returned when a triad a caller expects to be
	// present in the connected CAS is absent.
	ErrMissingReferent = errors.New("missing referent")

	// ErrCommandFailed is returned by the CmdImpure operator when the
	// subprocess it ran exits non-zero.
	ErrCommandFailed = errors.New("command failed")

	// ErrRootContention is returned when the root CAS retry loop exhausts
	// its budget without a successful compare-and-swap.
	ErrRootContention = errors.New("root contention")

	// ErrEngineError wraps an underlying I/O or permission failure from a
	// storage engine.
	ErrEngineError = errors.New("engine error")

	// ErrInvalidReference is returned when a reference string does not
	// parse under the grammar of spec.md §4.4, or names an unknown scheme.
	ErrInvalidReference = errors.New("invalid reference")

	// ErrNoSuchLabel is returned when a named label is not present in the
	// label archive.
	ErrNoSuchLabel = errors.New("no such label")

	// ErrConflict is returned by an engine's CASRoot when the supplied
	// token no longer matches the current root.
	ErrConflict = errors.New("root conflict")

	// ErrDigestMismatch is returned when bytes read back from a CAS engine
	// do not hash to the digest they were stored under, indicating
	// corruption of the underlying blob store.
	ErrDigestMismatch = errors.New("digest mismatch")
)

// StageError attaches the operator name and stage index to an underlying
// error, per the propagation policy of spec.md §7.
type StageError struct {
	Operator string
	Stage    int
	Err      error
}

func (e *StageError) Error() string {
	return errors.Wrapf(e.Err, "stage %d (%s)", e.Stage, e.Operator).Error()
}

func (e *StageError) Unwrap() error { return e.Err }

// Stage wraps err with the operator name and stage index it failed at. It
// returns nil if err is nil, so it is safe to call unconditionally on a
// function's named error return.
func Stage(operator string, stage int, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Operator: operator, Stage: stage, Err: err}
}
