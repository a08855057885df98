// Package cas defines the storage-engine capability contract of spec.md
// §4.2: a content-addressed byte store plus a single mutable root slot.
//
// Grounded on oci/cas/cas.go's Engine interface in the teacher
// (PutBlob/GetBlob/PutReference/GetReference/ListBlobs/Close),
// generalized from OCI blob/reference semantics to dirtabase's
// triad/root-token CAS semantics. Per spec.md §9 "Polymorphism over
// storage engines", engine handles are passed explicitly through callers
// rather than held in a global registry.
package cas

import (
	"context"
	"io"

	"github.com/dirtabase/dirtabase/digest"
)

// Token is an opaque pre-image capture returned by ReadRoot and consumed
// by CASRoot. Engines are free to choose any representation; callers must
// treat it as opaque.
type Token interface{}

// Engine is the capability set every storage engine must provide
// (spec.md §4.2 "Operations").
type Engine interface {
	// Put stores bytes read from r under sha256(bytes), idempotent. The
	// caller chooses the format/compression labels recorded in the
	// returned triad; the digest is always the hash of the exact bytes
	// written.
	Put(ctx context.Context, format digest.Format, compression digest.Compression, r io.Reader) (digest.Triad, error)

	// Get returns the bytes stored under d. Returns an error wrapping
	// errs.ErrMissingReferent if absent.
	Get(ctx context.Context, d digest.Digest) (io.ReadCloser, error)

	// Has reports whether d is present in the store.
	Has(ctx context.Context, d digest.Digest) (bool, error)

	// ReadRoot returns the current rootdata triad and a token capturing
	// the pre-image for a subsequent CASRoot call.
	ReadRoot(ctx context.Context) (digest.Triad, Token, error)

	// CASRoot atomically replaces the root triad iff token still matches
	// the current root. Returns an error wrapping errs.ErrConflict if it
	// does not.
	CASRoot(ctx context.Context, token Token, newTriad digest.Triad) error

	// List returns every digest currently stored in the engine. Required
	// for GC.
	List(ctx context.Context) ([]digest.Digest, error)

	// Close releases resources held by the engine. Subsequent operations
	// may fail.
	Close() error
}
