// Package memory implements the in-memory CAS engine of spec.md §4.2,
// used for tests: two maps (digest -> bytes) and a single root cell
// holding (triad, version_counter), with CAS implemented as a version
// counter comparison.
//
// The teacher's own tests exercise the real directory engine against
// t.TempDir() rather than a separate in-memory double (see
// oci/cas/cas_test.go), so this package has no single teacher file to
// adapt; it follows the same minimal, dependency-free public surface as
// cas/local.Engine, which is itself grounded on oci/cas/dir.go.
package memory

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/dirtabase/dirtabase/archive"
	"github.com/dirtabase/dirtabase/cas"
	"github.com/dirtabase/dirtabase/digest"
	"github.com/dirtabase/dirtabase/errs"
)

type rootState struct {
	triad   digest.Triad
	version uint64
}

// Engine is an in-memory cas.Engine. The zero value is not usable; use
// New.
type Engine struct {
	mu      sync.RWMutex
	blobs   map[digest.Digest][]byte
	root    rootState
	hasRoot bool
}

var _ cas.Engine = (*Engine)(nil)

// New creates an Engine seeded with an empty label archive as rootdata,
// matching the local engine's Create behavior (spec.md §9 empty-archive
// decision).
func New() (*Engine, error) {
	e := &Engine{blobs: map[digest.Digest][]byte{}}
	triad, err := e.Put(context.Background(), digest.FormatJSONArchive, digest.CompressionPlain, bytes.NewReader([]byte("[]")))
	if err != nil {
		return nil, err
	}
	e.root = rootState{triad: triad, version: 0}
	e.hasRoot = true
	return e, nil
}

// Put implements cas.Engine.
func (e *Engine) Put(_ context.Context, format digest.Format, compression digest.Compression, r io.Reader) (digest.Triad, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return digest.Triad{}, errors.Wrap(errs.ErrEngineError, "read put payload")
	}
	d := digest.FromBytes(b)

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.blobs[d]; !ok {
		e.blobs[d] = b
	}
	return digest.Triad{Format: format, Compression: compression, Digest: d}, nil
}

// Get implements cas.Engine.
func (e *Engine) Get(_ context.Context, d digest.Digest) (io.ReadCloser, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	b, ok := e.blobs[d]
	if !ok {
		return nil, errors.Wrapf(errs.ErrMissingReferent, "%s", d)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

// Has implements cas.Engine.
func (e *Engine) Has(_ context.Context, d digest.Digest) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.blobs[d]
	return ok, nil
}

// ReadRoot implements cas.Engine; the token is the version counter.
func (e *Engine) ReadRoot(_ context.Context) (digest.Triad, cas.Token, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.hasRoot {
		return digest.Triad{}, nil, errors.Wrap(errs.ErrEngineError, "root not initialized")
	}
	return e.root.triad, e.root.version, nil
}

// CASRoot implements cas.Engine.
func (e *Engine) CASRoot(_ context.Context, token cas.Token, newTriad digest.Triad) error {
	wantVersion, ok := token.(uint64)
	if !ok {
		return errors.Wrap(errs.ErrEngineError, "malformed root token")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.root.version != wantVersion {
		return errors.Wrap(errs.ErrConflict, "root changed since ReadRoot")
	}
	e.root = rootState{triad: newTriad, version: wantVersion + 1}
	return nil
}

// List implements cas.Engine.
func (e *Engine) List(_ context.Context) ([]digest.Digest, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]digest.Digest, 0, len(e.blobs))
	for d := range e.blobs {
		out = append(out, d)
	}
	return out, nil
}

// Close implements cas.Engine.
func (e *Engine) Close() error { return nil }

// Resolver returns an archive.Resolver backed by e.
func (e *Engine) Resolver(ctx context.Context) archive.Resolver {
	return func(t digest.Triad) (*archive.Archive, error) {
		rc, err := e.Get(ctx, t.Digest)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		b, err := io.ReadAll(rc)
		if err != nil {
			return nil, errors.Wrap(errs.ErrEngineError, "read include target")
		}
		return archive.Decode(t.Format, b)
	}
}
