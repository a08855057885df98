// Package verify wraps a CAS engine's Get stream with a digest check, so
// bit rot or a misplaced blob in the underlying store surfaces as an
// error at read time rather than silently handing a caller the wrong
// bytes under a content-addressed name (spec.md §3: a Triad's digest is
// the bytes' identity, so a mismatch is a storage-integrity fault, not a
// normal error a caller retries around).
//
// Grounded on the teacher's pkg/hardening/verified_reader.go: the same
// hash-as-you-read-then-check-on-EOF shape, rebuilt against dirtabase's
// own digest package and errs taxonomy instead of returning a
// package-local sentinel.
package verify

import (
	"io"

	"github.com/pkg/errors"

	"github.com/dirtabase/dirtabase/digest"
	"github.com/dirtabase/dirtabase/errs"
)

// Reader wraps an io.ReadCloser returned from a CAS engine's Get, hashing
// every byte as it passes through and comparing the running digest
// against Expected once the underlying reader reports EOF or is closed.
// Read reports a mismatch only when the underlying reader reaches EOF.
// Close compares whatever has been hashed so far, so closing a Reader
// before reading it through to EOF returns ErrDigestMismatch even when the
// stored bytes are intact.
type Reader struct {
	Inner    io.ReadCloser
	Expected digest.Digest

	hasher interface {
		Write([]byte) (int, error)
	}
	sum func() digest.Digest
}

// Wrap returns r as-is if it is already a Reader verifying the same
// digest (avoids double-hashing when a caller composes engines), and a
// new verifying Reader otherwise.
func Wrap(r io.ReadCloser, expected digest.Digest) io.ReadCloser {
	if inner, ok := r.(*Reader); ok && inner.Expected == expected {
		return r
	}
	alg := expected.Algorithm()
	d := alg.Digester()
	return &Reader{
		Inner:    r,
		Expected: expected,
		hasher:   d.Hash(),
		sum:      d.Digest,
	}
}

func (v *Reader) Read(p []byte) (int, error) {
	n, err := v.Inner.Read(p)
	if n > 0 {
		if _, werr := v.hasher.Write(p[:n]); werr != nil {
			return n, errors.Wrap(errs.ErrEngineError, "verify: hash write")
		}
	}
	if err == io.EOF {
		if actual := v.sum(); actual != v.Expected {
			return n, errors.Wrapf(errs.ErrDigestMismatch, "expected %s, got %s", v.Expected, actual)
		}
	}
	return n, err
}

// Close closes the underlying reader and, if it reported no error,
// checks the digest computed so far — catching the case where a caller
// closes a Reader after reading every byte but without ever observing
// an explicit io.EOF return from Read.
func (v *Reader) Close() error {
	if err := v.Inner.Close(); err != nil {
		return err
	}
	if actual := v.sum(); actual != v.Expected {
		return errors.Wrapf(errs.ErrDigestMismatch, "expected %s, got %s", v.Expected, actual)
	}
	return nil
}
