package main

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/dirtabase/dirtabase/archive"
	"github.com/dirtabase/dirtabase/cas"
	"github.com/dirtabase/dirtabase/cas/local"
	"github.com/dirtabase/dirtabase/digest"
	"github.com/dirtabase/dirtabase/errs"
	"github.com/dirtabase/dirtabase/ref"
)

// openEngine opens (creating if necessary) the storage engine named by
// cfg. Only the "file" scheme is implemented (spec.md §1 "no network-fetch
// transports beyond the local-filesystem engine").
func openEngine(cfg ref.EngineConfig) (cas.Engine, error) {
	if cfg.Scheme != "file" {
		return nil, errors.Wrapf(errs.ErrInvalidReference, "unsupported storage engine scheme %q", cfg.Scheme)
	}
	path := strings.TrimSuffix(cfg.Fullpath, "/")

	if _, err := os.Stat(path + "/root"); err == nil {
		return local.Open(path)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, errors.Wrapf(errs.ErrEngineError, "create engine directory %q: %v", path, err)
	}
	return local.Create(path)
}

// resolverFor adapts the cas.Engine capability interface into an
// archive.Resolver for INCLUDE expansion, so the CLI works against any
// engine implementation rather than only the concrete local/memory types
// (each of which also expose their own convenience Resolver method).
func resolverFor(ctx context.Context, e cas.Engine) archive.Resolver {
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

// countBytes drains r, returning the number of bytes read.
func countBytes(r io.Reader) (int64, error) {
	return io.Copy(io.Discard, r)
}
