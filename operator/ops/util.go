// Package ops implements the six concrete operators of spec.md §4.5:
// Import, Export, Merge, Prefix, Filter and CmdImpure.
package ops

import (
	"bytes"
	"context"
	"io"

	"github.com/pkg/errors"

	"github.com/dirtabase/dirtabase/archive"
	"github.com/dirtabase/dirtabase/cas/compress"
	"github.com/dirtabase/dirtabase/digest"
	"github.com/dirtabase/dirtabase/errs"
	"github.com/dirtabase/dirtabase/label"
	"github.com/dirtabase/dirtabase/operator"
	"github.com/dirtabase/dirtabase/ref"
)

// compressThreshold is the file size at or above which Import stores content
// zstd-compressed rather than plain. Small files rarely compress well
// enough to be worth the codec overhead on both ends.
const compressThreshold = 4096

// resolveTriad resolves a reference's Ref component (either a literal
// triad or an "@label") to a triad, against env's engine.
func resolveTriad(ctx context.Context, env *operator.Env, r ref.Reference) (digest.Triad, error) {
	if !r.IsLabel() {
		return digest.ParseTriad(r.Ref)
	}
	proto := &label.Protocol{Engine: env.Engine, Resolver: env.Resolver, MaxRetries: env.MaxRetries}
	return proto.GetLabel(ctx, r.Ref)
}

// ResolveTriad is the exported form of resolveTriad, used by the pipeline
// driver to learn whether an inter-stage reference already has a known
// triad before consulting the build cache.
func ResolveTriad(ctx context.Context, env *operator.Env, r ref.Reference) (digest.Triad, error) {
	return resolveTriad(ctx, env, r)
}

// resolveArchive fetches and decodes the archive a reference names.
func resolveArchive(ctx context.Context, env *operator.Env, r ref.Reference) (*archive.Archive, digest.Triad, error) {
	triad, err := resolveTriad(ctx, env, r)
	if err != nil {
		return nil, digest.Triad{}, errors.Wrap(err, "resolve reference")
	}
	rc, err := env.Engine.Get(ctx, triad.Digest)
	if err != nil {
		return nil, digest.Triad{}, errors.Wrap(err, "get archive bytes")
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, digest.Triad{}, errors.Wrap(errs.ErrEngineError, "read archive bytes")
	}
	a, err := archive.Decode(triad.Format, b)
	if err != nil {
		return nil, digest.Triad{}, err
	}
	return a, triad, nil
}

// putArchive cleans a against env's resolver, encodes it as json_plain,
// and stores it, returning the resulting triad.
func putArchive(ctx context.Context, env *operator.Env, a *archive.Archive) (digest.Triad, error) {
	cleaned, err := archive.Clean(a, env.Resolver)
	if err != nil {
		return digest.Triad{}, err
	}
	b, err := archive.Encode(digest.FormatJSONArchive, cleaned)
	if err != nil {
		return digest.Triad{}, err
	}
	return env.Engine.Put(ctx, digest.FormatJSONArchive, digest.CompressionPlain, bytes.NewReader(b))
}

// putFile stores raw file bytes as a bare "file" triad, zstd-compressing
// content at or above compressThreshold (spec.md §3 Triad's compression
// dimension).
func putFile(ctx context.Context, env *operator.Env, b []byte) (digest.Triad, error) {
	c := digest.CompressionPlain
	if len(b) >= compressThreshold {
		c = digest.CompressionZstd
	}
	cr, err := compress.Compress(c, bytes.NewReader(b))
	if err != nil {
		return digest.Triad{}, err
	}
	return env.Engine.Put(ctx, digest.FormatFile, c, cr)
}

// openFileContent fetches a FILE entry's stored bytes and decompresses
// them per the triad's Compression, so callers always see logical bytes
// regardless of how Import chose to store them.
func openFileContent(ctx context.Context, env *operator.Env, t digest.Triad) (io.ReadCloser, error) {
	rc, err := env.Engine.Get(ctx, t.Digest)
	if err != nil {
		return nil, err
	}
	dr, err := compress.Decompress(t.Compression, rc)
	if err != nil {
		rc.Close()
		return nil, err
	}
	return chainCloser{Reader: dr, inner: rc}, nil
}

// chainCloser closes both the decompressor and the underlying CAS
// read stream, in that order.
type chainCloser struct {
	io.Reader
	inner io.Closer
}

func (c chainCloser) Close() error {
	if rc, ok := c.Reader.(io.Closer); ok {
		if err := rc.Close(); err != nil {
			c.inner.Close()
			return err
		}
	}
	return c.inner.Close()
}

// canonicalOutput builds a canonical output reference for triad, rooted
// at the archive root ("." sub-path), into env's engine.
func canonicalOutput(env *operator.Env, triad digest.Triad) ref.Reference {
	return env.EngineConfig.Of(triad.String(), ".")
}
