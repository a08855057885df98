// Package compress implements the byte-level transforms named by a
// triad's Compression field. The CAS engine itself is transform-agnostic
// (cas/local and cas/memory store and hash exactly the bytes they are
// given); a Put caller that wants compressed storage runs its logical
// bytes through Compress first and labels the resulting triad accordingly,
// and a Get caller reverses the same transform with Decompress once it knows
// the triad's Compression. This mirrors oci/casext/blobcompress's
// Algorithm registry, collapsed from a name-registered interface to the
// fixed three-member digest.Compression enum spec.md §3 defines.
package compress

import (
	"io"

	"github.com/klauspost/compress/zstd"
	pgzip "github.com/klauspost/pgzip"
	"github.com/pkg/errors"

	"github.com/dirtabase/dirtabase/digest"
	"github.com/dirtabase/dirtabase/errs"
)

// Compress wraps r so that reading from the result yields c-compressed
// bytes of whatever r produces. CompressionPlain (and "") return r
// unchanged.
func Compress(c digest.Compression, r io.Reader) (io.Reader, error) {
	switch c {
	case digest.CompressionPlain, "":
		return r, nil
	case digest.CompressionGzip:
		return pipeThrough(r, func(w io.Writer) (io.WriteCloser, error) {
			return pgzip.NewWriter(w), nil
		}), nil
	case digest.CompressionZstd:
		return pipeThrough(r, func(w io.Writer) (io.WriteCloser, error) {
			return zstd.NewWriter(w)
		}), nil
	default:
		return nil, errors.Wrapf(errs.ErrEngineError, "unknown compression %q", c)
	}
}

// Decompress wraps r, the bytes a CAS engine handed back for a blob
// stored under c, so that reading from the result yields the original
// logical bytes passed to Compress.
func Decompress(c digest.Compression, r io.Reader) (io.ReadCloser, error) {
	switch c {
	case digest.CompressionPlain, "":
		return io.NopCloser(r), nil
	case digest.CompressionGzip:
		zr, err := pgzip.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(errs.ErrEngineError, "pgzip decompress")
		}
		return zr, nil
	case digest.CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(errs.ErrEngineError, "zstd decompress")
		}
		return zr.IOReadCloser(), nil
	default:
		return nil, errors.Wrapf(errs.ErrEngineError, "unknown compression %q", c)
	}
}

// pipeThrough streams src through a writer built by newWriter, the
// io.Pipe pattern blobcompress's Gzip/Zstd algorithms use so Compress
// never has to buffer the whole input in memory.
func pipeThrough(src io.Reader, newWriter func(io.Writer) (io.WriteCloser, error)) io.Reader {
	pr, pw := io.Pipe()
	go func() {
		w, err := newWriter(pw)
		if err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(w, src); err != nil {
			_ = w.Close()
			_ = pw.CloseWithError(err)
			return
		}
		if err := w.Close(); err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		_ = pw.Close()
	}()
	return pr
}
