// Package digest provides dirtabase's content-addressing primitives: the
// Digest (a sha256 hash of exact stored bytes) and the Triad, the fully
// qualified (format, compression, digest) identity of a CAS object.
//
// Grounded on oci/cas/cas.go's blobPath/BlobAlgorithm handling in the
// teacher repo, generalized from a fixed "sha256:hex" pair to the
// (format, compression, digest) triple spec.md §3 requires.
package digest

import (
	"fmt"
	"io"
	"strings"

	godigest "github.com/opencontainers/go-digest"
	"github.com/pkg/errors"

	"github.com/dirtabase/dirtabase/errs"
)

// Algorithm is the only digest algorithm dirtabase supports, matching the
// teacher's BlobAlgorithm constant.
const Algorithm = godigest.SHA256

// Digest is a content hash, rendered as "sha256:<64 hex chars>".
type Digest = godigest.Digest

// FromBytes computes the Digest of b.
func FromBytes(b []byte) Digest {
	return Algorithm.FromBytes(b)
}

// FromReader computes the Digest of everything read from r.
func FromReader(r io.Reader) (Digest, error) {
	return Algorithm.FromReader(r)
}

// Format names the shape a CAS object's bytes are expected to parse as.
type Format string

// Compression names the byte-level transform applied on top of Format.
type Compression string

const (
	// FormatFile denotes an opaque byte buffer with no further structure.
	FormatFile Format = "file"
	// FormatJSONArchive denotes a buffer that decodes as an archive under
	// the json_plain codec.
	FormatJSONArchive Format = "json_archive"
	// FormatProtobufArchive denotes a buffer that decodes as an archive
	// under the protobuf_plain codec.
	FormatProtobufArchive Format = "protobuf_archive"

	// CompressionPlain means the stored bytes are exactly the logical
	// bytes, no transform applied.
	CompressionPlain Compression = "plain"
	// CompressionGzip means the stored bytes are gzip-compressed (via
	// klauspost/pgzip), the logical bytes are the decompressed form.
	CompressionGzip Compression = "gzip"
	// CompressionZstd means the stored bytes are zstd-compressed (via
	// klauspost/compress/zstd).
	CompressionZstd Compression = "zstd"
)

// Triad is the full identity of a CAS object: format, compression and
// digest. Its canonical textual rendering is "format-compression-hexdigest".
type Triad struct {
	Format      Format
	Compression Compression
	Digest      Digest
}

// String renders the triad in its canonical "format-compression-hexdigest"
// form. The hex digest (not the "algo:hex" form) is used so the rendering
// contains no colons, which would collide with the reference grammar's use
// of ':' as a separator (spec.md §4.4). A zero-value Triad (the directory
// and symlink archive entries of spec.md §4.2, which carry attrs but no
// stored content) renders its digest segment empty rather than dereferencing
// an empty Digest.
func (t Triad) String() string {
	hex := ""
	if t.Digest != "" {
		hex = t.Digest.Encoded()
	}
	return fmt.Sprintf("%s-%s-%s", t.Format, t.Compression, hex)
}

// ParseTriad parses the canonical "format-compression-hexdigest" rendering
// produced by Triad.String.
func ParseTriad(s string) (Triad, error) {
	parts := strings.SplitN(s, "-", 3)
	if len(parts) != 3 {
		return Triad{}, errors.Wrapf(errs.ErrInvalidReference, "malformed triad %q", s)
	}
	d := godigest.NewDigestFromEncoded(Algorithm, parts[2])
	if err := d.Validate(); err != nil {
		return Triad{}, errors.Wrapf(errs.ErrInvalidReference, "malformed triad digest %q: %v", s, err)
	}
	return Triad{
		Format:      Format(parts[0]),
		Compression: Compression(parts[1]),
		Digest:      d,
	}, nil
}

// FileTriad builds a bare "file" triad, the kind used for opaque FILE
// entries (spec.md §3 Triad).
func FileTriad(compression Compression, d Digest) Triad {
	return Triad{Format: FormatFile, Compression: compression, Digest: d}
}
