package archive

import (
	"github.com/pkg/errors"

	"github.com/dirtabase/dirtabase/digest"
	"github.com/dirtabase/dirtabase/errs"
)

// Codec is a registered archive encoding. Implementers MUST produce
// byte-identical output for byte-identical entry sequences (spec.md §4.1
// Encoding), the determinism property that lets two clean archives with
// identical entries hash identically (invariant I4).
type Codec interface {
	Format() digest.Format
	Encode(a *Archive) ([]byte, error)
	Decode(b []byte) (*Archive, error)
}

var codecs = map[digest.Format]Codec{
	digest.FormatJSONArchive:     jsonPlainCodec{},
	digest.FormatProtobufArchive: protobufPlainCodec{},
}

// CodecFor returns the registered Codec for a format, or ErrInvalidReference
// if none is registered.
func CodecFor(f digest.Format) (Codec, error) {
	c, ok := codecs[f]
	if !ok {
		return nil, errors.Wrapf(errs.ErrInvalidReference, "unknown archive format %q", f)
	}
	return c, nil
}

// Encode encodes a with the named format's codec.
func Encode(f digest.Format, a *Archive) ([]byte, error) {
	c, err := CodecFor(f)
	if err != nil {
		return nil, err
	}
	return c.Encode(a)
}

// Decode decodes b as the named format.
func Decode(f digest.Format, b []byte) (*Archive, error) {
	c, err := CodecFor(f)
	if err != nil {
		return nil, err
	}
	return c.Decode(b)
}
