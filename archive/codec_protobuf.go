package archive

import (
	"fmt"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dirtabase/dirtabase/digest"
	"github.com/dirtabase/dirtabase/errs"
)

// protobufPlainCodec is the protobuf_plain encoding of spec.md §4.1:
// tag-by-tag, required fields present even when default. Rather than
// generate a .proto-derived type (no protoc is available in this
// environment), the wire form is built and parsed directly against
// google.golang.org/protobuf/encoding/protowire, the teacher's pinned
// protobuf library, one field at a time -- which is exactly what
// "tag-by-tag" describes.
//
// Wire layout (field numbers, all proto3 conventions):
//
//	Archive  { repeated Entry entries = 1; }
//	Entry    { string path = 1; varint kind = 2; string triad = 3; repeated Attr attrs = 4; }
//	Attr     { string key = 1; string value = 2; }
type protobufPlainCodec struct{}

func (protobufPlainCodec) Format() digest.Format { return digest.FormatProtobufArchive }

const (
	fieldArchiveEntries = 1

	fieldEntryPath  = 1
	fieldEntryKind  = 2
	fieldEntryTriad = 3
	fieldEntryAttrs = 4

	fieldAttrKey   = 1
	fieldAttrValue = 2
)

func (protobufPlainCodec) Encode(a *Archive) ([]byte, error) {
	var out []byte
	for _, e := range a.Entries {
		eb := encodeEntry(e)
		out = protowire.AppendTag(out, fieldArchiveEntries, protowire.BytesType)
		out = protowire.AppendBytes(out, eb)
	}
	return out, nil
}

func encodeEntry(e Entry) []byte {
	var b []byte
	// path is always present, even for the (impossible in practice)
	// empty-path case, per "required fields present even when default".
	b = protowire.AppendTag(b, fieldEntryPath, protowire.BytesType)
	b = protowire.AppendString(b, e.Path)

	b = protowire.AppendTag(b, fieldEntryKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Kind))

	triad := ""
	if e.Triad != (digest.Triad{}) {
		triad = e.Triad.String()
	}
	b = protowire.AppendTag(b, fieldEntryTriad, protowire.BytesType)
	b = protowire.AppendString(b, triad)

	for _, k := range e.Attrs.SortedKeys() {
		ab := encodeAttr(k, e.Attrs[k])
		b = protowire.AppendTag(b, fieldEntryAttrs, protowire.BytesType)
		b = protowire.AppendBytes(b, ab)
	}
	return b
}

func encodeAttr(key, value string) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldAttrKey, protowire.BytesType)
	b = protowire.AppendString(b, key)
	b = protowire.AppendTag(b, fieldAttrValue, protowire.BytesType)
	b = protowire.AppendString(b, value)
	return b
}

func (protobufPlainCodec) Decode(b []byte) (*Archive, error) {
	var entries []Entry
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, errors.Wrapf(errs.ErrMalformedArchive, "consume archive tag: %v", protowire.ParseError(n))
		}
		b = b[n:]
		if num != fieldArchiveEntries || typ != protowire.BytesType {
			return nil, errors.Wrapf(errs.ErrMalformedArchive, "unexpected archive field %d/%d", num, typ)
		}
		eb, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, errors.Wrapf(errs.ErrMalformedArchive, "consume entry bytes: %v", protowire.ParseError(n))
		}
		b = b[n:]
		e, err := decodeEntry(eb)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return &Archive{Entries: entries}, nil
}

func decodeEntry(b []byte) (Entry, error) {
	var e Entry
	e.Attrs = Attrs{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Entry{}, errors.Wrapf(errs.ErrMalformedArchive, "consume entry tag: %v", protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == fieldEntryPath && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Entry{}, errors.Wrap(errs.ErrMalformedArchive, "consume path")
			}
			e.Path = string(v)
			b = b[n:]
		case num == fieldEntryKind && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Entry{}, errors.Wrap(errs.ErrMalformedArchive, "consume kind")
			}
			switch v {
			case uint64(FILE):
				e.Kind = FILE
			case uint64(INCLUDE):
				e.Kind = INCLUDE
			default:
				return Entry{}, errors.Wrapf(errs.ErrMalformedArchive, "unknown entry kind %d", v)
			}
			b = b[n:]
		case num == fieldEntryTriad && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Entry{}, errors.Wrap(errs.ErrMalformedArchive, "consume triad")
			}
			if len(v) > 0 {
				t, err := digest.ParseTriad(string(v))
				if err != nil {
					return Entry{}, errors.Wrap(errs.ErrMalformedArchive, "parse triad")
				}
				e.Triad = t
			}
			b = b[n:]
		case num == fieldEntryAttrs && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Entry{}, errors.Wrap(errs.ErrMalformedArchive, "consume attrs")
			}
			k, val, err := decodeAttr(v)
			if err != nil {
				return Entry{}, err
			}
			e.Attrs[k] = val
			b = b[n:]
		default:
			return Entry{}, errors.Wrapf(errs.ErrMalformedArchive, "unexpected entry field %d/%d", num, typ)
		}
	}
	if len(e.Attrs) == 0 {
		e.Attrs = nil
	}
	return e, nil
}

func decodeAttr(b []byte) (key, value string, err error) {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return "", "", errors.Wrap(errs.ErrMalformedArchive, "consume attr tag")
		}
		b = b[n:]
		if typ != protowire.BytesType {
			return "", "", errors.Wrapf(errs.ErrMalformedArchive, "unexpected attr field type %v", typ)
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return "", "", errors.Wrap(errs.ErrMalformedArchive, "consume attr value")
		}
		b = b[n:]
		switch num {
		case fieldAttrKey:
			key = string(v)
		case fieldAttrValue:
			value = string(v)
		default:
			return "", "", errors.Wrapf(errs.ErrMalformedArchive, "unexpected attr field %d", num)
		}
	}
	if key == "" {
		return "", "", errors.Wrap(errs.ErrMalformedArchive, fmt.Sprintf("attr missing key (value %q)", value))
	}
	return key, value, nil
}
