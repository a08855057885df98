package archive

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/dirtabase/dirtabase/digest"
	"github.com/dirtabase/dirtabase/errs"
)

// jsonPlainCodec is the json_plain encoding of spec.md §4.1: UTF-8, no
// insignificant whitespace, keys in fixed order (path, kind, triad,
// attrs). encoding/json already marshals Go map keys (Attrs) in sorted
// order and struct fields in declaration order with no inserted
// whitespace when Indent is not used, so a plain json.Marshal of the
// wire struct below satisfies the determinism requirement directly.
type jsonPlainCodec struct{}

func (jsonPlainCodec) Format() digest.Format { return digest.FormatJSONArchive }

type jsonEntry struct {
	Path  string            `json:"path"`
	Kind  string            `json:"kind"`
	Triad string            `json:"triad,omitempty"`
	Attrs map[string]string `json:"attrs,omitempty"`
}

func (jsonPlainCodec) Encode(a *Archive) ([]byte, error) {
	wire := make([]jsonEntry, len(a.Entries))
	for i, e := range a.Entries {
		triad := ""
		if e.Triad != (digest.Triad{}) {
			triad = e.Triad.String()
		}
		wire[i] = jsonEntry{
			Path:  e.Path,
			Kind:  e.Kind.String(),
			Triad: triad,
			Attrs: e.Attrs,
		}
	}
	b, err := json.Marshal(wire)
	if err != nil {
		return nil, errors.Wrap(err, "marshal json_plain archive")
	}
	return b, nil
}

func (jsonPlainCodec) Decode(b []byte) (*Archive, error) {
	var wire []jsonEntry
	if err := json.Unmarshal(b, &wire); err != nil {
		return nil, errors.Wrapf(errs.ErrMalformedArchive, "unmarshal json_plain archive: %v", err)
	}
	entries := make([]Entry, len(wire))
	for i, w := range wire {
		var kind Kind
		switch w.Kind {
		case "FILE", "":
			kind = FILE
		case "INCLUDE":
			kind = INCLUDE
		default:
			return nil, errors.Wrapf(errs.ErrMalformedArchive, "unknown entry kind %q", w.Kind)
		}
		var triad digest.Triad
		if w.Triad != "" {
			t, err := digest.ParseTriad(w.Triad)
			if err != nil {
				return nil, errors.Wrapf(errs.ErrMalformedArchive, "entry %q: %v", w.Path, err)
			}
			triad = t
		}
		entries[i] = Entry{Path: w.Path, Kind: kind, Triad: triad, Attrs: w.Attrs}
	}
	return &Archive{Entries: entries}, nil
}
