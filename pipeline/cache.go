package pipeline

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/dirtabase/dirtabase/archive"
	"github.com/dirtabase/dirtabase/cas"
	"github.com/dirtabase/dirtabase/digest"
	"github.com/dirtabase/dirtabase/errs"
	"github.com/dirtabase/dirtabase/label"
	"github.com/dirtabase/dirtabase/ref"
)

// buildCacheLabel is the well-known label spec.md §4.6 stores the build
// cache's content archive under.
const buildCacheLabel = "@buildcache"

// refListSep joins a cache entry's output reference sequence into a
// single archive.Entry attribute, mirroring the encoding ops.Import uses
// for its own multi-path params.
const refListSep = "\x1f"

// cache is the keyed mapping of spec.md §4.6: fingerprint -> emitted
// reference sequence, persisted as a dedicated archive bound to
// buildCacheLabel inside the engine's existing label archive. One entry
// per fingerprint; Path is the fingerprint itself, Attrs["refs"] holds the
// canonical String() form of each output reference, joined by refListSep.
type cache struct {
	proto *label.Protocol
}

func newCache(e cas.Engine, resolver archive.Resolver, maxRetries int) *cache {
	return &cache{proto: &label.Protocol{Engine: e, Resolver: resolver, MaxRetries: maxRetries}}
}

// lookup returns the cached output sequence for fp, and whether it was
// present.
func (c *cache) lookup(ctx context.Context, fp string) ([]ref.Reference, bool, error) {
	contentTriad, err := c.proto.GetLabel(ctx, buildCacheLabel)
	if err != nil {
		if errors.Is(err, errs.ErrNoSuchLabel) {
			return nil, false, nil
		}
		return nil, false, err
	}

	a, err := fetchArchive(ctx, c.proto.Engine, contentTriad)
	if err != nil {
		return nil, false, err
	}

	for _, e := range a.Entries {
		if e.Path != fp {
			continue
		}
		return decodeRefs(e.Attrs["refs"])
	}
	return nil, false, nil
}

// record stores fp -> outputs, replacing any previous binding for fp. The
// read-modify-write of the cache's own content archive happens inside the
// same root CAS retry loop SetLabel uses (via label.Protocol.Apply), so a
// concurrent writer updating an unrelated label can't silently drop this
// cache entry.
func (c *cache) record(ctx context.Context, fp string, outputs []ref.Reference) error {
	return c.proto.Apply(ctx, func(cur *archive.Archive) (*archive.Archive, error) {
		var contentTriad digest.Triad
		for _, e := range cur.Entries {
			if e.Path == buildCacheLabel {
				contentTriad = e.Triad
			}
		}

		var content *archive.Archive
		if contentTriad == (digest.Triad{}) {
			content = &archive.Archive{}
		} else {
			a, err := fetchArchive(ctx, c.proto.Engine, contentTriad)
			if err != nil {
				return nil, err
			}
			content = a
		}

		entries := make([]archive.Entry, 0, len(content.Entries)+1)
		for _, e := range content.Entries {
			if e.Path == fp {
				continue
			}
			entries = append(entries, e)
		}
		entries = append(entries, archive.Entry{
			Path:  fp,
			Kind:  archive.FILE,
			Attrs: archive.Attrs{"refs": encodeRefs(outputs)},
		})

		cleanedContent, err := archive.Clean(&archive.Archive{Entries: entries}, c.proto.Resolver)
		if err != nil {
			return nil, err
		}
		encoded, err := archive.Encode(digest.FormatJSONArchive, cleanedContent)
		if err != nil {
			return nil, err
		}
		newContentTriad, err := c.proto.Engine.Put(ctx, digest.FormatJSONArchive, digest.CompressionPlain, bytes.NewReader(encoded))
		if err != nil {
			return nil, err
		}

		out := make([]archive.Entry, 0, len(cur.Entries)+1)
		for _, e := range cur.Entries {
			if e.Path == buildCacheLabel {
				continue
			}
			out = append(out, e)
		}
		out = append(out, archive.Entry{Path: buildCacheLabel, Kind: archive.FILE, Triad: newContentTriad})
		return &archive.Archive{Entries: out}, nil
	})
}

func fetchArchive(ctx context.Context, e cas.Engine, t digest.Triad) (*archive.Archive, error) {
	rc, err := e.Get(ctx, t.Digest)
	if err != nil {
		return nil, errors.Wrap(err, "get build cache content")
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.Wrap(errs.ErrEngineError, "read build cache content")
	}
	return archive.Decode(t.Format, b)
}

func encodeRefs(refs []ref.Reference) string {
	parts := make([]string, len(refs))
	for i, r := range refs {
		parts[i] = r.String()
	}
	return strings.Join(parts, refListSep)
}

func decodeRefs(s string) ([]ref.Reference, bool, error) {
	if s == "" {
		return nil, true, nil
	}
	parts := strings.Split(s, refListSep)
	out := make([]ref.Reference, len(parts))
	for i, p := range parts {
		r, err := ref.Canonicalize(p, unusedDefaultConfig)
		if err != nil {
			return nil, false, errors.Wrap(err, "decode cached reference")
		}
		out[i] = r
	}
	return out, true, nil
}

// unusedDefaultConfig is passed to ref.Canonicalize when decoding an
// already-canonical stored reference: its scheme is never "default" (rule
// 4 already ran when the reference was first emitted), so this is never
// actually invoked.
func unusedDefaultConfig() (ref.EngineConfig, error) {
	return ref.EngineConfig{}, errors.New("unreachable: cached references are always already canonical")
}
