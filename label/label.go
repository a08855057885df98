// Package label implements the label & root CAS protocol of spec.md
// §4.3: every root-archive mutation follows read-root, decode, apply,
// re-encode, compare-and-swap, retry-on-conflict.
//
// Grounded on oci/casext/gc.go's root-set-from-references traversal
// (reused here for ListLabels) and oci/cas/dir.go's PutReference,
// generalized into a full read-modify-CAS retry loop with exponential
// backoff, as apex/log-instrumented as oci/casext/gc.go's own Debugf
// calls. Every mutation writes a new label archive and swaps the root,
// even when SetLabel rebinds a name to the triad it already holds.
package label

import (
	"bytes"
	"context"
	"io"
	"math/rand"
	"sort"
	"time"

	"github.com/apex/log"
	"github.com/pkg/errors"

	"github.com/dirtabase/dirtabase/archive"
	"github.com/dirtabase/dirtabase/cas"
	"github.com/dirtabase/dirtabase/digest"
	"github.com/dirtabase/dirtabase/errs"
)

// Retry tuning, per spec.md §5 "Retry budget": 32 iterations, exponential
// backoff from 1ms capped at 100ms.
const (
	DefaultMaxRetries = 32
	initialBackoff    = time.Millisecond
	maxBackoff        = 100 * time.Millisecond
)

// Protocol drives the label & root CAS protocol against a single engine.
type Protocol struct {
	Engine     cas.Engine
	Resolver   archive.Resolver
	MaxRetries int // 0 uses DefaultMaxRetries
}

func (p *Protocol) maxRetries() int {
	if p.MaxRetries > 0 {
		return p.MaxRetries
	}
	return DefaultMaxRetries
}

// Mutation transforms the current (clean) label archive into a candidate
// archive. It is applied by Protocol.mutate inside the CAS retry loop, so
// it may be invoked more than once and must be side-effect free apart
// from its return value.
type Mutation func(cur *archive.Archive) (*archive.Archive, error)

// mutate runs the recipe of spec.md §4.3 steps 1-6.
func (p *Protocol) mutate(ctx context.Context, m Mutation) error {
	backoff := initialBackoff
	for attempt := 0; attempt < p.maxRetries(); attempt++ {
		curTriad, token, err := p.Engine.ReadRoot(ctx)
		if err != nil {
			return errors.Wrap(err, "read root")
		}

		curBytes, err := readAll(ctx, p.Engine, curTriad.Digest)
		if err != nil {
			return errors.Wrap(err, "get current label archive")
		}
		cur, err := archive.Decode(curTriad.Format, curBytes)
		if err != nil {
			return errors.Wrap(err, "decode current label archive")
		}

		candRaw, err := m(cur)
		if err != nil {
			return errors.Wrap(err, "apply mutation")
		}
		cand, err := archive.Clean(candRaw, p.Resolver)
		if err != nil {
			return errors.Wrap(err, "clean candidate label archive")
		}

		encoded, err := archive.Encode(digest.FormatJSONArchive, cand)
		if err != nil {
			return errors.Wrap(err, "encode candidate label archive")
		}
		newTriad, err := p.Engine.Put(ctx, digest.FormatJSONArchive, digest.CompressionPlain, bytes.NewReader(encoded))
		if err != nil {
			return errors.Wrap(err, "put candidate label archive")
		}

		err = p.Engine.CASRoot(ctx, token, newTriad)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errs.ErrConflict) {
			return errors.Wrap(err, "cas root")
		}

		log.WithFields(log.Fields{"attempt": attempt, "backoff": backoff}).Debugf("root CAS conflict, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jitter(backoff)):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	return errors.Wrap(errs.ErrRootContention, "root CAS retry budget exhausted")
}

func jitter(d time.Duration) time.Duration {
	return d/2 + time.Duration(rand.Int63n(int64(d)/2+1))
}

func readAll(ctx context.Context, e cas.Engine, d digest.Digest) ([]byte, error) {
	rc, err := e.Get(ctx, d)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Apply runs an arbitrary Mutation against the label archive under the
// same read-modify-CAS retry loop SetLabel and DelLabel use. It exists so
// callers outside this package (the pipeline build cache, which stores its
// own fingerprint-keyed archive under the "@buildcache" binding) can update
// more than one binding atomically within a single root CAS.
func (p *Protocol) Apply(ctx context.Context, m Mutation) error {
	return p.mutate(ctx, m)
}

// SetLabel binds name to triad, overwriting any previous binding
// (spec.md P5).
func (p *Protocol) SetLabel(ctx context.Context, name string, triad digest.Triad) error {
	if err := archive.ValidateLabelName(name); err != nil {
		return err
	}
	return p.mutate(ctx, func(cur *archive.Archive) (*archive.Archive, error) {
		entries := make([]archive.Entry, 0, len(cur.Entries)+1)
		entries = append(entries, cur.Entries...)
		entries = append(entries, archive.Entry{Path: name, Kind: archive.FILE, Triad: triad})
		return &archive.Archive{Entries: entries}, nil
	})
}

// DelLabel unbinds name. It is idempotent: deleting an absent label
// succeeds.
func (p *Protocol) DelLabel(ctx context.Context, name string) error {
	if err := archive.ValidateLabelName(name); err != nil {
		return err
	}
	return p.mutate(ctx, func(cur *archive.Archive) (*archive.Archive, error) {
		entries := make([]archive.Entry, 0, len(cur.Entries))
		for _, e := range cur.Entries {
			if e.Path == name {
				continue
			}
			entries = append(entries, e)
		}
		return &archive.Archive{Entries: entries}, nil
	})
}

// currentLabelArchive is a read-only helper shared by GetLabel and
// ListLabels: readers read-root-once, decode, look up -- no locking
// (spec.md §4.3 "readers read-root-once").
func (p *Protocol) currentLabelArchive(ctx context.Context) (*archive.Archive, error) {
	triad, _, err := p.Engine.ReadRoot(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "read root")
	}
	b, err := readAll(ctx, p.Engine, triad.Digest)
	if err != nil {
		return nil, errors.Wrap(err, "get label archive")
	}
	a, err := archive.Decode(triad.Format, b)
	if err != nil {
		return nil, errors.Wrap(err, "decode label archive")
	}
	return a, nil
}

// GetLabel looks up name, returning errs.ErrNoSuchLabel if unbound.
func (p *Protocol) GetLabel(ctx context.Context, name string) (digest.Triad, error) {
	a, err := p.currentLabelArchive(ctx)
	if err != nil {
		return digest.Triad{}, err
	}
	for _, e := range a.Entries {
		if e.Path == name {
			return e.Triad, nil
		}
	}
	return digest.Triad{}, errors.Wrapf(errs.ErrNoSuchLabel, "%s", name)
}

// Binding is one (name, triad) pair from the label archive.
type Binding struct {
	Name  string
	Triad digest.Triad
}

// ListLabels returns every binding, sorted by name (spec.md §4.3
// list_labels).
func (p *Protocol) ListLabels(ctx context.Context) ([]Binding, error) {
	a, err := p.currentLabelArchive(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Binding, 0, len(a.Entries))
	for _, e := range a.Entries {
		out = append(out, Binding{Name: e.Path, Triad: e.Triad})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
