package label

import (
	"context"

	"github.com/pkg/errors"

	"github.com/dirtabase/dirtabase/archive"
	"github.com/dirtabase/dirtabase/digest"
)

// Reachable computes the GC reachability contract of spec.md §4.3: the
// set of digests retained by the closure from the root triad, following
// decoded archive references. Non-archive ("file") triads are leaves.
//
// Grounded on oci/casext/gc.go's mark phase: a recursive descriptor walk
// from the reference root set, collapsed here to dirtabase's single root
// triad and its INCLUDE/FILE entry graph (spec.md §9 "Archive references
// forming DAGs" -- a visited-by-digest set makes this safe against
// shared sub-archives without a separate cycle guard, since I2 rules out
// cycles by construction).
func (p *Protocol) Reachable(ctx context.Context) (map[digest.Digest]struct{}, error) {
	rootTriad, _, err := p.Engine.ReadRoot(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "read root")
	}

	seen := map[digest.Digest]struct{}{}
	if err := p.markReachable(ctx, rootTriad, seen); err != nil {
		return nil, err
	}
	return seen, nil
}

func (p *Protocol) markReachable(ctx context.Context, t digest.Triad, seen map[digest.Digest]struct{}) error {
	if t.Digest == "" {
		return nil
	}
	if _, ok := seen[t.Digest]; ok {
		return nil
	}
	seen[t.Digest] = struct{}{}

	if _, err := archive.CodecFor(t.Format); err != nil {
		// Not a registered archive format: an opaque file triad, a leaf.
		return nil
	}

	b, err := readAll(ctx, p.Engine, t.Digest)
	if err != nil {
		return errors.Wrapf(err, "read archive %s for gc", t)
	}
	a, err := archive.Decode(t.Format, b)
	if err != nil {
		return errors.Wrapf(err, "decode archive %s for gc", t)
	}

	for _, e := range a.Entries {
		if err := p.markReachable(ctx, e.Triad, seen); err != nil {
			return err
		}
	}
	return nil
}
