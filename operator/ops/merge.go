package ops

import (
	"context"

	"github.com/pkg/errors"

	"github.com/dirtabase/dirtabase/archive"
	"github.com/dirtabase/dirtabase/operator"
	"github.com/dirtabase/dirtabase/ref"
)

// Merge consumes the entire input stream and emits a single reference
// whose archive is the logical concatenation of all inputs in order,
// then clean'd (spec.md §4.5 Merge, S2). Cacheable: fingerprint is the
// ordered input digests.
//
// Grounded on oci/casext/gc.go's mark/sweep union style, repurposed here
// as an ordered union of entries rather than a reachability set.
type Merge struct{}

func (Merge) Tag() operator.Tag { return operator.TagMerge }

func (Merge) Cacheable(_ map[string]string, inputs []ref.Reference) bool {
	return allResolvable(inputs)
}

func (Merge) Run(ctx context.Context, env *operator.Env, _ map[string]string, inputs []ref.Reference) ([]ref.Reference, error) {
	merged := &archive.Archive{}
	for i, in := range inputs {
		a, _, err := resolveArchive(ctx, env, in)
		if err != nil {
			return nil, errors.Wrapf(err, "merge input %d", i)
		}
		merged.Entries = append(merged.Entries, a.Entries...)
	}

	triad, err := putArchive(ctx, env, merged)
	if err != nil {
		return nil, errors.Wrap(err, "put merged archive")
	}
	return []ref.Reference{canonicalOutput(env, triad)}, nil
}

// allResolvable reports whether every reference already names a literal
// triad or a label (both are resolvable without further I/O beyond the
// engine itself), the cacheability condition of spec.md §4.5.
func allResolvable(inputs []ref.Reference) bool {
	for _, in := range inputs {
		if in.Ref == "" {
			return false
		}
	}
	return true
}
