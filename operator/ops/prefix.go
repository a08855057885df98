package ops

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/dirtabase/dirtabase/archive"
	"github.com/dirtabase/dirtabase/operator"
	"github.com/dirtabase/dirtabase/ref"
)

// Prefix rewrites each entry path by replacing a leading FROM with TO,
// leaving paths that don't start with FROM untouched (spec.md §4.5
// Prefix, S3; the "replace leading FROM with TO" reading locked in by the
// Open Question decision in DESIGN.md). Cacheable.
//
// Grounded on cmd/umoci/main.go's "--image" directory/tag splitting
// idiom, repurposed here for a leading-path-segment rewrite.
type Prefix struct{}

func (Prefix) Tag() operator.Tag { return operator.TagPrefix }

func (Prefix) Cacheable(_ map[string]string, inputs []ref.Reference) bool {
	return allResolvable(inputs)
}

func (Prefix) Run(ctx context.Context, env *operator.Env, params map[string]string, inputs []ref.Reference) ([]ref.Reference, error) {
	from := params["from"]
	to := params["to"]

	out := make([]ref.Reference, 0, len(inputs))
	for i, in := range inputs {
		a, _, err := resolveArchive(ctx, env, in)
		if err != nil {
			return nil, errors.Wrapf(err, "prefix input %d", i)
		}

		rewritten := &archive.Archive{Entries: make([]archive.Entry, len(a.Entries))}
		for j, e := range a.Entries {
			if strings.HasPrefix(e.Path, from) {
				e.Path = to + strings.TrimPrefix(e.Path, from)
			}
			rewritten.Entries[j] = e
		}

		triad, err := putArchive(ctx, env, rewritten)
		if err != nil {
			return nil, errors.Wrapf(err, "put prefixed archive %d", i)
		}
		out = append(out, canonicalOutput(env, triad))
	}
	return out, nil
}
