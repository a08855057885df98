package ops

import (
	"context"
	"regexp"

	"github.com/pkg/errors"

	"github.com/dirtabase/dirtabase/archive"
	"github.com/dirtabase/dirtabase/errs"
	"github.com/dirtabase/dirtabase/operator"
	"github.com/dirtabase/dirtabase/ref"
)

// Filter emits, per input archive, a new archive containing only entries
// whose path matches REGEX (spec.md §4.5 Filter, S4). Cacheable.
//
// REGEX is RE2 syntax via the standard library's regexp package, which
// is already the same engine Go's own tooling and every pack repo's
// "grep-like" helpers use; no third-party regex library in the retrieval
// pack offers a closer fit for a POSIX-flavored pattern.
type Filter struct{}

func (Filter) Tag() operator.Tag { return operator.TagFilter }

func (Filter) Cacheable(_ map[string]string, inputs []ref.Reference) bool {
	return allResolvable(inputs)
}

func (Filter) Run(ctx context.Context, env *operator.Env, params map[string]string, inputs []ref.Reference) ([]ref.Reference, error) {
	re, err := regexp.Compile(params["regex"])
	if err != nil {
		return nil, errors.Wrapf(errs.ErrInvalidReference, "compile filter regex %q: %v", params["regex"], err)
	}

	out := make([]ref.Reference, 0, len(inputs))
	for i, in := range inputs {
		a, _, err := resolveArchive(ctx, env, in)
		if err != nil {
			return nil, errors.Wrapf(err, "filter input %d", i)
		}

		filtered := &archive.Archive{}
		for _, e := range a.Entries {
			if re.MatchString(e.Path) {
				filtered.Entries = append(filtered.Entries, e)
			}
		}

		triad, err := putArchive(ctx, env, filtered)
		if err != nil {
			return nil, errors.Wrapf(err, "put filtered archive %d", i)
		}
		out = append(out, canonicalOutput(env, triad))
	}
	return out, nil
}
