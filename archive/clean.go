package archive

import (
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/dirtabase/dirtabase/digest"
	"github.com/dirtabase/dirtabase/errs"
)

// Resolver fetches the archive a triad names, used to expand INCLUDE
// entries. The local CAS engine's Engine.Get + a codec Decode is the usual
// implementation; tests may supply an in-memory stand-in.
type Resolver func(t digest.Triad) (*Archive, error)

// IsClean reports whether a is already clean: no INCLUDE entries, every
// path unique, entries sorted lexicographically by path (spec.md §3
// "Archive semantics").
func (a *Archive) IsClean() bool {
	seen := make(map[string]struct{}, len(a.Entries))
	last := ""
	for i, e := range a.Entries {
		if e.Kind == INCLUDE {
			return false
		}
		if _, dup := seen[e.Path]; dup {
			return false
		}
		seen[e.Path] = struct{}{}
		if i > 0 && e.Path < last {
			return false
		}
		last = e.Path
	}
	return true
}

// expandState threads the memo cache and cycle guard through recursive
// INCLUDE expansion.
type expandState struct {
	resolve  Resolver
	memo     map[string][]Entry // triad.String() -> flat FILE entries rooted at "."
	visiting map[string]struct{}
}

// expand flattens a (rooted at prefix) into an ordered slice of FILE
// entries, recursively resolving INCLUDEs. Order is preserved so the
// override rule (later wins) can be applied by the caller.
func expand(a *Archive, prefix string, st *expandState) ([]Entry, error) {
	out := make([]Entry, 0, len(a.Entries))
	for _, e := range a.Entries {
		joined := joinPath(prefix, e.Path)
		switch e.Kind {
		case FILE:
			out = append(out, Entry{Path: joined, Kind: FILE, Triad: e.Triad, Attrs: e.Attrs.Clone()})
		case INCLUDE:
			key := e.Triad.String()
			if _, cyclic := st.visiting[key]; cyclic {
				return nil, errors.Wrapf(errs.ErrMalformedArchive, "cyclic INCLUDE at triad %s", key)
			}
			sub, ok := st.memo[key]
			if !ok {
				included, err := st.resolve(e.Triad)
				if err != nil {
					return nil, errors.Wrapf(errs.ErrMissingReferent, "resolve INCLUDE %s: %v", key, err)
				}
				st.visiting[key] = struct{}{}
				flat, err := expand(included, "", st)
				delete(st.visiting, key)
				if err != nil {
					return nil, err
				}
				st.memo[key] = flat
				sub = flat
			}
			for _, se := range sub {
				out = append(out, Entry{Path: joinPath(joined, se.Path), Kind: FILE, Triad: se.Triad, Attrs: se.Attrs.Clone()})
			}
		default:
			return nil, errors.Wrapf(errs.ErrMalformedArchive, "unknown entry kind %v at %q", e.Kind, e.Path)
		}
	}
	return out, nil
}

func joinPath(prefix, p string) string {
	if prefix == "" {
		return p
	}
	if p == "" || p == "." {
		return prefix
	}
	return strings.TrimSuffix(prefix, "/") + "/" + strings.TrimPrefix(p, "/")
}

// Clean implements the clean(A) operation of spec.md §4.1: expand every
// INCLUDE recursively, apply the override rule keeping the last writer
// per path, drop directory-marker entries shadowed by a descendant file,
// sort by path, and re-emit.
func Clean(a *Archive, resolve Resolver) (*Archive, error) {
	st := &expandState{
		resolve:  resolve,
		memo:     map[string][]Entry{},
		visiting: map[string]struct{}{},
	}
	flat, err := expand(a, "", st)
	if err != nil {
		return nil, err
	}

	// Override rule: later entries win. A map preserves only the final
	// writer per path; we still need a stable path list to sort.
	byPath := make(map[string]Entry, len(flat))
	for _, e := range flat {
		norm, err := NormalizePath(e.Path)
		if err != nil {
			return nil, err
		}
		e.Path = norm
		byPath[norm] = e
	}

	paths := make([]string, 0, len(byPath))
	for p := range byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	// Directories are implicit: drop a type=dir marker entry if some
	// other surviving entry lives underneath it.
	result := make([]Entry, 0, len(paths))
	for _, p := range paths {
		e := byPath[p]
		if e.Attrs["type"] == "dir" && hasDescendant(paths, p) {
			continue
		}
		result = append(result, e)
	}

	return &Archive{Entries: result}, nil
}

// hasDescendant reports whether any path in the sorted paths slice lives
// strictly under dir (i.e. begins with dir + "/"). Since paths is sorted,
// this check could be done with a binary search, but the entry counts
// involved in a single archive keep a linear scan cheap enough.
func hasDescendant(paths []string, dir string) bool {
	prefix := dir + "/"
	for _, p := range paths {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}
