// Package ref implements the reference grammar and canonicalization rules
// of spec.md §4.4: scheme://fullpath(#ref)?(:path)?, binding scheme,
// engine, ref and path into dirtabase's single addressing scheme.
//
// Grounded on cmd/umoci/main.go's manual "--image"/"--layout" parsing
// (splitting on the last ':' to separate a directory from a tag) -- the
// teacher never reaches for a URL-parsing library for its own ad hoc
// grammar, so this package does not use net/url either: the outer
// "scheme://" split, the '#' and the trailing ':path' are all found with
// manual string splitting in the same spirit.
package ref

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/dirtabase/dirtabase/archive"
	"github.com/dirtabase/dirtabase/errs"
)

// DefaultSchemeName is the pseudo-scheme substituted per canonicalization
// rule 4.
const DefaultSchemeName = "default"

// RootLabel is the label substituted when a reference's ref component is
// absent (canonicalization rule 2).
const RootLabel = "@root"

// Reference is the parsed, canonical form of a dirtabase URL.
type Reference struct {
	Scheme   string
	Fullpath string
	Ref      string // either "@label" or a triad's canonical text
	Path     string
}

// IsLabel reports whether r.Ref names a label rather than a literal triad.
func (r Reference) IsLabel() bool {
	return strings.HasPrefix(r.Ref, "@")
}

// String renders r in canonical "scheme://fullpath#ref:path" form.
// Canonicalization is idempotent (spec.md P7): parsing this string again
// yields an equal Reference.
func (r Reference) String() string {
	var b strings.Builder
	b.WriteString(r.Scheme)
	b.WriteString("://")
	b.WriteString(r.Fullpath)
	b.WriteByte('#')
	b.WriteString(r.Ref)
	b.WriteByte(':')
	b.WriteString(r.Path)
	return b.String()
}

// EngineConfig names the scheme and fullpath of a storage engine, the
// pair substituted for the "default" pseudo-scheme.
type EngineConfig struct {
	Scheme   string
	Fullpath string
}

// Of builds a canonical Reference into this engine naming triadText (a
// triad's String() form, or a "@label") at path. Operators use this to
// emit canonical inter-stage references (spec.md §4.4 "All inter-stage
// references...MUST be in canonical form").
func (cfg EngineConfig) Of(triadText, path string) Reference {
	if path == "" {
		path = "."
	}
	return Reference{Scheme: cfg.Scheme, Fullpath: cfg.Fullpath, Ref: triadText, Path: path}
}

// DefaultEngineConfig derives the process default engine from
// DIRTABASE_DEFAULT, falling back to a well-known file:// path under the
// user's home directory (spec.md §4.4 rule 4).
func DefaultEngineConfig() (EngineConfig, error) {
	if v := os.Getenv("DIRTABASE_DEFAULT"); v != "" {
		cfg, err := splitSchemeFullpath(v)
		if err != nil {
			return EngineConfig{}, errors.Wrap(err, "parse DIRTABASE_DEFAULT")
		}
		return cfg, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return EngineConfig{}, errors.Wrap(err, "resolve home directory for default engine")
	}
	return EngineConfig{Scheme: "file", Fullpath: filepath.Join(home, ".dirtabase_db") + "/"}, nil
}

func splitSchemeFullpath(s string) (EngineConfig, error) {
	idx := strings.Index(s, "://")
	if idx < 0 {
		return EngineConfig{}, errors.Wrapf(errs.ErrInvalidReference, "missing '://' in %q", s)
	}
	return EngineConfig{Scheme: s[:idx], Fullpath: s[idx+3:]}, nil
}

// Canonicalize applies the canonicalization rules of spec.md §4.4 in
// order to raw, producing a fully-populated Reference. defaultCfg is
// consulted only when the canonical scheme resolves to "default"; pass
// DefaultEngineConfig() in production, or a fixed value in tests.
func Canonicalize(raw string, defaultCfg func() (EngineConfig, error)) (Reference, error) {
	wrapped, err := applyRule1(raw)
	if err != nil {
		return Reference{}, err
	}

	r, err := parse(wrapped)
	if err != nil {
		return Reference{}, err
	}

	// Rule 2: ref absent -> @root.
	if r.Ref == "" {
		r.Ref = RootLabel
	}
	// Rule 3: path absent -> ".".
	if r.Path == "" {
		r.Path = "."
	}
	// Rule 4: scheme "default" -> substitute process default engine.
	if r.Scheme == DefaultSchemeName {
		cfg, err := defaultCfg()
		if err != nil {
			return Reference{}, errors.Wrap(err, "resolve default engine")
		}
		r.Scheme = cfg.Scheme
		r.Fullpath = cfg.Fullpath
	}

	return r, nil
}

// applyRule1 implements canonicalization rule 1: if the input contains no
// "://", rewrite it per the three cases in spec.md §4.4.
func applyRule1(raw string) (string, error) {
	if strings.Contains(raw, "://") {
		return raw, nil
	}
	switch {
	case strings.HasPrefix(raw, "#"):
		return "default:///" + raw, nil
	case strings.HasPrefix(raw, "@"):
		return "default:///#" + raw, nil
	default:
		abs, err := filepath.Abs(raw)
		if err != nil {
			return "", errors.Wrapf(errs.ErrInvalidReference, "resolve filesystem path %q: %v", raw, err)
		}
		parent := filepath.Dir(abs)
		base := filepath.Base(abs)
		return "file://" + parent + "/#:" + base, nil
	}
}

// parse implements the raw grammar: scheme '://' fullpath ('#' ref)? (':' path)?.
func parse(s string) (Reference, error) {
	idx := strings.Index(s, "://")
	if idx < 0 {
		return Reference{}, errors.Wrapf(errs.ErrInvalidReference, "missing '://' in %q", s)
	}
	scheme := s[:idx]
	if scheme == "" {
		return Reference{}, errors.Wrapf(errs.ErrInvalidReference, "empty scheme in %q", s)
	}
	rest := s[idx+3:]

	var fullpath, refPart, pathPart string
	if hashIdx := strings.Index(rest, "#"); hashIdx >= 0 {
		fullpath = rest[:hashIdx]
		remainder := rest[hashIdx+1:]
		if colonIdx := strings.Index(remainder, ":"); colonIdx >= 0 {
			refPart = remainder[:colonIdx]
			pathPart = remainder[colonIdx+1:]
		} else {
			refPart = remainder
		}
	} else if colonIdx := strings.Index(rest, ":"); colonIdx >= 0 {
		fullpath = rest[:colonIdx]
		pathPart = rest[colonIdx+1:]
	} else {
		fullpath = rest
	}

	if pathPart != "" && pathPart != "." {
		norm, err := archive.NormalizePath(pathPart)
		if err != nil {
			return Reference{}, err
		}
		pathPart = norm
	}

	return Reference{Scheme: scheme, Fullpath: fullpath, Ref: refPart, Path: pathPart}, nil
}
