// Package archive implements dirtabase's core value type: an ordered
// sequence of Entries describing an immutable directory tree (spec.md §3).
//
// Grounded on oci/casext/blob.go's registered-parser-by-mediatype pattern
// (reused here as registered-codec-by-format-name) and
// oci/casext/walk.go's recursive descriptor-walk style, adapted to
// recursive INCLUDE expansion with a digest-keyed memo set (spec.md §9
// "Archive references forming DAGs").
package archive

import (
	"path"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/dirtabase/dirtabase/digest"
	"github.com/dirtabase/dirtabase/errs"
)

// Kind distinguishes the two entry shapes spec.md §3 defines.
type Kind uint8

const (
	// FILE inlines a file at Path whose bytes are the CAS object named by
	// Triad.
	FILE Kind = iota
	// INCLUDE logically splices another archive's entries, each prefixed
	// by Path.
	INCLUDE
)

func (k Kind) String() string {
	if k == INCLUDE {
		return "INCLUDE"
	}
	return "FILE"
}

// Attrs is the small string-to-string attribute map carried by every
// entry. Recognized keys: mode (octal digits), mtime (integer seconds),
// type (file|dir|symlink), target (for symlinks).
type Attrs map[string]string

// Clone returns an independent copy of a.
func (a Attrs) Clone() Attrs {
	if a == nil {
		return nil
	}
	out := make(Attrs, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// SortedKeys returns a's keys in sorted order, used by codecs that must
// produce byte-identical output for byte-identical entry sequences.
func (a Attrs) SortedKeys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Entry is one element of an Archive: either a FILE inlining a CAS object,
// or an INCLUDE splicing another archive's entries under a path prefix.
type Entry struct {
	Path  string
	Kind  Kind
	Triad digest.Triad
	Attrs Attrs
}

// Archive is an ordered sequence of Entries (spec.md §3).
type Archive struct {
	Entries []Entry
}

// reservedLabelChars are forbidden in label-archive entry paths (spec.md
// §3 Label set).
const reservedLabelChars = ":#?&"

// NormalizePath cleans a POSIX-style path: removes "." and redundant
// separators, strips any leading "/", and rejects a ".." that would
// escape the archive root. It never returns "." or "" for a non-root
// entry path — callers that need to reference the archive root itself
// pass path "." explicitly (e.g. ref.Reference.Path) rather than through
// this function.
func NormalizePath(p string) (string, error) {
	p = strings.TrimPrefix(p, "/")
	clean := path.Clean(p)
	if clean == "." || clean == "" {
		return "", errors.Wrapf(errs.ErrIllegalPath, "empty path")
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", errors.Wrapf(errs.ErrIllegalPath, "path %q escapes archive root", p)
	}
	return clean, nil
}

// ValidateLabelName checks that name is a legal label-set entry path:
// begins with '@', contains no '/', and avoids the reserved characters
// ':#?&' (spec.md §3 Label set).
func ValidateLabelName(name string) error {
	if !strings.HasPrefix(name, "@") {
		return errors.Wrapf(errs.ErrIllegalPath, "label %q must start with '@'", name)
	}
	if strings.Contains(name, "/") {
		return errors.Wrapf(errs.ErrIllegalPath, "label %q must not contain '/'", name)
	}
	if strings.ContainsAny(name, reservedLabelChars) {
		return errors.Wrapf(errs.ErrIllegalPath, "label %q contains a reserved character", name)
	}
	return nil
}
