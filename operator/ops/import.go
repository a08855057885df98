package ops

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/dirtabase/dirtabase/archive"
	"github.com/dirtabase/dirtabase/digest"
	"github.com/dirtabase/dirtabase/errs"
	"github.com/dirtabase/dirtabase/operator"
	"github.com/dirtabase/dirtabase/ref"
)

// pathListSep joins multiple filesystem paths into the "paths" param, a
// byte that cannot appear in a path on any platform dirtabase targets.
const pathListSep = "\x1f"

// EncodeImportPaths joins paths for the Import operator's params map.
func EncodeImportPaths(paths []string) string { return strings.Join(paths, pathListSep) }

// Import walks each of N filesystem paths and puts every file into CAS,
// constructing one clean archive per input path and emitting one output
// reference per input path (spec.md §4.5 Import/Ingest, S1). Not
// cacheable: its effect depends on mutable filesystem state.
//
// Grounded on oci/layer/tar_generate.go's tarGenerator: a lexicographic
// directory walk producing one entry per file, generalized from tar
// headers to archive.Entry triads.
type Import struct{}

func (Import) Tag() operator.Tag { return operator.TagImport }

func (Import) Cacheable(map[string]string, []ref.Reference) bool { return false }

func (Import) Run(ctx context.Context, env *operator.Env, params map[string]string, _ []ref.Reference) ([]ref.Reference, error) {
	paths := strings.Split(params["paths"], pathListSep)
	out := make([]ref.Reference, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			triad, err := importOne(gctx, env, p)
			if err != nil {
				return errors.Wrapf(err, "import %q", p)
			}
			out[i] = canonicalOutput(env, triad)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func importOne(ctx context.Context, env *operator.Env, root string) (digest.Triad, error) {
	var entries []archive.Entry

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		attrs := archive.Attrs{
			"mode":  fmt.Sprintf("%o", info.Mode().Perm()),
			"mtime": strconv.FormatInt(info.ModTime().Unix(), 10),
		}

		switch {
		case d.IsDir():
			attrs["type"] = "dir"
			entries = append(entries, archive.Entry{Path: rel, Kind: archive.FILE, Attrs: attrs})
			return nil
		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(p)
			if err != nil {
				return err
			}
			attrs["type"] = "symlink"
			attrs["target"] = target
			entries = append(entries, archive.Entry{Path: rel, Kind: archive.FILE, Attrs: attrs})
			return nil
		default:
			b, err := os.ReadFile(p)
			if err != nil {
				return err
			}
			triad, err := putFile(ctx, env, b)
			if err != nil {
				return err
			}
			attrs["type"] = "file"
			entries = append(entries, archive.Entry{Path: rel, Kind: archive.FILE, Triad: triad, Attrs: attrs})
			return nil
		}
	})
	if err != nil {
		return digest.Triad{}, errors.Wrap(errs.ErrEngineError, err.Error())
	}

	return putArchive(ctx, env, &archive.Archive{Entries: entries})
}
