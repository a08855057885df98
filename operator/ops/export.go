package ops

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/dirtabase/dirtabase/archive"
	"github.com/dirtabase/dirtabase/errs"
	"github.com/dirtabase/dirtabase/internal/fseval"
	"github.com/dirtabase/dirtabase/operator"
	"github.com/dirtabase/dirtabase/ref"
)

// Export consumes the entire input stream and materializes every
// resolved archive under DIR, creating parent directories as needed, and
// emits an empty output stream (spec.md §4.5 Export, S1). Not cacheable:
// it is a side effect on the filesystem.
//
// Grounded on the mirror of oci/layer/tar_generate.go's walk: where
// Import walks the filesystem into CAS, Export walks CAS back onto the
// filesystem, entry by entry, in the same attrs vocabulary. Paths are
// joined against DIR with github.com/cyphar/filepath-securejoin so a
// malicious symlink entry cannot write outside DIR, the same property
// the teacher gets from this library during layer unpack.
type Export struct {
	Dir string
}

func (Export) Tag() operator.Tag { return operator.TagExport }

func (Export) Cacheable(map[string]string, []ref.Reference) bool { return false }

func (e Export) Run(ctx context.Context, env *operator.Env, params map[string]string, inputs []ref.Reference) ([]ref.Reference, error) {
	dir := params["dir"]
	if dir == "" {
		dir = e.Dir
	}
	if dir == "" {
		return nil, errors.Wrap(errs.ErrInvalidReference, "export: missing dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(errs.ErrEngineError, "create export dir")
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			if err := exportOne(gctx, env, dir, in); err != nil {
				return errors.Wrapf(err, "export input %d", i)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return nil, nil
}

func exportOne(ctx context.Context, env *operator.Env, dir string, in ref.Reference) error {
	a, _, err := resolveArchive(ctx, env, in)
	if err != nil {
		return err
	}

	entries, err := archive.Collect(a, env.Resolver)
	if err != nil {
		return err
	}

	for _, e := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := writeEntry(ctx, env, dir, e); err != nil {
			return errors.Wrapf(err, "write %q", e.Path)
		}
	}
	return nil
}

func writeEntry(ctx context.Context, env *operator.Env, dir string, e archive.Entry) error {
	fs := fseval.For()

	dest, err := securejoin.SecureJoin(dir, e.Path)
	if err != nil {
		return errors.Wrap(errs.ErrIllegalPath, "securejoin export path")
	}
	if err := fs.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return errors.Wrap(errs.ErrEngineError, "mkdir export parent")
	}

	switch e.Attrs["type"] {
	case "dir":
		if err := fs.MkdirAll(dest, modeFromAttrs(e.Attrs, 0o755)); err != nil {
			return err
		}
	case "symlink":
		_ = fs.Remove(dest)
		if err := fs.Symlink(e.Attrs["target"], dest); err != nil {
			return err
		}
		return setMtimeFromAttrs(fs, dest, e.Attrs)
	default:
		rc, err := openFileContent(ctx, env, e.Triad)
		if err != nil {
			return errors.Wrap(err, "get entry bytes")
		}
		defer rc.Close()

		fh, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, modeFromAttrs(e.Attrs, 0o644))
		if err != nil {
			return errors.Wrap(errs.ErrEngineError, "create export file")
		}
		if _, err := io.Copy(fh, rc); err != nil {
			fh.Close()
			return errors.Wrap(errs.ErrEngineError, "write export file")
		}
		fh.Close()
		if err := fs.Chmod(dest, modeFromAttrs(e.Attrs, 0o644)); err != nil {
			return errors.Wrap(errs.ErrEngineError, "chmod export file")
		}
	}
	return setMtimeFromAttrs(fs, dest, e.Attrs)
}

// setMtimeFromAttrs applies an entry's recorded mtime attr, if any,
// leaving the filesystem default (now) otherwise.
func setMtimeFromAttrs(fs fseval.FsEval, path string, attrs archive.Attrs) error {
	raw, ok := attrs["mtime"]
	if !ok {
		return nil
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	mtime := time.Unix(secs, 0)
	return fs.Lutimes(path, mtime, mtime)
}

func modeFromAttrs(attrs map[string]string, def os.FileMode) os.FileMode {
	if m, ok := attrs["mode"]; ok {
		if v, err := strconv.ParseUint(m, 8, 32); err == nil {
			return os.FileMode(v)
		}
	}
	return def
}
