// Package local implements the reference local-filesystem CAS engine of
// spec.md §4.2, matching the directory scheme scheme=file.
//
// Grounded almost directly on oci/cas/dir.go's dirEngine: PutBlob's
// temp-file-then-rename pattern becomes Put, CreateLayout's directory
// scaffolding becomes Create, ListBlobs's filepath.Walk becomes List.
// Staging names use github.com/google/uuid (per SPEC_FULL domain-stack
// wiring) rather than the teacher's ioutil.TempFile random suffix, and
// the root file gets a genuine compare-and-swap (via a flock'd lockfile)
// since, unlike an OCI ref directory, dirtabase's single root pointer is
// mutated concurrently by multiple processes (spec.md §5).
package local

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/dirtabase/dirtabase/archive"
	"github.com/dirtabase/dirtabase/cas"
	"github.com/dirtabase/dirtabase/cas/verify"
	"github.com/dirtabase/dirtabase/digest"
	"github.com/dirtabase/dirtabase/errs"
)

const (
	casDirName  = "cas"
	tmpDirName  = "tmp"
	rootFile    = "root"
	lockFile    = "root.lock"
	emptyArchiveBytes = "[]"
)

// Engine is the local filesystem CAS engine. The zero value is not
// usable; construct with Open or Create.
type Engine struct {
	path string
}

var _ cas.Engine = (*Engine)(nil)

// Create scaffolds a new engine layout at path and seeds rootdata with an
// empty label archive (spec.md §3 Lifecycle, §9 empty-archive decision).
// Fails with os.ErrExist if path is already a populated layout.
func Create(path string) (*Engine, error) {
	if _, err := os.Stat(filepath.Join(path, rootFile)); err == nil {
		return nil, errors.Wrapf(os.ErrExist, "layout already initialized at %s", path)
	}

	for _, dir := range []string{"", casDirName, tmpDirName} {
		if err := os.MkdirAll(filepath.Join(path, dir), 0o755); err != nil {
			return nil, errors.Wrapf(errs.ErrEngineError, "mkdir %s: %v", dir, err)
		}
	}

	e := &Engine{path: path}

	triad, err := e.Put(context.Background(), digest.FormatJSONArchive, digest.CompressionPlain, strings.NewReader(emptyArchiveBytes))
	if err != nil {
		return nil, errors.Wrap(err, "seed empty label archive")
	}
	if err := e.writeRootFile(triad); err != nil {
		return nil, errors.Wrap(err, "write initial root")
	}
	return e, nil
}

// Open opens an existing layout at path. Fails with an error wrapping
// errs.ErrEngineError if the layout has not been initialized.
func Open(path string) (*Engine, error) {
	if _, err := os.Stat(filepath.Join(path, rootFile)); err != nil {
		return nil, errors.Wrapf(errs.ErrEngineError, "open layout %s: %v", path, err)
	}
	return &Engine{path: path}, nil
}

func (e *Engine) blobPath(d digest.Digest) string {
	return filepath.Join(e.path, casDirName, d.Encoded())
}

// Put implements cas.Engine.
func (e *Engine) Put(_ context.Context, format digest.Format, compression digest.Compression, r io.Reader) (digest.Triad, error) {
	tmpPath := filepath.Join(e.path, tmpDirName, uuid.NewString())
	fh, err := os.Create(tmpPath)
	if err != nil {
		return digest.Triad{}, errors.Wrap(errs.ErrEngineError, "create staging file")
	}

	_, err = io.Copy(fh, r)
	closeErr := fh.Close()
	if err != nil {
		os.Remove(tmpPath)
		return digest.Triad{}, errors.Wrap(errs.ErrEngineError, "write staging file")
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return digest.Triad{}, errors.Wrap(errs.ErrEngineError, "close staging file")
	}

	b, err := os.ReadFile(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return digest.Triad{}, errors.Wrap(errs.ErrEngineError, "reread staging file")
	}
	d := digest.FromBytes(b)

	if err := os.Rename(tmpPath, e.blobPath(d)); err != nil {
		os.Remove(tmpPath)
		return digest.Triad{}, errors.Wrap(errs.ErrEngineError, "rename staging file into cas")
	}

	return digest.Triad{Format: format, Compression: compression, Digest: d}, nil
}

// Get implements cas.Engine. The returned reader is wrapped with
// cas/verify so a blob corrupted on disk (bit rot, a hand-edited file)
// surfaces as ErrDigestMismatch rather than silently handing back bytes
// that no longer match d.
func (e *Engine) Get(_ context.Context, d digest.Digest) (io.ReadCloser, error) {
	fh, err := os.Open(e.blobPath(d))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(errs.ErrMissingReferent, "%s", d)
		}
		return nil, errors.Wrap(errs.ErrEngineError, err.Error())
	}
	return verify.Wrap(fh, d), nil
}

// Has implements cas.Engine.
func (e *Engine) Has(_ context.Context, d digest.Digest) (bool, error) {
	if _, err := os.Stat(e.blobPath(d)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrap(errs.ErrEngineError, err.Error())
	}
	return true, nil
}

// ReadRoot implements cas.Engine. The token is the exact trimmed contents
// of the root file, which doubles as the compare-and-swap pre-image.
func (e *Engine) ReadRoot(_ context.Context) (digest.Triad, cas.Token, error) {
	b, err := os.ReadFile(filepath.Join(e.path, rootFile))
	if err != nil {
		return digest.Triad{}, nil, errors.Wrap(errs.ErrEngineError, "read root file")
	}
	text := strings.TrimSpace(string(b))
	triad, err := digest.ParseTriad(text)
	if err != nil {
		return digest.Triad{}, nil, errors.Wrap(errs.ErrEngineError, "parse root file")
	}
	return triad, text, nil
}

// CASRoot implements cas.Engine, holding an exclusive flock(2) on the
// root.lock file to serialize the read-compare-write sequence across
// processes.
func (e *Engine) CASRoot(ctx context.Context, token cas.Token, newTriad digest.Triad) error {
	lockPath := filepath.Join(e.path, lockFile)
	lockFh, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return errors.Wrap(errs.ErrEngineError, "open root lockfile")
	}
	defer lockFh.Close()

	if err := unix.Flock(int(lockFh.Fd()), unix.LOCK_EX); err != nil {
		return errors.Wrap(errs.ErrEngineError, "lock root lockfile")
	}
	defer unix.Flock(int(lockFh.Fd()), unix.LOCK_UN)

	_, curToken, err := e.ReadRoot(ctx)
	if err != nil {
		return err
	}
	want, _ := token.(string)
	if curToken.(string) != want {
		return errors.Wrap(errs.ErrConflict, "root changed since ReadRoot")
	}

	return e.writeRootFile(newTriad)
}

func (e *Engine) writeRootFile(triad digest.Triad) error {
	tmpPath := filepath.Join(e.path, tmpDirName, uuid.NewString())
	if err := os.WriteFile(tmpPath, []byte(triad.String()+"\n"), 0o644); err != nil {
		return errors.Wrap(errs.ErrEngineError, "write staged root")
	}
	if err := os.Rename(tmpPath, filepath.Join(e.path, rootFile)); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(errs.ErrEngineError, "rename staged root into place")
	}
	return nil
}

// List implements cas.Engine.
func (e *Engine) List(_ context.Context) ([]digest.Digest, error) {
	dir := filepath.Join(e.path, casDirName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(errs.ErrEngineError, "list cas directory")
	}
	out := make([]digest.Digest, 0, len(entries))
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		out = append(out, digest.Digest(string(digest.Algorithm)+":"+ent.Name()))
	}
	return out, nil
}

// Close implements cas.Engine. CAS objects are shared across processes
// (spec.md §5), so unlike the teacher's single-process dirEngine this
// does not remove the staging directory on close.
func (e *Engine) Close() error { return nil }

// resolverFor adapts an Engine into an archive.Resolver, decoding INCLUDE
// triads as their declared format.
func resolverFor(ctx context.Context, e *Engine) archive.Resolver {
	return func(t digest.Triad) (*archive.Archive, error) {
		rc, err := e.Get(ctx, t.Digest)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		b, err := io.ReadAll(rc)
		if err != nil {
			return nil, errors.Wrap(errs.ErrEngineError, "read include target")
		}
		return archive.Decode(t.Format, b)
	}
}

// Resolver returns an archive.Resolver backed by e, for expanding INCLUDE
// entries against this engine's CAS.
func (e *Engine) Resolver(ctx context.Context) archive.Resolver {
	return resolverFor(ctx, e)
}
