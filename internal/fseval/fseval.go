// Package fseval abstracts the filesystem calls Export and CmdImpure use to
// materialize an archive onto disk, so the same entry-writing code runs
// unchanged whether the process is root or not (spec.md §4.5 Export).
//
// Grounded on the teacher's fseval.go/fseval_default.go/fseval_rootless.go:
// the same FsEval super-interface idea, trimmed to the operations dirtabase
// entries actually need (mode and mtime attrs, no uid/gid) and to the
// directories dirtabase itself creates, so there is no pre-existing
// chmod(000) tree to fight through the way an unpacked OCI rootfs can have
// -- see DESIGN.md for why the teacher's pkg/unpriv CAP_DAC_READ_SEARCH
// emulation isn't carried over.
package fseval

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// FsEval is the filesystem surface Export and CmdImpure need: open/create,
// directory creation, symlink handling, and the two attrs (mode, mtime) an
// archive.Entry carries.
type FsEval interface {
	Create(path string) (*os.File, error)
	Open(path string) (*os.File, error)
	Mkdir(path string, perm os.FileMode) error
	MkdirAll(path string, perm os.FileMode) error
	Remove(path string) error
	Symlink(linkname, path string) error
	Readlink(path string) (string, error)
	Lstat(path string) (os.FileInfo, error)
	Chmod(path string, mode os.FileMode) error
	Lutimes(path string, atime, mtime time.Time) error
}

// Default is the identity FsEval: every call goes straight to the matching
// os.* function, matching DefaultFsEval in the teacher.
var Default FsEval = osFsEval{}

// Rootless best-effort-applies mode and mtime changes that require
// privileges this process may not have (spec.md §4.5 "Export ... on a
// permission error for a mode or mtime change, the export still succeeds";
// the export has already written the file's bytes, so refusing to set the
// bits it can't would turn an advisory attribute into a hard failure).
// Unlike the teacher's RootlessFsEval, this never retries through a
// forked child to regain CAP_DAC_READ_SEARCH: dirtabase's Export only ever
// writes into a directory tree it created itself in this same call, so
// there is no inherited restrictive permission to work around, only a
// destination mode/mtime this process may lack privilege to apply exactly.
var Rootless FsEval = rootlessFsEval{}

// For returns Default when running as root (euid 0) and Rootless
// otherwise, the same selection umoci's own CLI makes with --rootless.
func For() FsEval {
	if os.Geteuid() == 0 {
		return Default
	}
	return Rootless
}

type osFsEval struct{}

func (osFsEval) Create(path string) (*os.File, error) { return os.Create(path) }
func (osFsEval) Open(path string) (*os.File, error)    { return os.Open(path) }
func (osFsEval) Mkdir(path string, perm os.FileMode) error {
	return os.Mkdir(path, perm)
}
func (osFsEval) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}
func (osFsEval) Remove(path string) error                { return os.Remove(path) }
func (osFsEval) Symlink(linkname, path string) error      { return os.Symlink(linkname, path) }
func (osFsEval) Readlink(path string) (string, error)     { return os.Readlink(path) }
func (osFsEval) Lstat(path string) (os.FileInfo, error)   { return os.Lstat(path) }
func (osFsEval) Chmod(path string, mode os.FileMode) error { return os.Chmod(path, mode) }

// Lutimes sets atime/mtime on path itself rather than a symlink's target,
// via utimensat(2) with AT_SYMLINK_NOFOLLOW (os.Chtimes always follows
// symlinks), matching the teacher's pkg/system/utime_linux.go but reached
// through the already-pinned golang.org/x/sys/unix wrapper rather than a
// hand-rolled raw syscall.
func (osFsEval) Lutimes(path string, atime, mtime time.Time) error {
	return lutimes(path, atime, mtime)
}

type rootlessFsEval struct{}

func (rootlessFsEval) Create(path string) (*os.File, error) { return os.Create(path) }
func (rootlessFsEval) Open(path string) (*os.File, error)    { return os.Open(path) }
func (rootlessFsEval) Mkdir(path string, perm os.FileMode) error {
	return os.Mkdir(path, perm)
}
func (rootlessFsEval) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}
func (rootlessFsEval) Remove(path string) error            { return os.Remove(path) }
func (rootlessFsEval) Symlink(linkname, path string) error  { return os.Symlink(linkname, path) }
func (rootlessFsEval) Readlink(path string) (string, error) { return os.Readlink(path) }
func (rootlessFsEval) Lstat(path string) (os.FileInfo, error) {
	return os.Lstat(path)
}

// Chmod is best-effort: an unprivileged process can legitimately fail to
// set every mode bit (e.g. the setuid bit, or a mode wider than its own
// umask policy allows on some filesystems), and Export's output is still
// usable with the bits the OS did accept.
func (rootlessFsEval) Chmod(path string, mode os.FileMode) error {
	if err := os.Chmod(path, mode); err != nil && !os.IsPermission(err) {
		return err
	}
	return nil
}

// Lutimes is best-effort for the same reason as Chmod.
func (rootlessFsEval) Lutimes(path string, atime, mtime time.Time) error {
	if err := lutimes(path, atime, mtime); err != nil && !os.IsPermission(err) {
		return err
	}
	return nil
}

// lutimes sets path's own atime/mtime without following a trailing
// symlink.
func lutimes(path string, atime, mtime time.Time) error {
	ts := []unix.Timespec{
		unix.NsecToTimespec(atime.UnixNano()),
		unix.NsecToTimespec(mtime.UnixNano()),
	}
	return unix.UtimesNanoAt(unix.AT_FDCWD, path, ts, unix.AT_SYMLINK_NOFOLLOW)
}
