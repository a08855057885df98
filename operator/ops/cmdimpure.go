package ops

import (
	"bytes"
	"context"
	"os"
	"os/exec"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/dirtabase/dirtabase/archive"
	"github.com/dirtabase/dirtabase/digest"
	"github.com/dirtabase/dirtabase/errs"
	"github.com/dirtabase/dirtabase/operator"
	"github.com/dirtabase/dirtabase/ref"
)

// stderrTailLimit bounds how much of a failed command's stderr is
// retained in the CommandFailed error (spec.md §7).
const stderrTailLimit = 4096

// CmdImpure materializes each input to a fresh scratch directory, runs a
// shell command with that directory as its working directory, imports the
// resulting directory back into CAS, and emits the new reference
// (spec.md §4.5 CmdImpure). Not cacheable. Fails with an error wrapping
// errs.ErrCommandFailed carrying the exit code and a stderr tail on
// non-zero exit.
//
// Grounded on mutagen-io-mutagen's pkg/process/exit_code.go, which
// extracts a subprocess's numeric exit status from its ProcessState; here
// that comes directly from exec.ExitError.ExitCode(), with the same goal
// of surfacing a precise code rather than a generic "command failed".
type CmdImpure struct{}

func (CmdImpure) Tag() operator.Tag { return operator.TagCmdImpure }

func (CmdImpure) Cacheable(map[string]string, []ref.Reference) bool { return false }

func (CmdImpure) Run(ctx context.Context, env *operator.Env, params map[string]string, inputs []ref.Reference) ([]ref.Reference, error) {
	shell := params["shell"]
	if shell == "" {
		return nil, errors.Wrap(errs.ErrInvalidReference, "cmd-impure: missing shell command")
	}

	out := make([]ref.Reference, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			triad, err := cmdImpureOne(gctx, env, shell, in)
			if err != nil {
				return errors.Wrapf(err, "cmd-impure input %d", i)
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

func cmdImpureOne(ctx context.Context, env *operator.Env, shell string, in ref.Reference) (digest.Triad, error) {
	scratch, err := os.MkdirTemp("", "dirtabase-cmd-impure-")
	if err != nil {
		return digest.Triad{}, errors.Wrap(errs.ErrEngineError, "create scratch dir")
	}
	defer os.RemoveAll(scratch)

	a, _, err := resolveArchive(ctx, env, in)
	if err != nil {
		return digest.Triad{}, err
	}
	entries, err := archive.Collect(a, env.Resolver)
	if err != nil {
		return digest.Triad{}, err
	}
	for _, e := range entries {
		if err := writeEntry(ctx, env, scratch, e); err != nil {
			return digest.Triad{}, errors.Wrap(err, "materialize scratch dir")
		}
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", shell)
	cmd.Dir = scratch
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		tail := stderr.Bytes()
		if len(tail) > stderrTailLimit {
			tail = tail[len(tail)-stderrTailLimit:]
		}
		return digest.Triad{}, errors.Wrapf(errs.ErrCommandFailed, "exit code %d: %s", exitCode, tail)
	}

	return importOne(ctx, env, scratch)
}
