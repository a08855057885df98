package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/docker/go-units"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/dirtabase/dirtabase/archive"
	"github.com/dirtabase/dirtabase/cas"
	"github.com/dirtabase/dirtabase/cas/compress"
	"github.com/dirtabase/dirtabase/digest"
	"github.com/dirtabase/dirtabase/errs"
	"github.com/dirtabase/dirtabase/internal/iohelpers"
	"github.com/dirtabase/dirtabase/operator"
	"github.com/dirtabase/dirtabase/operator/ops"
	"github.com/dirtabase/dirtabase/ref"
)

// statStats is stat's JSON-encodable report shape.
type statStats struct {
	Root    string `json:"root"`
	Entries int    `json:"entries"`
	Bytes   int64  `json:"bytes"`
}

// statCommand is pure read-side sugar over archive.Walk, grounded on
// cmd/umoci/stat.go's --json toggle between human-readable and encoded
// output.
var statCommand = cli.Command{
	Name:      "stat",
	Usage:     "print an archive's entry count, total bytes, and root digest",
	ArgsUsage: `REF`,
	Description: `Resolves REF (spec.md §4.4 grammar) and reports the entry count, total
logical byte size, and root triad of the archive it names.

WARNING: the default text format is for humans; use --json for anything
that parses this output (cmd/umoci/stat.go's own warning applies here
too).`,

	Flags: []cli.Flag{
		cli.BoolFlag{Name: "json", Usage: "output the stat information as JSON"},
	},

	Action: func(ctx *cli.Context) error {
		raw := ctx.Args().First()
		if raw == "" {
			return errors.Wrap(errs.ErrInvalidReference, "stat: missing REF argument")
		}

		background := context.Background()
		r, err := ref.Canonicalize(raw, ref.DefaultEngineConfig)
		if err != nil {
			return errors.Wrap(err, "canonicalize reference")
		}

		engine, err := openEngine(ref.EngineConfig{Scheme: r.Scheme, Fullpath: r.Fullpath})
		if err != nil {
			return errors.Wrap(err, "open storage engine")
		}
		defer engine.Close()

		env := &operator.Env{
			Engine:       engine,
			Resolver:     resolverFor(background, engine),
			EngineConfig: ref.EngineConfig{Scheme: r.Scheme, Fullpath: r.Fullpath},
		}

		triad, err := ops.ResolveTriad(background, env, r)
		if err != nil {
			return errors.Wrap(err, "resolve reference")
		}

		rc, err := engine.Get(background, triad.Digest)
		if err != nil {
			return errors.Wrap(err, "get archive bytes")
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return errors.Wrap(err, "read archive bytes")
		}
		a, err := archive.Decode(triad.Format, b)
		if err != nil {
			return err
		}

		entries, err := archive.Collect(a, env.Resolver)
		if err != nil {
			return errors.Wrap(err, "walk archive")
		}

		var total int64
		for _, e := range entries {
			if e.Triad.Digest == "" {
				continue
			}
			n, err := entryLogicalSize(background, engine, e.Triad)
			if err != nil {
				return err
			}
			total += n
		}

		ms := statStats{Root: triad.String(), Entries: len(entries), Bytes: total}
		if ctx.Bool("json") {
			return json.NewEncoder(os.Stdout).Encode(ms)
		}
		fmt.Printf("root:    %s\n", ms.Root)
		fmt.Printf("entries: %d\n", ms.Entries)
		fmt.Printf("bytes:   %s\n", units.HumanSize(float64(ms.Bytes)))
		return nil
	},
}

// entryLogicalSize returns the decompressed byte count of the content a
// FILE entry's triad names, counted via internal/iohelpers.CountingReader
// rather than io.Copy's return value so the same wrapper that tallies
// bytes here could also tally an Import scan's read volume.
func entryLogicalSize(ctx context.Context, engine cas.Engine, triad digest.Triad) (int64, error) {
	rc, err := engine.Get(ctx, triad.Digest)
	if err != nil {
		return 0, errors.Wrapf(err, "get entry %s", triad)
	}
	defer rc.Close()
	dr, err := compress.Decompress(triad.Compression, rc)
	if err != nil {
		return 0, err
	}
	defer dr.Close()

	counted := iohelpers.CountReader(dr)
	if _, err := io.Copy(io.Discard, counted); err != nil {
		return 0, errors.Wrap(errs.ErrEngineError, "count entry bytes")
	}
	return counted.BytesRead(), nil
}
