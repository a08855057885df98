package main

import (
	"context"
	"os"
	"strconv"

	"github.com/pkg/errors"

	"github.com/dirtabase/dirtabase/errs"
	"github.com/dirtabase/dirtabase/operator"
	"github.com/dirtabase/dirtabase/operator/ops"
	"github.com/dirtabase/dirtabase/pipeline"
	"github.com/dirtabase/dirtabase/ref"
)

// runPipeline parses args as the operator flag groups of spec.md §6,
// wires the default storage engine (spec.md §4.4 rule 4), and drives
// them through pipeline.Driver.
func runPipeline(ctx context.Context, args []string) error {
	stages, err := parsePipeline(args)
	if err != nil {
		return errors.Wrap(err, "parse pipeline")
	}

	cfg, err := ref.DefaultEngineConfig()
	if err != nil {
		return errors.Wrap(err, "resolve default engine")
	}
	engine, err := openEngine(cfg)
	if err != nil {
		return errors.Wrap(err, "open storage engine")
	}
	defer engine.Close()

	env := &operator.Env{
		Engine:       engine,
		Resolver:     resolverFor(ctx, engine),
		EngineConfig: cfg,
		MaxRetries:   retriesFromEnv(),
	}
	registry := operator.NewRegistry(
		ops.Import{}, ops.Export{}, ops.Merge{}, ops.Prefix{}, ops.Filter{}, ops.CmdImpure{},
	)
	driver := pipeline.NewDriver(env, registry)
	driver.DisableCache = cacheDisabledFromEnv()

	_, err = driver.Run(ctx, stages)
	return err
}

// retriesFromEnv reads DIRTABASE_RETRIES (SPEC_FULL.md §2), 0 meaning
// "use label.DefaultMaxRetries".
func retriesFromEnv() int {
	v := os.Getenv("DIRTABASE_RETRIES")
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

// cacheDisabledFromEnv reads the boolean-ish DIRTABASE_CACHE switch
// (spec.md §6): any of "0", "false", "no" (case sensitive as written)
// disables the build cache; unset or anything else leaves it enabled.
func cacheDisabledFromEnv() bool {
	switch os.Getenv("DIRTABASE_CACHE") {
	case "0", "false", "no":
		return true
	default:
		return false
	}
}

// parsePipeline scans args for the operator flag groups of spec.md §6 in
// invocation order, producing one pipeline.Stage per operator occurrence.
// "--label NAME" does not introduce its own stage (it is not one of the
// six registered operators of spec.md §4.5); it sets pipeline.Stage's
// LabelAfter on the stage immediately preceding it.
//
// This scanner exists because urfave/cli's flag parser has no notion of
// "N repeatable, interleaved, variadic flag groups whose relative order
// matters" -- exactly the grammar spec.md §1 calls out as an external
// concern ("the argument parser that assembles a pipeline from flags").
func parsePipeline(args []string) ([]pipeline.Stage, error) {
	var stages []pipeline.Stage

	i := 0
	for i < len(args) {
		tok := args[i]
		switch tok {
		case "--import":
			i++
			var paths []string
			for i < len(args) && !isFlag(args[i]) {
				paths = append(paths, args[i])
				i++
			}
			if len(paths) == 0 {
				return nil, errors.Wrapf(errs.ErrInvalidReference, "--import requires at least one path")
			}
			stages = append(stages, pipeline.Stage{
				Tag:    operator.TagImport,
				Params: map[string]string{"paths": ops.EncodeImportPaths(paths)},
			})

		case "--export":
			dir, next, err := takeN(args, i+1, 1, "--export")
			if err != nil {
				return nil, err
			}
			i = next
			stages = append(stages, pipeline.Stage{Tag: operator.TagExport, Params: map[string]string{"dir": dir[0]}})

		case "--merge":
			i++
			stages = append(stages, pipeline.Stage{Tag: operator.TagMerge, Params: map[string]string{}})

		case "--prefix":
			vals, next, err := takeN(args, i+1, 2, "--prefix")
			if err != nil {
				return nil, err
			}
			i = next
			stages = append(stages, pipeline.Stage{Tag: operator.TagPrefix, Params: map[string]string{"from": vals[0], "to": vals[1]}})

		case "--filter":
			vals, next, err := takeN(args, i+1, 1, "--filter")
			if err != nil {
				return nil, err
			}
			i = next
			stages = append(stages, pipeline.Stage{Tag: operator.TagFilter, Params: map[string]string{"regex": vals[0]}})

		case "--cmd-impure":
			vals, next, err := takeN(args, i+1, 1, "--cmd-impure")
			if err != nil {
				return nil, err
			}
			i = next
			stages = append(stages, pipeline.Stage{Tag: operator.TagCmdImpure, Params: map[string]string{"shell": vals[0]}})

		case "--label":
			vals, next, err := takeN(args, i+1, 1, "--label")
			if err != nil {
				return nil, err
			}
			i = next
			if len(stages) == 0 {
				return nil, errors.Wrapf(errs.ErrInvalidReference, "--label %q: no preceding stage to label", vals[0])
			}
			stages[len(stages)-1].LabelAfter = vals[0]

		default:
			return nil, errors.Wrapf(errs.ErrInvalidReference, "unrecognized argument %q", tok)
		}
	}

	return stages, nil
}

func isFlag(s string) bool {
	return len(s) >= 2 && s[0] == '-' && s[1] == '-'
}

// takeN consumes exactly n non-flag arguments starting at idx, for flag's
// error message.
func takeN(args []string, idx, n int, flag string) ([]string, int, error) {
	if idx+n > len(args) {
		return nil, 0, errors.Wrapf(errs.ErrInvalidReference, "%s requires %d argument(s)", flag, n)
	}
	out := make([]string, n)
	for j := 0; j < n; j++ {
		if isFlag(args[idx+j]) {
			return nil, 0, errors.Wrapf(errs.ErrInvalidReference, "%s requires %d argument(s)", flag, n)
		}
		out[j] = args[idx+j]
	}
	return out, idx + n, nil
}
