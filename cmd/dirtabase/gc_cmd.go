package main

import (
	"context"
	"fmt"

	"github.com/docker/go-units"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/dirtabase/dirtabase/label"
	"github.com/dirtabase/dirtabase/ref"
)

// gcCommand reports the reachability contract of spec.md §4.3: every
// object is either retained (reachable from the root triad) or
// collectible. No deletion is implemented -- spec.md §1 explicitly scopes
// GC policy out ("its interface is specified, its policy is not") -- so
// this command is always effectively the --dry-run reporting mode of
// SPEC_FULL.md §4, grounded on oci/casext/gc.go's GCPolicy hook (a policy
// that always answers "don't delete" is exactly a dry run).
var gcCommand = cli.Command{
	Name:      "gc",
	Usage:     "report retained vs. collectible CAS objects",
	ArgsUsage: `[PATH] [--dry-run]`,
	Description: `Walks the reachability closure from the engine's root triad and reports
which stored digests are retained versus collectible. Accepted for
interface parity with a future deleting implementation; this command never
deletes anything (spec.md §4.3 specifies the reachability contract only,
not a GC policy).`,

	Flags: []cli.Flag{
		cli.BoolFlag{Name: "dry-run", Usage: "no-op; always true for this command"},
	},

	Action: func(ctx *cli.Context) error {
		cfg, err := engineConfigFromArg(ctx.Args().First())
		if err != nil {
			return err
		}
		engine, err := openEngine(cfg)
		if err != nil {
			return errors.Wrap(err, "open storage engine")
		}
		defer engine.Close()

		background := context.Background()
		proto := &label.Protocol{Engine: engine, Resolver: resolverFor(background, engine)}
		retained, err := proto.Reachable(background)
		if err != nil {
			return errors.Wrap(err, "compute reachability")
		}

		all, err := engine.List(background)
		if err != nil {
			return errors.Wrap(err, "list engine objects")
		}

		var retainedBytes, collectibleBytes int64
		collectible := 0
		for _, d := range all {
			rc, err := engine.Get(background, d)
			if err != nil {
				continue
			}
			n, _ := countBytes(rc)
			rc.Close()
			if _, ok := retained[d]; ok {
				retainedBytes += n
			} else {
				collectible++
				collectibleBytes += n
			}
		}

		fmt.Printf("retained:     %d objects (%s)\n", len(retained), units.HumanSize(float64(retainedBytes)))
		fmt.Printf("collectible:  %d objects (%s)\n", collectible, units.HumanSize(float64(collectibleBytes)))
		return nil
	},
}

func engineConfigFromArg(path string) (ref.EngineConfig, error) {
	if path == "" {
		return ref.DefaultEngineConfig()
	}
	return ref.EngineConfig{Scheme: "file", Fullpath: path}, nil
}
