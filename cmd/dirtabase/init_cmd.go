package main

import (
	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/dirtabase/dirtabase/cas/local"
	"github.com/dirtabase/dirtabase/ref"
)

// initCommand scaffolds a new local CAS engine layout, grounded on
// cmd/umoci/init.go's initLayout.
var initCommand = cli.Command{
	Name:      "init",
	Usage:     "create a new dirtabase storage engine",
	ArgsUsage: `[PATH]`,
	Description: `Creates a new local storage engine layout at PATH (cas/, tmp/, root),
seeded with an empty label archive (spec.md §4.2, §9). PATH defaults to
the process default engine (DIRTABASE_DEFAULT, or ${HOME}/.dirtabase_db/).`,

	Action: func(ctx *cli.Context) error {
		path := ctx.Args().First()
		if path == "" {
			cfg, err := ref.DefaultEngineConfig()
			if err != nil {
				return errors.Wrap(err, "resolve default engine")
			}
			path = cfg.Fullpath
		}

		e, err := local.Create(path)
		if err != nil {
			return errors.Wrap(err, "create layout")
		}
		defer e.Close()

		log.Infof("initialized dirtabase storage engine: %s", path)
		return nil
	},
}
