// Command dirtabase is the CLI surface of spec.md §6: a stream-oriented
// composition of archive operators, plus the init/gc/stat supplements of
// SPEC_FULL.md §4.
//
// Grounded on cmd/umoci/main.go's cli.NewApp scaffolding (global --debug
// flag wired to the logger, app.Commands list) and cmd/umoci's
// one-file-per-command layout. Unlike the teacher, the operator flag
// groups of spec.md §6 are not urfave/cli subcommands: their arity and
// left-to-right ordering (including interleaving of --label) form a
// single pipeline per invocation, so they are scanned directly out of
// os.Args (see parsePipeline in pipeline_cmd.go) rather than declared as
// cli.Flag entries. init/gc/stat, which take a fixed argument shape, stay
// as ordinary urfave/cli commands.
package main

import (
	"context"
	"os"

	"github.com/apex/log"
	logcli "github.com/apex/log/handlers/cli"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/dirtabase/dirtabase/errs"
)

func main() {
	log.SetHandler(logcli.New(os.Stderr))

	args := os.Args
	debug, args := extractDebugFlag(args)
	if debug {
		log.SetLevel(log.DebugLevel)
	}

	if len(args) > 1 {
		switch args[1] {
		case "init", "gc", "stat", "help", "--help", "-h", "--version":
			runCLIApp(args)
			return
		}
	}

	ctx := context.Background()
	if err := runPipeline(ctx, args[1:]); err != nil {
		log.Errorf("%v", err)
		os.Exit(exitCodeFor(err))
	}
}

// extractDebugFlag removes a "--debug" token from args, wherever it
// appears, and reports whether it was present. Matches cmd/umoci/main.go's
// app.Before hook, but since the pipeline path never goes through
// urfave/cli's own flag parser, --debug has to be pulled out by hand.
func extractDebugFlag(args []string) (bool, []string) {
	out := make([]string, 0, len(args))
	found := false
	for _, a := range args {
		if a == "--debug" {
			found = true
			continue
		}
		out = append(out, a)
	}
	return found, out
}

func runCLIApp(args []string) {
	app := cli.NewApp()
	app.Name = "dirtabase"
	app.Usage = "compose content-addressed archive transforms"
	app.Commands = []cli.Command{
		initCommand,
		gcCommand,
		statCommand,
	}
	if err := app.Run(args); err != nil {
		log.Errorf("%v", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps an error to the exit codes of spec.md §6.
func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrCommandFailed):
		return 1
	case errors.Is(err, errs.ErrInvalidReference):
		return 2
	case errors.Is(err, errs.ErrRootContention):
		return 3
	case errors.Is(err, errs.ErrMissingReferent):
		return 4
	default:
		return 1
	}
}
