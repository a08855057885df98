// Package operator defines the pure stream-to-stream transform contract
// of spec.md §4.5: an Operator is (params, input_stream) -> output_stream,
// with a cacheability predicate and a per-invocation state machine.
//
// Grounded on mutate/mutate.go's Mutator (cache-then-mutate-then-commit
// wrapper around a cas.Engine) adapted into a stream transform, and on
// cmd/umoci's one-command-per-operation layout, translated here into a
// tagged-variant registry (spec.md §9 "Operator polymorphism") instead of
// CLI subcommands.
package operator

import (
	"context"

	"github.com/dirtabase/dirtabase/archive"
	"github.com/dirtabase/dirtabase/cas"
	"github.com/dirtabase/dirtabase/ref"
)

// State is a single operator invocation's position in the state machine
// of spec.md §4.5: Pending -> Resolving(inputs) -> Executing -> {Emitted,
// Failed}. Both Emitted and Failed are terminal.
type State int

const (
	Pending State = iota
	Resolving
	Executing
	Emitted
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Resolving:
		return "Resolving"
	case Executing:
		return "Executing"
	case Emitted:
		return "Emitted"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Tag names one of the registered operator kinds.
type Tag string

const (
	TagImport    Tag = "import"
	TagExport    Tag = "export"
	TagMerge     Tag = "merge"
	TagPrefix    Tag = "prefix"
	TagFilter    Tag = "filter"
	TagCmdImpure Tag = "cmd-impure"
)

// Env is the shared context threaded through every operator invocation:
// the storage engine operators read/write archives through, and a
// resolver for expanding INCLUDE entries. Per spec.md §9 "avoid any
// global registry of engine singletons", this is passed explicitly by
// the pipeline driver rather than held in package-level state.
type Env struct {
	Engine   cas.Engine
	Resolver archive.Resolver
	// EngineConfig is the canonical scheme/fullpath this Env's Engine is
	// addressed by, used to build canonical output references.
	EngineConfig ref.EngineConfig
	// MaxRetries overrides the label/root CAS retry budget (spec.md §5,
	// the DIRTABASE_RETRIES environment variable of SPEC_FULL.md §2). 0
	// uses label.DefaultMaxRetries.
	MaxRetries int
}

// Operator is the capability interface of spec.md §9 "A capability
// interface (cacheable?, fingerprint, run) keeps new operators additive."
// Fingerprinting is not a method here: the pipeline package computes it
// from Tag, the params and the resolved input triads.
type Operator interface {
	// Tag identifies this operator for the registry and for fingerprinting.
	Tag() Tag

	// Cacheable reports whether this invocation's effect is fully
	// determined by params and the resolved input triads (spec.md §4.5).
	Cacheable(params map[string]string, inputs []ref.Reference) bool

	// Run executes the operator against inputs, returning the emitted
	// reference sequence. Implementations MUST emit references in
	// canonical form (spec.md §4.4 "All inter-stage references...MUST be
	// in canonical form").
	Run(ctx context.Context, env *Env, params map[string]string, inputs []ref.Reference) ([]ref.Reference, error)
}

// Registry maps a Tag to its Operator implementation.
type Registry map[Tag]Operator

// NewRegistry builds a Registry from ops, keyed by each operator's Tag.
func NewRegistry(ops ...Operator) Registry {
	r := make(Registry, len(ops))
	for _, op := range ops {
		r[op.Tag()] = op
	}
	return r
}
