// Package pipeline implements the driver and build cache of spec.md §4.6:
// a linear evaluation of operators over an in-flight reference sequence,
// consulting a content-addressed cache keyed by fingerprint so cacheable
// stages can be skipped on repeat runs.
//
// Grounded on cmd/umoci/copy.go's sequencing of discrete named steps, and
// oci/casext/gc.go's "compute the relevant state once per pass" pattern,
// adapted here into a per-stage fingerprint lookup instead of a mark/sweep
// reachability set.
package pipeline

import (
	"context"

	"github.com/apex/log"
	"github.com/pkg/errors"

	"github.com/dirtabase/dirtabase/digest"
	"github.com/dirtabase/dirtabase/errs"
	"github.com/dirtabase/dirtabase/label"
	"github.com/dirtabase/dirtabase/operator"
	"github.com/dirtabase/dirtabase/operator/ops"
	"github.com/dirtabase/dirtabase/ref"
)

// Stage is one named step of a pipeline: an operator tag plus its params.
type Stage struct {
	Tag    operator.Tag
	Params map[string]string

	// LabelAfter, if non-empty, binds this stage's sole output reference
	// to the named label once the stage completes (the CLI's "--label
	// NAME" flag of spec.md §6, which is not one of the six registered
	// operators of §4.5 and so is applied by the driver directly rather
	// than through the operator registry). The stage must emit exactly
	// one output reference.
	LabelAfter string
}

// Driver evaluates a sequence of Stages left to right over an initial
// reference sequence, threading the in-flight stream from one stage's
// output to the next stage's input (spec.md §4.6 "The driver evaluates
// operators left-to-right").
type Driver struct {
	Env      *operator.Env
	Registry operator.Registry

	// DisableCache mirrors the DIRTABASE_CACHE environment switch
	// (SPEC_FULL.md §2): when true, every stage executes unconditionally
	// and no fingerprint is recorded.
	DisableCache bool

	cache *cache
}

// NewDriver builds a Driver against env and registry, wiring the build
// cache to env's engine and resolver.
func NewDriver(env *operator.Env, registry operator.Registry) *Driver {
	return &Driver{
		Env:      env,
		Registry: registry,
		cache:    newCache(env.Engine, env.Resolver, env.MaxRetries),
	}
}

// Run evaluates stages over initial, returning the final stage's output
// reference sequence (spec.md §4.6 driver contract). The driver halts on
// the first stage error; references already emitted by completed stages,
// and any CAS writes or side effects those stages performed, are retained
// (spec.md §7 "the system does not roll back successful stages").
func (d *Driver) Run(ctx context.Context, stages []Stage) ([]ref.Reference, error) {
	cur := []ref.Reference{}
	for i, stage := range stages {
		op, ok := d.Registry[stage.Tag]
		if !ok {
			return nil, errors.Wrapf(errs.ErrInvalidReference, "stage %d: unknown operator %q", i, stage.Tag)
		}

		out, err := d.runStage(ctx, i, op, stage, cur)
		if err != nil {
			return nil, errors.Wrapf(err, "stage %d (%s)", i, stage.Tag)
		}
		cur = out

		if stage.LabelAfter != "" {
			if err := d.bindLabel(ctx, stage.LabelAfter, cur); err != nil {
				return nil, errors.Wrapf(err, "stage %d (%s): bind label %q", i, stage.Tag, stage.LabelAfter)
			}
		}
	}
	return cur, nil
}

// bindLabel implements the CLI's "--label NAME" flag (spec.md §6): it
// binds name to the sole reference in cur. It is an error to apply a
// label when the in-flight stream does not hold exactly one reference.
func (d *Driver) bindLabel(ctx context.Context, name string, cur []ref.Reference) error {
	if len(cur) != 1 {
		return errors.Wrapf(errs.ErrInvalidReference, "label %q: expected exactly one in-flight reference, got %d", name, len(cur))
	}
	triad, err := ops.ResolveTriad(ctx, d.Env, cur[0])
	if err != nil {
		return errors.Wrap(err, "resolve reference to label")
	}
	proto := &label.Protocol{Engine: d.Env.Engine, Resolver: d.Env.Resolver, MaxRetries: d.Env.MaxRetries}
	return proto.SetLabel(ctx, name, triad)
}

func (d *Driver) runStage(ctx context.Context, idx int, op operator.Operator, stage Stage, inputs []ref.Reference) ([]ref.Reference, error) {
	cacheable := !d.DisableCache && op.Cacheable(stage.Params, inputs)

	var fp string
	var inputTriads []digest.Triad
	if cacheable {
		inputTriads, cacheable = d.tryResolveAll(ctx, inputs)
	}

	if cacheable {
		fp = fingerprint(stage.Tag, stage.Params, inputTriads)
		if outputs, hit, err := d.cache.lookup(ctx, fp); err != nil {
			return nil, errors.Wrap(err, "build cache lookup")
		} else if hit {
			log.WithFields(log.Fields{"stage": idx, "operator": stage.Tag, "fingerprint": fp}).
				Debugf("Is in cache? true")
			return outputs, nil
		}
		log.WithFields(log.Fields{"stage": idx, "operator": stage.Tag, "fingerprint": fp}).
			Debugf("Is in cache? false")
	}

	outputs, err := op.Run(ctx, d.Env, stage.Params, inputs)
	if err != nil {
		return nil, err
	}

	if cacheable {
		if err := d.cache.record(ctx, fp, outputs); err != nil {
			return nil, errors.Wrap(err, "record build cache entry")
		}
	}
	return outputs, nil
}

// tryResolveAll resolves every input reference to a triad, used to decide
// whether a cacheable operator's invocation actually has "all inputs with
// a known triad" (spec.md §4.6 driver contract step 1). A label still
// unbound, or ref text that does not parse as a triad, makes the stage
// uncacheable for this run rather than an error: the operator itself will
// surface the real failure. A literal triad is not checked for presence
// in CAS here.
func (d *Driver) tryResolveAll(ctx context.Context, inputs []ref.Reference) ([]digest.Triad, bool) {
	triads := make([]digest.Triad, len(inputs))
	for i, in := range inputs {
		t, err := ops.ResolveTriad(ctx, d.Env, in)
		if err != nil {
			return nil, false
		}
		triads[i] = t
	}
	return triads, true
}
