package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirtabase/dirtabase/cas/memory"
	"github.com/dirtabase/dirtabase/operator"
	"github.com/dirtabase/dirtabase/operator/ops"
	"github.com/dirtabase/dirtabase/ref"
)

func newTestDriver(t *testing.T) *Driver {
	t.Helper()
	e, err := memory.New()
	require.NoError(t, err)
	env := &operator.Env{
		Engine:       e,
		Resolver:     e.Resolver(context.Background()),
		EngineConfig: ref.EngineConfig{Scheme: "mem", Fullpath: "test/"},
	}
	registry := operator.NewRegistry(
		ops.Import{}, ops.Export{}, ops.Merge{}, ops.Prefix{}, ops.Filter{}, ops.CmdImpure{},
	)
	return NewDriver(env, registry)
}

func writeTestTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return root
}

func TestDriverRunsStagesLeftToRight(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver(t)
	src := writeTestTree(t, map[string]string{"a.txt": "1"})

	stages := []Stage{
		{Tag: operator.TagImport, Params: map[string]string{"paths": ops.EncodeImportPaths([]string{src})}},
		{Tag: operator.TagPrefix, Params: map[string]string{"from": "a.txt", "to": "renamed.txt"}},
	}
	out, err := d.Run(ctx, stages)
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestDriverUnknownOperatorFails(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver(t)
	_, err := d.Run(ctx, []Stage{{Tag: "not-a-real-operator"}})
	assert.Error(t, err)
}

func TestDriverLabelAfterBindsOutput(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver(t)
	src := writeTestTree(t, map[string]string{"a.txt": "1"})

	stages := []Stage{
		{
			Tag:        operator.TagImport,
			Params:     map[string]string{"paths": ops.EncodeImportPaths([]string{src})},
			LabelAfter: "@release",
		},
	}
	out, err := d.Run(ctx, stages)
	require.NoError(t, err)
	require.Len(t, out, 1)

	labelRef, err := ref.Canonicalize("mem://test/#@release", func() (ref.EngineConfig, error) {
		return d.Env.EngineConfig, nil
	})
	require.NoError(t, err)

	triad, err := ops.ResolveTriad(ctx, d.Env, labelRef)
	require.NoError(t, err)
	wantTriad, err := ops.ResolveTriad(ctx, d.Env, out[0])
	require.NoError(t, err)
	assert.Equal(t, wantTriad, triad)
}

func TestDriverLabelAfterRequiresSingleOutput(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver(t)
	srcA := writeTestTree(t, map[string]string{"a.txt": "1"})
	srcB := writeTestTree(t, map[string]string{"b.txt": "2"})

	stages := []Stage{
		{
			Tag:        operator.TagImport,
			Params:     map[string]string{"paths": ops.EncodeImportPaths([]string{srcA, srcB})},
			LabelAfter: "@release",
		},
	}
	_, err := d.Run(ctx, stages)
	assert.Error(t, err)
}

func TestDriverCacheableStageReturnsConsistentOutputOnRepeat(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver(t)
	src := writeTestTree(t, map[string]string{"a.txt": "1"})

	importOut, err := d.Run(ctx, []Stage{
		{Tag: operator.TagImport, Params: map[string]string{"paths": ops.EncodeImportPaths([]string{src})}},
	})
	require.NoError(t, err)

	prefixStage := []Stage{{Tag: operator.TagPrefix, Params: map[string]string{"from": "a.txt", "to": "b.txt"}}}

	first, err := d.runStage(ctx, 0, d.Registry[operator.TagPrefix], prefixStage[0], importOut)
	require.NoError(t, err)
	second, err := d.runStage(ctx, 0, d.Registry[operator.TagPrefix], prefixStage[0], importOut)
	require.NoError(t, err)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].String(), second[0].String())
}

func TestDriverDisableCacheStillProducesOutput(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver(t)
	d.DisableCache = true
	src := writeTestTree(t, map[string]string{"a.txt": "1"})

	out, err := d.Run(ctx, []Stage{
		{Tag: operator.TagImport, Params: map[string]string{"paths": ops.EncodeImportPaths([]string{src})}},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
}
