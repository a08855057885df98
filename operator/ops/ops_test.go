package ops

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirtabase/dirtabase/archive"
	"github.com/dirtabase/dirtabase/cas/memory"
	"github.com/dirtabase/dirtabase/operator"
	"github.com/dirtabase/dirtabase/ref"
)

func newTestEnv(t *testing.T) *operator.Env {
	t.Helper()
	e, err := memory.New()
	require.NoError(t, err)
	return &operator.Env{
		Engine:       e,
		Resolver:     e.Resolver(context.Background()),
		EngineConfig: ref.EngineConfig{Scheme: "mem", Fullpath: "test/"},
	}
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return root
}

func resolveEntries(t *testing.T, env *operator.Env, r ref.Reference) []archive.Entry {
	t.Helper()
	a, _, err := resolveArchive(context.Background(), env, r)
	require.NoError(t, err)
	entries, err := archive.Collect(a, env.Resolver)
	require.NoError(t, err)
	return entries
}

func TestImportThenExportRoundTrip(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	src := writeTree(t, map[string]string{
		"a.txt":        "hello",
		"sub/b.txt":    "world",
	})

	importOut, err := Import{}.Run(ctx, env, map[string]string{"paths": EncodeImportPaths([]string{src})}, nil)
	require.NoError(t, err)
	require.Len(t, importOut, 1)

	entries := resolveEntries(t, env, importOut[0])
	var paths []string
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	assert.Contains(t, paths, "a.txt")
	assert.Contains(t, paths, "sub/b.txt")

	dst := t.TempDir()
	exportOut, err := Export{}.Run(ctx, env, map[string]string{"dir": dst}, importOut)
	require.NoError(t, err)
	assert.Empty(t, exportOut)

	b, err := os.ReadFile(filepath.Join(dst, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))

	b2, err := os.ReadFile(filepath.Join(dst, "sub/b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "world", string(b2))
}

func TestImportNotCacheable(t *testing.T) {
	assert.False(t, Import{}.Cacheable(nil, nil))
}

func TestMergeCombinesAllInputs(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	src1 := writeTree(t, map[string]string{"one.txt": "1"})
	src2 := writeTree(t, map[string]string{"two.txt": "2"})

	out1, err := Import{}.Run(ctx, env, map[string]string{"paths": EncodeImportPaths([]string{src1})}, nil)
	require.NoError(t, err)
	out2, err := Import{}.Run(ctx, env, map[string]string{"paths": EncodeImportPaths([]string{src2})}, nil)
	require.NoError(t, err)

	merged, err := Merge{}.Run(ctx, env, nil, append(out1, out2...))
	require.NoError(t, err)
	require.Len(t, merged, 1)

	entries := resolveEntries(t, env, merged[0])
	var paths []string
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	assert.ElementsMatch(t, []string{"one.txt", "two.txt"}, paths)
}

func TestMergeCacheableRequiresResolvableInputs(t *testing.T) {
	assert.True(t, Merge{}.Cacheable(nil, []ref.Reference{{Ref: "@label"}}))
	assert.False(t, Merge{}.Cacheable(nil, []ref.Reference{{Ref: ""}}))
}

func TestPrefixRewritesLeadingPath(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	src := writeTree(t, map[string]string{"bin/tool": "binary"})
	imported, err := Import{}.Run(ctx, env, map[string]string{"paths": EncodeImportPaths([]string{src})}, nil)
	require.NoError(t, err)

	out, err := Prefix{}.Run(ctx, env, map[string]string{"from": "bin", "to": "usr/bin"}, imported)
	require.NoError(t, err)
	require.Len(t, out, 1)

	entries := resolveEntries(t, env, out[0])
	var paths []string
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	assert.Contains(t, paths, "usr/bin/tool")
}

func TestFilterKeepsOnlyMatchingPaths(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	src := writeTree(t, map[string]string{
		"keep.go":  "package x",
		"drop.txt": "not go",
	})
	imported, err := Import{}.Run(ctx, env, map[string]string{"paths": EncodeImportPaths([]string{src})}, nil)
	require.NoError(t, err)

	out, err := Filter{}.Run(ctx, env, map[string]string{"regex": `\.go$`}, imported)
	require.NoError(t, err)
	require.Len(t, out, 1)

	entries := resolveEntries(t, env, out[0])
	require.Len(t, entries, 1)
	assert.Equal(t, "keep.go", entries[0].Path)
}

func TestFilterRejectsInvalidRegex(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	src := writeTree(t, map[string]string{"a.txt": "x"})
	imported, err := Import{}.Run(ctx, env, map[string]string{"paths": EncodeImportPaths([]string{src})}, nil)
	require.NoError(t, err)

	_, err = Filter{}.Run(ctx, env, map[string]string{"regex": "("}, imported)
	assert.Error(t, err)
}

func TestCmdImpureRunsShellAndReimports(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh available")
	}
	ctx := context.Background()
	env := newTestEnv(t)

	src := writeTree(t, map[string]string{"input.txt": "data"})
	imported, err := Import{}.Run(ctx, env, map[string]string{"paths": EncodeImportPaths([]string{src})}, nil)
	require.NoError(t, err)

	out, err := CmdImpure{}.Run(ctx, env, map[string]string{"shell": "echo generated > output.txt"}, imported)
	require.NoError(t, err)
	require.Len(t, out, 1)

	entries := resolveEntries(t, env, out[0])
	var paths []string
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	assert.Contains(t, paths, "output.txt")
	assert.Contains(t, paths, "input.txt")
}

func TestCmdImpureFailureWrapsCommandFailed(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh available")
	}
	ctx := context.Background()
	env := newTestEnv(t)

	src := writeTree(t, map[string]string{"a.txt": "x"})
	imported, err := Import{}.Run(ctx, env, map[string]string{"paths": EncodeImportPaths([]string{src})}, nil)
	require.NoError(t, err)

	_, err = CmdImpure{}.Run(ctx, env, map[string]string{"shell": "exit 3"}, imported)
	assert.Error(t, err)
}
