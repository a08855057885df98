package label

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirtabase/dirtabase/cas/memory"
	"github.com/dirtabase/dirtabase/digest"
	"github.com/dirtabase/dirtabase/errs"
)

func newProtocol(t *testing.T) *Protocol {
	t.Helper()
	e, err := memory.New()
	require.NoError(t, err)
	return &Protocol{Engine: e, Resolver: e.Resolver(context.Background())}
}

func TestSetAndGetLabel(t *testing.T) {
	ctx := context.Background()
	p := newProtocol(t)

	triad, err := p.Engine.Put(ctx, digest.FormatFile, digest.CompressionPlain, strings.NewReader("payload"))
	require.NoError(t, err)

	require.NoError(t, p.SetLabel(ctx, "@release", triad))

	got, err := p.GetLabel(ctx, "@release")
	require.NoError(t, err)
	assert.Equal(t, triad, got)
}

func TestGetLabelMissing(t *testing.T) {
	ctx := context.Background()
	p := newProtocol(t)

	_, err := p.GetLabel(ctx, "@nope")
	assert.ErrorIs(t, err, errs.ErrNoSuchLabel)
}

func TestSetLabelOverwritesPrevious(t *testing.T) {
	ctx := context.Background()
	p := newProtocol(t)

	first, err := p.Engine.Put(ctx, digest.FormatFile, digest.CompressionPlain, strings.NewReader("a"))
	require.NoError(t, err)
	second, err := p.Engine.Put(ctx, digest.FormatFile, digest.CompressionPlain, strings.NewReader("b"))
	require.NoError(t, err)

	require.NoError(t, p.SetLabel(ctx, "@release", first))
	require.NoError(t, p.SetLabel(ctx, "@release", second))

	got, err := p.GetLabel(ctx, "@release")
	require.NoError(t, err)
	assert.Equal(t, second, got)

	all, err := p.ListLabels(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestDelLabelIsIdempotent(t *testing.T) {
	ctx := context.Background()
	p := newProtocol(t)

	require.NoError(t, p.DelLabel(ctx, "@never-bound"))

	triad, err := p.Engine.Put(ctx, digest.FormatFile, digest.CompressionPlain, strings.NewReader("x"))
	require.NoError(t, err)
	require.NoError(t, p.SetLabel(ctx, "@release", triad))
	require.NoError(t, p.DelLabel(ctx, "@release"))
	require.NoError(t, p.DelLabel(ctx, "@release"))

	_, err = p.GetLabel(ctx, "@release")
	assert.ErrorIs(t, err, errs.ErrNoSuchLabel)
}

func TestListLabelsSortedByName(t *testing.T) {
	ctx := context.Background()
	p := newProtocol(t)

	triad, err := p.Engine.Put(ctx, digest.FormatFile, digest.CompressionPlain, strings.NewReader("x"))
	require.NoError(t, err)

	require.NoError(t, p.SetLabel(ctx, "@zeta", triad))
	require.NoError(t, p.SetLabel(ctx, "@alpha", triad))

	all, err := p.ListLabels(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "@alpha", all[0].Name)
	assert.Equal(t, "@zeta", all[1].Name)
}

func TestRejectsInvalidLabelName(t *testing.T) {
	ctx := context.Background()
	p := newProtocol(t)
	triad, err := p.Engine.Put(ctx, digest.FormatFile, digest.CompressionPlain, strings.NewReader("x"))
	require.NoError(t, err)

	err = p.SetLabel(ctx, "no-at-sign", triad)
	assert.Error(t, err)
}

func TestReachableMarksArchiveAndIncludedFiles(t *testing.T) {
	ctx := context.Background()
	p := newProtocol(t)

	fileTriad, err := p.Engine.Put(ctx, digest.FormatFile, digest.CompressionPlain, strings.NewReader("contents"))
	require.NoError(t, err)

	require.NoError(t, p.SetLabel(ctx, "@release", fileTriad))

	reachable, err := p.Reachable(ctx)
	require.NoError(t, err)

	rootTriad, _, err := p.Engine.ReadRoot(ctx)
	require.NoError(t, err)
	assert.Contains(t, reachable, rootTriad.Digest)
	assert.Contains(t, reachable, fileTriad.Digest)
}
