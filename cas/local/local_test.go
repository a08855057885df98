package local

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirtabase/dirtabase/digest"
	"github.com/dirtabase/dirtabase/errs"
)

func TestCreateSeedsEmptyRoot(t *testing.T) {
	ctx := context.Background()
	e, err := Create(t.TempDir())
	require.NoError(t, err)
	defer e.Close()

	triad, _, err := e.ReadRoot(ctx)
	require.NoError(t, err)
	assert.Equal(t, digest.FormatJSONArchive, triad.Format)

	rc, err := e.Get(ctx, triad.Digest)
	require.NoError(t, err)
	defer rc.Close()
}

func TestCreateTwiceFails(t *testing.T) {
	dir := t.TempDir()
	_, err := Create(dir)
	require.NoError(t, err)

	_, err = Create(dir)
	assert.Error(t, err)
}

func TestOpenMissingLayoutFails(t *testing.T) {
	_, err := Open(t.TempDir())
	assert.Error(t, err)
}

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	e, err := Create(t.TempDir())
	require.NoError(t, err)
	defer e.Close()

	triad, err := e.Put(ctx, digest.FormatFile, digest.CompressionPlain, strings.NewReader("hello"))
	require.NoError(t, err)

	has, err := e.Has(ctx, triad.Digest)
	require.NoError(t, err)
	assert.True(t, has)

	rc, err := e.Get(ctx, triad.Digest)
	require.NoError(t, err)
	defer rc.Close()
}

func TestGetMissingReturnsMissingReferent(t *testing.T) {
	ctx := context.Background()
	e, err := Create(t.TempDir())
	require.NoError(t, err)
	defer e.Close()

	bogus := digest.FromBytes([]byte("never stored"))
	_, err = e.Get(ctx, bogus)
	assert.ErrorIs(t, err, errs.ErrMissingReferent)
}

func TestCASRootSucceedsWithCurrentToken(t *testing.T) {
	ctx := context.Background()
	e, err := Create(t.TempDir())
	require.NoError(t, err)
	defer e.Close()

	_, token, err := e.ReadRoot(ctx)
	require.NoError(t, err)

	newTriad, err := e.Put(ctx, digest.FormatJSONArchive, digest.CompressionPlain, strings.NewReader("[]"))
	require.NoError(t, err)

	require.NoError(t, e.CASRoot(ctx, token, newTriad))

	got, _, err := e.ReadRoot(ctx)
	require.NoError(t, err)
	assert.Equal(t, newTriad, got)
}

func TestCASRootFailsWithStaleToken(t *testing.T) {
	ctx := context.Background()
	e, err := Create(t.TempDir())
	require.NoError(t, err)
	defer e.Close()

	_, staleToken, err := e.ReadRoot(ctx)
	require.NoError(t, err)

	mid, err := e.Put(ctx, digest.FormatJSONArchive, digest.CompressionPlain, strings.NewReader("[  ]"))
	require.NoError(t, err)
	require.NoError(t, e.CASRoot(ctx, staleToken, mid))

	other, err := e.Put(ctx, digest.FormatJSONArchive, digest.CompressionPlain, strings.NewReader("[ ]"))
	require.NoError(t, err)
	err = e.CASRoot(ctx, staleToken, other)
	assert.ErrorIs(t, err, errs.ErrConflict)
}

func TestList(t *testing.T) {
	ctx := context.Background()
	e, err := Create(t.TempDir())
	require.NoError(t, err)
	defer e.Close()

	triad, err := e.Put(ctx, digest.FormatFile, digest.CompressionPlain, strings.NewReader("payload"))
	require.NoError(t, err)

	all, err := e.List(ctx)
	require.NoError(t, err)

	var found bool
	for _, d := range all {
		if d == triad.Digest {
			found = true
		}
	}
	assert.True(t, found, "List should include every Put digest")
}
