package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirtabase/dirtabase/digest"
	"github.com/dirtabase/dirtabase/errs"
)

func TestNewSeedsEmptyRoot(t *testing.T) {
	ctx := context.Background()
	e, err := New()
	require.NoError(t, err)

	triad, token, err := e.ReadRoot(ctx)
	require.NoError(t, err)
	assert.Equal(t, digest.FormatJSONArchive, triad.Format)
	assert.Equal(t, uint64(0), token)
}

func TestPutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e, err := New()
	require.NoError(t, err)

	a, err := e.Put(ctx, digest.FormatFile, digest.CompressionPlain, strings.NewReader("same"))
	require.NoError(t, err)
	b, err := e.Put(ctx, digest.FormatFile, digest.CompressionPlain, strings.NewReader("same"))
	require.NoError(t, err)
	assert.Equal(t, a.Digest, b.Digest)
}

func TestGetMissingReturnsMissingReferent(t *testing.T) {
	ctx := context.Background()
	e, err := New()
	require.NoError(t, err)

	_, err = e.Get(ctx, digest.FromBytes([]byte("never stored")))
	assert.ErrorIs(t, err, errs.ErrMissingReferent)
}

func TestCASRootVersionCounter(t *testing.T) {
	ctx := context.Background()
	e, err := New()
	require.NoError(t, err)

	_, token, err := e.ReadRoot(ctx)
	require.NoError(t, err)

	next, err := e.Put(ctx, digest.FormatJSONArchive, digest.CompressionPlain, strings.NewReader("[]"))
	require.NoError(t, err)
	require.NoError(t, e.CASRoot(ctx, token, next))

	_, newToken, err := e.ReadRoot(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), newToken)

	// The stale token must now be rejected.
	err = e.CASRoot(ctx, token, next)
	assert.ErrorIs(t, err, errs.ErrConflict)
}

func TestListIncludesAllPuts(t *testing.T) {
	ctx := context.Background()
	e, err := New()
	require.NoError(t, err)

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
	assert.True(t, found)
}

func TestHas(t *testing.T) {
	ctx := context.Background()
	e, err := New()
	require.NoError(t, err)

	triad, err := e.Put(ctx, digest.FormatFile, digest.CompressionPlain, strings.NewReader("x"))
	require.NoError(t, err)

	has, err := e.Has(ctx, triad.Digest)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = e.Has(ctx, digest.FromBytes([]byte("absent")))
	require.NoError(t, err)
	assert.False(t, has)
}
