package verify

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirtabase/dirtabase/digest"
	"github.com/dirtabase/dirtabase/errs"
)

func TestWrapPassesThroughMatchingDigest(t *testing.T) {
	body := "hello world"
	d := digest.FromBytes([]byte(body))

	r := Wrap(io.NopCloser(strings.NewReader(body)), d)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, body, string(got))
	assert.NoError(t, r.Close())
}

func TestWrapDetectsMismatchOnRead(t *testing.T) {
	body := "hello world"
	wrong := digest.FromBytes([]byte("something else"))

	r := Wrap(io.NopCloser(strings.NewReader(body)), wrong)
	_, err := io.ReadAll(r)
	assert.ErrorIs(t, err, errs.ErrDigestMismatch)
}

func TestWrapIsNoopOnDoubleWrap(t *testing.T) {
	body := "hello world"
	d := digest.FromBytes([]byte(body))

	inner := Wrap(io.NopCloser(strings.NewReader(body)), d)
	outer := Wrap(inner, d)
	assert.Same(t, inner, outer)
}
