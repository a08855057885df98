package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dirtabase/dirtabase/digest"
	"github.com/dirtabase/dirtabase/operator"
)

func TestCanonicalParamEncodingOrderIndependent(t *testing.T) {
	a := map[string]string{"from": "x", "to": "y"}
	b := map[string]string{"to": "y", "from": "x"}
	assert.Equal(t, canonicalParamEncoding(a), canonicalParamEncoding(b))
}

func TestFingerprintDeterministic(t *testing.T) {
	triads := []digest.Triad{digest.FileTriad(digest.CompressionPlain, digest.FromBytes([]byte("x")))}
	params := map[string]string{"regex": `\.go$`}

	a := fingerprint(operator.TagFilter, params, triads)
	b := fingerprint(operator.TagFilter, params, triads)
	assert.Equal(t, a, b)
}

func TestFingerprintDiffersByTagParamsOrInputs(t *testing.T) {
	triads := []digest.Triad{digest.FileTriad(digest.CompressionPlain, digest.FromBytes([]byte("x")))}
	base := fingerprint(operator.TagFilter, map[string]string{"regex": "a"}, triads)

	diffParams := fingerprint(operator.TagFilter, map[string]string{"regex": "b"}, triads)
	assert.NotEqual(t, base, diffParams)

	diffTag := fingerprint(operator.TagPrefix, map[string]string{"regex": "a"}, triads)
	assert.NotEqual(t, base, diffTag)

	diffInputs := fingerprint(operator.TagFilter, map[string]string{"regex": "a"}, nil)
	assert.NotEqual(t, base, diffInputs)
}
