package pipeline

import (
	"sort"
	"strings"

	"github.com/dirtabase/dirtabase/digest"
	"github.com/dirtabase/dirtabase/operator"
)

// pairSep/kvSep join a stage's params into the canonical_param_encoding
// of spec.md §4.6's fingerprint formula: key/value pairs sorted by key,
// kvSep between a key and its value and pairSep between pairs, so two
// maps with the same content always encode identically regardless of
// range order.
const (
	pairSep = "\x1f"
	kvSep   = "\x1e"
)

func canonicalParamEncoding(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + kvSep + params[k]
	}
	return strings.Join(parts, pairSep)
}

// fingerprint computes fp = hash(operator_name || canonical_param_encoding
// || concat(input_triads)) per spec.md §4.6. inputTriads must already be
// resolved; callers only call this once every input has a known triad.
func fingerprint(tag operator.Tag, params map[string]string, inputTriads []digest.Triad) string {
	var b strings.Builder
	b.WriteString(string(tag))
	b.WriteString(pairSep)
	b.WriteString(canonicalParamEncoding(params))
	for _, t := range inputTriads {
		b.WriteString(pairSep)
		b.WriteString(t.String())
	}
	return digest.FromBytes([]byte(b.String())).Encoded()
}
