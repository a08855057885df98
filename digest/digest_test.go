package digest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromBytesDeterministic(t *testing.T) {
	a := FromBytes([]byte("hello world"))
	b := FromBytes([]byte("hello world"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, FromBytes([]byte("hello world!")))
}

func TestFromReaderMatchesFromBytes(t *testing.T) {
	want := FromBytes([]byte("stream me"))
	got, err := FromReader(strings.NewReader("stream me"))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestTriadStringRoundTrip(t *testing.T) {
	d := FromBytes([]byte("archive bytes"))
	tr := Triad{Format: FormatJSONArchive, Compression: CompressionGzip, Digest: d}

	s := tr.String()
	assert.Equal(t, string(FormatJSONArchive)+"-"+string(CompressionGzip)+"-"+d.Encoded(), s)

	parsed, err := ParseTriad(s)
	require.NoError(t, err)
	assert.Equal(t, tr, parsed)
}

func TestParseTriadMalformed(t *testing.T) {
	_, err := ParseTriad("not-a-triad")
	assert.Error(t, err)

	_, err = ParseTriad("file-plain-not-hex")
	assert.Error(t, err)
}

func TestFileTriad(t *testing.T) {
	d := FromBytes([]byte("contents"))
	tr := FileTriad(CompressionZstd, d)
	assert.Equal(t, FormatFile, tr.Format)
	assert.Equal(t, CompressionZstd, tr.Compression)
	assert.Equal(t, d, tr.Digest)
}

func TestTriadStringEmptyDigest(t *testing.T) {
	tr := Triad{Format: FormatFile, Compression: CompressionPlain}
	assert.Equal(t, "file-plain-", tr.String())
}
