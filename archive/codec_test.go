package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirtabase/dirtabase/digest"
)

func sampleArchive() *Archive {
	return &Archive{Entries: []Entry{
		{Path: "a.txt", Kind: FILE, Triad: digest.FileTriad(digest.CompressionPlain, digest.FromBytes([]byte("a"))), Attrs: Attrs{"mode": "0644", "type": "file"}},
		{Path: "b", Kind: FILE, Attrs: Attrs{"type": "dir", "mode": "0755"}},
		{Path: "vendor", Kind: INCLUDE, Triad: digest.Triad{Format: digest.FormatJSONArchive, Compression: digest.CompressionPlain, Digest: digest.FromBytes([]byte("sub"))}},
	}}
}

func TestCodecForUnknownFormat(t *testing.T) {
	_, err := CodecFor("bogus")
	assert.Error(t, err)
}

func TestJSONCodecRoundTrip(t *testing.T) {
	a := sampleArchive()
	b, err := Encode(digest.FormatJSONArchive, a)
	require.NoError(t, err)

	got, err := Decode(digest.FormatJSONArchive, b)
	require.NoError(t, err)
	assert.Equal(t, a.Entries, got.Entries)
}

func TestJSONCodecDeterministic(t *testing.T) {
	a := sampleArchive()
	b1, err := Encode(digest.FormatJSONArchive, a)
	require.NoError(t, err)
	b2, err := Encode(digest.FormatJSONArchive, a)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)
}

func TestJSONCodecDecodeMalformed(t *testing.T) {
	_, err := Decode(digest.FormatJSONArchive, []byte("not json"))
	assert.Error(t, err)
}

func TestProtobufCodecRoundTrip(t *testing.T) {
	a := sampleArchive()
	b, err := Encode(digest.FormatProtobufArchive, a)
	require.NoError(t, err)

	got, err := Decode(digest.FormatProtobufArchive, b)
	require.NoError(t, err)
	require.Len(t, got.Entries, len(a.Entries))
	for i := range a.Entries {
		assert.Equal(t, a.Entries[i].Path, got.Entries[i].Path)
		assert.Equal(t, a.Entries[i].Kind, got.Entries[i].Kind)
		assert.Equal(t, a.Entries[i].Triad, got.Entries[i].Triad)
		assert.Equal(t, map[string]string(a.Entries[i].Attrs), map[string]string(got.Entries[i].Attrs))
	}
}

func TestProtobufCodecDeterministic(t *testing.T) {
	a := sampleArchive()
	b1, err := Encode(digest.FormatProtobufArchive, a)
	require.NoError(t, err)
	b2, err := Encode(digest.FormatProtobufArchive, a)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)
}

func TestProtobufCodecDecodeMalformed(t *testing.T) {
	_, err := Decode(digest.FormatProtobufArchive, []byte{0xff, 0xff, 0xff})
	assert.Error(t, err)
}
