// Package iohelpers holds small io.Reader/io.Writer wrappers shared by
// dirtabase's commands and operators, too small individually to justify
// their own package.
package iohelpers

import "io"

// CountingReader wraps an io.Reader and tallies how many bytes have
// passed through Read, used by the stat command to report an entry's
// decompressed size without a separate io.Copy return-value plumb.
//
// Grounded on the teacher's internal/iohelpers/count_reader.go.
type CountingReader struct {
	R io.Reader
	N int64
}

// CountReader wraps r in a *CountingReader starting at zero bytes read.
func CountReader(r io.Reader) *CountingReader {
	return &CountingReader{R: r}
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.R.Read(p)
	c.N += int64(n)
	return n, err
}

// BytesRead returns the number of bytes read so far.
func (c *CountingReader) BytesRead() int64 {
	return c.N
}
