package stacat

import (
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// compression is a Compressor described by its name, suffix and stream
// constructors.
type compression struct {
	name   string
	ext    string
	writer func(io.Writer) (io.WriteCloser, error)
	reader func(io.Reader) (io.ReadCloser, error)
}

func (c *compression) Name() string      { return c.name }
func (c *compression) Extension() string { return c.ext }

func (c *compression) Compress(w io.Writer) (io.WriteCloser, error) { return c.writer(w) }

func (c *compression) Decompress(r io.Reader) (io.ReadCloser, error) { return c.reader(r) }

var (
	gzipCompression = &compression{
		name: "gzip",
		ext:  ".gz",
		writer: func(w io.Writer) (io.WriteCloser, error) {
			return gzip.NewWriter(w), nil
		},
		reader: func(r io.Reader) (io.ReadCloser, error) {
			return gzip.NewReader(r)
		},
	}

	zstdCompression = &compression{
		name: "zstd",
		ext:  ".zst",
		writer: func(w io.Writer) (io.WriteCloser, error) {
			return zstd.NewWriter(w)
		},
		reader: func(r io.Reader) (io.ReadCloser, error) {
			d, err := zstd.NewReader(r)
			if err != nil {
				return nil, err
			}
			return d.IOReadCloser(), nil
		},
	}

	noCompression = &compression{
		name: "noop",
		writer: func(w io.Writer) (io.WriteCloser, error) {
			return nopWriteCloser{w}, nil
		},
		reader: func(r io.Reader) (io.ReadCloser, error) {
			return io.NopCloser(r), nil
		},
	}
)

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// CompressorFor returns the compressor named by the suffix of href
// (".gz" or ".zst", case-insensitive), or a pass-through compressor.
// STAC documents and text assets are often published compressed.
func CompressorFor(href string) Compressor {
	lower := strings.ToLower(href)
	for _, c := range []*compression{gzipCompression, zstdCompression} {
		if strings.HasSuffix(lower, c.ext) {
			return c
		}
	}
	return noCompression
}

// CompressorByName returns the compressor with the given name: "gzip",
// "zstd", or "noop" (also "" and "none").
func CompressorByName(name string) (Compressor, bool) {
	switch name {
	case gzipCompression.name:
		return gzipCompression, true
	case zstdCompression.name:
		return zstdCompression, true
	case "", "none", noCompression.name:
		return noCompression, true
	}
	return nil, false
}
