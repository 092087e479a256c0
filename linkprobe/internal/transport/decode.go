package transport

import (
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

type opener func(io.Reader) (io.ReadCloser, error)

var openers = map[string]opener{
	"gzip": func(r io.Reader) (io.ReadCloser, error) { return gzip.NewReader(r) },
	"deflate": func(r io.Reader) (io.ReadCloser, error) {
		return zlib.NewReader(r)
	},
	"br": func(r io.Reader) (io.ReadCloser, error) {
		return io.NopCloser(brotli.NewReader(r)), nil
	},
	"zstd": func(r io.Reader) (io.ReadCloser, error) {
		d, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		return d.IOReadCloser(), nil
	},
}

// decode swaps resp.Body for a decompressing reader when Content-Encoding is
// one we advertise. Unknown encodings are left untouched.
func decode(resp *http.Response) *http.Response {
	enc := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	open, ok := openers[enc]
	if !ok || resp.Body == nil || resp.Body == http.NoBody {
		return resp
	}
	if resp.Request != nil && resp.Request.Method == http.MethodHead {
		return resp
	}
	resp.Body = &lazyBody{raw: resp.Body, open: open}
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return resp
}

// lazyBody builds the decoder on first Read so empty bodies never fail on
// a missing stream header.
type lazyBody struct {
	raw  io.ReadCloser
	open opener
	dec  io.ReadCloser
	err  error
}

func (b *lazyBody) Read(p []byte) (int, error) {
	if b.dec == nil && b.err == nil {
		b.dec, b.err = b.open(b.raw)
	}
	if b.err != nil {
		return 0, b.err
	}
	return b.dec.Read(p)
}

func (b *lazyBody) Close() error {
	if b.dec != nil {
		b.dec.Close()
	}
	return b.raw.Close()
}
