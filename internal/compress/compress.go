// Package compress applies the compression a client requested through a
// URL suffix to a formatted payload.
package compress

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"

	"github.com/frederic-klein/stickler/internal/format"
)

var gzipWriterPool = sync.Pool{
	New: func() any {
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.DefaultCompression)
		return w
	},
}

var zlibWriterPool = sync.Pool{
	New: func() any {
		w, _ := zlib.NewWriterLevel(io.Discard, zlib.DefaultCompression)
		return w
	},
}

// Apply compresses body with c. Deflate produces a zlib stream, which is
// what gem clients inflate for ".Z" and ".rz" resources.
func Apply(c format.Compression, body []byte) ([]byte, error) {
	switch c {
	case format.None:
		return body, nil
	case format.Gzip:
		gz := gzipWriterPool.Get().(*gzip.Writer)
		defer gzipWriterPool.Put(gz)
		return run(gz, gz.Reset, body)
	case format.Deflate:
		zw := zlibWriterPool.Get().(*zlib.Writer)
		defer zlibWriterPool.Put(zw)
		return run(zw, zw.Reset, body)
	}
	return nil, fmt.Errorf("unsupported compression %q", c)
}

func run(w io.WriteCloser, reset func(io.Writer), body []byte) ([]byte, error) {
	var buf bytes.Buffer
	reset(&buf)
	if _, err := w.Write(body); err != nil {
		return nil, fmt.Errorf("compressing payload: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compressing payload: %w", err)
	}
	return buf.Bytes(), nil
}

// Response returns r with its body compressed and the hint cleared.
func Response(r format.Response) (format.Response, error) {
	body, err := Apply(r.Compression, r.Body)
	if err != nil {
		return format.Response{}, err
	}
	r.Body = body
	r.Compression = format.None
	return r, nil
}
