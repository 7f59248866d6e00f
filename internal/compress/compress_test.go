package compress

import (
	"bytes"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"

	"github.com/frederic-klein/stickler/internal/format"
)

func TestApply(t *testing.T) {
	body := []byte("foo-1.0\nfoo-2.0\nbar-1.0")

	tests := []struct {
		name    string
		c       format.Compression
		inflate func(io.Reader) (io.ReadCloser, error)
	}{
		{
			name: "gzip",
			c:    format.Gzip,
			inflate: func(r io.Reader) (io.ReadCloser, error) {
				return gzip.NewReader(r)
			},
		},
		{
			name:    "deflate",
			c:       format.Deflate,
			inflate: zlib.NewReader,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Twice, so the second run uses a pooled writer.
			for i := 0; i < 2; i++ {
				compressed, err := Apply(tt.c, body)
				if err != nil {
					t.Fatalf("Apply() error = %v", err)
				}
				if bytes.Equal(compressed, body) {
					t.Fatal("Apply() returned the input unchanged")
				}

				r, err := tt.inflate(bytes.NewReader(compressed))
				if err != nil {
					t.Fatalf("opening reader: %v", err)
				}
				plain, err := io.ReadAll(r)
				r.Close()
				if err != nil {
					t.Fatalf("reading: %v", err)
				}
				if !bytes.Equal(plain, body) {
					t.Errorf("inflated = %q, want %q", plain, body)
				}
			}
		})
	}
}

func TestApply_None(t *testing.T) {
	body := []byte("plain")
	got, err := Apply(format.None, body)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, body) {
		t.Errorf("Apply(None) = %q, want %q", got, body)
	}
}

func TestApply_Unknown(t *testing.T) {
	if _, err := Apply(format.Compression("br"), []byte("x")); err == nil {
		t.Error("Apply() should reject unknown compression")
	}
}

func TestResponse(t *testing.T) {
	in := format.SortedText([]string{"a", "b"}).WithCompression(format.Gzip)

	out, err := Response(in)
	if err != nil {
		t.Fatal(err)
	}
	if out.Compression != format.None {
		t.Errorf("Compression = %q, want none", out.Compression)
	}
	if out.ContentType != format.ContentTypeText {
		t.Errorf("ContentType = %q, want %q", out.ContentType, format.ContentTypeText)
	}

	gz, err := gzip.NewReader(bytes.NewReader(out.Body))
	if err != nil {
		t.Fatal(err)
	}
	plain, _ := io.ReadAll(gz)
	if string(plain) != "a\nb" {
		t.Errorf("body = %q, want %q", plain, "a\nb")
	}
}
