package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/frederic-klein/stickler/internal/index"
	"github.com/frederic-klein/stickler/internal/loader"
	"github.com/frederic-klein/stickler/internal/spec"
)

type fixture struct {
	specDir     string
	archiveRoot string
	handler     http.Handler
}

func newFixture(t *testing.T, specs map[string]string) *fixture {
	t.Helper()
	specDir := t.TempDir()
	for file, content := range specs {
		if err := os.WriteFile(filepath.Join(specDir, file), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	archiveRoot := t.TempDir()

	srv := New(Config{
		Source:         loader.NewRescan(loader.NewLoader(2, nil), []string{specDir}),
		ArchiveRoot:    archiveRoot,
		MarshalVersion: "4.8",
	})
	return &fixture{specDir: specDir, archiveRoot: archiveRoot, handler: srv.Handler()}
}

func (f *fixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func specYAML(name, version, platform string) string {
	s := "name: " + name + "\nversion: " + version + "\n"
	if platform != "" {
		s += "platform: " + platform + "\n"
	}
	return s
}

func standardSpecs() map[string]string {
	return map[string]string{
		"foo-1.0.gemspec":       specYAML("foo", "1.0", ""),
		"foo-2.0.gemspec":       specYAML("foo", "2.0", ""),
		"bar-1.0.gemspec":       specYAML("bar", "1.0", ""),
		"bar-1.0-linux.gemspec": specYAML("bar", "1.0", "linux"),
	}
}

func TestServer_QuickIndex(t *testing.T) {
	f := newFixture(t, standardSpecs())

	rec := f.get(t, "/quick/index")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "bar\nfoo" {
		t.Errorf("body = %q, want %q", got, "bar\nfoo")
	}
	if got := rec.Header().Get("Content-Type"); got != "text/plain" {
		t.Errorf("Content-Type = %q, want text/plain", got)
	}
}

func TestServer_QuickLatestIndex(t *testing.T) {
	f := newFixture(t, map[string]string{
		"foo-1.0.gemspec": specYAML("foo", "1.0", ""),
		"foo-2.0.gemspec": specYAML("foo", "2.0", ""),
	})

	rec := f.get(t, "/quick/latest_index")

	if got := rec.Body.String(); got != "foo-2.0" {
		t.Errorf("body = %q, want %q", got, "foo-2.0")
	}
}

func TestServer_EmptyDirectorySet(t *testing.T) {
	srv := New(Config{
		Source:         loader.NewRescan(loader.NewLoader(1, nil), nil),
		ArchiveRoot:    t.TempDir(),
		MarshalVersion: "4.8",
	})
	h := srv.Handler()

	for _, path := range []string{"/quick/index", "/quick/latest_index"} {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if rec.Body.Len() != 0 {
				t.Errorf("body = %q, want empty", rec.Body.String())
			}
		})
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/specs.4.8", nil))
	var tuples [][]string
	if err := msgpack.Unmarshal(rec.Body.Bytes(), &tuples); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(tuples) != 0 {
		t.Errorf("tuples = %v, want empty", tuples)
	}
}

func TestServer_Specs(t *testing.T) {
	f := newFixture(t, standardSpecs())

	tests := []struct {
		path string
		want string
	}{
		{"/specs.4.8", "bar 1.0 default|bar 1.0 linux|foo 1.0 default|foo 2.0 default"},
		{"/latest_specs.4.8", "bar 1.0 default|bar 1.0 linux|foo 2.0 default"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := f.get(t, tt.path)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if got := rec.Header().Get("Content-Type"); got != "application/octet-stream" {
				t.Errorf("Content-Type = %q", got)
			}

			var tuples [][]string
			if err := msgpack.Unmarshal(rec.Body.Bytes(), &tuples); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			var rows []string
			for _, tup := range tuples {
				rows = append(rows, strings.Join(tup, " "))
			}
			if got := strings.Join(rows, "|"); got != tt.want {
				t.Errorf("tuples = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestServer_CompressedSuffixes(t *testing.T) {
	f := newFixture(t, standardSpecs())

	gunzip := func(b []byte) ([]byte, error) {
		r, err := gzip.NewReader(bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		return io.ReadAll(r)
	}
	inflate := func(b []byte) ([]byte, error) {
		r, err := zlib.NewReader(bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		return io.ReadAll(r)
	}

	tests := []struct {
		plain      string
		compressed string
		decode     func([]byte) ([]byte, error)
	}{
		{"/specs.4.8", "/specs.4.8.gz", gunzip},
		{"/latest_specs.4.8", "/latest_specs.4.8.gz", gunzip},
		{"/quick/index", "/quick/index.rz", inflate},
		{"/quick/latest_index", "/quick/latest_index.rz", inflate},
		{"/yaml", "/yaml.Z", inflate},
		{"/Marshal.4.8", "/Marshal.4.8.Z", inflate},
		{"/quick/foo-1.0.gemspec", "/quick/foo-1.0.gemspec.rz", inflate},
		{"/quick/Marshal.4.8/foo-1.0.gemspec", "/quick/Marshal.4.8/foo-1.0.gemspec.rz", inflate},
	}

	for _, tt := range tests {
		t.Run(tt.compressed, func(t *testing.T) {
			plain := f.get(t, tt.plain)
			compressed := f.get(t, tt.compressed)
			if compressed.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", compressed.Code)
			}

			got, err := tt.decode(compressed.Body.Bytes())
			if err != nil {
				t.Fatalf("decoding body: %v", err)
			}
			if !bytes.Equal(got, plain.Body.Bytes()) {
				t.Errorf("decoded body differs from %s", tt.plain)
			}
			if compressed.Header().Get("Content-Encoding") != "" {
				t.Errorf("Content-Encoding = %q, want none", compressed.Header().Get("Content-Encoding"))
			}
		})
	}
}

func TestServer_QuickSpec(t *testing.T) {
	f := newFixture(t, standardSpecs())

	tests := []struct {
		name     string
		path     string
		wantCode int
		wantBody string
	}{
		{"default platform", "/quick/bar-1.0.gemspec", http.StatusOK, "platform: default"},
		{"explicit platform", "/quick/bar-1.0-linux.gemspec", http.StatusOK, "platform: linux"},
		{"not found", "/quick/missing-9.9.gemspec", http.StatusNotFound, "No gems found matching [missing-9.9]"},
		{"unparseable name", "/quick/nonsense.gemspec", http.StatusNotFound, "No gems found matching [nonsense]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.get(t, tt.path)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %q, want it to contain %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestServer_QuickSpecMarshal(t *testing.T) {
	f := newFixture(t, standardSpecs())

	rec := f.get(t, "/quick/Marshal.4.8/bar-1.0-linux.gemspec")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var got spec.Record
	if err := msgpack.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got.FullName() != "bar-1.0-linux" {
		t.Errorf("FullName() = %q, want bar-1.0-linux", got.FullName())
	}
}

func TestServer_QuickSpecAmbiguous(t *testing.T) {
	f := newFixture(t, map[string]string{
		"baz-1.0.gemspec":  specYAML("baz", "1.0", ""),
		"baz-copy.gemspec": specYAML("baz", "1.0", ""),
	})

	rec := f.get(t, "/quick/baz-1.0.gemspec")

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Multiple gems found matching [baz-1.0]") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestServer_MarshalVersionIsMatchedLiterally(t *testing.T) {
	f := newFixture(t, standardSpecs())

	if rec := f.get(t, "/specs.4x8"); rec.Code != http.StatusNotFound {
		t.Errorf("/specs.4x8 status = %d, want 404", rec.Code)
	}
	if rec := f.get(t, "/specs.5.0"); rec.Code != http.StatusNotFound {
		t.Errorf("/specs.5.0 status = %d, want 404", rec.Code)
	}
}

func TestServer_Headers(t *testing.T) {
	f := newFixture(t, standardSpecs())
	mtime := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)
	if err := os.Chtimes(f.specDir, mtime, mtime); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{"/", "/yaml", "/quick/index", "/quick/missing-1.0.gemspec", "/nope"} {
		t.Run(path, func(t *testing.T) {
			rec := f.get(t, path)
			if got := rec.Header().Get("Cache-Control"); got != "no-cache" {
				t.Errorf("Cache-Control = %q, want no-cache", got)
			}
		})
	}

	rec := f.get(t, "/quick/index")
	if got := rec.Header().Get("Date"); got != mtime.Format(http.TimeFormat) {
		t.Errorf("Date = %q, want %q", got, mtime.Format(http.TimeFormat))
	}
}

func TestServer_YAMLIndex(t *testing.T) {
	f := newFixture(t, standardSpecs())

	rec := f.get(t, "/yaml")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	for _, key := range []string{"bar-1.0:", "bar-1.0-linux:", "foo-1.0:", "foo-2.0:"} {
		if !strings.Contains(rec.Body.String(), key) {
			t.Errorf("body missing %q", key)
		}
	}
}

func TestServer_MarshalIndex(t *testing.T) {
	f := newFixture(t, standardSpecs())

	rec := f.get(t, "/Marshal.4.8")

	var decoded map[string]spec.Record
	if err := msgpack.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(decoded) != 4 {
		t.Errorf("got %d entries, want 4", len(decoded))
	}
}

func TestServer_Archive(t *testing.T) {
	f := newFixture(t, standardSpecs())
	content := []byte("archive bytes")
	if err := os.WriteFile(filepath.Join(f.archiveRoot, "foo-1.0.gem-archive"), content, 0644); err != nil {
		t.Fatal(err)
	}

	t.Run("found", func(t *testing.T) {
		rec := f.get(t, "/gems/foo-1.0.gem-archive")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if got := rec.Header().Get("Content-Type"); got != "application/x-tar" {
			t.Errorf("Content-Type = %q, want application/x-tar", got)
		}
		if !bytes.Equal(rec.Body.Bytes(), content) {
			t.Errorf("body = %q, want %q", rec.Body.Bytes(), content)
		}
	})

	t.Run("missing", func(t *testing.T) {
		rec := f.get(t, "/gems/foo-2.0-java.gem-archive")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "Gem foo-2.0-java.gem-archive is not found") {
			t.Errorf("body = %q", rec.Body.String())
		}
	})

	t.Run("no traversal", func(t *testing.T) {
		rec := f.get(t, "/gems/../secret-1.0.gem-archive")
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}

func TestServer_Landing(t *testing.T) {
	f := newFixture(t, standardSpecs())

	rec := f.get(t, "/")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	wants := []string{
		"4 specs, 2 packages",
		"<td>foo</td><td>2.0</td><td>default</td><td>2</td>",
		"pkg:gem/foo@2.0",
		"pkg:gem/bar@1.0?platform=linux",
	}
	for _, want := range wants {
		if !strings.Contains(body, want) {
			t.Errorf("landing page missing %q", want)
		}
	}
}

func TestServer_RequestID(t *testing.T) {
	f := newFixture(t, standardSpecs())

	t.Run("generated", func(t *testing.T) {
		rec := f.get(t, "/quick/index")
		if rec.Header().Get("X-Request-Id") == "" {
			t.Error("X-Request-Id not set")
		}
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/quick/index", nil)
		req.Header.Set("X-Request-Id", "abc123")
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		if got := rec.Header().Get("X-Request-Id"); got != "abc123" {
			t.Errorf("X-Request-Id = %q, want abc123", got)
		}
	})
}

func TestServer_MethodNotAllowed(t *testing.T) {
	f := newFixture(t, standardSpecs())

	req := httptest.NewRequest(http.MethodPost, "/quick/index", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", got)
	}
	if got := rec.Header().Get("Allow"); got != "GET, HEAD" {
		t.Errorf("Allow = %q, want %q", got, "GET, HEAD")
	}
}

type failingSource struct{}

func (failingSource) Snapshot(context.Context) (*index.Index, error) {
	return nil, errors.New("disk on fire")
}

func TestServer_SourceError(t *testing.T) {
	srv := New(Config{Source: failingSource{}, MarshalVersion: "4.8"})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/quick/index", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "disk on fire") {
		t.Error("internal error leaked to client")
	}
}

func TestServer_ServeAndStop(t *testing.T) {
	f := newFixture(t, standardSpecs())
	srv := New(Config{
		Source:         loader.NewRescan(loader.NewLoader(1, nil), []string{f.specDir}),
		ArchiveRoot:    f.archiveRoot,
		MarshalVersion: "4.8",
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/quick/index")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "bar\nfoo" {
		t.Errorf("body = %q, want %q", body, "bar\nfoo")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := <-errCh; err != nil {
		t.Errorf("Serve() error = %v", err)
	}
}
