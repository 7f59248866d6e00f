package server

import (
	"errors"
	"net/http"
	"regexp"

	"github.com/frederic-klein/stickler/internal/compress"
	"github.com/frederic-klein/stickler/internal/format"
	"github.com/frederic-klein/stickler/internal/index"
	"github.com/frederic-klein/stickler/internal/spec"
)

// handlerFunc answers a matched route. m holds the regexp submatches.
type handlerFunc func(w http.ResponseWriter, r *http.Request, idx *index.Index, m []string) error

type route struct {
	pattern *regexp.Regexp
	handle  handlerFunc
}

func (s *Server) buildRoutes(marshalVersion string) []route {
	ver := regexp.QuoteMeta(marshalVersion)
	return []route{
		{regexp.MustCompile(`^/$`), s.landing},
		{regexp.MustCompile(`^/yaml(\.Z)?$`), s.yamlIndex},
		{regexp.MustCompile(`^/Marshal\.` + ver + `(\.Z)?$`), s.marshalIndex},
		{regexp.MustCompile(`^/specs\.` + ver + `(\.gz)?$`), s.specs},
		{regexp.MustCompile(`^/latest_specs\.` + ver + `(\.gz)?$`), s.latestSpecs},
		{regexp.MustCompile(`^/quick/index(\.rz)?$`), s.quickIndex},
		{regexp.MustCompile(`^/quick/latest_index(\.rz)?$`), s.quickLatestIndex},
		{regexp.MustCompile(`^/quick(/Marshal\.` + ver + `)?/([^/]+?)\.gemspec(\.rz)?$`), s.quickSpec},
		{regexp.MustCompile(`^/gems/([^/]+)` + regexp.QuoteMeta(spec.ArchiveExt) + `$`), s.archive},
	}
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	for _, rt := range s.routes {
		m := rt.pattern.FindStringSubmatch(r.URL.Path)
		if m == nil {
			continue
		}

		idx, err := s.source.Snapshot(r.Context())
		if err != nil {
			s.logger.Error("loading index", "path", r.URL.Path, "error", err)
			http.Error(w, "index unavailable", http.StatusInternalServerError)
			return
		}
		if mod := idx.Modified(); !mod.IsZero() {
			w.Header().Set("Date", mod.UTC().Format(http.TimeFormat))
		}

		if err := rt.handle(w, r, idx, m); err != nil {
			s.writeError(w, r, err)
		}
		return
	}

	http.NotFound(w, r)
}

// hint maps a matched suffix to the compression it requests.
func hint(suffix string, c format.Compression) format.Compression {
	if suffix == "" {
		return format.None
	}
	return c
}

// respond compresses resp as requested and writes it.
func (s *Server) respond(w http.ResponseWriter, resp format.Response) error {
	out, err := compress.Response(resp)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", out.ContentType)
	_, err = w.Write(out.Body)
	return err
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var notFound *index.NotFoundError
	var ambiguous *index.AmbiguousError
	var missing *archiveNotFoundError

	switch {
	case errors.As(err, &notFound):
		http.Error(w, notFound.Error(), http.StatusNotFound)
	case errors.As(err, &missing):
		http.Error(w, missing.Error(), http.StatusNotFound)
	case errors.As(err, &ambiguous):
		s.logger.Warn("ambiguous spec lookup", "full_name", ambiguous.FullName, "matches", ambiguous.Count)
		http.Error(w, ambiguous.Error(), http.StatusInternalServerError)
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func (s *Server) yamlIndex(w http.ResponseWriter, _ *http.Request, idx *index.Index, m []string) error {
	resp, err := format.IndexText(idx)
	if err != nil {
		return err
	}
	return s.respond(w, resp.WithCompression(hint(m[1], format.Deflate)))
}

func (s *Server) marshalIndex(w http.ResponseWriter, _ *http.Request, idx *index.Index, m []string) error {
	resp, err := format.IndexBinary(idx)
	if err != nil {
		return err
	}
	return s.respond(w, resp.WithCompression(hint(m[1], format.Deflate)))
}

func (s *Server) specs(w http.ResponseWriter, _ *http.Request, idx *index.Index, m []string) error {
	resp, err := format.LightweightList(idx.All())
	if err != nil {
		return err
	}
	return s.respond(w, resp.WithCompression(hint(m[1], format.Gzip)))
}

func (s *Server) latestSpecs(w http.ResponseWriter, _ *http.Request, idx *index.Index, m []string) error {
	resp, err := format.LightweightList(idx.Latest())
	if err != nil {
		return err
	}
	return s.respond(w, resp.WithCompression(hint(m[1], format.Gzip)))
}

func (s *Server) quickIndex(w http.ResponseWriter, _ *http.Request, idx *index.Index, m []string) error {
	resp := format.SortedText(idx.Names())
	return s.respond(w, resp.WithCompression(hint(m[1], format.Deflate)))
}

func (s *Server) quickLatestIndex(w http.ResponseWriter, _ *http.Request, idx *index.Index, m []string) error {
	resp := format.SortedText(format.FullNames(idx.Latest()))
	return s.respond(w, resp.WithCompression(hint(m[1], format.Deflate)))
}

func (s *Server) quickSpec(w http.ResponseWriter, _ *http.Request, idx *index.Index, m []string) error {
	marshal, full, deflate := m[1], m[2], m[3]

	ref, err := spec.ParseFullName(full)
	if err != nil {
		return &index.NotFoundError{FullName: full}
	}
	rec, err := idx.FindRef(ref)
	if err != nil {
		return err
	}

	var resp format.Response
	if marshal != "" {
		resp, err = format.Marshal(rec)
	} else {
		resp, err = format.RecordText(rec)
	}
	if err != nil {
		return err
	}
	return s.respond(w, resp.WithCompression(hint(deflate, format.Deflate)))
}
