// Package format turns index query results into response payloads.
package format

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"

	"github.com/frederic-klein/stickler/internal/index"
	"github.com/frederic-klein/stickler/internal/spec"
)

// Content types of the payloads produced here.
const (
	ContentTypeBinary = "application/octet-stream"
	ContentTypeText   = "text/plain"
)

// Compression is the scheme a client asked for through a URL suffix.
// The transport applies it; the formatter only carries it.
type Compression string

const (
	None    Compression = ""
	Gzip    Compression = "gzip"
	Deflate Compression = "deflate"
)

// Response is a formatted payload ready to be written.
type Response struct {
	ContentType string
	Compression Compression
	Body        []byte
}

// WithCompression returns a copy of r carrying c.
func (r Response) WithCompression(c Compression) Response {
	r.Compression = c
	return r
}

// Tuple is the lightweight form of a record: name, version and platform.
type Tuple struct {
	_msgpack struct{} `msgpack:",as_array"`

	Name     string
	Version  string
	Platform string
}

// Marshal encodes v with the binary object format.
func Marshal(v any) (Response, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return Response{}, fmt.Errorf("encoding payload: %w", err)
	}
	return Response{ContentType: ContentTypeBinary, Body: data}, nil
}

// Sorted returns a copy of records in natural order.
func Sorted(records []*spec.Record) []*spec.Record {
	out := append([]*spec.Record(nil), records...)
	sort.SliceStable(out, func(i, j int) bool {
		return spec.Compare(out[i], out[j]) < 0
	})
	return out
}

// Tuples maps records to sorted lightweight tuples.
func Tuples(records []*spec.Record) []Tuple {
	sorted := Sorted(records)
	tuples := make([]Tuple, len(sorted))
	for i, r := range sorted {
		tuples[i] = Tuple{
			Name:     r.Name,
			Version:  r.Version.String(),
			Platform: string(r.Platform),
		}
	}
	return tuples
}

// LightweightList encodes records as a sorted list of tuples.
func LightweightList(records []*spec.Record) (Response, error) {
	return Marshal(Tuples(records))
}

// SortedText sorts lines and joins them with newlines.
func SortedText(lines []string) Response {
	sorted := append([]string(nil), lines...)
	sort.Strings(sorted)
	return Response{ContentType: ContentTypeText, Body: []byte(strings.Join(sorted, "\n"))}
}

// FullNames returns the full name of each record.
func FullNames(records []*spec.Record) []string {
	names := make([]string, len(records))
	for i, r := range records {
		names[i] = r.FullName()
	}
	return names
}

// RecordText writes a record in the metadata file format.
func RecordText(rec *spec.Record) (Response, error) {
	data, err := yaml.Marshal(rec)
	if err != nil {
		return Response{}, fmt.Errorf("encoding spec %s: %w", rec.FullName(), err)
	}
	return Response{ContentType: ContentTypeText, Body: data}, nil
}

// IndexMap returns the whole index keyed by full name. When the index holds
// duplicates, the record loaded last wins.
func IndexMap(idx *index.Index) map[string]*spec.Record {
	m := make(map[string]*spec.Record, idx.Len())
	for _, r := range idx.All() {
		m[r.FullName()] = r
	}
	return m
}

// IndexText writes the whole index as a YAML mapping of full name to record.
func IndexText(idx *index.Index) (Response, error) {
	data, err := yaml.Marshal(IndexMap(idx))
	if err != nil {
		return Response{}, fmt.Errorf("encoding index: %w", err)
	}
	return Response{ContentType: ContentTypeText, Body: data}, nil
}

// IndexBinary writes the whole index with the binary object format.
func IndexBinary(idx *index.Index) (Response, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(IndexMap(idx)); err != nil {
		return Response{}, fmt.Errorf("encoding index: %w", err)
	}
	return Response{ContentType: ContentTypeBinary, Body: buf.Bytes()}, nil
}
