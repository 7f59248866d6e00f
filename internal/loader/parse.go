package loader

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/frederic-klein/stickler/internal/spec"
)

// SpecExt is the extension of metadata files inside a spec directory.
const SpecExt = ".gemspec"

// Parse reads one metadata document.
func Parse(r io.Reader) (*spec.Record, error) {
	var rec spec.Record
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty spec file")
		}
		return nil, fmt.Errorf("decoding spec: %w", err)
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid spec: %w", err)
	}
	return &rec, nil
}

// ParseFile reads the metadata file at path.
func ParseFile(path string) (*spec.Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening spec file: %w", err)
	}
	defer file.Close()

	return Parse(file)
}
