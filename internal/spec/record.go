// Package spec defines the package metadata records served by the index.
package spec

import (
	"errors"
	"strings"

	packageurl "github.com/package-url/packageurl-go"
)

// ArchiveExt is the file extension of package archives on disk.
const ArchiveExt = ".gem-archive"

// Dependency is a requirement declared by a package version.
type Dependency struct {
	Name        string `yaml:"name" msgpack:"name"`
	Requirement string `yaml:"requirement,omitempty" msgpack:"requirement"`
	Kind        string `yaml:"kind,omitempty" msgpack:"kind"` // "runtime" or "development"
}

// Record describes one package version on one platform.
type Record struct {
	Name         string       `yaml:"name" msgpack:"name"`
	Version      Version      `yaml:"version" msgpack:"version"`
	Platform     Platform     `yaml:"platform" msgpack:"platform"`
	Summary      string       `yaml:"summary,omitempty" msgpack:"summary,omitempty"`
	Description  string       `yaml:"description,omitempty" msgpack:"description,omitempty"`
	Authors      []string     `yaml:"authors,omitempty" msgpack:"authors,omitempty"`
	Email        string       `yaml:"email,omitempty" msgpack:"email,omitempty"`
	Homepage     string       `yaml:"homepage,omitempty" msgpack:"homepage,omitempty"`
	Licenses     []string     `yaml:"licenses,omitempty" msgpack:"licenses,omitempty"`
	Date         string       `yaml:"date,omitempty" msgpack:"date,omitempty"`
	Dependencies []Dependency `yaml:"dependencies,omitempty" msgpack:"dependencies,omitempty"`
}

// Validate checks the fields that identify a record and normalizes
// its platform.
func (r *Record) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("missing name")
	}
	if strings.Contains(r.Name, "/") {
		return errors.New("name must not contain '/'")
	}
	if r.Version.IsZero() {
		return errors.New("missing version")
	}
	r.Platform = ParsePlatform(string(r.Platform))
	return nil
}

// FullName returns "name-version", suffixed with "-platform" for
// non-default platforms.
func (r *Record) FullName() string {
	return fullName(r.Name, r.Version, r.Platform)
}

// FileName returns the archive file name for the record.
func (r *Record) FileName() string {
	return r.FullName() + ArchiveExt
}

// PURL returns the package URL of the record, e.g. "pkg:gem/rails@7.1.0".
func (r *Record) PURL() string {
	var qualifiers packageurl.Qualifiers
	if !r.Platform.IsDefault() {
		qualifiers = packageurl.QualifiersFromMap(map[string]string{"platform": string(r.Platform)})
	}
	p := packageurl.NewPackageURL(packageurl.TypeGem, "", r.Name, r.Version.String(), qualifiers, "")
	return p.ToString()
}

// Compare orders records by name, then version, then platform.
func Compare(a, b *Record) int {
	if a.Name != b.Name {
		if a.Name < b.Name {
			return -1
		}
		return 1
	}
	if c := a.Version.Compare(b.Version); c != 0 {
		return c
	}
	return strings.Compare(string(a.Platform), string(b.Platform))
}

func fullName(name string, version Version, platform Platform) string {
	s := name + "-" + version.String()
	if !platform.IsDefault() {
		s += "-" + string(platform)
	}
	return s
}
