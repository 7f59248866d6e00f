// Package index holds the in-memory view of the loaded package metadata.
package index

import (
	"sort"
	"time"

	"github.com/frederic-klein/stickler/internal/spec"
)

// Index is an immutable snapshot of the records found in a set of spec
// directories. It is rebuilt rather than modified.
type Index struct {
	records  []*spec.Record
	byName   map[string][]*spec.Record
	latest   []*spec.Record
	modified time.Time
	dirs     []string
}

// New builds an index over records. Records are kept in the given order,
// duplicates included. modified is the newest spec directory mtime.
func New(records []*spec.Record, modified time.Time, dirs []string) *Index {
	idx := &Index{
		records:  records,
		byName:   make(map[string][]*spec.Record),
		modified: modified,
		dirs:     append([]string(nil), dirs...),
	}

	var names []string
	for _, r := range records {
		if _, ok := idx.byName[r.Name]; !ok {
			names = append(names, r.Name)
		}
		idx.byName[r.Name] = append(idx.byName[r.Name], r)
	}

	for _, name := range names {
		idx.latest = append(idx.latest, newest(idx.byName[name])...)
	}

	return idx
}

// Empty returns an index with no records.
func Empty() *Index {
	return New(nil, time.Time{}, nil)
}

// newest returns every record carrying the highest version of the group.
func newest(group []*spec.Record) []*spec.Record {
	var out []*spec.Record
	for _, r := range group {
		if len(out) == 0 {
			out = append(out, r)
			continue
		}
		switch c := r.Version.Compare(out[0].Version); {
		case c > 0:
			out = append(out[:0], r)
		case c == 0:
			out = append(out, r)
		}
	}
	return out
}

// All returns every record in load order.
func (idx *Index) All() []*spec.Record {
	return append([]*spec.Record(nil), idx.records...)
}

// Names returns the distinct package names, sorted.
func (idx *Index) Names() []string {
	names := make([]string, 0, len(idx.byName))
	for name := range idx.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Latest returns, for each name, every record at that name's highest version.
func (idx *Index) Latest() []*spec.Record {
	return append([]*spec.Record(nil), idx.latest...)
}

// Versions returns the records loaded for name.
func (idx *Index) Versions(name string) []*spec.Record {
	return append([]*spec.Record(nil), idx.byName[name]...)
}

// Find returns the single record matching name, version and platform.
// It returns a *NotFoundError when nothing matches and an *AmbiguousError
// when several records do.
func (idx *Index) Find(name string, version spec.Version, platform spec.PlatformSelector) (*spec.Record, error) {
	ref := spec.Ref{Name: name, Version: version, Platform: platform}
	want := platform.Resolve()

	var matches []*spec.Record
	for _, r := range idx.byName[name] {
		if r.Version.Equal(version) && r.Platform == want {
			matches = append(matches, r)
		}
	}

	switch len(matches) {
	case 0:
		return nil, &NotFoundError{FullName: ref.FullName()}
	case 1:
		return matches[0], nil
	default:
		return nil, &AmbiguousError{FullName: ref.FullName(), Count: len(matches)}
	}
}

// FindRef is Find for a parsed full name.
func (idx *Index) FindRef(ref spec.Ref) (*spec.Record, error) {
	return idx.Find(ref.Name, ref.Version, ref.Platform)
}

// Len returns the number of records.
func (idx *Index) Len() int {
	return len(idx.records)
}

// Modified returns the newest modification time of the spec directories.
func (idx *Index) Modified() time.Time {
	return idx.modified
}

// Dirs returns the spec directories the index was built from.
func (idx *Index) Dirs() []string {
	return append([]string(nil), idx.dirs...)
}
