package spec

import "strings"

// Platform names the runtime a package version was built for.
type Platform string

// DefaultPlatform marks a package that is not tied to a specific platform.
const DefaultPlatform Platform = "default"

// ParsePlatform normalizes a platform string from a metadata file.
// Empty values and the "ruby" alias resolve to DefaultPlatform.
func ParsePlatform(s string) Platform {
	s = strings.TrimSpace(s)
	switch s {
	case "", string(DefaultPlatform), "ruby":
		return DefaultPlatform
	}
	return Platform(s)
}

// IsDefault reports whether p is the default platform.
func (p Platform) IsDefault() bool {
	return p == DefaultPlatform
}

func (p Platform) String() string {
	return string(p)
}

// PlatformSelector is the platform part of a lookup. A selector either
// carries an explicit platform or is unspecified, in which case it
// resolves to DefaultPlatform.
type PlatformSelector struct {
	platform Platform
	explicit bool
}

// Unspecified returns a selector for a lookup that named no platform.
func Unspecified() PlatformSelector {
	return PlatformSelector{}
}

// Explicit returns a selector for the given platform.
func Explicit(p Platform) PlatformSelector {
	return PlatformSelector{platform: ParsePlatform(string(p)), explicit: true}
}

// IsExplicit reports whether a platform was named.
func (s PlatformSelector) IsExplicit() bool {
	return s.explicit
}

// Resolve returns the platform the selector matches.
func (s PlatformSelector) Resolve() Platform {
	if !s.explicit {
		return DefaultPlatform
	}
	return s.platform
}
