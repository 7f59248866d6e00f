package spec

import (
	"fmt"
	"strings"
)

// Ref identifies a record by name, version and platform.
type Ref struct {
	Name     string
	Version  Version
	Platform PlatformSelector
}

// FullName returns the canonical "name-version[-platform]" form of the ref.
func (r Ref) FullName() string {
	return fullName(r.Name, r.Version, r.Platform.Resolve())
}

// ParseFullName splits "name-version[-platform]" into a Ref.
//
// The version is the first dash-separated segment after the name that
// consists only of numeric dot segments. Everything before it is the
// name and everything after it is the platform, so "foo-1.0-x86_64-linux"
// yields platform "x86_64-linux" and "net-http-2.0" yields name
// "net-http".
func ParseFullName(s string) (Ref, error) {
	parts := strings.Split(s, "-")
	for i := 1; i < len(parts); i++ {
		if !versionRe.MatchString(parts[i]) {
			continue
		}
		name := strings.Join(parts[:i], "-")
		if name == "" {
			break
		}
		v, err := ParseVersion(parts[i])
		if err != nil {
			return Ref{}, err
		}
		ref := Ref{Name: name, Version: v, Platform: Unspecified()}
		if i+1 < len(parts) {
			platform := strings.Join(parts[i+1:], "-")
			if platform == "" {
				return Ref{}, fmt.Errorf("invalid full name %q: empty platform", s)
			}
			ref.Platform = Explicit(Platform(platform))
		}
		return ref, nil
	}
	return Ref{}, fmt.Errorf("invalid full name %q", s)
}
