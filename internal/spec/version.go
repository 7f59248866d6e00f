package spec

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

var versionRe = regexp.MustCompile(`^[0-9]+(\.[0-9]+)*$`)

// Version is a dot-separated numeric version such as "1.2.10".
// The zero value is not a valid version.
type Version struct {
	raw      string
	segments []int
}

// ParseVersion parses a numeric dotted version string.
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if !versionRe.MatchString(s) {
		return Version{}, fmt.Errorf("invalid version %q", s)
	}

	parts := strings.Split(s, ".")
	segments := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Version{}, fmt.Errorf("invalid version %q: %w", s, err)
		}
		segments[i] = n
	}
	return Version{raw: s, segments: segments}, nil
}

// MustParseVersion is like ParseVersion but panics on error.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// IsZero reports whether v was never parsed.
func (v Version) IsZero() bool {
	return len(v.segments) == 0
}

// String returns the version as it was written.
func (v Version) String() string {
	return v.raw
}

// Compare returns -1, 0 or 1. Missing trailing segments count as zero,
// so "1.0" and "1" are equal.
func (v Version) Compare(other Version) int {
	maxLen := len(v.segments)
	if len(other.segments) > maxLen {
		maxLen = len(other.segments)
	}

	for i := 0; i < maxLen; i++ {
		a, b := 0, 0
		if i < len(v.segments) {
			a = v.segments[i]
		}
		if i < len(other.segments) {
			b = other.segments[i]
		}
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
	}
	return 0
}

// Equal reports whether both versions compare equal.
func (v Version) Equal(other Version) bool {
	return v.Compare(other) == 0
}

// MarshalYAML writes the version as a plain scalar.
func (v Version) MarshalYAML() (interface{}, error) {
	return v.raw, nil
}

// UnmarshalYAML reads the raw scalar so that "1.10" is not turned into a float.
func (v *Version) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: version must be a scalar", node.Line)
	}
	parsed, err := ParseVersion(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*v = parsed
	return nil
}

// EncodeMsgpack writes the version as a string.
func (v Version) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeString(v.raw)
}

// DecodeMsgpack reads a version written by EncodeMsgpack.
func (v *Version) DecodeMsgpack(dec *msgpack.Decoder) error {
	s, err := dec.DecodeString()
	if err != nil {
		return err
	}
	parsed, err := ParseVersion(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
