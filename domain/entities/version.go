package entities

import (
	"fmt"
	"strconv"
	"strings"
)

// SemanticVersion is the three-component interface version an extension
// declares in its binary version marker.
type SemanticVersion struct {
	Major uint16 `json:"major" yaml:"major"`
	Minor uint16 `json:"minor" yaml:"minor"`
	Patch uint16 `json:"patch" yaml:"patch"`
}

// NewSemanticVersion builds a version from its components.
func NewSemanticVersion(major, minor, patch uint16) SemanticVersion {
	return SemanticVersion{Major: major, Minor: minor, Patch: patch}
}

// ParseSemanticVersion parses "MAJOR.MINOR.PATCH". A leading "v" is accepted.
func ParseSemanticVersion(s string) (SemanticVersion, error) {
	parts := strings.Split(strings.TrimPrefix(strings.TrimSpace(s), "v"), ".")
	if len(parts) != 3 {
		return SemanticVersion{}, fmt.Errorf("invalid version %q: expected MAJOR.MINOR.PATCH", s)
	}

	var out [3]uint16
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return SemanticVersion{}, fmt.Errorf("invalid version %q: %w", s, err)
		}
		out[i] = uint16(n)
	}
	return SemanticVersion{Major: out[0], Minor: out[1], Patch: out[2]}, nil
}

// String returns "MAJOR.MINOR.PATCH".
func (v SemanticVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0 or 1.
func (v SemanticVersion) Compare(other SemanticVersion) int {
	switch {
	case v.Major != other.Major:
		return cmpUint16(v.Major, other.Major)
	case v.Minor != other.Minor:
		return cmpUint16(v.Minor, other.Minor)
	default:
		return cmpUint16(v.Patch, other.Patch)
	}
}

// Less reports whether v sorts before other.
func (v SemanticVersion) Less(other SemanticVersion) bool {
	return v.Compare(other) < 0
}

// MarshalText implements encoding.TextMarshaler so versions read naturally in config files.
func (v SemanticVersion) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *SemanticVersion) UnmarshalText(text []byte) error {
	parsed, err := ParseSemanticVersion(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func cmpUint16(a, b uint16) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// VersionRange is an inclusive range of interface versions.
type VersionRange struct {
	Min SemanticVersion `json:"min" yaml:"min"`
	Max SemanticVersion `json:"max" yaml:"max"`
}

// Contains reports whether v lies within the range.
func (r VersionRange) Contains(v SemanticVersion) bool {
	return r.Min.Compare(v) <= 0 && v.Compare(r.Max) <= 0
}
