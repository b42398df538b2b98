package archive

import (
	"fmt"
	"strconv"
	"strings"

	"archive/internal/domain"
)

// Version is the ordered (major, minor) pair of a revision.
// Minor == 0 means the revision has no minor version (Modules).
// Such versions sort below every minor of the same major.
type Version struct {
	Major int `json:"major" yaml:"major"`
	Minor int `json:"minor,omitempty" yaml:"minor,omitempty"`
}

// ZeroVersion orders below every valid version. An absent latest pointer compares as ZeroVersion.
var ZeroVersion = Version{}

// HasMinor reports whether the minor component is set.
func (v Version) HasMinor() bool {
	return v.Minor != 0
}

// MinorPtr returns the minor component for nullable storage.
func (v Version) MinorPtr() *int {
	if v.Minor == 0 {
		return nil
	}
	m := v.Minor
	return &m
}

// VersionFrom builds a version from a nullable minor column.
func VersionFrom(major int, minor *int) Version {
	v := Version{Major: major}
	if minor != nil {
		v.Minor = *minor
	}
	return v
}

// Compare returns -1, 0 or 1.
func (v Version) Compare(o Version) int {
	switch {
	case v.Major < o.Major:
		return -1
	case v.Major > o.Major:
		return 1
	case v.Minor < o.Minor:
		return -1
	case v.Minor > o.Minor:
		return 1
	}
	return 0
}

func (v Version) Less(o Version) bool {
	return v.Compare(o) < 0
}

// String renders "major" or "major.minor".
func (v Version) String() string {
	if v.Minor == 0 {
		return strconv.Itoa(v.Major)
	}
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// ParseVersion is the inverse of Version.String.
func ParseVersion(s string) (Version, error) {
	majorStr, minorStr, hasMinor := strings.Cut(s, ".")
	major, err := parsePositive(majorStr)
	if err != nil {
		return Version{}, fmt.Errorf("%w: version %q: major %v", domain.ErrValidation, s, err)
	}
	v := Version{Major: major}
	if hasMinor {
		minor, err := parsePositive(minorStr)
		if err != nil {
			return Version{}, fmt.Errorf("%w: version %q: minor %v", domain.ErrValidation, s, err)
		}
		v.Minor = minor
	}
	return v, nil
}

// parsePositive accepts only canonical decimal integers >= 1 so that parse(render(v)) == v.
func parsePositive(s string) (int, error) {
	if s == "" || (len(s) > 1 && s[0] == '0') {
		return 0, fmt.Errorf("not canonical: %q", s)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("not a number: %q", s)
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("must be >= 1")
	}
	return n, nil
}

// ValidateFor checks the version shape against the document kind.
func (v Version) ValidateFor(kind Kind) error {
	if v.Major < 1 || v.Minor < 0 {
		return fmt.Errorf("%w: version %s out of range", domain.ErrValidation, v)
	}
	if kind.IsComposite() && !v.HasMinor() {
		return fmt.Errorf("%w: %s requires a minor version, got %s", domain.ErrInvalidVersionKind, kind, v)
	}
	if !kind.IsComposite() && v.HasMinor() {
		return fmt.Errorf("%w: %s must not carry a minor version, got %s", domain.ErrInvalidVersionKind, kind, v)
	}
	return nil
}

// LegacyString renders the legacy "1.<major>" version label.
func (v Version) LegacyString() string {
	return fmt.Sprintf("1.%d", v.Major)
}

// ParseLegacyVersion maps a legacy "1.<major>" label onto a version for the given kind.
// Composite documents get minor 1.
func ParseLegacyVersion(s string, kind Kind) (Version, error) {
	prefix, majorStr, ok := strings.Cut(s, ".")
	if !ok || prefix != "1" {
		return Version{}, fmt.Errorf("%w: legacy version %q", domain.ErrValidation, s)
	}
	major, err := parsePositive(majorStr)
	if err != nil {
		return Version{}, fmt.Errorf("%w: legacy version %q: %v", domain.ErrValidation, s, err)
	}
	v := Version{Major: major}
	if kind.IsComposite() {
		v.Minor = 1
	}
	return v, nil
}
