// Package semver validates, classifies, compares and increments version strings.
package semver

import (
	"regexp"
	"strings"

	"github.com/git-pkgs/vers"
)

// strict follows the grammar published at semver.org.
var strict = regexp.MustCompile(`^(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)` +
	`(?:-((?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*)(?:\.(?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*))*))?` +
	`(?:\+([0-9a-zA-Z-]+(?:\.[0-9a-zA-Z-]+)*))?$`)

var plainCore = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// Valid reports whether v matches MAJOR.MINOR.PATCH[-PRERELEASE][+BUILD].
func Valid(v string) bool {
	return strict.MatchString(v)
}

// ValidCore reports whether v is a plain x.y.z version.
func ValidCore(v string) bool {
	return plainCore.MatchString(v)
}

// Type is a coarse classification of a version string.
type Type string

const (
	Major      Type = "major"
	Minor      Type = "minor"
	Patch      Type = "patch"
	Prerelease Type = "prerelease"
)

// Classify applies a string heuristic, not semver precedence: anything with a
// hyphen is a prerelease, a trailing ".0" is major, an inner ".0." is minor and
// everything else is patch. So "1.2.0" is major and "1.0.7" is minor.
func Classify(v string) Type {
	switch {
	case strings.Contains(v, "-"):
		return Prerelease
	case strings.HasSuffix(v, ".0"):
		return Major
	case strings.Contains(v, ".0."):
		return Minor
	default:
		return Patch
	}
}

// scheme selects npm ordering rules in vers.
const scheme = "npm"

// Parse reads a version leniently. A leading "v" is dropped, build metadata is
// ignored and missing core parts count as zero. Unparsable input yields 0.0.0.
func Parse(s string) *vers.VersionInfo {
	v, err := vers.ParseVersion(strings.TrimSpace(s))
	if err != nil {
		return &vers.VersionInfo{}
	}
	return v
}

// Compare returns -1, 0 or +1 by semver precedence.
func Compare(a, b string) int {
	return vers.CompareWithScheme(a, b, scheme)
}

// Latest returns the highest version in the list, or "" for an empty list.
func Latest(versions []string) string {
	latest := ""
	for _, v := range versions {
		if latest == "" || Compare(v, latest) > 0 {
			latest = v
		}
	}
	return latest
}

// SuggestNext proposes a version to publish instead of current. It tries the
// next patch, then the next minor, then the next major. Only the first two
// candidates are checked against published.
func SuggestNext(current string, published []string) string {
	v := Parse(current)
	taken := make(map[string]bool, len(published))
	for _, p := range published {
		taken[p] = true
	}

	for _, next := range []*vers.VersionInfo{v.IncrementPatch(), v.IncrementMinor()} {
		if s := next.String(); !taken[s] {
			return s
		}
	}
	return v.IncrementMajor().String()
}
