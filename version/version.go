// Package version decides whether a dependency version falls inside the
// version range attached to a CPE match of a vulnerability.
package version

import (
	"strings"

	goversion "github.com/hashicorp/go-version"
	"golang.org/x/xerrors"
)

// Parse parses a semantic version. A leading "v" and pre-release or build
// qualifiers are accepted.
func Parse(s string) (*goversion.Version, error) {
	v, err := goversion.NewVersion(strings.TrimSpace(s))
	if err != nil {
		return nil, xerrors.Errorf("unable to parse version %q: %w", s, err)
	}
	return v, nil
}

// Range is the version predicate of a CPE match. Every field is optional.
type Range struct {
	Exact          string `json:"exact,omitempty"`
	StartIncluding string `json:"versionStartIncluding,omitempty"`
	StartExcluding string `json:"versionStartExcluding,omitempty"`
	EndIncluding   string `json:"versionEndIncluding,omitempty"`
	EndExcluding   string `json:"versionEndExcluding,omitempty"`
}

// IsZero reports whether the range has no exact version and no bounds, in
// which case every version matches.
func (r Range) IsZero() bool {
	return r == Range{}
}

// Matches reports whether v satisfies the range. An unparsable version on
// either side never matches.
func (r Range) Matches(v string) bool {
	target, err := Parse(v)
	if err != nil {
		return false
	}
	return r.MatchesVersion(target)
}

// MatchesVersion is Matches for an already parsed version.
func (r Range) MatchesVersion(target *goversion.Version) bool {
	if target == nil {
		return false
	}
	if r.Exact != "" {
		exact, err := Parse(r.Exact)
		if err != nil {
			return false
		}
		return target.Equal(exact)
	}

	bounds := []struct {
		raw   string
		holds func(bound *goversion.Version) bool
	}{
		{r.StartIncluding, target.GreaterThanOrEqual},
		{r.StartExcluding, target.GreaterThan},
		{r.EndIncluding, target.LessThanOrEqual},
		{r.EndExcluding, target.LessThan},
	}
	for _, b := range bounds {
		if b.raw == "" {
			continue
		}
		bound, err := Parse(b.raw)
		if err != nil {
			return false
		}
		if !b.holds(bound) {
			return false
		}
	}
	return true
}

func (r Range) String() string {
	if r.Exact != "" {
		return "= " + r.Exact
	}
	var parts []string
	if r.StartIncluding != "" {
		parts = append(parts, ">= "+r.StartIncluding)
	}
	if r.StartExcluding != "" {
		parts = append(parts, "> "+r.StartExcluding)
	}
	if r.EndIncluding != "" {
		parts = append(parts, "<= "+r.EndIncluding)
	}
	if r.EndExcluding != "" {
		parts = append(parts, "< "+r.EndExcluding)
	}
	if len(parts) == 0 {
		return "*"
	}
	return strings.Join(parts, ", ")
}
