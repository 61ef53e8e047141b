package resolver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// intersectRequirements combines multiple requirement strings referencing
// the same (name, source-root) into a single comma-joined constraint
// expression, which Masterminds/semver/v3 treats as an AND of its
// comparators — the Go equivalent of the original Rust implementation's
// pubgrub::Range intersection in resolver/version.rs, expressed over
// semver.Constraints instead of an explicit Range type.
func intersectRequirements(reqs []string) (*semver.Constraints, error) {
	nonEmpty := make([]string, 0, len(reqs))
	for _, r := range reqs {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		nonEmpty = append(nonEmpty, r)
	}
	if len(nonEmpty) == 0 {
		nonEmpty = []string{"*"}
	}
	joined := strings.Join(nonEmpty, ", ")
	c, err := semver.NewConstraint(joined)
	if err != nil {
		return nil, fmt.Errorf("resolver: invalid requirement %q: %w", joined, err)
	}
	return c, nil
}

// parseVersionLenient parses a version string, falling back to
// one-part (major.0.0) or two-part (major.minor.0) partial forms — mirrors
// the original Rust implementation's parse_version_lenient in
// resolver/version.rs, since manifest authors sometimes write "1" or
// "1.2" as a package's own declared version.
func parseVersionLenient(s string) (*semver.Version, error) {
	if v, err := semver.NewVersion(s); err == nil {
		return v, nil
	}
	parts := strings.Split(s, ".")
	switch len(parts) {
	case 1:
		return semver.NewVersion(s + ".0.0")
	case 2:
		return semver.NewVersion(s + ".0")
	default:
		return nil, fmt.Errorf("resolver: cannot parse version %q", s)
	}
}

// sortVersionsDescending sorts versions highest-first, the deterministic
// candidate order spec.md §4.2 requires ("within a package, versions are
// tried highest-first").
func sortVersionsDescending(versions []*semver.Version) {
	sort.Slice(versions, func(i, j int) bool {
		return versions[i].GreaterThan(versions[j])
	})
}

// bumpPatch increments only the patch component. Nothing in the solver
// calls it.
func bumpPatch(v *semver.Version) *semver.Version {
	bumped := v.IncPatch()
	return &bumped
}
