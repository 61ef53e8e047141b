// Package pkgid defines PackageId and SourceId, the identity types shared
// across the source cache, resolver, surface resolver, and planner.
package pkgid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// SourceKind is the closed set of source variants an interned SourceId
// can name.
type SourceKind int

const (
	Path SourceKind = iota
	Git
	Registry
)

func (k SourceKind) String() string {
	switch k {
	case Path:
		return "path"
	case Git:
		return "git"
	case Registry:
		return "registry"
	default:
		return "unknown"
	}
}

// GitRefKind distinguishes how a Git SourceId pins its revision.
type GitRefKind int

const (
	DefaultBranch GitRefKind = iota
	Branch
	Tag
	Rev
)

// SourceId is an interned handle identifying a package's origin.
// Equality is structural (two SourceIds naming the same location and
// reference are equal), which is what the interner collapses to pointer
// identity in internal/source.
type SourceId struct {
	Kind SourceKind

	// Path is set when Kind == Path: an absolute filesystem path.
	Path string

	// GitURL/RefKind/RefName are set when Kind == Git. For a resolved
	// Branch reference, RefName additionally carries the pinned commit
	// once resolution has run (see spec.md §4.2's branch-pinning rule).
	GitURL  string
	RefKind GitRefKind
	RefName string

	// RegistryURL is set when Kind == Registry.
	RegistryURL string
}

// Key returns a stable string encoding of the SourceId suitable for use
// as a map key or cache directory name component.
func (s SourceId) Key() string {
	switch s.Kind {
	case Path:
		return "path:" + s.Path
	case Git:
		return fmt.Sprintf("git:%s@%d:%s", s.GitURL, s.RefKind, s.RefName)
	case Registry:
		return "registry:" + s.RegistryURL
	default:
		return "unknown"
	}
}

// ParseKey reverses Key, reconstructing a SourceId from its stable
// string encoding — used when rebuilding a Resolve graph from a
// lockfile.
func ParseKey(key string) (SourceId, error) {
	switch {
	case len(key) > 5 && key[:5] == "path:":
		return SourceId{Kind: Path, Path: key[5:]}, nil
	case len(key) > 4 && key[:4] == "git:":
		rest := key[4:]
		at := -1
		for i := len(rest) - 1; i >= 0; i-- {
			if rest[i] == '@' {
				at = i
				break
			}
		}
		if at < 0 {
			return SourceId{}, fmt.Errorf("pkgid: malformed git source key %q", key)
		}
		seg := rest[at+1:]
		colon := -1
		for i := 0; i < len(seg); i++ {
			if seg[i] == ':' {
				colon = i
				break
			}
		}
		if colon < 1 {
			return SourceId{}, fmt.Errorf("pkgid: malformed git source key %q", key)
		}
		var kind int
		if _, err := fmt.Sscanf(seg[:colon], "%d", &kind); err != nil {
			return SourceId{}, fmt.Errorf("pkgid: malformed git ref kind in %q: %w", key, err)
		}
		return SourceId{Kind: Git, GitURL: rest[:at], RefKind: GitRefKind(kind), RefName: seg[colon+1:]}, nil
	case len(key) > 9 && key[:9] == "registry:":
		return SourceId{Kind: Registry, RegistryURL: key[9:]}, nil
	default:
		return SourceId{}, fmt.Errorf("pkgid: unrecognized source key %q", key)
	}
}

// CacheDir returns the content-addressed cache directory name for this
// SourceId, per spec.md §4.1: sha256(url || reference) hex-encoded.
func (s SourceId) CacheDir() string {
	h := sha256.Sum256([]byte(s.Key()))
	return hex.EncodeToString(h[:])
}

// PackageId is the triple (name, version, source) that identifies a node
// in the resolve graph. Equality is structural: two packages with the
// same name from different sources coexist as distinct PackageIds.
type PackageId struct {
	Name    string
	Version string
	Source  SourceId
}

// Less orders PackageIds by (name, version, source-key), the fixed order
// spec.md §4.2 requires for deterministic candidate selection and
// topological-order tiebreaking.
func (p PackageId) Less(other PackageId) bool {
	if p.Name != other.Name {
		return p.Name < other.Name
	}
	if p.Version != other.Version {
		return p.Version < other.Version
	}
	return p.Source.Key() < other.Source.Key()
}

// String renders a PackageId for diagnostics and provenance chains.
func (p PackageId) String() string {
	return fmt.Sprintf("%s@%s(%s)", p.Name, p.Version, p.Source.Kind)
}
