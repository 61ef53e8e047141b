package resolver

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"harbour/internal/pkgid"
)

// LockEntry is one package's record in the lockfile: a sorted, human-
// inspectable serialization of a Resolve node.
type LockEntry struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	SourceKind   string   `json:"source_kind"`
	SourceID     string   `json:"source_id"`
	Checksum     string   `json:"checksum,omitempty"`
	Dependencies []string `json:"dependencies"` // "name@version", sorted
}

// Lockfile is the canonical, sorted serialization of a Resolve graph plus
// the manifest-content-hash freshness header.
type Lockfile struct {
	ManifestHash string      `json:"manifest_hash"`
	Packages     []LockEntry `json:"packages"`
}

// ManifestContentHash computes the SHA-256 over the canonicalized root
// manifest bytes, used for the lockfile freshness check.
func ManifestContentHash(canonicalManifestBytes []byte) string {
	h := sha256.Sum256(canonicalManifestBytes)
	return hex.EncodeToString(h[:])
}

// FromResolve builds a canonical Lockfile from a resolved graph: entries
// sorted by PackageId, each entry's dependency list sorted.
func FromResolve(r *Resolve, manifestHash string) (*Lockfile, error) {
	pkgs := r.Packages()
	sort.Slice(pkgs, func(i, j int) bool { return pkgs[i].Less(pkgs[j]) })

	lf := &Lockfile{ManifestHash: manifestHash}
	for _, id := range pkgs {
		entry := LockEntry{
			Name:       id.Name,
			Version:    id.Version,
			SourceKind: id.Source.Kind.String(),
			SourceID:   id.Source.Key(),
		}
		for _, d := range r.Dependencies(id) {
			entry.Dependencies = append(entry.Dependencies, fmt.Sprintf("%s@%s", d.Name, d.Version))
		}
		sort.Strings(entry.Dependencies)
		lf.Packages = append(lf.Packages, entry)
	}
	return lf, nil
}

// Serialize renders a Lockfile in its canonical on-disk form: stable
// field order (guaranteed by struct declaration order under
// encoding/json), LF-only line endings, one trailing newline. Must
// round-trip: Serialize(Parse(x)) == x for any canonical x.
func Serialize(lf *Lockfile) ([]byte, error) {
	data, err := json.MarshalIndent(lf, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("lockfile: marshal: %w", err)
	}
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	data = append(data, '\n')
	return data, nil
}

// Parse reads a canonical lockfile.
func Parse(data []byte) (*Lockfile, error) {
	var lf Lockfile
	if err := json.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("lockfile: parse: %w", err)
	}
	return &lf, nil
}

// IsFresh reports whether lf's recorded manifest hash matches the current
// one; callers additionally verify each entry's source is still valid
// (paths exist, git commits still resolvable) before reusing a lockfile,
// per spec.md §4.2 — that existence check is I/O-bound and lives in the
// caller (internal/source), not here.
func (lf *Lockfile) IsFresh(currentManifestHash string) bool {
	return lf != nil && lf.ManifestHash == currentManifestHash
}

// ToResolve reconstructs a Resolve graph directly from a fresh lockfile,
// skipping resolution entirely, per spec.md §4.2's freshness-reuse rule.
// Each entry's SourceId is parsed back from its recorded key, so the
// reconstructed node identities match what a fresh resolution would
// produce.
func (lf *Lockfile) ToResolve(rootID pkgid.PackageId) (*Resolve, error) {
	r := NewResolve()
	r.SetRoot(rootID)

	byKey := make(map[string]pkgid.PackageId, len(lf.Packages))
	for _, e := range lf.Packages {
		src, err := pkgid.ParseKey(e.SourceID)
		if err != nil {
			return nil, &LockfileStaleError{Why: err.Error()}
		}
		id := pkgid.PackageId{Name: e.Name, Version: e.Version, Source: src}
		byKey[fmt.Sprintf("%s@%s", e.Name, e.Version)] = id
		r.AddPackage(id)
	}
	for _, e := range lf.Packages {
		from := byKey[fmt.Sprintf("%s@%s", e.Name, e.Version)]
		for _, depKey := range e.Dependencies {
			to, ok := byKey[depKey]
			if !ok {
				return nil, &LockfileStaleError{Why: fmt.Sprintf("dependency %q of %s@%s not present as its own entry", depKey, e.Name, e.Version)}
			}
			r.AddEdge(from, to)
		}
	}
	return r, nil
}
