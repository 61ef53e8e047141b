package source

import (
	"fmt"
	"os"
	"path/filepath"

	"harbour/internal/manifest"
	"harbour/internal/pkgid"
	"harbour/internal/vcsgit"
)

// GitSource materializes a dependency from a git repository into a
// content-addressed directory under the cache root, keyed by
// sha256(url || reference). A Branch reference is pinned to its current
// commit at first resolution and that commit is what gets written to the
// lockfile (spec.md §4.2 / §9's first open question).
type GitSource struct {
	URL       string
	Ref       manifest.GitReference
	CacheRoot string

	pinnedCommit string // set once Query has pinned a Branch reference
}

// NewGitSource constructs a GitSource; cacheRoot is the Context's
// CacheDir.
func NewGitSource(url string, ref manifest.GitReference, cacheRoot string) *GitSource {
	return &GitSource{URL: url, Ref: ref, CacheRoot: cacheRoot}
}

func (s *GitSource) sourceId() pkgid.SourceId {
	kind := pkgid.DefaultBranch
	switch s.Ref.Kind {
	case manifest.Branch:
		kind = pkgid.Branch
	case manifest.Tag:
		kind = pkgid.Tag
	case manifest.Rev:
		kind = pkgid.Rev
	}
	name := s.Ref.Name
	if kind == pkgid.Branch && s.pinnedCommit != "" {
		name = s.pinnedCommit
	}
	return pkgid.SourceId{Kind: pkgid.Git, GitURL: s.URL, RefKind: kind, RefName: name}
}

func (s *GitSource) cacheDir() string {
	return filepath.Join(s.CacheRoot, "git", s.sourceId().CacheDir())
}

// ensureClone clones into the cache directory if absent, then checks out
// the requested reference, pinning Branch references to their current
// commit on first materialization only.
func (s *GitSource) ensureClone() error {
	dir := s.cacheDir()
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
			return fmt.Errorf("source: git: %w", err)
		}
		if err := vcsgit.Clone(s.URL, dir); err != nil {
			return fmt.Errorf("source: git: %w", err)
		}
	}

	ref := s.Ref.Name
	if s.Ref.Kind == manifest.DefaultBranch {
		return nil // freshly cloned HEAD is already the default branch
	}
	if err := vcsgit.CheckoutRef(dir, ref); err != nil {
		return fmt.Errorf("source: git: %w", err)
	}
	if s.Ref.Kind == manifest.Branch && s.pinnedCommit == "" {
		sha, err := vcsgit.RevParse(dir, "HEAD")
		if err != nil {
			return fmt.Errorf("source: git: pin branch %q: %w", ref, err)
		}
		s.pinnedCommit = sha
	}
	return nil
}

func (s *GitSource) loadManifest() (manifest.Manifest, error) {
	if err := s.ensureClone(); err != nil {
		return manifest.Manifest{}, err
	}
	path := filepath.Join(s.cacheDir(), "Harbour.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return manifest.Manifest{}, fmt.Errorf("source: git: read %s: %w", path, err)
	}
	m, err := manifest.Load(data)
	if err != nil {
		return manifest.Manifest{}, err
	}
	m.AbsolutizePaths(s.cacheDir())
	return m, nil
}

func (s *GitSource) Query(name, requirement string) ([]Handle, error) {
	m, err := s.loadManifest()
	if err != nil {
		return nil, &NotFoundError{Package: name, Cause: err}
	}
	if m.Package.Name != name {
		return nil, &NotFoundError{Package: name, Cause: fmt.Errorf("git %s declares package %q", s.URL, m.Package.Name)}
	}
	return []Handle{{Name: m.Package.Name, Version: m.Package.Version, Source: s.sourceId()}}, nil
}

func (s *GitSource) LoadPackage(h Handle) (Summary, error) {
	m, err := s.loadManifest()
	if err != nil {
		return Summary{}, err
	}
	return Summary{Name: m.Package.Name, Version: m.Package.Version, Dependencies: m.Dependencies}, nil
}

func (s *GitSource) EnsureReady(h Handle) error {
	return s.ensureClone()
}

func (s *GitSource) PackagePath(h Handle) (string, error) {
	if err := s.ensureClone(); err != nil {
		return "", err
	}
	return s.cacheDir(), nil
}

func (s *GitSource) IsCached(h Handle) bool {
	_, err := os.Stat(s.cacheDir())
	return err == nil
}
