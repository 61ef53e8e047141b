package source

import (
	"fmt"
	"os"
	"path/filepath"

	"harbour/internal/manifest"
	"harbour/internal/pkgid"
)

// PathSource yields a single version — the one declared in the path's own
// Harbour.toml — regardless of the requested requirement; the
// requirement is nonetheless checked against it by the resolver.
type PathSource struct {
	Root string // absolute filesystem path
}

// NewPathSource constructs a PathSource rooted at an absolute directory.
func NewPathSource(root string) (*PathSource, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("source: path dependency %q: %w", root, err)
	}
	return &PathSource{Root: abs}, nil
}

func (s *PathSource) manifestPath() string {
	return filepath.Join(s.Root, "Harbour.toml")
}

func (s *PathSource) loadManifest() (manifest.Manifest, error) {
	data, err := os.ReadFile(s.manifestPath())
	if err != nil {
		return manifest.Manifest{}, fmt.Errorf("source: read %s: %w", s.manifestPath(), err)
	}
	m, err := manifest.Load(data)
	if err != nil {
		return manifest.Manifest{}, err
	}
	m.AbsolutizePaths(s.Root)
	return m, nil
}

func (s *PathSource) Query(name, requirement string) ([]Handle, error) {
	m, err := s.loadManifest()
	if err != nil {
		return nil, &NotFoundError{Package: name, Cause: err}
	}
	if m.Package.Name != name {
		return nil, &NotFoundError{Package: name, Cause: fmt.Errorf("path %s declares package %q", s.Root, m.Package.Name)}
	}
	return []Handle{{
		Name:    m.Package.Name,
		Version: m.Package.Version,
		Source:  pkgid.SourceId{Kind: pkgid.Path, Path: s.Root},
	}}, nil
}

func (s *PathSource) LoadPackage(h Handle) (Summary, error) {
	m, err := s.loadManifest()
	if err != nil {
		return Summary{}, err
	}
	return Summary{Name: m.Package.Name, Version: m.Package.Version, Dependencies: m.Dependencies}, nil
}

func (s *PathSource) EnsureReady(h Handle) error {
	_, err := s.loadManifest()
	return err
}

func (s *PathSource) PackagePath(h Handle) (string, error) {
	return s.Root, nil
}

func (s *PathSource) IsCached(h Handle) bool {
	_, err := os.Stat(s.manifestPath())
	return err == nil
}
