package source

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/Masterminds/semver/v3"

	"harbour/internal/manifest"
	"harbour/internal/pkgid"
	"harbour/internal/regfmt"
)

// RegistrySource reads shim files from a cloned registry index, each
// redirecting to the package's actual git source plus optional surface
// patches, per spec.md §4.1.
type RegistrySource struct {
	RegistryName string
	RegistryDir  string // <HomeDir>/registries/<name>
	CacheRoot    string
}

func NewRegistrySource(registryName, registryDir, cacheRoot string) *RegistrySource {
	return &RegistrySource{RegistryName: registryName, RegistryDir: registryDir, CacheRoot: cacheRoot}
}

func (s *RegistrySource) indexPath() string {
	return filepath.Join(s.RegistryDir, "registry.json")
}

func (s *RegistrySource) shimPath(name, version string) string {
	letter := strings.ToUpper(string(name[0]))
	return filepath.Join(s.RegistryDir, letter, name, version, "specs.toml")
}

func (s *RegistrySource) readShim(name, version string) (regfmt.Specs, error) {
	data, err := os.ReadFile(s.shimPath(name, version))
	if err != nil {
		return regfmt.Specs{}, fmt.Errorf("source: registry %s: read shim for %s@%s: %w", s.RegistryName, name, version, err)
	}
	var specs regfmt.Specs
	if _, err := toml.Decode(string(data), &specs); err != nil {
		return regfmt.Specs{}, fmt.Errorf("source: registry %s: parse shim for %s@%s: %w", s.RegistryName, name, version, err)
	}
	return specs, nil
}

// Query lists every version directory under <Letter>/<name>/ that
// satisfies requirement; an empty or unparsable requirement lists every
// version. The resolver still checks each candidate against the
// intersected constraint.
func (s *RegistrySource) Query(name, requirement string) ([]Handle, error) {
	letter := strings.ToUpper(string(name[0]))
	pkgDir := filepath.Join(s.RegistryDir, letter, name)
	entries, err := os.ReadDir(pkgDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // reachable, no versions published
		}
		return nil, &NotFoundError{Package: name, Cause: err}
	}
	var constraint *semver.Constraints
	if strings.TrimSpace(requirement) != "" {
		if c, err := semver.NewConstraint(requirement); err == nil {
			constraint = c
		}
	}

	var handles []Handle
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		version := e.Name()
		if constraint != nil {
			v, err := semver.NewVersion(version)
			if err != nil || !constraint.Check(v) {
				continue
			}
		}
		specs, err := s.readShim(name, version)
		if err != nil {
			continue
		}
		handles = append(handles, Handle{
			Name:    name,
			Version: version,
			Source:  pkgid.SourceId{Kind: pkgid.Registry, RegistryURL: specs.GitURL},
		})
	}
	// Highest version first, the deterministic order the resolver's
	// candidate loop expects.
	sort.Slice(handles, func(i, j int) bool {
		vi, erri := semver.NewVersion(handles[i].Version)
		vj, errj := semver.NewVersion(handles[j].Version)
		if erri != nil || errj != nil {
			return handles[i].Version > handles[j].Version
		}
		return vi.GreaterThan(vj)
	})
	return handles, nil
}

func (s *RegistrySource) resolveGitSource(h Handle) (*GitSource, error) {
	specs, err := s.readShim(h.Name, h.Version)
	if err != nil {
		return nil, err
	}
	return NewGitSource(specs.GitURL, manifest.GitReference{Kind: manifest.Rev, Name: specs.SHA1}, s.CacheRoot), nil
}

func (s *RegistrySource) LoadPackage(h Handle) (Summary, error) {
	gs, err := s.resolveGitSource(h)
	if err != nil {
		return Summary{}, err
	}
	return gs.LoadPackage(Handle{Name: h.Name, Version: h.Version, Source: gs.sourceId()})
}

func (s *RegistrySource) EnsureReady(h Handle) error {
	gs, err := s.resolveGitSource(h)
	if err != nil {
		return err
	}
	return gs.EnsureReady(Handle{})
}

func (s *RegistrySource) PackagePath(h Handle) (string, error) {
	gs, err := s.resolveGitSource(h)
	if err != nil {
		return "", err
	}
	return gs.PackagePath(Handle{})
}

func (s *RegistrySource) IsCached(h Handle) bool {
	gs, err := s.resolveGitSource(h)
	if err != nil {
		return false
	}
	return gs.IsCached(Handle{})
}
