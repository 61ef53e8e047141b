package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"harbour/internal/manifest"
	"harbour/internal/pkgid"
	"harbour/internal/resolver"
)

// manifestNames are the accepted spellings, tried in order.
var manifestNames = []string{"Harbour.toml", "Harbor.toml"}

// Project is the loaded root package an operation runs against.
type Project struct {
	Root          string // absolute project directory
	Manifest      manifest.Manifest
	ManifestBytes []byte
	ManifestHash  string
	ID            pkgid.PackageId
}

// LoadProject reads and types the manifest at dir (or the nearest
// accepted spelling), computing the content hash the lockfile freshness
// check compares against.
func LoadProject(dir string) (*Project, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, phaseErr(PhaseManifest, err)
	}

	var data []byte
	var found bool
	for _, name := range manifestNames {
		data, err = os.ReadFile(filepath.Join(abs, name))
		if err == nil {
			found = true
			break
		}
	}
	if !found {
		return nil, phaseErr(PhaseManifest, fmt.Errorf("no Harbour.toml in %s", abs))
	}

	m, err := manifest.Load(data)
	if err != nil {
		return nil, phaseErr(PhaseManifest, err)
	}
	m.AbsolutizePaths(abs)

	return &Project{
		Root:          abs,
		Manifest:      m,
		ManifestBytes: data,
		ManifestHash:  resolver.ManifestContentHash(data),
		ID: pkgid.PackageId{
			Name:    m.Package.Name,
			Version: m.Package.Version,
			Source:  pkgid.SourceId{Kind: pkgid.Path, Path: abs},
		},
	}, nil
}

// LockfilePath is where the project's lockfile lives.
func (p *Project) LockfilePath() string {
	return filepath.Join(p.Root, "Harbour.lock")
}

// OutDir is the build output directory for one profile.
func (p *Project) OutDir(profile string) string {
	return filepath.Join(p.Root, ".harbour", "target", profile)
}

// Profile resolves a named profile, falling back to the built-in debug
// and release shapes when the manifest does not define it.
func (p *Project) Profile(name string) manifest.Profile {
	if name == "" {
		name = "debug"
	}
	if prof, ok := p.Manifest.Profiles[name]; ok {
		return prof
	}
	switch name {
	case "release":
		return manifest.Profile{Name: "release", OptLevel: "2"}
	default:
		return manifest.Profile{Name: name, OptLevel: "0", DebugInfo: true}
	}
}

// RootTargets returns the root package's target names, sorted.
func (p *Project) RootTargets() []string {
	names := make([]string, 0, len(p.Manifest.Targets))
	for name := range p.Manifest.Targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
