package source

import (
	"fmt"
	"path/filepath"
	"sync"

	"harbour/internal/intern"
	"harbour/internal/manifest"
	"harbour/internal/pkgid"
)

// Cache owns the map SourceId -> Source, instantiating lazily. Source
// keys are interned once, so lookups in the resolver's prefetch loop
// compare integer symbols instead of key strings. Population only
// happens during the pre-resolve prefetch phase (spec.md §4.2's purity
// requirement); no concurrent writes occur during the build itself.
type Cache struct {
	mu        sync.Mutex
	interner  *intern.Interner
	sources   map[intern.Symbol]Source
	cacheRoot string
	homeDir   string
}

// NewCache constructs an empty Cache rooted at the given cache/home
// directories (normally Context.CacheDir / Context.HomeDir).
func NewCache(cacheRoot, homeDir string) *Cache {
	return &Cache{
		interner:  intern.New(),
		sources:   make(map[intern.Symbol]Source),
		cacheRoot: cacheRoot,
		homeDir:   homeDir,
	}
}

// ForSpec returns (creating if necessary) the Source backing a
// dependency's requested SourceSpec.
func (c *Cache) ForSpec(spec manifest.SourceSpec) (Source, error) {
	switch spec.Kind {
	case manifest.SourcePath:
		key := "path:" + spec.Path
		return c.getOrCreate(key, func() (Source, error) {
			return NewPathSource(spec.Path)
		})
	case manifest.SourceGit:
		key := fmt.Sprintf("git:%s@%d:%s", spec.GitURL, spec.GitRef.Kind, spec.GitRef.Name)
		return c.getOrCreate(key, func() (Source, error) {
			return NewGitSource(spec.GitURL, spec.GitRef, c.cacheRoot), nil
		})
	case manifest.SourceRegistry:
		name := spec.RegistryURL
		if name == "" {
			name = "default"
		}
		key := "registry:" + name
		return c.getOrCreate(key, func() (Source, error) {
			dir := filepath.Join(c.homeDir, "registries", name)
			return NewRegistrySource(name, dir, c.cacheRoot), nil
		})
	default:
		return nil, fmt.Errorf("source: unknown source kind %d", spec.Kind)
	}
}

// ForSourceId returns the Source that already materialized a given
// SourceId, used once resolution has selected a concrete PackageId.
func (c *Cache) ForSourceId(id pkgid.SourceId) (Source, error) {
	switch id.Kind {
	case pkgid.Path:
		key := "path:" + id.Path
		return c.getOrCreate(key, func() (Source, error) { return NewPathSource(id.Path) })
	case pkgid.Git:
		key := id.Key()
		return c.getOrCreate(key, func() (Source, error) {
			ref := manifest.GitReference{Name: id.RefName}
			switch id.RefKind {
			case pkgid.Branch:
				ref.Kind = manifest.Branch
			case pkgid.Tag:
				ref.Kind = manifest.Tag
			case pkgid.Rev:
				ref.Kind = manifest.Rev
			default:
				ref.Kind = manifest.DefaultBranch
			}
			return NewGitSource(id.GitURL, ref, c.cacheRoot), nil
		})
	case pkgid.Registry:
		key := "registry-by-url:" + id.RegistryURL
		return c.getOrCreate(key, func() (Source, error) {
			return NewGitSource(id.RegistryURL, manifest.GitReference{Kind: manifest.DefaultBranch}, c.cacheRoot), nil
		})
	default:
		return nil, fmt.Errorf("source: unknown SourceId kind %d", id.Kind)
	}
}

func (c *Cache) getOrCreate(key string, build func() (Source, error)) (Source, error) {
	sym := c.interner.Intern(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sources[sym]; ok {
		return s, nil
	}
	s, err := build()
	if err != nil {
		return nil, err
	}
	c.sources[sym] = s
	return s, nil
}
