// Package manifest holds Harbour's typed value objects — Manifest,
// Target, Dependency, Surface — and the codec that loads them from
// Harbour.toml. The Harbour.lock codec lives in internal/resolver.
package manifest

import "path/filepath"

// TargetKind enumerates the kinds of build targets a package can declare.
type TargetKind string

const (
	Exe        TargetKind = "exe"
	StaticLib  TargetKind = "static-lib"
	SharedLib  TargetKind = "shared-lib"
	HeaderOnly TargetKind = "header-only"
)

// Language is the source language a target is compiled as.
type Language string

const (
	LangC   Language = "c"
	LangCpp Language = "cpp"
)

// Recipe selects how a target's outputs are produced.
type Recipe string

const (
	RecipeNative Recipe = "native"
	RecipeCMake  Recipe = "cmake"
	RecipeCustom Recipe = "custom"
)

// Manifest is the typed, read-only-after-load representation of a single
// package's Harbour.toml.
type Manifest struct {
	Package      PackageMeta
	Dependencies map[string]Dependency
	Targets      map[string]Target
	Workspace    *Workspace
	Build        *BuildDefaults
	Profiles     map[string]Profile
}

// PackageMeta carries a package's own identity fields.
type PackageMeta struct {
	Name    string
	Version string
	Authors []string
}

// Dependency is a single entry in a manifest's [dependencies] table.
type Dependency struct {
	Name        string
	Requirement string
	Source      SourceSpec
	Optional    bool
	Features    []string
}

// SourceSpec is the *requested* source of a dependency, as written in the
// manifest — distinct from a resolved SourceId, which additionally
// carries a pinned git commit once resolution has run.
type SourceSpec struct {
	Kind SourceKind
	// Path is set when Kind == SourcePath.
	Path string
	// GitURL/GitRef are set when Kind == SourceGit.
	GitURL string
	GitRef GitReference
	// RegistryURL is set when Kind == SourceRegistry.
	RegistryURL string
}

// SourceKind is the closed set of source variants a SourceSpec can name.
type SourceKind int

const (
	SourcePath SourceKind = iota
	SourceGit
	SourceRegistry
)

// GitReference pins a git dependency to a branch, tag, revision, or the
// remote's default branch.
type GitReference struct {
	Kind GitRefKind
	Name string // branch/tag/rev name; unused for DefaultBranch
}

type GitRefKind int

const (
	DefaultBranch GitRefKind = iota
	Branch
	Tag
	Rev
)

// Target is a single buildable (or header-only) unit within a package.
type Target struct {
	Name          string
	Kind          TargetKind
	Language      Language
	CStd          string
	CppStd        string
	Sources       []string
	PublicHeaders []string
	Surface       Surface
	Deps          []TargetDep
	Recipe        Recipe
}

// TargetDep names a target's consumption of another target with explicit
// compile/link visibility.
type TargetDep struct {
	PackageName       string
	TargetName        string
	CompileVisibility Visibility
	LinkVisibility    Visibility
}

// Visibility controls whether a surface contribution is re-exported to a
// target's own consumers.
type Visibility int

const (
	Private Visibility = iota
	Public
)

// AbsolutizePaths rewrites relative path-dependency specs against the
// directory the manifest was loaded from, so a spec like
// `{ path = "../mylib" }` means the same thing no matter where the
// process was started.
func (m *Manifest) AbsolutizePaths(base string) {
	for name, dep := range m.Dependencies {
		if dep.Source.Kind == SourcePath && !filepath.IsAbs(dep.Source.Path) {
			dep.Source.Path = filepath.Join(base, dep.Source.Path)
			m.Dependencies[name] = dep
		}
	}
}

// Workspace groups sibling packages under one root for multi-package
// repositories; out of scope for resolution semantics, carried through
// as a value object only.
type Workspace struct {
	Members []string
}

// BuildDefaults are workspace-wide fallback build settings.
type BuildDefaults struct {
	CStd       string
	CppStd     string
	Exceptions *bool
	RTTI       *bool
}

// Profile is a named build configuration (debug/release/...).
type Profile struct {
	Name       string
	OptLevel   string
	DebugInfo  bool
	Sanitizers []string
}
