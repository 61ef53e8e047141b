package manifest

// Surface is the central build-contract entity: the compile and link
// requirements a target contributes to itself and, where public, to its
// consumers.
//
// Field shapes follow the original Rust core::surface module; merge
// semantics live in package surface (internal/surface), not here — this
// package only carries the value objects.
type Surface struct {
	Compile      CompileSurface
	Link         LinkSurface
	Abi          AbiToggles
	Conditionals []ConditionalSurface
}

// CompileSurface splits compile requirements into the half visible only
// to the owning target (Private) and the half also visible to consumers
// (Public).
type CompileSurface struct {
	Public  CompileRequirements
	Private CompileRequirements
}

// CompileRequirements is one visibility half of a CompileSurface.
type CompileRequirements struct {
	IncludeDirs []string
	Defines     []Define
	CFlags      []string
}

// Define is a preprocessor define, either a bare flag ("NAME") or a
// name=value pair.
type Define struct {
	Name     string
	Value    string // rendered after "=" only when HasValue is set
	HasValue bool
}

// ToFlag renders a Define the way a GCC-style toolchain expects it after
// the leading "-D" (callers prepend "-D" or "/D" per toolchain family).
func (d Define) ToFlag() string {
	if d.HasValue {
		return d.Name + "=" + d.Value
	}
	return d.Name
}

// LinkSurface splits link requirements into Public/Private halves.
type LinkSurface struct {
	Public  LinkRequirements
	Private LinkRequirements
}

// LinkRequirements is one visibility half of a LinkSurface.
//
// Groups is a supplement over spec.md's original LinkSurface definition,
// grounded on the original Rust implementation's LinkGroup enum — see
// SPEC_FULL.md §3.
type LinkRequirements struct {
	Libs       []LibRef
	LdFlags    []string
	Groups     []LinkGroup
	Frameworks []string
}

// LibRefKind is the closed set of ways a library can be referenced.
type LibRefKind int

const (
	LibSystem LibRefKind = iota
	LibFramework
	LibPath
	LibPackage
)

// LibRef names a library to link against.
type LibRef struct {
	Kind LibRefKind
	// Name is set for LibSystem/LibFramework/LibPackage.
	Name string
	// Path is set for LibPath.
	Path string
	// TargetName is set for LibPackage, naming the target within Name's
	// package.
	TargetName string
}

// ToFlags renders a LibRef as the GCC-style linker argument(s) needed to
// link it. LibPackage resolves to no flags here — its actual archive path
// is filled in by the build planner once the dependency graph is known.
func (l LibRef) ToFlags() []string {
	switch l.Kind {
	case LibSystem:
		return []string{"-l" + l.Name}
	case LibFramework:
		return []string{"-framework", l.Name}
	case LibPath:
		return []string{l.Path}
	case LibPackage:
		return nil
	default:
		return nil
	}
}

// LinkGroupKind distinguishes the two linker-group wrapping strategies.
type LinkGroupKind int

const (
	WholeArchive LinkGroupKind = iota
	StartEndGroup
)

// LinkGroup wraps an ordered sub-list of libraries in linker syntax that
// resolves circular static-library references.
type LinkGroup struct {
	Kind LinkGroupKind
	Libs []LibRef
}

// AbiToggles are the binary-compatibility-affecting switches a target (or
// its build profile) can set.
type AbiToggles struct {
	PIC         *bool
	Visibility  string // "default" | "hidden"
	MSVCRuntime string // "dynamic" | "static"
	CppStdlib   string // "libstdc++" | "libc++"
	Exceptions  *bool
	RTTI        *bool
}

// ConditionalSurface contributes a partial Surface when its PlatformMatch
// condition holds against the build context's target platform.
//
// Patch applies to both the Public and Private slots of whichever
// visibility it sets fields in — broader than the original Rust
// implementation's public-only ConditionalSurface; see DESIGN.md's open
// question resolution.
type ConditionalSurface struct {
	Match PlatformMatch
	Patch PartialSurface
}

// PlatformMatch filters on any subset of {os, arch, env, compiler}; unset
// fields are ignored during matching.
type PlatformMatch struct {
	OS       string
	Arch     string
	Env      string
	Compiler string
}

// Matches reports whether every non-empty field of m equals the
// corresponding field of p.
func (m PlatformMatch) Matches(p TargetPlatform) bool {
	if m.OS != "" && m.OS != p.OS {
		return false
	}
	if m.Arch != "" && m.Arch != p.Arch {
		return false
	}
	if m.Env != "" && m.Env != p.Env {
		return false
	}
	if m.Compiler != "" && m.Compiler != p.Compiler {
		return false
	}
	return true
}

// TargetPlatform identifies the platform a build is producing artifacts
// for.
type TargetPlatform struct {
	OS       string
	Arch     string
	Env      string
	Compiler string
}

// PartialSurface is a Surface fragment with public and private compile
// and link requirements that a ConditionalSurface merges in when its
// match holds.
type PartialSurface struct {
	CompilePublic  *CompileRequirements
	CompilePrivate *CompileRequirements
	LinkPublic     *LinkRequirements
	LinkPrivate    *LinkRequirements
}
