// Package toolchain abstracts over compiler families: given a compile,
// archive, or link step's inputs it produces the exact command to run.
// Command assembly is pure — detection is the only place this package
// touches a subprocess.
package toolchain

import (
	"harbour/internal/manifest"
)

// Family is the closed set of flag dialects Harbour speaks. GCC covers
// GCC, Clang, and Apple Clang; MSVC covers cl.exe.
type Family int

const (
	FamilyGCC Family = iota
	FamilyMSVC
)

func (f Family) String() string {
	switch f {
	case FamilyGCC:
		return "gcc"
	case FamilyMSVC:
		return "msvc"
	default:
		return "unknown"
	}
}

// Invocation is one ready-to-spawn command.
type Invocation struct {
	Program string
	Args    []string
	Env     []string // extra environment entries, KEY=VALUE
}

// CompileInputs is everything a toolchain needs to render one compile
// command.
type CompileInputs struct {
	Source  string
	Object  string
	DepFile string // header-dependency output; empty disables

	Language manifest.Language
	Std      string // bare standard, e.g. "17", "c11"

	IncludeDirs []string
	Defines     []manifest.Define
	Flags       []string

	OptLevel   string
	DebugInfo  bool
	Sanitizers []string

	Abi manifest.AbiToggles
}

// LinkInputs is everything a toolchain needs to render one link command.
// Inputs (objects then archives) arrive already ordered by the planner.
type LinkInputs struct {
	Objects  []string
	Archives []string

	Libs       []manifest.LibRef
	Groups     []manifest.LinkGroup
	Frameworks []string
	LdFlags    []string

	Output string
	Kind   manifest.TargetKind // Exe or SharedLib

	Language manifest.Language
	Abi      manifest.AbiToggles
}

// Toolchain renders compile, archive, and link invocations in one flag
// dialect.
type Toolchain interface {
	Family() Family
	// FullVersion is the compiler's complete version line, part of the
	// toolchain fingerprint.
	FullVersion() string
	// MajorMinor is the "major.minor" slice of the version, part of the
	// ABI identity.
	MajorMinor() string

	Compile(in CompileInputs) Invocation
	Archive(objects []string, out string) Invocation
	Link(in LinkInputs) Invocation

	// ObjectExt and artifact naming differ per dialect.
	ObjectExt() string
	StaticLibName(target string) string
	SharedLibName(target string) string
	ExeName(target string) string
}
