package toolchain

import (
	"strings"

	"harbour/internal/manifest"
)

// NewGCCStyle returns a GCC-dialect toolchain without probing, for
// callers that already know the compiler's identity (tests, cached
// detection results).
func NewGCCStyle(cc, cxx, ar, compilerID, fullVersion string) Toolchain {
	return &gccToolchain{
		cc: cc, cxx: cxx, ar: ar,
		compilerID:  compilerID,
		fullVersion: fullVersion,
		majorMinor:  splitMajorMinor(versionDigits(fullVersion)),
	}
}

// gccToolchain renders GCC-dialect commands, covering GCC, Clang, and
// Apple Clang.
type gccToolchain struct {
	cc  string
	cxx string
	ar  string

	compilerID  string // "gcc" | "clang" | "apple-clang"
	fullVersion string
	majorMinor  string
}

func (t *gccToolchain) Family() Family      { return FamilyGCC }
func (t *gccToolchain) FullVersion() string { return t.fullVersion }
func (t *gccToolchain) MajorMinor() string  { return t.majorMinor }

func (t *gccToolchain) ObjectExt() string { return ".o" }

func (t *gccToolchain) StaticLibName(target string) string { return "lib" + target + ".a" }
func (t *gccToolchain) SharedLibName(target string) string { return "lib" + target + ".so" }
func (t *gccToolchain) ExeName(target string) string       { return target }

func (t *gccToolchain) compiler(lang manifest.Language) string {
	if lang == manifest.LangCpp {
		return t.cxx
	}
	return t.cc
}

func (t *gccToolchain) Compile(in CompileInputs) Invocation {
	args := []string{"-c", in.Source, "-o", in.Object}
	if in.DepFile != "" {
		args = append(args, "-MMD", "-MF", in.DepFile)
	}
	if in.Std != "" {
		args = append(args, "-std="+stdFlag(in.Language, in.Std))
	}
	for _, dir := range in.IncludeDirs {
		args = append(args, "-I"+dir)
	}
	for _, d := range in.Defines {
		args = append(args, "-D"+d.ToFlag())
	}
	if in.OptLevel != "" {
		args = append(args, "-O"+in.OptLevel)
	}
	if in.DebugInfo {
		args = append(args, "-g")
	}
	for _, s := range in.Sanitizers {
		args = append(args, "-fsanitize="+s)
	}
	args = append(args, abiCompileFlags(t.compilerID, in.Language, in.Abi)...)
	args = append(args, in.Flags...)
	return Invocation{Program: t.compiler(in.Language), Args: args}
}

// abiCompileFlags renders AbiToggles in GCC dialect. MSVCRuntime has no
// GCC equivalent and is ignored here.
func abiCompileFlags(compilerID string, lang manifest.Language, abi manifest.AbiToggles) []string {
	var args []string
	if abi.PIC != nil && *abi.PIC {
		args = append(args, "-fPIC")
	}
	if abi.Visibility != "" {
		args = append(args, "-fvisibility="+abi.Visibility)
	}
	if lang == manifest.LangCpp {
		if abi.CppStdlib == "libc++" && compilerID != "gcc" {
			args = append(args, "-stdlib=libc++")
		}
		if abi.Exceptions != nil && !*abi.Exceptions {
			args = append(args, "-fno-exceptions")
		}
		if abi.RTTI != nil && !*abi.RTTI {
			args = append(args, "-fno-rtti")
		}
	}
	return args
}

// stdFlag renders the -std= value: a bare number becomes c<n>/c++<n>, a
// fully spelled value ("gnu11", "c++2a") passes through.
func stdFlag(lang manifest.Language, std string) string {
	if std == "" {
		return ""
	}
	if strings.IndexFunc(std, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return std
	}
	if lang == manifest.LangCpp {
		return "c++" + std
	}
	return "c" + std
}

func (t *gccToolchain) Archive(objects []string, out string) Invocation {
	args := append([]string{"rcs", out}, objects...)
	return Invocation{Program: t.ar, Args: args}
}

func (t *gccToolchain) Link(in LinkInputs) Invocation {
	args := append([]string{}, in.Objects...)
	if in.Kind == manifest.SharedLib {
		args = append(args, "-shared")
	}
	args = append(args, "-o", in.Output)
	args = append(args, in.Archives...)
	for _, g := range in.Groups {
		args = append(args, linkGroupFlags(g)...)
	}
	for _, l := range in.Libs {
		args = append(args, l.ToFlags()...)
	}
	for _, fw := range in.Frameworks {
		args = append(args, "-framework", fw)
	}
	args = append(args, in.LdFlags...)
	if in.Language == manifest.LangCpp && in.Abi.CppStdlib == "libc++" && t.compilerID != "gcc" {
		args = append(args, "-stdlib=libc++")
	}
	return Invocation{Program: t.compiler(in.Language), Args: args}
}

// linkGroupFlags wraps a group's libraries in the linker syntax that
// resolves circular archive references.
func linkGroupFlags(g manifest.LinkGroup) []string {
	var inner []string
	for _, l := range g.Libs {
		if l.Kind == manifest.LibPath {
			inner = append(inner, l.Path)
		} else {
			inner = append(inner, l.ToFlags()...)
		}
	}
	switch g.Kind {
	case manifest.WholeArchive:
		out := []string{"-Wl,--whole-archive"}
		out = append(out, inner...)
		return append(out, "-Wl,--no-whole-archive")
	case manifest.StartEndGroup:
		out := []string{"-Wl,--start-group"}
		out = append(out, inner...)
		return append(out, "-Wl,--end-group")
	default:
		return inner
	}
}

func splitMajorMinor(version string) string {
	parts := strings.SplitN(version, ".", 3)
	if len(parts) >= 2 {
		return parts[0] + "." + parts[1]
	}
	return version
}
