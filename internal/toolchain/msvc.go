package toolchain

import (
	"strings"

	"harbour/internal/manifest"
)

// msvcToolchain renders cl.exe-dialect commands.
type msvcToolchain struct {
	cl  string
	lib string

	fullVersion string
	majorMinor  string
}

func (t *msvcToolchain) Family() Family      { return FamilyMSVC }
func (t *msvcToolchain) FullVersion() string { return t.fullVersion }
func (t *msvcToolchain) MajorMinor() string  { return t.majorMinor }

func (t *msvcToolchain) ObjectExt() string { return ".obj" }

func (t *msvcToolchain) StaticLibName(target string) string { return target + ".lib" }
func (t *msvcToolchain) SharedLibName(target string) string { return target + ".dll" }
func (t *msvcToolchain) ExeName(target string) string       { return target + ".exe" }

func (t *msvcToolchain) Compile(in CompileInputs) Invocation {
	args := []string{"/nologo", "/c", in.Source, "/Fo:" + in.Object}
	if in.DepFile != "" {
		// cl.exe has no -MF equivalent; /showIncludes output is captured
		// by the executor and rewritten into the dep file.
		args = append(args, "/showIncludes")
	}
	if in.Std != "" {
		args = append(args, "/std:"+stdFlag(in.Language, in.Std))
	}
	for _, dir := range in.IncludeDirs {
		args = append(args, "/I"+dir)
	}
	for _, d := range in.Defines {
		args = append(args, "/D"+d.ToFlag())
	}
	switch in.OptLevel {
	case "", "0":
		args = append(args, "/Od")
	default:
		args = append(args, "/O"+in.OptLevel)
	}
	if in.DebugInfo {
		args = append(args, "/Z7")
	}
	args = append(args, msvcRuntimeFlag(in.Abi, in.DebugInfo))
	if in.Language == manifest.LangCpp {
		if in.Abi.Exceptions == nil || *in.Abi.Exceptions {
			args = append(args, "/EHsc")
		}
		if in.Abi.RTTI != nil && !*in.Abi.RTTI {
			args = append(args, "/GR-")
		}
	}
	args = append(args, in.Flags...)
	return Invocation{Program: t.cl, Args: args}
}

// msvcRuntimeFlag picks /MT|/MD (plus the debug variant) from the joined
// ABI toggles; dynamic runtime is the default, matching cl.exe itself.
func msvcRuntimeFlag(abi manifest.AbiToggles, debug bool) string {
	base := "/MD"
	if abi.MSVCRuntime == "static" {
		base = "/MT"
	}
	if debug {
		return base + "d"
	}
	return base
}

func (t *msvcToolchain) Archive(objects []string, out string) Invocation {
	args := append([]string{"/nologo", "/OUT:" + out}, objects...)
	return Invocation{Program: t.lib, Args: args}
}

func (t *msvcToolchain) Link(in LinkInputs) Invocation {
	args := []string{"/nologo"}
	args = append(args, in.Objects...)
	if in.Kind == manifest.SharedLib {
		args = append(args, "/LD")
	}
	args = append(args, "/Fe:"+in.Output, "/link")
	args = append(args, in.Archives...)
	for _, g := range in.Groups {
		args = append(args, msvcGroupFlags(g)...)
	}
	for _, l := range in.Libs {
		args = append(args, msvcLibFlags(l)...)
	}
	// Frameworks are a Darwin concept; ignored by the MSVC dialect.
	args = append(args, in.LdFlags...)
	return Invocation{Program: t.cl, Args: args}
}

// msvcGroupFlags: WholeArchive maps to per-lib /WHOLEARCHIVE:; a
// StartEndGroup is a no-op marker since link.exe resolves circular
// archive references natively.
func msvcGroupFlags(g manifest.LinkGroup) []string {
	var out []string
	for _, l := range g.Libs {
		flags := msvcLibFlags(l)
		if g.Kind == manifest.WholeArchive {
			for _, f := range flags {
				out = append(out, "/WHOLEARCHIVE:"+f)
			}
		} else {
			out = append(out, flags...)
		}
	}
	return out
}

func msvcLibFlags(l manifest.LibRef) []string {
	switch l.Kind {
	case manifest.LibSystem:
		name := l.Name
		if !strings.HasSuffix(name, ".lib") {
			name += ".lib"
		}
		return []string{name}
	case manifest.LibPath:
		return []string{l.Path}
	default:
		return nil
	}
}
