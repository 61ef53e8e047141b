package toolchain

import (
	"fmt"
	"regexp"
	"runtime"
	"strings"

	"harbour/internal/vcsgit"
)

// ToolNotFoundError reports that a compiler or archiver could not be
// invoked.
type ToolNotFoundError struct {
	Tool  string
	Cause error
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("toolchain: tool %q not found or not runnable: %v", e.Tool, e.Cause)
}

func (e *ToolNotFoundError) Unwrap() error { return e.Cause }

// Detect probes the configured (or platform-default) compiler once,
// parses its identity, and returns the matching Toolchain. cc/cxx/ar are
// the CC/CXX/AR overrides; empty strings select platform defaults.
func Detect(cc, cxx, ar string) (Toolchain, error) {
	if cc == "" {
		if runtime.GOOS == "windows" {
			cc = "cl"
		} else {
			cc = "cc"
		}
	}
	if cxx == "" {
		switch {
		case strings.Contains(cc, "clang"):
			cxx = strings.Replace(cc, "clang", "clang++", 1)
		case strings.Contains(cc, "gcc"):
			cxx = strings.Replace(cc, "gcc", "g++", 1)
		case cc == "cl":
			cxx = cc
		default:
			cxx = "c++"
		}
	}
	if ar == "" {
		if cc == "cl" {
			ar = "lib"
		} else {
			ar = "ar"
		}
	}

	// cl.exe prints its banner with no arguments (to stderr); everything
	// else answers --version. RunCommand captures combined output either
	// way, and cl's nonzero exit with a recognizable banner still counts.
	out, err := vcsgit.RunCommand("", cc, "--version")
	if err != nil && !strings.Contains(out, "Microsoft") {
		if bannerOut, bannerErr := vcsgit.RunCommand("", cc); bannerErr == nil || strings.Contains(bannerOut, "Microsoft") {
			out = bannerOut
		} else {
			return nil, &ToolNotFoundError{Tool: cc, Cause: err}
		}
	}

	id, version, err := ParseVersionOutput(out)
	if err != nil {
		return nil, fmt.Errorf("toolchain: identify %q: %w", cc, err)
	}

	if id == "msvc" {
		return &msvcToolchain{
			cl:          cc,
			lib:         ar,
			fullVersion: firstLine(out),
			majorMinor:  splitMajorMinor(version),
		}, nil
	}
	return &gccToolchain{
		cc:          cc,
		cxx:         cxx,
		ar:          ar,
		compilerID:  id,
		fullVersion: firstLine(out),
		majorMinor:  splitMajorMinor(version),
	}, nil
}

var (
	appleClangRe = regexp.MustCompile(`Apple clang version (\d+\.\d+(\.\d+)?)`)
	clangRe      = regexp.MustCompile(`clang version (\d+\.\d+(\.\d+)?)`)
	gccRe        = regexp.MustCompile(`\(GCC\) (\d+\.\d+(\.\d+)?)|g(?:cc|\+\+) [^\n]*?(\d+\.\d+\.\d+)`)
	msvcRe       = regexp.MustCompile(`Microsoft \(R\) C/C\+\+ Optimizing Compiler Version (\d+\.\d+)`)
)

// ParseVersionOutput classifies a compiler's version banner into a
// compiler id ("gcc" | "clang" | "apple-clang" | "msvc") and its version
// string. Pure, so banner parsing is testable without a compiler.
func ParseVersionOutput(out string) (id, version string, err error) {
	if m := appleClangRe.FindStringSubmatch(out); m != nil {
		return "apple-clang", m[1], nil
	}
	if m := clangRe.FindStringSubmatch(out); m != nil {
		return "clang", m[1], nil
	}
	if m := msvcRe.FindStringSubmatch(out); m != nil {
		return "msvc", m[1], nil
	}
	if m := gccRe.FindStringSubmatch(out); m != nil {
		for _, g := range m[1:] {
			if g != "" && g[0] >= '0' && g[0] <= '9' {
				return "gcc", g, nil
			}
		}
	}
	return "", "", fmt.Errorf("unrecognized compiler version output: %q", firstLine(out))
}

var versionDigitsRe = regexp.MustCompile(`\d+\.\d+(\.\d+)?`)

// versionDigits pulls the first dotted version number out of a version
// line, for callers constructing a toolchain from a known banner.
func versionDigits(s string) string {
	return versionDigitsRe.FindString(s)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}
