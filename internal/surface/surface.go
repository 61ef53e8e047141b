// Package surface computes, for a target, the effective compile and
// link requirements inherited from its dependency graph under
// public/private visibility rules, tagging every contribution with its
// provenance.
package surface

import (
	"harbour/internal/manifest"
	"harbour/internal/pkgid"
)

// Slot names which part of a surface a contribution came from.
type Slot int

const (
	SlotPublic Slot = iota
	SlotPrivate
	SlotConditional
)

func (s Slot) String() string {
	switch s {
	case SlotPublic:
		return "public"
	case SlotPrivate:
		return "private"
	case SlotConditional:
		return "conditional"
	default:
		return "unknown"
	}
}

// Provenance identifies the originating package, target, and surface
// slot of a contributed flag, path, define, or library.
type Provenance struct {
	Package pkgid.PackageId
	Target  string
	Slot    Slot
}

// FlagEntry is a single cflag or ldflag with its provenance.
type FlagEntry struct {
	Value string
	From  Provenance
}

// PathEntry is an include directory or framework with its provenance.
type PathEntry struct {
	Value string
	From  Provenance
}

// DefineEntry is a preprocessor define with its provenance.
type DefineEntry struct {
	Define manifest.Define
	From   Provenance
}

// LibEntry is a library reference with its provenance.
type LibEntry struct {
	Lib  manifest.LibRef
	From Provenance
}

// GroupEntry is a link group with its provenance.
type GroupEntry struct {
	Group manifest.LinkGroup
	From  Provenance
}

// Resolved is the effective, fully-merged surface for one target: the
// exact compile and link inputs to use, in final order, each tagged with
// where it came from.
type Resolved struct {
	IncludeDirs []PathEntry
	Defines     []DefineEntry
	CFlags      []FlagEntry

	Libs       []LibEntry
	LdFlags    []FlagEntry
	Groups     []GroupEntry
	Frameworks []PathEntry

	Abi manifest.AbiToggles
}

// IncludePaths returns the merged include directories without provenance.
func (r *Resolved) IncludePaths() []string {
	out := make([]string, len(r.IncludeDirs))
	for i, e := range r.IncludeDirs {
		out[i] = e.Value
	}
	return out
}

// DefineList returns the merged defines without provenance.
func (r *Resolved) DefineList() []manifest.Define {
	out := make([]manifest.Define, len(r.Defines))
	for i, e := range r.Defines {
		out[i] = e.Define
	}
	return out
}

// CFlagList returns the merged cflags without provenance.
func (r *Resolved) CFlagList() []string {
	out := make([]string, len(r.CFlags))
	for i, e := range r.CFlags {
		out[i] = e.Value
	}
	return out
}

// LdFlagList returns the merged ldflags without provenance.
func (r *Resolved) LdFlagList() []string {
	out := make([]string, len(r.LdFlags))
	for i, e := range r.LdFlags {
		out[i] = e.Value
	}
	return out
}

// LibList returns the merged library references without provenance.
func (r *Resolved) LibList() []manifest.LibRef {
	out := make([]manifest.LibRef, len(r.Libs))
	for i, e := range r.Libs {
		out[i] = e.Lib
	}
	return out
}

// FrameworkList returns the merged frameworks without provenance.
func (r *Resolved) FrameworkList() []string {
	out := make([]string, len(r.Frameworks))
	for i, e := range r.Frameworks {
		out[i] = e.Value
	}
	return out
}
