package surface

import (
	"path/filepath"

	"harbour/internal/manifest"
)

// merged accumulates surface contributions under the merge semantics of
// each field: include_dirs dedup on absolute path keeping first
// insertion, defines keyed by name with later-overrides-earlier, flags
// and libs order-preserving with duplicates retained, frameworks
// deduplicated.
type merged struct {
	includeDirs []PathEntry
	includeSeen map[string]bool

	defines   []DefineEntry
	defineIdx map[string]int

	cflags []FlagEntry

	libs    []LibEntry
	ldflags []FlagEntry
	groups  []GroupEntry

	frameworks    []PathEntry
	frameworkSeen map[string]bool

	// warn is called when a later define overrides an earlier one with a
	// different value.
	warn func(format string, args ...any)
}

func newMerged(warn func(format string, args ...any)) *merged {
	if warn == nil {
		warn = func(string, ...any) {}
	}
	return &merged{
		includeSeen:   make(map[string]bool),
		defineIdx:     make(map[string]int),
		frameworkSeen: make(map[string]bool),
		warn:          warn,
	}
}

func (m *merged) addIncludeDir(dir string, from Provenance) {
	abs := dir
	if a, err := filepath.Abs(dir); err == nil {
		abs = a
	}
	if m.includeSeen[abs] {
		return
	}
	m.includeSeen[abs] = true
	m.includeDirs = append(m.includeDirs, PathEntry{Value: abs, From: from})
}

func (m *merged) addDefine(d manifest.Define, from Provenance) {
	if i, ok := m.defineIdx[d.Name]; ok {
		prev := m.defines[i].Define
		if prev.ToFlag() != d.ToFlag() {
			m.warn("define %s overridden: %q (from %s) replaces %q (from %s)",
				d.Name, d.ToFlag(), from.Package, prev.ToFlag(), m.defines[i].From.Package)
			m.defines[i] = DefineEntry{Define: d, From: from}
		}
		return
	}
	m.defineIdx[d.Name] = len(m.defines)
	m.defines = append(m.defines, DefineEntry{Define: d, From: from})
}

func (m *merged) addCFlag(f string, from Provenance) {
	m.cflags = append(m.cflags, FlagEntry{Value: f, From: from})
}

func (m *merged) addLib(l manifest.LibRef, from Provenance) {
	m.libs = append(m.libs, LibEntry{Lib: l, From: from})
}

func (m *merged) addLdFlag(f string, from Provenance) {
	m.ldflags = append(m.ldflags, FlagEntry{Value: f, From: from})
}

func (m *merged) addGroup(g manifest.LinkGroup, from Provenance) {
	m.groups = append(m.groups, GroupEntry{Group: g, From: from})
}

func (m *merged) addFramework(fw string, from Provenance) {
	if m.frameworkSeen[fw] {
		return
	}
	m.frameworkSeen[fw] = true
	m.frameworks = append(m.frameworks, PathEntry{Value: fw, From: from})
}

// addCompile merges one visibility half of a compile surface, resolving
// relative include directories against pkgRoot.
func (m *merged) addCompile(reqs manifest.CompileRequirements, pkgRoot string, from Provenance) {
	for _, dir := range reqs.IncludeDirs {
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(pkgRoot, dir)
		}
		m.addIncludeDir(dir, from)
	}
	for _, d := range reqs.Defines {
		m.addDefine(d, from)
	}
	for _, f := range reqs.CFlags {
		m.addCFlag(f, from)
	}
}

// addLink merges one visibility half of a link surface.
func (m *merged) addLink(reqs manifest.LinkRequirements, pkgRoot string, from Provenance) {
	for _, l := range reqs.Libs {
		if l.Kind == manifest.LibPath && !filepath.IsAbs(l.Path) {
			l.Path = filepath.Join(pkgRoot, l.Path)
		}
		m.addLib(l, from)
	}
	for _, f := range reqs.LdFlags {
		m.addLdFlag(f, from)
	}
	for _, g := range reqs.Groups {
		m.addGroup(g, from)
	}
	for _, fw := range reqs.Frameworks {
		m.addFramework(fw, from)
	}
}

// addEntries merges already-resolved entries (a dependency's exported
// surface) preserving their original provenance.
func (m *merged) addEntries(e *entries) {
	for _, p := range e.includeDirs {
		m.addIncludeDir(p.Value, p.From)
	}
	for _, d := range e.defines {
		m.addDefine(d.Define, d.From)
	}
	for _, f := range e.cflags {
		m.cflags = append(m.cflags, f)
	}
	for _, l := range e.libs {
		m.libs = append(m.libs, l)
	}
	for _, f := range e.ldflags {
		m.ldflags = append(m.ldflags, f)
	}
	for _, g := range e.groups {
		m.groups = append(m.groups, g)
	}
	for _, fw := range e.frameworks {
		m.addFramework(fw.Value, fw.From)
	}
}

// entries is a provenance-tagged surface snapshot, used for a
// dependency's exported surface.
type entries struct {
	includeDirs []PathEntry
	defines     []DefineEntry
	cflags      []FlagEntry
	libs        []LibEntry
	ldflags     []FlagEntry
	groups      []GroupEntry
	frameworks  []PathEntry
	abi         manifest.AbiToggles
}

func (m *merged) snapshot(abi manifest.AbiToggles) *entries {
	return &entries{
		includeDirs: append([]PathEntry(nil), m.includeDirs...),
		defines:     append([]DefineEntry(nil), m.defines...),
		cflags:      append([]FlagEntry(nil), m.cflags...),
		libs:        append([]LibEntry(nil), m.libs...),
		ldflags:     append([]FlagEntry(nil), m.ldflags...),
		groups:      append([]GroupEntry(nil), m.groups...),
		frameworks:  append([]PathEntry(nil), m.frameworks...),
		abi:         abi,
	}
}
