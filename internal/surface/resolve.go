package surface

import (
	"fmt"

	"harbour/internal/manifest"
	"harbour/internal/pkgid"
	"harbour/internal/resolver"
)

// TargetRef names one target of one resolved package.
type TargetRef struct {
	Package pkgid.PackageId
	Target  string
}

func (r TargetRef) String() string {
	return fmt.Sprintf("%s:%s", r.Package, r.Target)
}

// Input is everything the surface resolver needs: the loaded manifest and
// package root for every node of the resolve graph, the resolved
// name-to-package selection used to follow TargetDep edges, and the
// platform conditionals are evaluated against.
type Input struct {
	Manifests map[pkgid.PackageId]manifest.Manifest
	Roots     map[pkgid.PackageId]string
	ByName    map[string]pkgid.PackageId
	Platform  manifest.TargetPlatform
	Warn      func(format string, args ...any)
}

// Resolver computes effective surfaces over one Input, memoizing each
// target's exported surface so shared dependencies are walked once.
type Resolver struct {
	in       Input
	exported map[TargetRef]*entries
	onStack  map[TargetRef]bool
}

// NewResolver constructs a Resolver over in.
func NewResolver(in Input) *Resolver {
	return &Resolver{
		in:       in,
		exported: make(map[TargetRef]*entries),
		onStack:  make(map[TargetRef]bool),
	}
}

// Resolve computes the effective surface for ref: own private half first,
// own public half next, then each dependency's exported surface in
// declaration order.
func (r *Resolver) Resolve(ref TargetRef) (*Resolved, error) {
	tgt, root, err := r.lookup(ref)
	if err != nil {
		return nil, err
	}

	m := newMerged(r.in.Warn)
	abi := newAbiState()

	priv := Provenance{Package: ref.Package, Target: ref.Target, Slot: SlotPrivate}
	m.addCompile(tgt.Surface.Compile.Private, root, priv)
	m.addLink(tgt.Surface.Link.Private, root, priv)
	r.applyConditionals(m, tgt, root, ref, false)

	pub := Provenance{Package: ref.Package, Target: ref.Target, Slot: SlotPublic}
	m.addCompile(tgt.Surface.Compile.Public, root, pub)
	m.addLink(tgt.Surface.Link.Public, root, pub)
	r.applyConditionals(m, tgt, root, ref, true)

	if err := abi.join(tgt.Surface.Abi, ref.Package); err != nil {
		return nil, err
	}

	for _, dep := range tgt.Deps {
		depRef, err := r.depRef(ref, dep)
		if err != nil {
			return nil, err
		}
		exp, err := r.exportedSurface(depRef)
		if err != nil {
			return nil, err
		}
		m.addEntries(exp)
		if err := abi.join(exp.abi, depRef.Package); err != nil {
			return nil, err
		}
	}

	return &Resolved{
		IncludeDirs: m.includeDirs,
		Defines:     m.defines,
		CFlags:      m.cflags,
		Libs:        m.libs,
		LdFlags:     m.ldflags,
		Groups:      m.groups,
		Frameworks:  m.frameworks,
		Abi:         abi.toggles,
	}, nil
}

// exportedSurface computes what ref contributes to its dependents: its
// own public half plus the exported surfaces of its public dependencies.
func (r *Resolver) exportedSurface(ref TargetRef) (*entries, error) {
	if e, ok := r.exported[ref]; ok {
		return e, nil
	}
	if r.onStack[ref] {
		return nil, fmt.Errorf("surface: target dependency cycle through %s", ref)
	}
	r.onStack[ref] = true
	defer delete(r.onStack, ref)

	tgt, root, err := r.lookup(ref)
	if err != nil {
		return nil, err
	}

	m := newMerged(r.in.Warn)
	abi := newAbiState()

	pub := Provenance{Package: ref.Package, Target: ref.Target, Slot: SlotPublic}
	m.addCompile(tgt.Surface.Compile.Public, root, pub)
	m.addLink(tgt.Surface.Link.Public, root, pub)
	r.applyConditionals(m, tgt, root, ref, true)

	if err := abi.join(tgt.Surface.Abi, ref.Package); err != nil {
		return nil, err
	}

	for _, dep := range tgt.Deps {
		if dep.CompileVisibility != manifest.Public && dep.LinkVisibility != manifest.Public {
			continue
		}
		depRef, err := r.depRef(ref, dep)
		if err != nil {
			return nil, err
		}
		exp, err := r.exportedSurface(depRef)
		if err != nil {
			return nil, err
		}
		if dep.CompileVisibility == manifest.Public {
			for _, p := range exp.includeDirs {
				m.addIncludeDir(p.Value, p.From)
			}
			for _, d := range exp.defines {
				m.addDefine(d.Define, d.From)
			}
			m.cflags = append(m.cflags, exp.cflags...)
		}
		if dep.LinkVisibility == manifest.Public {
			m.libs = append(m.libs, exp.libs...)
			m.ldflags = append(m.ldflags, exp.ldflags...)
			m.groups = append(m.groups, exp.groups...)
			for _, fw := range exp.frameworks {
				m.addFramework(fw.Value, fw.From)
			}
		}
		if err := abi.join(exp.abi, depRef.Package); err != nil {
			return nil, err
		}
	}

	e := m.snapshot(abi.toggles)
	r.exported[ref] = e
	return e, nil
}

// applyConditionals merges the matching conditional patches of one
// visibility, after the unconditional surface of that visibility and
// before propagation.
func (r *Resolver) applyConditionals(m *merged, tgt manifest.Target, root string, ref TargetRef, public bool) {
	from := Provenance{Package: ref.Package, Target: ref.Target, Slot: SlotConditional}
	for _, cond := range tgt.Surface.Conditionals {
		if !cond.Match.Matches(r.in.Platform) {
			continue
		}
		if public {
			if cond.Patch.CompilePublic != nil {
				m.addCompile(*cond.Patch.CompilePublic, root, from)
			}
			if cond.Patch.LinkPublic != nil {
				m.addLink(*cond.Patch.LinkPublic, root, from)
			}
		} else {
			if cond.Patch.CompilePrivate != nil {
				m.addCompile(*cond.Patch.CompilePrivate, root, from)
			}
			if cond.Patch.LinkPrivate != nil {
				m.addLink(*cond.Patch.LinkPrivate, root, from)
			}
		}
	}
}

func (r *Resolver) lookup(ref TargetRef) (manifest.Target, string, error) {
	man, ok := r.in.Manifests[ref.Package]
	if !ok {
		return manifest.Target{}, "", fmt.Errorf("surface: no manifest loaded for %s", ref.Package)
	}
	tgt, ok := man.Targets[ref.Target]
	if !ok {
		return manifest.Target{}, "", fmt.Errorf("surface: package %s has no target %q", ref.Package, ref.Target)
	}
	return tgt, r.in.Roots[ref.Package], nil
}

// depRef resolves a TargetDep to the concrete target it names. An empty
// TargetName defaults to a target named after the dependency package,
// matching the manifest shorthand.
func (r *Resolver) depRef(from TargetRef, dep manifest.TargetDep) (TargetRef, error) {
	id, ok := r.in.ByName[dep.PackageName]
	if !ok {
		if dep.PackageName == from.Package.Name {
			id = from.Package
		} else {
			return TargetRef{}, fmt.Errorf("surface: %s depends on unresolved package %q", from, dep.PackageName)
		}
	}
	name := dep.TargetName
	if name == "" {
		name = dep.PackageName
	}
	return TargetRef{Package: id, Target: name}, nil
}

// abiState joins AbiToggles across the graph, remembering which package
// set each field so a conflict can name both sides.
type abiState struct {
	toggles manifest.AbiToggles
	setBy   map[string]pkgid.PackageId
}

func newAbiState() *abiState {
	return &abiState{setBy: make(map[string]pkgid.PackageId)}
}

func (s *abiState) join(t manifest.AbiToggles, from pkgid.PackageId) error {
	if err := s.joinBool("pic", &s.toggles.PIC, t.PIC, from); err != nil {
		return err
	}
	if err := s.joinString("visibility", &s.toggles.Visibility, t.Visibility, from); err != nil {
		return err
	}
	if err := s.joinString("msvc_runtime", &s.toggles.MSVCRuntime, t.MSVCRuntime, from); err != nil {
		return err
	}
	if err := s.joinString("cpp_stdlib", &s.toggles.CppStdlib, t.CppStdlib, from); err != nil {
		return err
	}
	if err := s.joinBool("exceptions", &s.toggles.Exceptions, t.Exceptions, from); err != nil {
		return err
	}
	return s.joinBool("rtti", &s.toggles.RTTI, t.RTTI, from)
}

func (s *abiState) joinBool(field string, dst **bool, src *bool, from pkgid.PackageId) error {
	if src == nil {
		return nil
	}
	if *dst == nil {
		*dst = src
		s.setBy[field] = from
		return nil
	}
	if **dst != *src {
		return &resolver.AbiMismatchError{Field: field, Packages: []pkgid.PackageId{s.setBy[field], from}}
	}
	return nil
}

func (s *abiState) joinString(field string, dst *string, src string, from pkgid.PackageId) error {
	if src == "" {
		return nil
	}
	if *dst == "" {
		*dst = src
		s.setBy[field] = from
		return nil
	}
	if *dst != src {
		return &resolver.AbiMismatchError{Field: field, Packages: []pkgid.PackageId{s.setBy[field], from}}
	}
	return nil
}
