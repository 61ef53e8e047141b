package manifest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// rawManifest mirrors Harbour.toml's on-disk shape before shorthand
// surface syntax and the three Define formats are normalized into the
// typed Manifest. Unknown top-level fields are rejected via Decode's
// metadata (see Load).
type rawManifest struct {
	Package struct {
		Name    string   `toml:"name"`
		Version string   `toml:"version"`
		Authors []string `toml:"authors"`
	} `toml:"package"`
	Dependencies map[string]rawDependency `toml:"dependencies"`
	Targets      map[string]rawTarget     `toml:"targets"`
	Workspace    *struct {
		Members []string `toml:"members"`
	} `toml:"workspace"`
	Build *struct {
		CStd       string `toml:"c_std"`
		CppStd     string `toml:"cpp_std"`
		Exceptions *bool  `toml:"exceptions"`
		RTTI       *bool  `toml:"rtti"`
	} `toml:"build"`
	Profiles map[string]struct {
		OptLevel   string   `toml:"opt_level"`
		DebugInfo  bool     `toml:"debug_info"`
		Sanitizers []string `toml:"sanitizers"`
	} `toml:"profiles"`
}

type rawDependency struct {
	Version  string   `toml:"version"`
	Path     string   `toml:"path"`
	Git      string   `toml:"git"`
	Branch   string   `toml:"branch"`
	Tag      string   `toml:"tag"`
	Rev      string   `toml:"rev"`
	Registry string   `toml:"registry"`
	Optional bool     `toml:"optional"`
	Features []string `toml:"features"`
}

type rawTarget struct {
	Kind          string   `toml:"kind"`
	Language      string   `toml:"language"`
	CStd          string   `toml:"c_std"`
	CppStd        string   `toml:"cpp_std"`
	Sources       []string `toml:"sources"`
	PublicHeaders []string `toml:"public_headers"`
	Recipe        string   `toml:"recipe"`

	// Shorthand surface syntax: [targets.X.public] / [targets.X.private].
	Public  *rawRequirements `toml:"public"`
	Private *rawRequirements `toml:"private"`

	// Full nested form: [targets.X.surface.compile.public] etc.
	Surface *struct {
		Compile *struct {
			Public  *rawRequirements `toml:"public"`
			Private *rawRequirements `toml:"private"`
		} `toml:"compile"`
		Link *struct {
			Public  *rawRequirements `toml:"public"`
			Private *rawRequirements `toml:"private"`
		} `toml:"link"`
		Abi *struct {
			PIC         *bool  `toml:"pic"`
			Visibility  string `toml:"visibility"`
			MSVCRuntime string `toml:"msvc_runtime"`
			CppStdlib   string `toml:"cpp_stdlib"`
			Exceptions  *bool  `toml:"exceptions"`
			RTTI        *bool  `toml:"rtti"`
		} `toml:"abi"`
	} `toml:"surface"`

	When []rawConditional `toml:"when"`

	Deps []rawTargetDep `toml:"deps"`
}

// rawRequirements carries both compile-ish and link-ish fields; whichever
// half a given [targets.X.public]/[...private] table is used for (there is
// only one merged "public"/"private" table in the shorthand form) only
// populates the fields it declares, the rest stay zero.
type rawRequirements struct {
	IncludeDirs []string       `toml:"include_dirs"`
	Defines     []rawDefine    `toml:"defines"`
	CFlags      []string       `toml:"cflags"`
	Libs        []rawLibRef    `toml:"libs"`
	LdFlags     []string       `toml:"ldflags"`
	Groups      []rawLinkGroup `toml:"groups"`
	Frameworks  []string       `toml:"frameworks"`
}

// rawLinkGroup is a link group as written in the manifest:
// { kind = "whole-archive" | "start-end-group", libs = [...] }.
type rawLinkGroup struct {
	Kind string      `toml:"kind"`
	Libs []rawLibRef `toml:"libs"`
}

// rawDefine accepts toml.Primitive so it can be decoded either as a bare
// string ("NAME", "NAME=VALUE") or as an inline table ({name=.., value=..}).
type rawDefine = toml.Primitive

type rawLibRef = toml.Primitive

type rawConditional struct {
	OS       string           `toml:"os"`
	Arch     string           `toml:"arch"`
	Env      string           `toml:"env"`
	Compiler string           `toml:"compiler"`
	Public   *rawRequirements `toml:"public"`
	Private  *rawRequirements `toml:"private"`
}

type rawTargetDep struct {
	Package string `toml:"package"`
	Target  string `toml:"target"`
	Compile string `toml:"compile"` // "public" | "private", default "private"
	Link    string `toml:"link"`
}

// Load parses a Harbour.toml document into a typed Manifest, rejecting
// unknown fields as spec.md §6 requires.
func Load(data []byte) (Manifest, error) {
	var raw rawManifest
	meta, err := toml.Decode(string(data), &raw)
	if err != nil {
		return Manifest{}, fmt.Errorf("manifest: parse: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		var keys []string
		for _, k := range undecoded {
			// Defines, libs, and groups decode lazily via toml.Primitive
			// and stay "undecoded" in the metadata; they are converted
			// (and validated) below, not unknown.
			if deferredKey(k) {
				continue
			}
			keys = append(keys, k.String())
		}
		if len(keys) > 0 {
			sort.Strings(keys)
			return Manifest{}, fmt.Errorf("manifest: unknown field(s): %s", strings.Join(keys, ", "))
		}
	}

	m := Manifest{
		Package: PackageMeta{
			Name:    raw.Package.Name,
			Version: raw.Package.Version,
			Authors: raw.Package.Authors,
		},
		Dependencies: make(map[string]Dependency, len(raw.Dependencies)),
		Targets:      make(map[string]Target, len(raw.Targets)),
	}
	if m.Package.Name == "" {
		return Manifest{}, fmt.Errorf("manifest: missing required field package.name")
	}
	if m.Package.Version == "" {
		return Manifest{}, fmt.Errorf("manifest: missing required field package.version")
	}

	for name, rd := range raw.Dependencies {
		dep, err := convertDependency(name, rd)
		if err != nil {
			return Manifest{}, err
		}
		m.Dependencies[name] = dep
	}

	for name, rt := range raw.Targets {
		t, err := convertTarget(meta, name, rt)
		if err != nil {
			return Manifest{}, err
		}
		m.Targets[name] = t
	}

	if raw.Workspace != nil {
		m.Workspace = &Workspace{Members: raw.Workspace.Members}
	}
	if raw.Build != nil {
		m.Build = &BuildDefaults{
			CStd:       raw.Build.CStd,
			CppStd:     raw.Build.CppStd,
			Exceptions: raw.Build.Exceptions,
			RTTI:       raw.Build.RTTI,
		}
	}
	if len(raw.Profiles) > 0 {
		m.Profiles = make(map[string]Profile, len(raw.Profiles))
		for name, rp := range raw.Profiles {
			m.Profiles[name] = Profile{
				Name:       name,
				OptLevel:   rp.OptLevel,
				DebugInfo:  rp.DebugInfo,
				Sanitizers: rp.Sanitizers,
			}
		}
	}

	return m, nil
}

// deferredKey reports whether a metadata key lives under one of the
// lazily-decoded Primitive fields.
func deferredKey(k toml.Key) bool {
	for _, seg := range k {
		switch seg {
		case "defines", "libs", "groups":
			return true
		}
	}
	return false
}

func convertDependency(name string, rd rawDependency) (Dependency, error) {
	dep := Dependency{
		Name:        name,
		Requirement: rd.Version,
		Optional:    rd.Optional,
		Features:    rd.Features,
	}
	switch {
	case rd.Path != "":
		dep.Source = SourceSpec{Kind: SourcePath, Path: rd.Path}
	case rd.Git != "":
		ref := GitReference{Kind: DefaultBranch}
		switch {
		case rd.Branch != "":
			ref = GitReference{Kind: Branch, Name: rd.Branch}
		case rd.Tag != "":
			ref = GitReference{Kind: Tag, Name: rd.Tag}
		case rd.Rev != "":
			ref = GitReference{Kind: Rev, Name: rd.Rev}
		}
		dep.Source = SourceSpec{Kind: SourceGit, GitURL: rd.Git, GitRef: ref}
	case rd.Registry != "":
		dep.Source = SourceSpec{Kind: SourceRegistry, RegistryURL: rd.Registry}
	default:
		dep.Source = SourceSpec{Kind: SourceRegistry}
	}
	return dep, nil
}

func convertTarget(meta toml.MetaData, name string, rt rawTarget) (Target, error) {
	t := Target{
		Name:          name,
		Kind:          TargetKind(rt.Kind),
		Language:      Language(rt.Language),
		CStd:          rt.CStd,
		CppStd:        rt.CppStd,
		Sources:       rt.Sources,
		PublicHeaders: rt.PublicHeaders,
		Recipe:        Recipe(rt.Recipe),
	}
	if t.Recipe == "" {
		t.Recipe = RecipeNative
	}
	if t.Kind == HeaderOnly && len(rt.Sources) > 0 {
		return Target{}, fmt.Errorf("manifest: target %q is header-only but declares sources", name)
	}

	surface, err := buildSurface(meta, rt)
	if err != nil {
		return Target{}, fmt.Errorf("manifest: target %q: %w", name, err)
	}
	t.Surface = surface

	for _, rdep := range rt.Deps {
		td := TargetDep{
			PackageName:       rdep.Package,
			TargetName:        rdep.Target,
			CompileVisibility: visibilityOf(rdep.Compile),
			LinkVisibility:    visibilityOf(rdep.Link),
		}
		t.Deps = append(t.Deps, td)
	}

	return t, nil
}

func visibilityOf(s string) Visibility {
	if s == "public" {
		return Public
	}
	return Private
}

// buildSurface merges the shorthand ([targets.X.public]/[private]) and
// full-nested ([targets.X.surface...]) forms into one Surface — both must
// deserialize to the same value per spec.md §6, so shorthand is treated as
// sugar for the nested form rather than a separate code path.
func buildSurface(meta toml.MetaData, rt rawTarget) (Surface, error) {
	var s Surface

	pub := rt.Public
	priv := rt.Private
	if rt.Surface != nil {
		if rt.Surface.Compile != nil {
			if rt.Surface.Compile.Public != nil {
				pub = mergeRawRequirements(pub, rt.Surface.Compile.Public)
			}
			if rt.Surface.Compile.Private != nil {
				priv = mergeRawRequirements(priv, rt.Surface.Compile.Private)
			}
		}
		if rt.Surface.Link != nil {
			if rt.Surface.Link.Public != nil {
				pub = mergeRawRequirements(pub, rt.Surface.Link.Public)
			}
			if rt.Surface.Link.Private != nil {
				priv = mergeRawRequirements(priv, rt.Surface.Link.Private)
			}
		}
		if rt.Surface.Abi != nil {
			s.Abi = AbiToggles{
				PIC:         rt.Surface.Abi.PIC,
				Visibility:  rt.Surface.Abi.Visibility,
				MSVCRuntime: rt.Surface.Abi.MSVCRuntime,
				CppStdlib:   rt.Surface.Abi.CppStdlib,
				Exceptions:  rt.Surface.Abi.Exceptions,
				RTTI:        rt.Surface.Abi.RTTI,
			}
		}
	}

	if pub != nil {
		cr, lr, err := convertRequirements(meta, *pub)
		if err != nil {
			return Surface{}, fmt.Errorf("public: %w", err)
		}
		s.Compile.Public = cr
		s.Link.Public = lr
	}
	if priv != nil {
		cr, lr, err := convertRequirements(meta, *priv)
		if err != nil {
			return Surface{}, fmt.Errorf("private: %w", err)
		}
		s.Compile.Private = cr
		s.Link.Private = lr
	}

	for _, w := range rt.When {
		cond := ConditionalSurface{Match: PlatformMatch{OS: w.OS, Arch: w.Arch, Env: w.Env, Compiler: w.Compiler}}
		if w.Public != nil {
			cr, lr, err := convertRequirements(meta, *w.Public)
			if err != nil {
				return Surface{}, fmt.Errorf("when[public]: %w", err)
			}
			cond.Patch.CompilePublic = &cr
			cond.Patch.LinkPublic = &lr
		}
		if w.Private != nil {
			cr, lr, err := convertRequirements(meta, *w.Private)
			if err != nil {
				return Surface{}, fmt.Errorf("when[private]: %w", err)
			}
			cond.Patch.CompilePrivate = &cr
			cond.Patch.LinkPrivate = &lr
		}
		s.Conditionals = append(s.Conditionals, cond)
	}

	return s, nil
}

// mergeRawRequirements combines a shorthand table with a nested-form
// table declaring the same visibility; fields present in b win when both
// set the same field, since the nested form is considered more specific.
func mergeRawRequirements(a, b *rawRequirements) *rawRequirements {
	if a == nil {
		return b
	}
	out := *a
	if len(b.IncludeDirs) > 0 {
		out.IncludeDirs = b.IncludeDirs
	}
	if len(b.Defines) > 0 {
		out.Defines = b.Defines
	}
	if len(b.CFlags) > 0 {
		out.CFlags = b.CFlags
	}
	if len(b.Libs) > 0 {
		out.Libs = b.Libs
	}
	if len(b.LdFlags) > 0 {
		out.LdFlags = b.LdFlags
	}
	if len(b.Groups) > 0 {
		out.Groups = b.Groups
	}
	if len(b.Frameworks) > 0 {
		out.Frameworks = b.Frameworks
	}
	return &out
}

func convertRequirements(meta toml.MetaData, rr rawRequirements) (CompileRequirements, LinkRequirements, error) {
	cr := CompileRequirements{
		IncludeDirs: rr.IncludeDirs,
		CFlags:      rr.CFlags,
	}
	for _, raw := range rr.Defines {
		d, err := decodeDefine(raw)
		if err != nil {
			return CompileRequirements{}, LinkRequirements{}, err
		}
		cr.Defines = append(cr.Defines, d)
	}

	lr := LinkRequirements{
		LdFlags:    rr.LdFlags,
		Frameworks: rr.Frameworks,
	}
	for _, rg := range rr.Groups {
		g := LinkGroup{}
		switch rg.Kind {
		case "whole-archive":
			g.Kind = WholeArchive
		case "start-end-group":
			g.Kind = StartEndGroup
		default:
			return CompileRequirements{}, LinkRequirements{}, fmt.Errorf("unknown link group kind %q", rg.Kind)
		}
		for _, raw := range rg.Libs {
			ref, err := decodeLibRef(raw)
			if err != nil {
				return CompileRequirements{}, LinkRequirements{}, err
			}
			g.Libs = append(g.Libs, ref)
		}
		lr.Groups = append(lr.Groups, g)
	}
	for _, raw := range rr.Libs {
		ref, err := decodeLibRef(raw)
		if err != nil {
			return CompileRequirements{}, LinkRequirements{}, err
		}
		lr.Libs = append(lr.Libs, ref)
	}

	return cr, lr, nil
}

// decodeDefine accepts "NAME", "NAME=VALUE", or {name=.., value=..}.
func decodeDefine(prim toml.Primitive) (Define, error) {
	var asString string
	if err := toml.PrimitiveDecode(prim, &asString); err == nil {
		if idx := strings.IndexByte(asString, '='); idx >= 0 {
			return Define{Name: asString[:idx], Value: asString[idx+1:], HasValue: true}, nil
		}
		return Define{Name: asString}, nil
	}

	var asTable struct {
		Name  string `toml:"name"`
		Value string `toml:"value"`
	}
	if err := toml.PrimitiveDecode(prim, &asTable); err != nil {
		return Define{}, fmt.Errorf("manifest: invalid define: %w", err)
	}
	if asTable.Name == "" {
		return Define{}, fmt.Errorf("manifest: define table missing name")
	}
	return Define{Name: asTable.Name, Value: asTable.Value, HasValue: true}, nil
}

// decodeLibRef accepts string shorthands ("pthread", "-lm",
// "-framework X") and tagged objects ({kind="system", name=".."}, etc).
func decodeLibRef(prim toml.Primitive) (LibRef, error) {
	var asString string
	if err := toml.PrimitiveDecode(prim, &asString); err == nil {
		return parseLibRefShorthand(asString)
	}

	var asTable struct {
		Kind   string `toml:"kind"`
		Name   string `toml:"name"`
		Path   string `toml:"path"`
		Target string `toml:"target"`
	}
	if err := toml.PrimitiveDecode(prim, &asTable); err != nil {
		return LibRef{}, fmt.Errorf("manifest: invalid lib reference: %w", err)
	}
	switch asTable.Kind {
	case "system":
		return LibRef{Kind: LibSystem, Name: asTable.Name}, nil
	case "framework":
		return LibRef{Kind: LibFramework, Name: asTable.Name}, nil
	case "path":
		return LibRef{Kind: LibPath, Path: asTable.Path}, nil
	case "package":
		return LibRef{Kind: LibPackage, Name: asTable.Name, TargetName: asTable.Target}, nil
	default:
		return LibRef{}, fmt.Errorf("manifest: unknown lib reference kind %q", asTable.Kind)
	}
}

func parseLibRefShorthand(s string) (LibRef, error) {
	switch {
	case strings.HasPrefix(s, "-framework "):
		return LibRef{Kind: LibFramework, Name: strings.TrimPrefix(s, "-framework ")}, nil
	case strings.HasPrefix(s, "-l"):
		return LibRef{Kind: LibSystem, Name: strings.TrimPrefix(s, "-l")}, nil
	case strings.HasPrefix(s, "/") || strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../"):
		return LibRef{Kind: LibPath, Path: s}, nil
	default:
		return LibRef{Kind: LibSystem, Name: s}, nil
	}
}
