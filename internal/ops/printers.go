package ops

import (
	"fmt"
	"io"
	"runtime"
	"sort"

	"harbour/internal/harbourcfg"
	"harbour/internal/manifest"
	"harbour/internal/pkgid"
	"harbour/internal/planner"
	"harbour/internal/surface"
	"harbour/internal/toolchain"
)

// Tree prints the resolve graph as an indented dependency tree rooted at
// the project.
func Tree(w io.Writer, ctx *harbourcfg.Context, proj *Project) error {
	graph, err := ResolveProject(ctx, proj, false)
	if err != nil {
		return err
	}
	rootID, _ := graph.Resolve.Root()
	printTree(w, graph, rootID, "", map[pkgid.PackageId]bool{})
	return nil
}

func printTree(w io.Writer, g *Graph, id pkgid.PackageId, indent string, seen map[pkgid.PackageId]bool) {
	fmt.Fprintf(w, "%s%s v%s (%s)\n", indent, id.Name, id.Version, id.Source.Kind)
	if seen[id] {
		return
	}
	seen[id] = true
	deps := g.Resolve.Dependencies(id)
	sort.Slice(deps, func(i, j int) bool { return deps[i].Less(deps[j]) })
	for _, d := range deps {
		printTree(w, g, d, indent+"  ", seen)
	}
}

// Explain prints every dependency path from the root to the named
// package, the provenance a user asks for when a surprising package
// shows up in the graph.
func Explain(w io.Writer, ctx *harbourcfg.Context, proj *Project, pkg string) error {
	graph, err := ResolveProject(ctx, proj, false)
	if err != nil {
		return err
	}
	rootID, _ := graph.Resolve.Root()

	var paths [][]pkgid.PackageId
	var walk func(id pkgid.PackageId, path []pkgid.PackageId)
	walk = func(id pkgid.PackageId, path []pkgid.PackageId) {
		path = append(path, id)
		if id.Name == pkg {
			paths = append(paths, append([]pkgid.PackageId(nil), path...))
			return
		}
		deps := graph.Resolve.Dependencies(id)
		sort.Slice(deps, func(i, j int) bool { return deps[i].Less(deps[j]) })
		for _, d := range deps {
			walk(d, path)
		}
	}
	walk(rootID, nil)

	if len(paths) == 0 {
		return fmt.Errorf("package %q is not in the resolve graph", pkg)
	}
	for _, path := range paths {
		for i, id := range path {
			if i > 0 {
				fmt.Fprint(w, " -> ")
			}
			fmt.Fprintf(w, "%s@%s", id.Name, id.Version)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// surfacesFor builds a surface resolver for the printers; toolchain
// detection failure degrades to an empty compiler field rather than
// blocking inspection.
func surfacesFor(ctx *harbourcfg.Context, graph *Graph) *surface.Resolver {
	compiler := ""
	if tc, err := toolchain.Detect(ctx.CC, ctx.CXX, ctx.AR); err == nil {
		compiler = tc.Family().String()
	}
	return surface.NewResolver(surface.Input{
		Manifests: graph.Manifests,
		Roots:     graph.Roots,
		ByName:    graph.ByName,
		Platform: manifest.TargetPlatform{
			OS:       runtime.GOOS,
			Arch:     runtime.GOARCH,
			Compiler: compiler,
		},
		Warn: func(format string, args ...any) { ctx.Log.Warnf(format, args...) },
	})
}

// Flags prints a target's effective compile and link surface with the
// provenance of every entry.
func Flags(w io.Writer, ctx *harbourcfg.Context, proj *Project, target string) error {
	graph, err := ResolveProject(ctx, proj, false)
	if err != nil {
		return err
	}
	if _, ok := proj.Manifest.Targets[target]; !ok {
		return phaseErr(PhaseManifest, fmt.Errorf("no target %q in %s", target, proj.ID.Name))
	}
	rootID, _ := graph.Resolve.Root()
	res, err := surfacesFor(ctx, graph).Resolve(surface.TargetRef{Package: rootID, Target: target})
	if err != nil {
		return phaseErr(PhaseResolve, err)
	}

	fmt.Fprintf(w, "target %s\n", target)
	fmt.Fprintln(w, "compile:")
	for _, e := range res.IncludeDirs {
		fmt.Fprintf(w, "  -I%s  [%s %s]\n", e.Value, e.From.Package.Name, e.From.Slot)
	}
	for _, e := range res.Defines {
		fmt.Fprintf(w, "  -D%s  [%s %s]\n", e.Define.ToFlag(), e.From.Package.Name, e.From.Slot)
	}
	for _, e := range res.CFlags {
		fmt.Fprintf(w, "  %s  [%s %s]\n", e.Value, e.From.Package.Name, e.From.Slot)
	}
	fmt.Fprintln(w, "link:")
	for _, e := range res.Libs {
		for _, f := range e.Lib.ToFlags() {
			fmt.Fprintf(w, "  %s  [%s %s]\n", f, e.From.Package.Name, e.From.Slot)
		}
	}
	for _, e := range res.LdFlags {
		fmt.Fprintf(w, "  %s  [%s %s]\n", e.Value, e.From.Package.Name, e.From.Slot)
	}
	for _, e := range res.Frameworks {
		fmt.Fprintf(w, "  -framework %s  [%s %s]\n", e.Value, e.From.Package.Name, e.From.Slot)
	}
	return nil
}

// LinkPlan prints the ordered link inputs of one executable or shared
// library target: objects, then the dependency closure's archives in
// link order, then libraries and flags.
func LinkPlan(w io.Writer, ctx *harbourcfg.Context, proj *Project, target string) error {
	prep, err := prepare(ctx, proj, BuildOptions{Targets: []string{target}})
	if err != nil {
		return err
	}
	for _, step := range prep.plan.LinkPhase() {
		link, ok := step.(*planner.Link)
		if !ok || link.Target.Target != target {
			continue
		}
		fmt.Fprintf(w, "link %s (%s)\n", link.Output, link.Kind)
		for _, o := range link.Objects {
			fmt.Fprintf(w, "  obj     %s\n", o)
		}
		for _, a := range link.Archives {
			fmt.Fprintf(w, "  archive %s\n", a)
		}
		for _, l := range link.Libs {
			for _, f := range l.ToFlags() {
				fmt.Fprintf(w, "  lib     %s\n", f)
			}
		}
		for _, f := range link.LdFlags {
			fmt.Fprintf(w, "  ldflag  %s\n", f)
		}
		return nil
	}
	return fmt.Errorf("target %q has no link step (not an exe or shared library)", target)
}
