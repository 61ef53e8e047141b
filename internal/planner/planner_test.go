package planner

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"harbour/internal/manifest"
	"harbour/internal/pkgid"
	"harbour/internal/resolver"
	"harbour/internal/surface"
	"harbour/internal/toolchain"
)

// fixture lays out a two-package tree (app -> mylib) on disk and wires
// up the planner context around it.
type fixture struct {
	ctx   *Context
	app   pkgid.PackageId
	mylib pkgid.PackageId
	dir   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	mylibRoot := filepath.Join(dir, "mylib")
	appRoot := filepath.Join(dir, "app")
	mustWrite(t, filepath.Join(mylibRoot, "src", "lib.c"), "int lib(void) { return 1; }\n")
	mustWrite(t, filepath.Join(mylibRoot, "src", "extra.c"), "int extra(void) { return 2; }\n")
	mustWrite(t, filepath.Join(mylibRoot, "include", "lib.h"), "int lib(void);\n")
	mustWrite(t, filepath.Join(appRoot, "src", "main.c"), "int main(void) { return 0; }\n")

	mylib := pkgid.PackageId{Name: "mylib", Version: "1.0.0", Source: pkgid.SourceId{Kind: pkgid.Path, Path: mylibRoot}}
	app := pkgid.PackageId{Name: "app", Version: "0.1.0", Source: pkgid.SourceId{Kind: pkgid.Path, Path: appRoot}}

	manifests := map[pkgid.PackageId]manifest.Manifest{
		mylib: {
			Package: manifest.PackageMeta{Name: "mylib", Version: "1.0.0"},
			Targets: map[string]manifest.Target{
				"mylib": {
					Name:     "mylib",
					Kind:     manifest.StaticLib,
					Language: manifest.LangC,
					CStd:     "11",
					Sources:  []string{"src/*.c"},
					Recipe:   manifest.RecipeNative,
					Surface: manifest.Surface{
						Compile: manifest.CompileSurface{
							Public: manifest.CompileRequirements{IncludeDirs: []string{"include"}},
						},
					},
				},
			},
		},
		app: {
			Package: manifest.PackageMeta{Name: "app", Version: "0.1.0"},
			Targets: map[string]manifest.Target{
				"app": {
					Name:     "app",
					Kind:     manifest.Exe,
					Language: manifest.LangC,
					CStd:     "11",
					Sources:  []string{"src/*.c"},
					Recipe:   manifest.RecipeNative,
					Deps: []manifest.TargetDep{
						{PackageName: "mylib", TargetName: "mylib", CompileVisibility: manifest.Private, LinkVisibility: manifest.Private},
					},
				},
			},
		},
	}

	res := resolver.NewResolve()
	res.SetRoot(app)
	res.AddEdge(app, mylib)

	roots := map[pkgid.PackageId]string{mylib: mylibRoot, app: appRoot}
	byName := map[string]pkgid.PackageId{"mylib": mylib, "app": app}

	ctx := &Context{
		Resolve:   res,
		Manifests: manifests,
		Roots:     roots,
		ByName:    byName,
		Surfaces: surface.NewResolver(surface.Input{
			Manifests: manifests,
			Roots:     roots,
			ByName:    byName,
		}),
		Toolchain:       toolchain.NewGCCStyle("gcc", "g++", "ar", "gcc", "gcc (GCC) 13.2.1"),
		Profile:         manifest.Profile{Name: "debug", DebugInfo: true},
		OutDir:          filepath.Join(dir, "out"),
		EffectiveCppStd: "17",
	}
	return &fixture{ctx: ctx, app: app, mylib: mylib, dir: dir}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestPlanStepShape(t *testing.T) {
	f := newFixture(t)
	plan, err := BuildPlan(f.ctx, []surface.TargetRef{{Package: f.app, Target: "app"}})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	// 3 sources + 1 archive + 1 link.
	if len(plan.Steps) != 5 {
		t.Fatalf("step count = %d, want 5", len(plan.Steps))
	}
	if len(plan.Compiles()) != 3 {
		t.Errorf("compile steps = %d, want 3", len(plan.Compiles()))
	}

	// Dependencies precede dependents: mylib's steps come first.
	first := plan.Steps[0].Ref()
	if first.Package != f.mylib {
		t.Errorf("first step belongs to %s, want mylib", first)
	}
	last := plan.Steps[len(plan.Steps)-1]
	link, ok := last.(*Link)
	if !ok {
		t.Fatalf("last step is %T, want *Link", last)
	}
	if link.Target.Package != f.app {
		t.Errorf("link target = %s, want app", link.Target)
	}
	if len(link.Archives) != 1 || !strings.HasSuffix(link.Archives[0], "libmylib.a") {
		t.Errorf("link archives = %v, want [.../libmylib.a]", link.Archives)
	}
}

func TestPlanAppSeesPublicIncludeDir(t *testing.T) {
	f := newFixture(t)
	plan, err := BuildPlan(f.ctx, []surface.TargetRef{{Package: f.app, Target: "app"}})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	wantDir := filepath.Join(f.dir, "mylib", "include")
	for _, c := range plan.Compiles() {
		if c.Target.Package != f.app {
			continue
		}
		for _, inc := range c.IncludeDirs {
			if inc == wantDir {
				return
			}
		}
		t.Fatalf("app compile lacks %s, has %v", wantDir, c.IncludeDirs)
	}
	t.Fatal("no compile step for app found")
}

func TestPlanObjectLayout(t *testing.T) {
	f := newFixture(t)
	plan, err := BuildPlan(f.ctx, []surface.TargetRef{{Package: f.app, Target: "app"}})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	for _, c := range plan.Compiles() {
		wantPrefix := filepath.Join(f.ctx.OutDir, "deps", c.Target.Package.Name) + string(filepath.Separator)
		if !strings.HasPrefix(c.Object, wantPrefix) {
			t.Errorf("object %s not under %s", c.Object, wantPrefix)
		}
		if !strings.HasSuffix(c.Object, ".o") {
			t.Errorf("object %s lacks .o extension", c.Object)
		}
	}
}

func TestPlanHeaderOnlyContributesNoSteps(t *testing.T) {
	f := newFixture(t)
	m := f.ctx.Manifests[f.mylib]
	tgt := m.Targets["mylib"]
	tgt.Kind = manifest.HeaderOnly
	tgt.Sources = nil
	m.Targets["mylib"] = tgt
	f.ctx.Manifests[f.mylib] = m

	plan, err := BuildPlan(f.ctx, []surface.TargetRef{{Package: f.app, Target: "app"}})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	for _, s := range plan.Steps {
		if s.Ref().Package == f.mylib {
			t.Errorf("header-only target emitted step %s", s.StepID())
		}
	}
	// The header-only dep's public include dir still propagates.
	found := false
	wantDir := filepath.Join(f.dir, "mylib", "include")
	for _, c := range plan.Compiles() {
		for _, inc := range c.IncludeDirs {
			if inc == wantDir {
				found = true
			}
		}
	}
	if !found {
		t.Error("header-only dep's public include dir did not propagate")
	}
}

func TestPlanNoSources(t *testing.T) {
	f := newFixture(t)
	m := f.ctx.Manifests[f.app]
	tgt := m.Targets["app"]
	tgt.Sources = []string{"nonexistent/*.c"}
	m.Targets["app"] = tgt
	f.ctx.Manifests[f.app] = m

	_, err := BuildPlan(f.ctx, []surface.TargetRef{{Package: f.app, Target: "app"}})
	var noSources *NoSourcesError
	if !errors.As(err, &noSources) {
		t.Fatalf("expected NoSourcesError, got %v", err)
	}
}

func TestPlanExternalRecipe(t *testing.T) {
	f := newFixture(t)
	m := f.ctx.Manifests[f.mylib]
	tgt := m.Targets["mylib"]
	tgt.Recipe = manifest.RecipeCMake
	m.Targets["mylib"] = tgt
	f.ctx.Manifests[f.mylib] = m

	plan, err := BuildPlan(f.ctx, []surface.TargetRef{{Package: f.app, Target: "app"}})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	externals := plan.Externals()
	if len(externals) != 1 {
		t.Fatalf("external steps = %d, want 1", len(externals))
	}
	if externals[0].Recipe != manifest.RecipeCMake {
		t.Errorf("recipe = %q", externals[0].Recipe)
	}
	if len(externals[0].Outputs) == 0 {
		t.Error("external step must declare outputs")
	}
}

func TestExpandGlobsRecursive(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "src", "a.c"), "")
	mustWrite(t, filepath.Join(dir, "src", "sub", "b.c"), "")
	mustWrite(t, filepath.Join(dir, "src", "sub", "b.h"), "")

	got, err := expandGlobs(dir, []string{"src/**/*.c"})
	if err != nil {
		t.Fatalf("expandGlobs failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("matches = %v, want 2 .c files", got)
	}
	for _, m := range got {
		if !strings.HasSuffix(m, ".c") {
			t.Errorf("unexpected match %s", m)
		}
	}
}
