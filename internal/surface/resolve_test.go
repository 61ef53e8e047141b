package surface

import (
	"strings"
	"testing"

	"harbour/internal/manifest"
	"harbour/internal/pkgid"
	"harbour/internal/resolver"
)

func pathID(name, version, root string) pkgid.PackageId {
	return pkgid.PackageId{Name: name, Version: version, Source: pkgid.SourceId{Kind: pkgid.Path, Path: root}}
}

func libTarget(name string, sur manifest.Surface, deps ...manifest.TargetDep) manifest.Target {
	return manifest.Target{
		Name:    name,
		Kind:    manifest.StaticLib,
		Surface: sur,
		Deps:    deps,
		Recipe:  manifest.RecipeNative,
	}
}

func TestPrivateSurfaceDoesNotPropagate(t *testing.T) {
	mylib := pathID("mylib", "1.0.0", "/src/mylib")
	app := pathID("app", "0.1.0", "/src/app")

	in := Input{
		Manifests: map[pkgid.PackageId]manifest.Manifest{
			mylib: {
				Package: manifest.PackageMeta{Name: "mylib", Version: "1.0.0"},
				Targets: map[string]manifest.Target{
					"mylib": libTarget("mylib", manifest.Surface{
						Compile: manifest.CompileSurface{
							Public:  manifest.CompileRequirements{Defines: []manifest.Define{{Name: "API", Value: "1", HasValue: true}}},
							Private: manifest.CompileRequirements{Defines: []manifest.Define{{Name: "INTERNAL", Value: "1", HasValue: true}}},
						},
					}),
				},
			},
			app: {
				Package: manifest.PackageMeta{Name: "app", Version: "0.1.0"},
				Targets: map[string]manifest.Target{
					"app": libTarget("app", manifest.Surface{},
						manifest.TargetDep{PackageName: "mylib", TargetName: "mylib", CompileVisibility: manifest.Private, LinkVisibility: manifest.Private}),
				},
			},
		},
		Roots:  map[pkgid.PackageId]string{mylib: "/src/mylib", app: "/src/app"},
		ByName: map[string]pkgid.PackageId{"mylib": mylib, "app": app},
	}

	res, err := NewResolver(in).Resolve(TargetRef{Package: app, Target: "app"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	var names []string
	for _, d := range res.Defines {
		names = append(names, d.Define.Name)
	}
	joined := strings.Join(names, ",")
	if !strings.Contains(joined, "API") {
		t.Errorf("expected public define API to propagate, got %v", names)
	}
	if strings.Contains(joined, "INTERNAL") {
		t.Errorf("private define INTERNAL must not propagate, got %v", names)
	}
}

func TestPublicVisibilityReExports(t *testing.T) {
	leaf := pathID("leaf", "1.0.0", "/src/leaf")
	mid := pathID("mid", "1.0.0", "/src/mid")
	app := pathID("app", "0.1.0", "/src/app")

	leafSurface := manifest.Surface{
		Compile: manifest.CompileSurface{
			Public: manifest.CompileRequirements{IncludeDirs: []string{"include"}},
		},
	}

	makeInput := func(vis manifest.Visibility) Input {
		return Input{
			Manifests: map[pkgid.PackageId]manifest.Manifest{
				leaf: {
					Package: manifest.PackageMeta{Name: "leaf", Version: "1.0.0"},
					Targets: map[string]manifest.Target{"leaf": libTarget("leaf", leafSurface)},
				},
				mid: {
					Package: manifest.PackageMeta{Name: "mid", Version: "1.0.0"},
					Targets: map[string]manifest.Target{
						"mid": libTarget("mid", manifest.Surface{},
							manifest.TargetDep{PackageName: "leaf", TargetName: "leaf", CompileVisibility: vis, LinkVisibility: vis}),
					},
				},
				app: {
					Package: manifest.PackageMeta{Name: "app", Version: "0.1.0"},
					Targets: map[string]manifest.Target{
						"app": libTarget("app", manifest.Surface{},
							manifest.TargetDep{PackageName: "mid", TargetName: "mid", CompileVisibility: manifest.Public, LinkVisibility: manifest.Public}),
					},
				},
			},
			Roots:  map[pkgid.PackageId]string{leaf: "/src/leaf", mid: "/src/mid", app: "/src/app"},
			ByName: map[string]pkgid.PackageId{"leaf": leaf, "mid": mid, "app": app},
		}
	}

	t.Run("public dep is visible transitively", func(t *testing.T) {
		res, err := NewResolver(makeInput(manifest.Public)).Resolve(TargetRef{Package: app, Target: "app"})
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if !containsPath(res.IncludePaths(), "/src/leaf/include") {
			t.Errorf("expected leaf include dir via public mid, got %v", res.IncludePaths())
		}
	})

	t.Run("private dep stops at its consumer", func(t *testing.T) {
		res, err := NewResolver(makeInput(manifest.Private)).Resolve(TargetRef{Package: app, Target: "app"})
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if containsPath(res.IncludePaths(), "/src/leaf/include") {
			t.Errorf("leaf include dir must not leak through private mid, got %v", res.IncludePaths())
		}
	})
}

func containsPath(paths []string, want string) bool {
	for _, p := range paths {
		if p == want {
			return true
		}
	}
	return false
}

func TestDefineOverrideWarns(t *testing.T) {
	lib := pathID("lib", "1.0.0", "/src/lib")

	var warned bool
	in := Input{
		Manifests: map[pkgid.PackageId]manifest.Manifest{
			lib: {
				Package: manifest.PackageMeta{Name: "lib", Version: "1.0.0"},
				Targets: map[string]manifest.Target{
					"lib": libTarget("lib", manifest.Surface{
						Compile: manifest.CompileSurface{
							Private: manifest.CompileRequirements{Defines: []manifest.Define{{Name: "LEVEL", Value: "1", HasValue: true}}},
							Public:  manifest.CompileRequirements{Defines: []manifest.Define{{Name: "LEVEL", Value: "2", HasValue: true}}},
						},
					}),
				},
			},
		},
		Roots:  map[pkgid.PackageId]string{lib: "/src/lib"},
		ByName: map[string]pkgid.PackageId{"lib": lib},
		Warn:   func(format string, args ...any) { warned = true },
	}

	res, err := NewResolver(in).Resolve(TargetRef{Package: lib, Target: "lib"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !warned {
		t.Error("expected a warning for conflicting LEVEL defines")
	}
	if len(res.Defines) != 1 || res.Defines[0].Define.Value != "2" {
		t.Errorf("expected later define to override, got %+v", res.Defines)
	}
}

func TestAbiMismatchAcrossGraph(t *testing.T) {
	a := pathID("a", "1.0.0", "/src/a")
	b := pathID("b", "1.0.0", "/src/b")
	app := pathID("app", "0.1.0", "/src/app")

	in := Input{
		Manifests: map[pkgid.PackageId]manifest.Manifest{
			a: {
				Package: manifest.PackageMeta{Name: "a", Version: "1.0.0"},
				Targets: map[string]manifest.Target{
					"a": libTarget("a", manifest.Surface{Abi: manifest.AbiToggles{MSVCRuntime: "static"}}),
				},
			},
			b: {
				Package: manifest.PackageMeta{Name: "b", Version: "1.0.0"},
				Targets: map[string]manifest.Target{
					"b": libTarget("b", manifest.Surface{Abi: manifest.AbiToggles{MSVCRuntime: "dynamic"}}),
				},
			},
			app: {
				Package: manifest.PackageMeta{Name: "app", Version: "0.1.0"},
				Targets: map[string]manifest.Target{
					"app": libTarget("app", manifest.Surface{},
						manifest.TargetDep{PackageName: "a", TargetName: "a", CompileVisibility: manifest.Public, LinkVisibility: manifest.Public},
						manifest.TargetDep{PackageName: "b", TargetName: "b", CompileVisibility: manifest.Public, LinkVisibility: manifest.Public}),
				},
			},
		},
		Roots:  map[pkgid.PackageId]string{a: "/src/a", b: "/src/b", app: "/src/app"},
		ByName: map[string]pkgid.PackageId{"a": a, "b": b, "app": app},
	}

	_, err := NewResolver(in).Resolve(TargetRef{Package: app, Target: "app"})
	var mismatch *resolver.AbiMismatchError
	if err == nil {
		t.Fatal("expected AbiMismatchError, got nil")
	}
	if !asAbiMismatch(err, &mismatch) {
		t.Fatalf("expected AbiMismatchError, got %v", err)
	}
	if mismatch.Field != "msvc_runtime" {
		t.Errorf("expected msvc_runtime mismatch, got %q", mismatch.Field)
	}
}

func asAbiMismatch(err error, target **resolver.AbiMismatchError) bool {
	e, ok := err.(*resolver.AbiMismatchError)
	if ok {
		*target = e
	}
	return ok
}

func TestConditionalSurfaceAppliesOnMatch(t *testing.T) {
	lib := pathID("lib", "1.0.0", "/src/lib")

	target := libTarget("lib", manifest.Surface{
		Compile: manifest.CompileSurface{
			Public: manifest.CompileRequirements{CFlags: []string{"-base"}},
		},
		Conditionals: []manifest.ConditionalSurface{
			{
				Match: manifest.PlatformMatch{OS: "linux"},
				Patch: manifest.PartialSurface{
					CompilePublic: &manifest.CompileRequirements{CFlags: []string{"-on-linux"}},
				},
			},
			{
				Match: manifest.PlatformMatch{OS: "windows"},
				Patch: manifest.PartialSurface{
					CompilePublic: &manifest.CompileRequirements{CFlags: []string{"-on-windows"}},
				},
			},
		},
	})

	in := Input{
		Manifests: map[pkgid.PackageId]manifest.Manifest{
			lib: {
				Package: manifest.PackageMeta{Name: "lib", Version: "1.0.0"},
				Targets: map[string]manifest.Target{"lib": target},
			},
		},
		Roots:    map[pkgid.PackageId]string{lib: "/src/lib"},
		ByName:   map[string]pkgid.PackageId{"lib": lib},
		Platform: manifest.TargetPlatform{OS: "linux", Arch: "amd64"},
	}

	res, err := NewResolver(in).Resolve(TargetRef{Package: lib, Target: "lib"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	flags := res.CFlagList()
	if len(flags) != 2 || flags[0] != "-base" || flags[1] != "-on-linux" {
		t.Errorf("expected [-base -on-linux], got %v", flags)
	}
	for _, f := range flags {
		if f == "-on-windows" {
			t.Errorf("windows conditional must not apply on linux")
		}
	}
	if res.CFlags[1].From.Slot != SlotConditional {
		t.Errorf("conditional flag should carry SlotConditional provenance, got %v", res.CFlags[1].From.Slot)
	}
}
