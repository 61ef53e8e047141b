package manifest

import "testing"

func TestLoadShorthandAndNestedSurfaceAgree(t *testing.T) {
	shorthand := []byte(`
[package]
name = "mylib"
version = "1.0.0"

[targets.mylib]
kind = "static-lib"
language = "cpp"
sources = ["src/*.cpp"]

[targets.mylib.public]
include_dirs = ["include"]
defines = ["API=1"]
`)
	nested := []byte(`
[package]
name = "mylib"
version = "1.0.0"

[targets.mylib]
kind = "static-lib"
language = "cpp"
sources = ["src/*.cpp"]

[targets.mylib.surface.compile.public]
include_dirs = ["include"]
defines = ["API=1"]
`)

	m1, err := Load(shorthand)
	if err != nil {
		t.Fatalf("Load(shorthand): %v", err)
	}
	m2, err := Load(nested)
	if err != nil {
		t.Fatalf("Load(nested): %v", err)
	}

	t1 := m1.Targets["mylib"].Surface.Compile.Public
	t2 := m2.Targets["mylib"].Surface.Compile.Public
	if len(t1.IncludeDirs) != 1 || t1.IncludeDirs[0] != "include" {
		t.Fatalf("shorthand include_dirs = %v", t1.IncludeDirs)
	}
	if len(t2.IncludeDirs) != 1 || t2.IncludeDirs[0] != "include" {
		t.Fatalf("nested include_dirs = %v", t2.IncludeDirs)
	}
	if len(t1.Defines) != 1 || t1.Defines[0].Name != "API" || t1.Defines[0].Value != "1" {
		t.Fatalf("shorthand defines = %v", t1.Defines)
	}
	if len(t2.Defines) != 1 || t2.Defines[0].Name != "API" || t2.Defines[0].Value != "1" {
		t.Fatalf("nested defines = %v", t2.Defines)
	}
}

func TestLoadRejectsUnknownField(t *testing.T) {
	data := []byte(`
[package]
name = "mylib"
version = "1.0.0"
bogus_field = "x"
`)
	if _, err := Load(data); err == nil {
		t.Fatalf("expected error for unknown field, got nil")
	}
}

func TestLoadRejectsMissingVersion(t *testing.T) {
	data := []byte(`
[package]
name = "mylib"
`)
	if _, err := Load(data); err == nil {
		t.Fatalf("expected error for missing package.version, got nil")
	}
}

func TestDefineThreeFormats(t *testing.T) {
	data := []byte(`
[package]
name = "mylib"
version = "1.0.0"

[targets.mylib]
kind = "header-only"
language = "c"

[targets.mylib.public]
defines = ["FLAG_ONLY", "NAME=VALUE", { name = "TABLE", value = "YES" }]
`)
	m, err := Load(data)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defines := m.Targets["mylib"].Surface.Compile.Public.Defines
	if len(defines) != 3 {
		t.Fatalf("expected 3 defines, got %d: %+v", len(defines), defines)
	}
	if defines[0].HasValue || defines[0].Name != "FLAG_ONLY" {
		t.Fatalf("defines[0] = %+v", defines[0])
	}
	if !defines[1].HasValue || defines[1].Name != "NAME" || defines[1].Value != "VALUE" {
		t.Fatalf("defines[1] = %+v", defines[1])
	}
	if !defines[2].HasValue || defines[2].Name != "TABLE" || defines[2].Value != "YES" {
		t.Fatalf("defines[2] = %+v", defines[2])
	}
}

func TestHeaderOnlyTargetWithSourcesRejected(t *testing.T) {
	data := []byte(`
[package]
name = "mylib"
version = "1.0.0"

[targets.mylib]
kind = "header-only"
language = "c"
sources = ["src/a.c"]
`)
	if _, err := Load(data); err == nil {
		t.Fatalf("expected error for header-only target with sources")
	}
}
