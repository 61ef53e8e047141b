package source

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, contents string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "Harbour.toml"), []byte(contents), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

func TestPathSourceQueryReturnsManifestVersion(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[package]
name = "mylib"
version = "2.3.4"
`)
	ps, err := NewPathSource(dir)
	if err != nil {
		t.Fatalf("NewPathSource: %v", err)
	}
	handles, err := ps.Query("mylib", "^1")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(handles) != 1 || handles[0].Version != "2.3.4" {
		t.Fatalf("Query returned %+v, want one handle at version 2.3.4", handles)
	}
}

func TestPathSourceRejectsNameMismatch(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[package]
name = "other"
version = "1.0.0"
`)
	ps, err := NewPathSource(dir)
	if err != nil {
		t.Fatalf("NewPathSource: %v", err)
	}
	if _, err := ps.Query("mylib", "*"); err == nil {
		t.Fatalf("expected NotFoundError for package-name mismatch")
	}
}

func TestPathSourceIsCached(t *testing.T) {
	dir := t.TempDir()
	ps, _ := NewPathSource(dir)
	if ps.IsCached(Handle{}) {
		t.Fatalf("expected not cached before manifest exists")
	}
	writeManifest(t, dir, `
[package]
name = "mylib"
version = "1.0.0"
`)
	if !ps.IsCached(Handle{}) {
		t.Fatalf("expected cached once manifest exists")
	}
}
