package registryops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"

	"harbour/internal/harbourcfg"
	"harbour/internal/vcsgit"
)

// newTestContext builds a Context rooted in a temp dir and points git
// identity env vars at a throwaway author so commits succeed on bare CI
// machines.
func newTestContext(t *testing.T) *harbourcfg.Context {
	t.Helper()
	home := t.TempDir()
	t.Setenv("GIT_AUTHOR_NAME", "harbour-test")
	t.Setenv("GIT_AUTHOR_EMAIL", "test@harbour.invalid")
	t.Setenv("GIT_COMMITTER_NAME", "harbour-test")
	t.Setenv("GIT_COMMITTER_EMAIL", "test@harbour.invalid")

	ctx := &harbourcfg.Context{
		HomeDir:  home,
		CacheDir: filepath.Join(home, "cache"),
		Log:      log.New(os.Stderr),
	}
	if err := ctx.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs failed: %v", err)
	}
	return ctx
}

// newBareRemote creates an empty bare repository to act as a remote.
func newBareRemote(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "remote.git")
	if _, err := vcsgit.RunCommand("", "git", "init", "--bare", "--initial-branch=main", dir); err != nil {
		t.Fatalf("init bare remote: %v", err)
	}
	return dir
}

// newPackageRemote creates a bare remote holding one committed package.
func newPackageRemote(t *testing.T, name, version string) string {
	t.Helper()
	remote := newBareRemote(t)
	work := filepath.Join(t.TempDir(), name)
	if err := vcsgit.Clone(remote, work); err != nil {
		t.Fatalf("clone package work tree: %v", err)
	}
	manifestBody := "[package]\nname = \"" + name + "\"\nversion = \"" + version + "\"\n"
	if err := os.WriteFile(filepath.Join(work, "Harbour.toml"), []byte(manifestBody), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	if err := vcsgit.StageFiles(work, "."); err != nil {
		t.Fatalf("stage: %v", err)
	}
	if err := vcsgit.Commit(work, "initial"); err != nil {
		t.Fatalf("commit: %v", err)
	}
	branch, err := vcsgit.CurrentBranch(work)
	if err != nil {
		t.Fatalf("branch: %v", err)
	}
	if err := vcsgit.PushToRemote(work, branch); err != nil {
		t.Fatalf("push: %v", err)
	}
	return remote
}

func TestInitAddRm(t *testing.T) {
	ctx := newTestContext(t)
	registryRemote := newBareRemote(t)

	if err := Init(ctx, "general", registryRemote); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	names, err := ListNames(ctx)
	if err != nil {
		t.Fatalf("ListNames failed: %v", err)
	}
	if len(names) != 1 || names[0] != "general" {
		t.Fatalf("names = %v, want [general]", names)
	}

	pkgRemote := newPackageRemote(t, "mathlib", "1.2.0")
	if err := Add(ctx, "general", pkgRemote); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	idx, err := LoadIndex(ctx, "general")
	if err != nil {
		t.Fatalf("LoadIndex failed: %v", err)
	}
	info, ok := idx.Packages["mathlib"]
	if !ok {
		t.Fatal("mathlib not registered in index")
	}
	if info.UUID == "" {
		t.Error("registered package has no UUID")
	}

	shim := filepath.Join(ctx.RegistriesDir(), "general", "M", "mathlib", "1.2.0", "specs.toml")
	if _, err := os.Stat(shim); err != nil {
		t.Fatalf("shim file missing: %v", err)
	}

	// Publishing the same version twice is rejected.
	if err := Add(ctx, "general", pkgRemote); err == nil {
		t.Error("expected duplicate publish to fail")
	}

	if err := Rm(ctx, "general", "mathlib", "1.2.0"); err != nil {
		t.Fatalf("Rm failed: %v", err)
	}
	idx, err = LoadIndex(ctx, "general")
	if err != nil {
		t.Fatalf("LoadIndex failed: %v", err)
	}
	if _, ok := idx.Packages["mathlib"]; ok {
		t.Error("package should be unregistered once its last version is removed")
	}
}

func TestDeleteRemovesLocalCloneOnly(t *testing.T) {
	ctx := newTestContext(t)
	remote := newBareRemote(t)
	if err := Init(ctx, "general", remote); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := Delete(ctx, "general"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(ctx.RegistriesDir(), "general")); !os.IsNotExist(err) {
		t.Error("local clone should be gone")
	}
	if _, err := os.Stat(remote); err != nil {
		t.Error("remote must survive a local delete")
	}
	names, err := ListNames(ctx)
	if err != nil {
		t.Fatalf("ListNames failed: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("names = %v, want empty", names)
	}
}
