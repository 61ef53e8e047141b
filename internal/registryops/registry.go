// Package registryops manages the git-backed registries a
// RegistrySource reads from: initializing, cloning, updating, and
// publishing package versions into the <Letter>/<pkg>/<version> shim
// layout.
package registryops

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"harbour/internal/fingerprint"
	"harbour/internal/harbourcfg"
	"harbour/internal/manifest"
	"harbour/internal/regfmt"
	"harbour/internal/vcsgit"
)

const indexFile = "registry.json"
const listFile = "registries.json"

// registryDir is the local clone of one registry.
func registryDir(ctx *harbourcfg.Context, name string) string {
	return filepath.Join(ctx.RegistriesDir(), name)
}

// LoadIndex reads a registry's registry.json.
func LoadIndex(ctx *harbourcfg.Context, name string) (regfmt.Index, error) {
	path := filepath.Join(registryDir(ctx, name), indexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return regfmt.Index{}, fmt.Errorf("registry %q: read %s: %w", name, path, err)
	}
	var idx regfmt.Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return regfmt.Index{}, fmt.Errorf("registry %q: parse %s: %w", name, path, err)
	}
	return idx, nil
}

func saveIndex(ctx *harbourcfg.Context, name string, idx regfmt.Index) error {
	idx.LastUpdated = time.Now().UTC()
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("registry %q: marshal index: %w", name, err)
	}
	data = append(data, '\n')
	path := filepath.Join(registryDir(ctx, name), indexFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("registry %q: write %s: %w", name, path, err)
	}
	return nil
}

// ListNames returns the locally known registry names, sorted.
func ListNames(ctx *harbourcfg.Context) ([]string, error) {
	path := filepath.Join(ctx.RegistriesDir(), listFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	sort.Strings(names)
	return names, nil
}

func saveNames(ctx *harbourcfg.Context, names []string) error {
	sort.Strings(names)
	data, err := json.MarshalIndent(names, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry list: %w", err)
	}
	data = append(data, '\n')
	path := filepath.Join(ctx.RegistriesDir(), listFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func addName(ctx *harbourcfg.Context, name string) error {
	names, err := ListNames(ctx)
	if err != nil {
		return err
	}
	for _, n := range names {
		if n == name {
			return fmt.Errorf("registry %q already exists", name)
		}
	}
	return saveNames(ctx, append(names, name))
}

func removeName(ctx *harbourcfg.Context, name string) error {
	names, err := ListNames(ctx)
	if err != nil {
		return err
	}
	out := names[:0]
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return saveNames(ctx, out)
}

// Init creates a new registry: clones the (empty) remote, writes the
// initial index, and pushes it.
func Init(ctx *harbourcfg.Context, name, gitURL string) error {
	if err := ctx.EnsureDirs(); err != nil {
		return err
	}
	dir := registryDir(ctx, name)
	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("registry %q already cloned at %s", name, dir)
	}
	if err := vcsgit.Clone(gitURL, dir); err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Join(dir, indexFile)); err == nil {
		os.RemoveAll(dir)
		return fmt.Errorf("remote %s already holds a registry; use 'registry clone'", gitURL)
	}
	if err := addName(ctx, name); err != nil {
		os.RemoveAll(dir)
		return err
	}
	if err := saveIndex(ctx, name, regfmt.Index{Name: name, GitURL: gitURL, Packages: map[string]regfmt.PackageInfo{}}); err != nil {
		return err
	}
	if err := vcsgit.StageFiles(dir, indexFile); err != nil {
		return err
	}
	if err := vcsgit.Commit(dir, fmt.Sprintf("initialize registry %s", name)); err != nil {
		return err
	}
	branch, err := vcsgit.CurrentBranch(dir)
	if err != nil {
		return err
	}
	if err := vcsgit.PushToRemote(dir, branch); err != nil {
		return err
	}
	ctx.Log.Info("initialized registry", "name", name, "url", gitURL)
	return nil
}

// Clone brings an existing remote registry into the local registries
// directory.
func Clone(ctx *harbourcfg.Context, gitURL string) (string, error) {
	if err := ctx.EnsureDirs(); err != nil {
		return "", err
	}
	tmp := filepath.Join(ctx.ClonesDir(), uuid.New().String())
	if err := vcsgit.Clone(gitURL, tmp); err != nil {
		return "", err
	}
	defer os.RemoveAll(tmp)

	data, err := os.ReadFile(filepath.Join(tmp, indexFile))
	if err != nil {
		return "", fmt.Errorf("remote %s is not a registry (no %s): %w", gitURL, indexFile, err)
	}
	var idx regfmt.Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return "", fmt.Errorf("remote %s: parse %s: %w", gitURL, indexFile, err)
	}
	if idx.Name == "" {
		return "", fmt.Errorf("remote %s: registry index has no name", gitURL)
	}
	if err := addName(ctx, idx.Name); err != nil {
		return "", err
	}
	dir := registryDir(ctx, idx.Name)
	if err := os.Rename(tmp, dir); err != nil {
		return "", fmt.Errorf("move clone into place: %w", err)
	}
	ctx.Log.Info("cloned registry", "name", idx.Name, "url", gitURL)
	return idx.Name, nil
}

// Update pulls the latest state of one registry, or of every known
// registry when name is empty.
func Update(ctx *harbourcfg.Context, name string) error {
	names := []string{name}
	if name == "" {
		var err error
		names, err = ListNames(ctx)
		if err != nil {
			return err
		}
	}
	for _, n := range names {
		dir := registryDir(ctx, n)
		if _, err := os.Stat(dir); err != nil {
			return fmt.Errorf("registry %q is not cloned locally", n)
		}
		branch, err := vcsgit.CurrentBranch(dir)
		if err != nil {
			return err
		}
		behind, err := vcsgit.BehindOrigin(dir, branch)
		if err != nil {
			return err
		}
		if behind == 0 {
			ctx.Log.Debug("registry already current", "name", n)
			continue
		}
		if err := vcsgit.PullBranch(dir, branch); err != nil {
			return err
		}
		ctx.Log.Info("updated registry", "name", n, "commits", behind)
	}
	return nil
}

// Delete removes the local clone of a registry. The remote is left
// untouched.
func Delete(ctx *harbourcfg.Context, name string) error {
	dir := registryDir(ctx, name)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("registry %q is not cloned locally", name)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove registry %q: %w", name, err)
	}
	return removeName(ctx, name)
}

// shimDir is <registry>/<Letter>/<pkg>/<version>.
func shimDir(ctx *harbourcfg.Context, registry, pkg, version string) string {
	letter := strings.ToUpper(pkg[:1])
	return filepath.Join(registryDir(ctx, registry), letter, pkg, version)
}

// Add publishes one version of a package into a registry: clones the
// package, reads its manifest, records the pinned commit in a shim, and
// pushes the updated registry.
func Add(ctx *harbourcfg.Context, registry, packageGitURL string) error {
	if err := Update(ctx, registry); err != nil {
		return err
	}
	idx, err := LoadIndex(ctx, registry)
	if err != nil {
		return err
	}

	tmp := filepath.Join(ctx.ClonesDir(), uuid.New().String())
	if err := vcsgit.Clone(packageGitURL, tmp); err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	data, err := os.ReadFile(filepath.Join(tmp, "Harbour.toml"))
	if err != nil {
		return fmt.Errorf("package at %s has no Harbour.toml: %w", packageGitURL, err)
	}
	m, err := manifest.Load(data)
	if err != nil {
		return err
	}

	sha, err := vcsgit.RevParse(tmp, "HEAD")
	if err != nil {
		return err
	}

	info, registered := idx.Packages[m.Package.Name]
	if !registered {
		info = regfmt.PackageInfo{UUID: uuid.New().String()}
	}

	dir := shimDir(ctx, registry, m.Package.Name, m.Package.Version)
	if _, err := os.Stat(filepath.Join(dir, "specs.toml")); err == nil {
		return fmt.Errorf("%s@%s is already published in registry %q", m.Package.Name, m.Package.Version, registry)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create shim dir: %w", err)
	}

	specs := regfmt.Specs{
		Name:     m.Package.Name,
		Version:  m.Package.Version,
		UUID:     info.UUID,
		GitURL:   packageGitURL,
		SHA1:     sha,
		Checksum: manifestChecksum(data),
	}
	var buf strings.Builder
	if err := toml.NewEncoder(&buf).Encode(specs); err != nil {
		return fmt.Errorf("encode shim for %s@%s: %w", m.Package.Name, m.Package.Version, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "specs.toml"), []byte(buf.String()), 0o644); err != nil {
		return fmt.Errorf("write shim: %w", err)
	}

	if idx.Packages == nil {
		idx.Packages = map[string]regfmt.PackageInfo{}
	}
	idx.Packages[m.Package.Name] = info
	if err := saveIndex(ctx, registry, idx); err != nil {
		return err
	}
	if err := commitAndPush(ctx, registry, fmt.Sprintf("add %s@%s", m.Package.Name, m.Package.Version)); err != nil {
		return err
	}
	ctx.Log.Info("published", "package", m.Package.Name, "version", m.Package.Version, "registry", registry)
	return nil
}

// Rm removes one published version (or, when version is empty, the
// whole package) from a registry.
func Rm(ctx *harbourcfg.Context, registry, pkg, version string) error {
	idx, err := LoadIndex(ctx, registry)
	if err != nil {
		return err
	}
	if _, ok := idx.Packages[pkg]; !ok {
		return fmt.Errorf("package %q is not registered in %q", pkg, registry)
	}

	letter := strings.ToUpper(pkg[:1])
	pkgDir := filepath.Join(registryDir(ctx, registry), letter, pkg)
	target := pkgDir
	msg := fmt.Sprintf("remove %s", pkg)
	if version != "" {
		target = filepath.Join(pkgDir, version)
		msg = fmt.Sprintf("remove %s@%s", pkg, version)
	}
	if _, err := os.Stat(target); err != nil {
		return fmt.Errorf("%s: not published in registry %q", msg, registry)
	}
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("%s: %w", msg, err)
	}

	// Dropping the last version unregisters the package.
	remaining, _ := os.ReadDir(pkgDir)
	if len(remaining) == 0 {
		os.RemoveAll(pkgDir)
		delete(idx.Packages, pkg)
	}
	if err := saveIndex(ctx, registry, idx); err != nil {
		return err
	}
	return commitAndPush(ctx, registry, msg)
}

func commitAndPush(ctx *harbourcfg.Context, registry, message string) error {
	dir := registryDir(ctx, registry)
	if err := vcsgit.StageFiles(dir, "."); err != nil {
		return err
	}
	if err := vcsgit.Commit(dir, message); err != nil {
		return err
	}
	branch, err := vcsgit.CurrentBranch(dir)
	if err != nil {
		return err
	}
	return vcsgit.PushToRemote(dir, branch)
}

// manifestChecksum content-addresses the published manifest so a
// registry entry can be verified without trusting the git remote.
func manifestChecksum(manifestBytes []byte) string {
	return "sha256:" + fingerprint.HashBytes(manifestBytes)
}
