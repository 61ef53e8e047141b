// Package harbourcfg holds the single explicitly-threaded configuration
// value every Harbour operation takes as its first argument. There is no
// ambient process-global configuration state outside of this package's
// Load, which reads the environment exactly once at startup.
package harbourcfg

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
)

// Context is threaded explicitly through every operation: resolver,
// planner, executor, registry ops, and CLI commands all take one as their
// first parameter rather than reaching for package-level globals.
type Context struct {
	// CacheDir is the root of the content-addressed source cache.
	CacheDir string
	// HomeDir is Harbour's own state directory ($HARBOUR_HOME), holding
	// registries, clones, and the config file.
	HomeDir string
	// CC, CXX, AR are toolchain overrides, highest-precedence layer.
	CC, CXX, AR string
	// Jobs bounds compile-phase parallelism; 0 means "use runtime.NumCPU".
	Jobs int
	// Verbose enables debug-level logging.
	Verbose bool

	Log *log.Logger
}

// fileConfig mirrors the on-disk $HARBOUR_HOME/config.toml schema.
type fileConfig struct {
	CacheDir string `toml:"cache_dir"`
	CC       string `toml:"cc"`
	CXX      string `toml:"cxx"`
	AR       string `toml:"ar"`
	Jobs     int    `toml:"jobs"`
}

// Load assembles a Context from, in increasing precedence: built-in
// defaults, $HARBOUR_HOME/config.toml, the process environment, then the
// supplied overrides (normally populated from CLI flags).
func Load(overrides Context) (*Context, error) {
	home, err := defaultHomeDir()
	if err != nil {
		return nil, fmt.Errorf("harbourcfg: resolve home dir: %w", err)
	}
	if v := os.Getenv("HARBOUR_HOME"); v != "" {
		home = v
	}
	if overrides.HomeDir != "" {
		home = overrides.HomeDir
	}

	ctx := &Context{
		HomeDir:  home,
		CacheDir: filepath.Join(home, "cache"),
		Jobs:     runtime.NumCPU(),
	}

	if err := applyConfigFile(ctx, filepath.Join(home, "config.toml")); err != nil {
		return nil, err
	}

	applyEnv(ctx)
	applyOverrides(ctx, overrides)

	logger := log.New(os.Stderr)
	if ctx.Verbose {
		logger.SetLevel(log.DebugLevel)
	}
	ctx.Log = logger

	return ctx, nil
}

func applyConfigFile(ctx *Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("harbourcfg: read %s: %w", path, err)
	}
	var fc fileConfig
	meta, err := toml.Decode(string(data), &fc)
	if err != nil {
		return fmt.Errorf("harbourcfg: parse %s: %w", path, err)
	}
	for _, key := range meta.Undecoded() {
		return fmt.Errorf("harbourcfg: %s: unknown field %q", path, key)
	}
	if fc.CacheDir != "" {
		ctx.CacheDir = fc.CacheDir
	}
	if fc.CC != "" {
		ctx.CC = fc.CC
	}
	if fc.CXX != "" {
		ctx.CXX = fc.CXX
	}
	if fc.AR != "" {
		ctx.AR = fc.AR
	}
	if fc.Jobs > 0 {
		ctx.Jobs = fc.Jobs
	}
	return nil
}

func applyEnv(ctx *Context) {
	if v := os.Getenv("HARBOUR_CACHE_DIR"); v != "" {
		ctx.CacheDir = v
	}
	if v := os.Getenv("CC"); v != "" {
		ctx.CC = v
	}
	if v := os.Getenv("CXX"); v != "" {
		ctx.CXX = v
	}
	if v := os.Getenv("AR"); v != "" {
		ctx.AR = v
	}
}

func applyOverrides(ctx *Context, overrides Context) {
	if overrides.CacheDir != "" {
		ctx.CacheDir = overrides.CacheDir
	}
	if overrides.HomeDir != "" {
		ctx.HomeDir = overrides.HomeDir
	}
	if overrides.CC != "" {
		ctx.CC = overrides.CC
	}
	if overrides.CXX != "" {
		ctx.CXX = overrides.CXX
	}
	if overrides.AR != "" {
		ctx.AR = overrides.AR
	}
	if overrides.Jobs > 0 {
		ctx.Jobs = overrides.Jobs
	}
	if overrides.Verbose {
		ctx.Verbose = true
	}
}

// defaultHomeDir returns ~/.harbour, the same pattern the teacher's
// getGlobalCosmDir uses for ~/.cosm.
func defaultHomeDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %v", err)
	}
	return filepath.Join(homeDir, ".harbour"), nil
}

// RegistriesDir is the directory holding cloned registry indexes.
func (c *Context) RegistriesDir() string {
	return filepath.Join(c.HomeDir, "registries")
}

// ClonesDir is the scratch directory for in-progress registry/source
// clones.
func (c *Context) ClonesDir() string {
	return filepath.Join(c.HomeDir, "clones")
}

// EnsureDirs creates the directories Harbour needs under HomeDir and
// CacheDir, mirroring the teacher's MkdirAll-on-first-use pattern.
func (c *Context) EnsureDirs() error {
	for _, dir := range []string{c.HomeDir, c.CacheDir, c.RegistriesDir(), c.ClonesDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("harbourcfg: create %s: %w", dir, err)
		}
	}
	return nil
}
