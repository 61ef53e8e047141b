package ops

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"

	"harbour/internal/abi"
	"harbour/internal/executor"
	"harbour/internal/fingerprint"
	"harbour/internal/harbourcfg"
	"harbour/internal/manifest"
	"harbour/internal/planner"
	"harbour/internal/surface"
	"harbour/internal/toolchain"
)

// BuildOptions tune one build/test invocation.
type BuildOptions struct {
	Profile string
	Jobs    int
	// CppStd is the CLI override for the effective C++ standard.
	CppStd string
	// Targets restricts the build to the named root targets; empty
	// builds all of them.
	Targets []string
}

// BuildProject runs the full pipeline: resolve, validate, plan,
// execute. Errors carry their phase for exit-code mapping.
func BuildProject(c context.Context, ctx *harbourcfg.Context, proj *Project, opts BuildOptions) (*executor.Result, error) {
	prep, err := prepare(ctx, proj, opts)
	if err != nil {
		return nil, err
	}

	store, err := fingerprint.NewStore(filepath.Join(prep.outDir, "fingerprints"))
	if err != nil {
		return nil, phaseErr(PhaseBuild, err)
	}

	exe := executor.New(prep.plan, prep.toolchain, store, executor.Options{
		Jobs:    opts.Jobs,
		Triple:  prep.triple,
		Profile: prep.profile,
		Log:     ctx.Log,
	})
	res, err := exe.Run(c)
	if err != nil {
		return nil, phaseErr(PhaseBuild, err)
	}
	return res, nil
}

// prepared is everything between resolution and execution, shared by
// build, test, and the pretty-printers.
type prepared struct {
	graph     *Graph
	surfaces  *surface.Resolver
	plan      *planner.Plan
	toolchain toolchain.Toolchain
	profile   manifest.Profile
	triple    string
	outDir    string
	roots     []surface.TargetRef
}

func prepare(ctx *harbourcfg.Context, proj *Project, opts BuildOptions) (*prepared, error) {
	graph, err := ResolveProject(ctx, proj, false)
	if err != nil {
		return nil, err
	}

	workspaceStd := ""
	if proj.Manifest.Build != nil {
		workspaceStd = proj.Manifest.Build.CppStd
	}
	validated, err := abi.Validate(abi.CollectConstraints(graph.Manifests), opts.CppStd, workspaceStd)
	if err != nil {
		return nil, phaseErr(PhaseResolve, err)
	}

	tc, err := toolchain.Detect(ctx.CC, ctx.CXX, ctx.AR)
	if err != nil {
		return nil, phaseErr(PhaseBuild, err)
	}

	profile := proj.Profile(opts.Profile)
	triple := targetTriple()
	platform := manifest.TargetPlatform{
		OS:       runtime.GOOS,
		Arch:     runtime.GOARCH,
		Compiler: tc.Family().String(),
	}

	surfaces := surface.NewResolver(surface.Input{
		Manifests: graph.Manifests,
		Roots:     graph.Roots,
		ByName:    graph.ByName,
		Platform:  platform,
		Warn: func(format string, args ...any) {
			ctx.Log.Warnf(format, args...)
		},
	})

	rootID, _ := graph.Resolve.Root()
	targets := opts.Targets
	if len(targets) == 0 {
		targets = proj.RootTargets()
	}
	sort.Strings(targets)
	var roots []surface.TargetRef
	for _, name := range targets {
		if _, ok := proj.Manifest.Targets[name]; !ok {
			return nil, phaseErr(PhaseManifest, fmt.Errorf("no target %q in %s", name, proj.ID.Name))
		}
		roots = append(roots, surface.TargetRef{Package: rootID, Target: name})
	}

	outDir := proj.OutDir(profile.Name)
	plan, err := planner.BuildPlan(&planner.Context{
		Resolve:         graph.Resolve,
		Manifests:       graph.Manifests,
		Roots:           graph.Roots,
		ByName:          graph.ByName,
		Surfaces:        surfaces,
		Toolchain:       tc,
		Profile:         profile,
		OutDir:          outDir,
		EffectiveCppStd: validated.EffectiveCppStd,
	}, roots)
	if err != nil {
		return nil, phaseErr(PhaseBuild, err)
	}

	return &prepared{
		graph:     graph,
		surfaces:  surfaces,
		plan:      plan,
		toolchain: tc,
		profile:   profile,
		triple:    triple,
		outDir:    outDir,
		roots:     roots,
	}, nil
}

// TestProject builds the project, then runs every executable target
// whose name marks it as a test. A failing test exits with its own
// phase so the CLI can report exit code 4.
func TestProject(c context.Context, ctx *harbourcfg.Context, proj *Project, opts BuildOptions) error {
	prep, err := prepare(ctx, proj, opts)
	if err != nil {
		return err
	}
	store, err := fingerprint.NewStore(filepath.Join(prep.outDir, "fingerprints"))
	if err != nil {
		return phaseErr(PhaseBuild, err)
	}
	exe := executor.New(prep.plan, prep.toolchain, store, executor.Options{
		Jobs:    opts.Jobs,
		Triple:  prep.triple,
		Profile: prep.profile,
		Log:     ctx.Log,
	})
	if _, err := exe.Run(c); err != nil {
		return phaseErr(PhaseBuild, err)
	}

	for _, ref := range prep.roots {
		tgt := proj.Manifest.Targets[ref.Target]
		if tgt.Kind != manifest.Exe || !isTestTarget(ref.Target) {
			continue
		}
		bin := filepath.Join(prep.outDir, prep.toolchain.ExeName(ref.Target))
		ctx.Log.Info("running test", "target", ref.Target)
		cmd := exec.CommandContext(c, bin)
		cmd.Dir = proj.Root
		out, err := cmd.CombinedOutput()
		if err != nil {
			return phaseErr(PhaseTest, fmt.Errorf("test %s failed: %w\n%s", ref.Target, err, out))
		}
	}
	return nil
}

func isTestTarget(name string) bool {
	return name == "test" ||
		len(name) > 5 && (name[:5] == "test-" || name[:5] == "test_") ||
		len(name) > 5 && (name[len(name)-5:] == "-test" || name[len(name)-5:] == "_test")
}

// UpdateProject re-resolves unconditionally and rewrites the lockfile,
// re-pinning branch git dependencies in the process.
func UpdateProject(ctx *harbourcfg.Context, proj *Project) error {
	_, err := ResolveProject(ctx, proj, true)
	return err
}

// targetTriple renders the host platform as a conventional C target
// triple. The build always targets the host; no option overrides the
// triple.
func targetTriple() string {
	arch := runtime.GOARCH
	switch arch {
	case "amd64":
		arch = "x86_64"
	case "arm64":
		arch = "aarch64"
	case "386":
		arch = "i686"
	}
	switch runtime.GOOS {
	case "darwin":
		return arch + "-apple-darwin"
	case "windows":
		return arch + "-pc-windows-msvc"
	default:
		return arch + "-" + runtime.GOOS + "-gnu"
	}
}
