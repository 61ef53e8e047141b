package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"harbour/internal/fingerprint"
	"harbour/internal/manifest"
	"harbour/internal/planner"
	"harbour/internal/toolchain"
)

// Options tune one Run invocation.
type Options struct {
	// Jobs bounds compile-phase parallelism; 0 means runtime.NumCPU.
	Jobs int
	// GracePeriod is how long a cancelled subprocess gets between
	// SIGTERM and SIGKILL.
	GracePeriod time.Duration
	// Triple is the target triple, part of the toolchain fingerprint.
	Triple string
	// Profile is the active build profile.
	Profile manifest.Profile

	Log *log.Logger
}

// Result summarizes one Run.
type Result struct {
	Executed int
	Skipped  int
}

// Executor runs one BuildPlan. It is single-use.
type Executor struct {
	plan  *planner.Plan
	tc    toolchain.Toolchain
	store *fingerprint.Store
	opts  Options

	toolchainFP string
	snapshot    map[string]string

	mu       sync.Mutex
	stepFP   map[string]string // object/archive path -> fingerprint
	executed int
	skipped  int

	stop     atomic.Bool
	firstErr error
}

// New constructs an Executor over a plan, toolchain, and fingerprint
// store.
func New(plan *planner.Plan, tc toolchain.Toolchain, store *fingerprint.Store, opts Options) *Executor {
	if opts.Jobs <= 0 {
		opts.Jobs = runtime.NumCPU()
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = 5 * time.Second
	}
	if opts.Log == nil {
		opts.Log = log.New(os.Stderr)
	}
	return &Executor{
		plan:   plan,
		tc:     tc,
		store:  store,
		opts:   opts,
		stepFP: make(map[string]string),
	}
}

// Run executes the plan: external recipes serially, compiles under the
// worker pool, archives and links sequentially in plan order. On the
// first failure no new steps are scheduled, in-flight steps drain, and
// the first error is returned with its provenance.
func (e *Executor) Run(ctx context.Context) (*Result, error) {
	if err := e.checkToolchainFingerprint(); err != nil {
		return nil, err
	}
	snap, err := e.store.Snapshot()
	if err != nil {
		return nil, err
	}
	e.snapshot = snap

	if err := e.runExternals(ctx); err != nil {
		return nil, err
	}
	if err := e.runCompiles(ctx); err != nil {
		return nil, err
	}
	if err := e.runLinkPhase(ctx); err != nil {
		return nil, err
	}

	return &Result{Executed: e.executed, Skipped: e.skipped}, nil
}

// checkToolchainFingerprint computes the current toolchain fingerprint
// and clears every persisted step fingerprint when it changed, forcing a
// full rebuild.
func (e *Executor) checkToolchainFingerprint() error {
	fp, err := fingerprint.Toolchain(e.tc.Family().String(), e.tc.FullVersion(), e.opts.Triple, e.opts.Profile)
	if err != nil {
		return err
	}
	e.toolchainFP = fp
	if persisted := e.store.ReadToolchain(); persisted != fp {
		if persisted != "" {
			e.opts.Log.Info("toolchain changed, rebuilding everything")
		}
		if err := e.store.Clear(); err != nil {
			return err
		}
		if err := e.store.WriteToolchain(fp); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) fail(err error) {
	e.stop.Store(true)
	e.mu.Lock()
	if e.firstErr == nil {
		e.firstErr = err
	}
	e.mu.Unlock()
}

func (e *Executor) takeErr(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.firstErr != nil {
		return e.firstErr
	}
	if ctx.Err() != nil {
		return &StepError{Kind: Cancelled, Cause: ctx.Err()}
	}
	return nil
}

// runExternals executes external recipes serially in plan order, hashing
// their declared outputs afterward to feed downstream fingerprints.
func (e *Executor) runExternals(ctx context.Context) error {
	for _, step := range e.plan.Externals() {
		if ctx.Err() != nil {
			return &StepError{Kind: Cancelled, Target: step.Target, Step: step.ID, Cause: ctx.Err()}
		}
		if err := e.runExternal(ctx, step); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) runExternal(ctx context.Context, step *planner.External) error {
	var invs []toolchain.Invocation
	switch step.Recipe {
	case manifest.RecipeCMake:
		buildDir := filepath.Join(step.Workdir, ".harbour-cmake")
		invs = []toolchain.Invocation{
			{Program: "cmake", Args: []string{"-S", step.Workdir, "-B", buildDir}},
			{Program: "cmake", Args: []string{"--build", buildDir}},
		}
	default:
		// A custom recipe is a script the package ships at its root.
		invs = []toolchain.Invocation{{Program: filepath.Join(step.Workdir, "harbour-recipe"), Args: nil}}
	}

	e.opts.Log.Info("running recipe", "target", step.Target.String())
	for _, inv := range invs {
		out, err := e.runCommand(ctx, inv, step.Workdir)
		if err != nil {
			return &StepError{Kind: ExternalRecipeFailed, Target: step.Target, Step: step.ID, Cause: err, Output: out}
		}
	}

	for _, output := range step.Outputs {
		fp, err := fingerprint.HashFile(output)
		if err != nil {
			return &StepError{Kind: RecipeOutputMissing, Target: step.Target, Step: step.ID, Cause: err}
		}
		e.mu.Lock()
		e.stepFP[output] = fp
		e.executed++
		e.mu.Unlock()
	}
	return nil
}

// runCompiles drives the bounded worker pool. On failure scheduling
// stops but in-flight compiles finish, so their diagnostics stay
// readable.
func (e *Executor) runCompiles(ctx context.Context) error {
	sem := semaphore.NewWeighted(int64(e.opts.Jobs))
	g := new(errgroup.Group)

	for _, step := range e.plan.Compiles() {
		step := step
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)
			if e.stop.Load() || ctx.Err() != nil {
				return nil
			}
			if err := e.runCompile(ctx, step); err != nil {
				e.fail(err)
			}
			return nil
		})
	}
	g.Wait()
	return e.takeErr(ctx)
}

func (e *Executor) compileFingerprint(step *planner.Compile) (string, error) {
	return fingerprint.Compile(fingerprint.CompileParams{
		Source:      step.Source,
		DepFile:     step.DepFile,
		Flags:       step.Flags,
		IncludeDirs: step.IncludeDirs,
		Defines:     step.Defines,
		Std:         step.Std,
		Language:    step.Language,
		Abi:         step.Abi,
		Toolchain:   e.toolchainFP,
	})
}

func (e *Executor) runCompile(ctx context.Context, step *planner.Compile) error {
	fp, err := e.compileFingerprint(step)
	if err != nil {
		return &StepError{Kind: CompileFailed, Target: step.Target, Step: step.ID, Cause: err}
	}

	if e.snapshot[step.ID] == fp && fileExists(step.Object) {
		e.recordStep(step.Object, fp, true)
		e.opts.Log.Debug("fresh", "step", step.ID)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(step.Object), 0o755); err != nil {
		return &StepError{Kind: CompileFailed, Target: step.Target, Step: step.ID, Cause: err}
	}

	inv := e.tc.Compile(toolchain.CompileInputs{
		Source:      step.Source,
		Object:      step.Object,
		DepFile:     step.DepFile,
		Language:    step.Language,
		Std:         step.Std,
		IncludeDirs: step.IncludeDirs,
		Defines:     step.Defines,
		Flags:       step.Flags,
		OptLevel:    e.opts.Profile.OptLevel,
		DebugInfo:   e.opts.Profile.DebugInfo,
		Sanitizers:  e.opts.Profile.Sanitizers,
		Abi:         step.Abi,
	})

	e.opts.Log.Info("compiling", "source", step.Source)
	out, err := e.runCommand(ctx, inv, "")
	if err != nil {
		if ctx.Err() != nil {
			return &StepError{Kind: Cancelled, Target: step.Target, Step: step.ID, Cause: ctx.Err()}
		}
		return &StepError{Kind: CompileFailed, Target: step.Target, Step: step.ID, Cause: err, Output: out}
	}

	if e.tc.Family() == toolchain.FamilyMSVC && step.DepFile != "" {
		if err := writeMSVCDepFile(step, out); err != nil {
			return &StepError{Kind: CompileFailed, Target: step.Target, Step: step.ID, Cause: err}
		}
	}

	// The dependency file now exists (or changed), so the persisted
	// fingerprint must reflect the post-build header closure.
	fp, err = e.compileFingerprint(step)
	if err != nil {
		return &StepError{Kind: CompileFailed, Target: step.Target, Step: step.ID, Cause: err}
	}
	if err := e.store.Put(step.ID, fp); err != nil {
		return &StepError{Kind: CompileFailed, Target: step.Target, Step: step.ID, Cause: err}
	}
	e.recordStep(step.Object, fp, false)
	return nil
}

// writeMSVCDepFile rewrites cl.exe's /showIncludes output into the
// Make-style dependency file the fingerprint engine parses.
func writeMSVCDepFile(step *planner.Compile, clOutput string) error {
	var deps []string
	for _, line := range strings.Split(clOutput, "\n") {
		idx := strings.Index(line, "including file:")
		if idx < 0 {
			continue
		}
		path := strings.TrimSpace(line[idx+len("including file:"):])
		if path != "" {
			deps = append(deps, path)
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", step.Object, step.Source)
	for _, d := range deps {
		fmt.Fprintf(&b, " \\\n  %s", strings.ReplaceAll(d, " ", "\\ "))
	}
	b.WriteByte('\n')
	return os.WriteFile(step.DepFile, []byte(b.String()), 0o644)
}

func (e *Executor) recordStep(outputPath, fp string, skipped bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stepFP[outputPath] = fp
	if skipped {
		e.skipped++
	} else {
		e.executed++
	}
}

// runLinkPhase executes archive and link steps sequentially in plan
// order; the planner guarantees every step's inputs precede it.
func (e *Executor) runLinkPhase(ctx context.Context) error {
	for _, step := range e.plan.LinkPhase() {
		if ctx.Err() != nil {
			return &StepError{Kind: Cancelled, Target: step.Ref(), Step: step.StepID(), Cause: ctx.Err()}
		}
		var err error
		switch s := step.(type) {
		case *planner.Archive:
			err = e.runArchive(ctx, s)
		case *planner.Link:
			err = e.runLink(ctx, s)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// inputFingerprints looks up the recorded fingerprints of a step's input
// artifacts, falling back to hashing the file for inputs produced
// outside this run.
func (e *Executor) inputFingerprints(paths []string) []string {
	out := make([]string, 0, len(paths))
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range paths {
		if fp, ok := e.stepFP[p]; ok {
			out = append(out, fp)
			continue
		}
		if fp, err := fingerprint.HashFile(p); err == nil {
			out = append(out, fp)
		} else {
			out = append(out, p)
		}
	}
	return out
}

func (e *Executor) runArchive(ctx context.Context, step *planner.Archive) error {
	fp, err := fingerprint.Link(e.inputFingerprints(step.Objects), nil, nil, e.toolchainFP)
	if err != nil {
		return &StepError{Kind: ArchiveFailed, Target: step.Target, Step: step.ID, Cause: err}
	}
	if e.snapshot[step.ID] == fp && fileExists(step.Output) {
		e.recordStep(step.Output, fp, true)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(step.Output), 0o755); err != nil {
		return &StepError{Kind: ArchiveFailed, Target: step.Target, Step: step.ID, Cause: err}
	}
	// ar appends into an existing archive; start clean.
	os.Remove(step.Output)

	inv := e.tc.Archive(step.Objects, step.Output)
	e.opts.Log.Info("archiving", "target", step.Target.String())
	out, err := e.runCommand(ctx, inv, "")
	if err != nil {
		if ctx.Err() != nil {
			return &StepError{Kind: Cancelled, Target: step.Target, Step: step.ID, Cause: ctx.Err()}
		}
		return &StepError{Kind: ArchiveFailed, Target: step.Target, Step: step.ID, Cause: err, Output: out}
	}
	if err := e.store.Put(step.ID, fp); err != nil {
		return &StepError{Kind: ArchiveFailed, Target: step.Target, Step: step.ID, Cause: err}
	}
	e.recordStep(step.Output, fp, false)
	return nil
}

func (e *Executor) runLink(ctx context.Context, step *planner.Link) error {
	libFlags := make([]string, 0, len(step.Libs)+len(step.Frameworks))
	for _, l := range step.Libs {
		libFlags = append(libFlags, l.ToFlags()...)
	}
	libFlags = append(libFlags, step.Frameworks...)
	libFPs := append(e.inputFingerprints(step.Archives), libFlags...)

	fp, err := fingerprint.Link(e.inputFingerprints(step.Objects), libFPs, step.LdFlags, e.toolchainFP)
	if err != nil {
		return &StepError{Kind: LinkFailed, Target: step.Target, Step: step.ID, Cause: err}
	}
	if e.snapshot[step.ID] == fp && fileExists(step.Output) {
		e.recordStep(step.Output, fp, true)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(step.Output), 0o755); err != nil {
		return &StepError{Kind: LinkFailed, Target: step.Target, Step: step.ID, Cause: err}
	}

	inv := e.tc.Link(toolchain.LinkInputs{
		Objects:    step.Objects,
		Archives:   step.Archives,
		Libs:       step.Libs,
		Groups:     step.Groups,
		Frameworks: step.Frameworks,
		LdFlags:    step.LdFlags,
		Output:     step.Output,
		Kind:       step.Kind,
		Language:   step.Language,
		Abi:        step.Abi,
	})
	e.opts.Log.Info("linking", "output", step.Output)
	out, err := e.runCommand(ctx, inv, "")
	if err != nil {
		if ctx.Err() != nil {
			return &StepError{Kind: Cancelled, Target: step.Target, Step: step.ID, Cause: ctx.Err()}
		}
		return &StepError{Kind: LinkFailed, Target: step.Target, Step: step.ID, Cause: err, Output: out}
	}
	if err := e.store.Put(step.ID, fp); err != nil {
		return &StepError{Kind: LinkFailed, Target: step.Target, Step: step.ID, Cause: err}
	}
	e.recordStep(step.Output, fp, false)
	return nil
}

// runCommand spawns one invocation under ctx. Cancellation sends
// SIGTERM, escalating to SIGKILL after the grace period.
func (e *Executor) runCommand(ctx context.Context, inv toolchain.Invocation, dir string) (string, error) {
	cmd := exec.CommandContext(ctx, inv.Program, inv.Args...)
	cmd.Dir = dir
	if len(inv.Env) > 0 {
		cmd.Env = append(os.Environ(), inv.Env...)
	}
	if runtime.GOOS != "windows" {
		cmd.Cancel = func() error {
			return cmd.Process.Signal(syscall.SIGTERM)
		}
		cmd.WaitDelay = e.opts.GracePeriod
	}
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
