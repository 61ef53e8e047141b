package ops

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"harbour/internal/abi"
	"harbour/internal/executor"
	"harbour/internal/fingerprint"
	"harbour/internal/harbourcfg"
	"harbour/internal/resolver"
)

// VerifyFormat selects how a verification result is rendered.
type VerifyFormat string

const (
	FormatHuman  VerifyFormat = "human"
	FormatJSON   VerifyFormat = "json"
	FormatGitHub VerifyFormat = "github"
)

// ParseVerifyFormat validates a --format flag value.
func ParseVerifyFormat(s string) (VerifyFormat, error) {
	switch VerifyFormat(s) {
	case "", FormatHuman:
		return FormatHuman, nil
	case FormatJSON, FormatGitHub:
		return VerifyFormat(s), nil
	default:
		return "", fmt.Errorf("unknown verify format %q (want human, json, or github)", s)
	}
}

// VerifyStep is one gate of the verification pipeline.
type VerifyStep struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
}

// VerifyResult is the machine-readable outcome of VerifyProject.
type VerifyResult struct {
	Package string       `json:"package"`
	Version string       `json:"version"`
	Steps   []VerifyStep `json:"steps"`
	Passed  bool         `json:"passed"`
}

func (r *VerifyResult) add(name string, passed bool, format string, args ...any) bool {
	r.Steps = append(r.Steps, VerifyStep{Name: name, Passed: passed, Message: fmt.Sprintf(format, args...)})
	if !passed {
		r.Passed = false
	}
	return passed
}

// VerifyProject runs the CI-grade gate over a package: resolution,
// lockfile canonicality and freshness, cross-graph constraint
// validation, planning, and a full build. Each gate is recorded whether
// it passes or not; a failed gate skips the gates that depend on it.
func VerifyProject(c context.Context, ctx *harbourcfg.Context, proj *Project, opts BuildOptions) *VerifyResult {
	res := &VerifyResult{Package: proj.ID.Name, Version: proj.ID.Version, Passed: true}
	res.add("manifest", true, "%d target(s), %d dependencies", len(proj.Manifest.Targets), len(proj.Manifest.Dependencies))

	graph, err := ResolveProject(ctx, proj, false)
	if err != nil {
		res.add("resolve", false, "%v", err)
		return res
	}
	res.add("resolve", true, "%d package(s) in graph", len(graph.Resolve.Packages()))

	verifyLockfile(res, proj)

	workspaceStd := ""
	if proj.Manifest.Build != nil {
		workspaceStd = proj.Manifest.Build.CppStd
	}
	validated, err := abi.Validate(abi.CollectConstraints(graph.Manifests), opts.CppStd, workspaceStd)
	if err != nil {
		res.add("constraints", false, "%v", err)
		return res
	}
	res.add("constraints", true, "effective C++ standard %s", orDefault(validated.EffectiveCppStd, "(toolchain default)"))

	prep, err := prepare(ctx, proj, opts)
	if err != nil {
		res.add("plan", false, "%v", err)
		return res
	}
	res.add("plan", true, "%d step(s)", len(prep.plan.Steps))

	store, err := fingerprint.NewStore(filepath.Join(prep.outDir, "fingerprints"))
	if err != nil {
		res.add("build", false, "%v", err)
		return res
	}
	exe := executor.New(prep.plan, prep.toolchain, store, executor.Options{
		Jobs:    opts.Jobs,
		Triple:  prep.triple,
		Profile: prep.profile,
		Log:     ctx.Log,
	})
	buildRes, err := exe.Run(c)
	if err != nil {
		res.add("build", false, "%v", err)
		return res
	}
	res.add("build", true, "%d executed, %d fresh", buildRes.Executed, buildRes.Skipped)
	return res
}

// verifyLockfile checks the on-disk lockfile is canonical (round-trips
// byte-for-byte) and fresh against the current manifest. ResolveProject
// has already written one by the time this runs.
func verifyLockfile(res *VerifyResult, proj *Project) {
	data, err := os.ReadFile(proj.LockfilePath())
	if err != nil {
		res.add("lockfile", false, "read: %v", err)
		return
	}
	lf, err := resolver.Parse(data)
	if err != nil {
		res.add("lockfile", false, "corrupt: %v", err)
		return
	}
	canonical, err := resolver.Serialize(lf)
	if err != nil {
		res.add("lockfile", false, "serialize: %v", err)
		return
	}
	if !bytes.Equal(data, canonical) {
		res.add("lockfile", false, "not in canonical form")
		return
	}
	if !lf.IsFresh(proj.ManifestHash) {
		res.add("lockfile", false, "stale against the current manifest")
		return
	}
	res.add("lockfile", true, "canonical and fresh, %d package(s)", len(lf.Packages))
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// RenderVerify writes a result in the requested format: human lines,
// a JSON document, or GitHub Actions annotations.
func RenderVerify(w io.Writer, res *VerifyResult, format VerifyFormat) error {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		data = append(data, '\n')
		_, err = w.Write(data)
		return err
	case FormatGitHub:
		for _, s := range res.Steps {
			if s.Passed {
				fmt.Fprintf(w, "::notice title=%s@%s::%s: %s\n", res.Package, res.Version, s.Name, s.Message)
			} else {
				fmt.Fprintf(w, "::error title=%s@%s::%s: %s\n", res.Package, res.Version, s.Name, s.Message)
			}
		}
		return nil
	default:
		fmt.Fprintf(w, "verifying %s@%s\n", res.Package, res.Version)
		for _, s := range res.Steps {
			mark := "ok  "
			if !s.Passed {
				mark = "FAIL"
			}
			fmt.Fprintf(w, "%s  %-12s %s\n", mark, s.Name, s.Message)
		}
		if res.Passed {
			fmt.Fprintln(w, "\nverification passed")
		} else {
			fmt.Fprintln(w, "\nverification failed")
		}
		return nil
	}
}
