package ops

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"harbour/internal/harbourcfg"
	"harbour/internal/registryops"
	"harbour/internal/toolchain"
	"harbour/internal/vcsgit"
)

// Check is one environment probe's outcome.
type Check struct {
	Name     string
	Passed   bool
	Required bool
	Message  string
}

// DoctorReport collects every probe run by Doctor.
type DoctorReport struct {
	Checks []Check
}

// Healthy reports whether every required check passed.
func (r *DoctorReport) Healthy() bool {
	for _, c := range r.Checks {
		if c.Required && !c.Passed {
			return false
		}
	}
	return true
}

func (r *DoctorReport) add(c Check) {
	r.Checks = append(r.Checks, c)
}

// Doctor probes the build environment: compilers, archiver, git, the
// optional external-recipe tools, and Harbour's own state directories.
// It never fails itself; the report says what is broken.
func Doctor(ctx *harbourcfg.Context) *DoctorReport {
	r := &DoctorReport{}

	if tc, err := toolchain.Detect(ctx.CC, ctx.CXX, ctx.AR); err != nil {
		r.add(Check{Name: "compiler", Required: true, Message: err.Error()})
	} else {
		r.add(Check{
			Name:     "compiler",
			Passed:   true,
			Required: true,
			Message:  fmt.Sprintf("%s (%s)", tc.FullVersion(), tc.Family()),
		})
	}

	r.add(lookPathCheck("archiver", archiverProgram(ctx), true))

	if out, err := vcsgit.RunCommand("", "git", "--version"); err != nil {
		r.add(Check{Name: "git", Required: true, Message: err.Error()})
	} else {
		r.add(Check{Name: "git", Passed: true, Required: true, Message: out})
	}

	// External recipes want these; native builds do not.
	r.add(lookPathCheck("cmake", "cmake", false))
	r.add(lookPathCheck("pkg-config", "pkg-config", false))

	r.add(writableCheck("cache directory", ctx.CacheDir))
	r.add(writableCheck("state directory", ctx.HomeDir))

	if names, err := registryops.ListNames(ctx); err != nil {
		r.add(Check{Name: "registries", Message: err.Error()})
	} else {
		r.add(Check{
			Name:    "registries",
			Passed:  true,
			Message: fmt.Sprintf("%d configured", len(names)),
		})
	}

	return r
}

func archiverProgram(ctx *harbourcfg.Context) string {
	if ctx.AR != "" {
		return ctx.AR
	}
	return "ar"
}

func lookPathCheck(name, program string, required bool) Check {
	path, err := exec.LookPath(program)
	if err != nil {
		return Check{Name: name, Required: required, Message: fmt.Sprintf("%s not found in PATH", program)}
	}
	return Check{Name: name, Passed: true, Required: required, Message: path}
}

func writableCheck(name, dir string) Check {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Check{Name: name, Required: true, Message: err.Error()}
	}
	probe, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return Check{Name: name, Required: true, Message: fmt.Sprintf("%s is not writable: %v", dir, err)}
	}
	probe.Close()
	os.Remove(probe.Name())
	return Check{Name: name, Passed: true, Required: true, Message: filepath.Clean(dir)}
}

// RenderDoctor prints a report the way a user reads it: one line per
// check, failures of required checks marked loudly.
func RenderDoctor(w io.Writer, r *DoctorReport) {
	for _, c := range r.Checks {
		status := "ok  "
		switch {
		case !c.Passed && c.Required:
			status = "FAIL"
		case !c.Passed:
			status = "warn"
		}
		fmt.Fprintf(w, "%s  %-16s %s\n", status, c.Name, c.Message)
	}
	if r.Healthy() {
		fmt.Fprintln(w, "\nenvironment looks healthy")
	} else {
		fmt.Fprintln(w, "\nrequired checks failed")
	}
}
