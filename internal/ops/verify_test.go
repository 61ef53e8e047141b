package ops

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestVerifyProjectPasses(t *testing.T) {
	ctx := newTestContext(t)
	appDir := newAppWithMylib(t)

	proj, err := LoadProject(appDir)
	if err != nil {
		t.Fatalf("LoadProject failed: %v", err)
	}
	res := VerifyProject(context.Background(), ctx, proj, BuildOptions{})
	if !res.Passed {
		t.Fatalf("verification failed: %+v", res.Steps)
	}
	want := []string{"manifest", "resolve", "lockfile", "constraints", "plan", "build"}
	if len(res.Steps) != len(want) {
		t.Fatalf("steps = %+v, want %v", res.Steps, want)
	}
	for i, name := range want {
		if res.Steps[i].Name != name || !res.Steps[i].Passed {
			t.Errorf("step %d = %+v, want passed %q", i, res.Steps[i], name)
		}
	}
}

func TestVerifyProjectReportsFailure(t *testing.T) {
	ctx := newTestContext(t)
	appDir := newAppWithMylib(t)

	proj, err := LoadProject(appDir)
	if err != nil {
		t.Fatalf("LoadProject failed: %v", err)
	}
	// Break the dependency graph after loading: the path source is gone,
	// so resolution must fail and the later gates must not run.
	dep := proj.Manifest.Dependencies["mylib"]
	dep.Source.Path = dep.Source.Path + "-missing"
	proj.Manifest.Dependencies["mylib"] = dep

	res := VerifyProject(context.Background(), ctx, proj, BuildOptions{})
	if res.Passed {
		t.Fatal("verification should fail with a missing path dependency")
	}
	last := res.Steps[len(res.Steps)-1]
	if last.Name != "resolve" || last.Passed {
		t.Errorf("expected resolve to be the failing final step, got %+v", last)
	}
}

func TestRenderVerifyFormats(t *testing.T) {
	res := &VerifyResult{
		Package: "app",
		Version: "0.1.0",
		Steps: []VerifyStep{
			{Name: "resolve", Passed: true, Message: "2 package(s) in graph"},
			{Name: "build", Passed: false, Message: "compile failed"},
		},
	}

	t.Run("human", func(t *testing.T) {
		var buf bytes.Buffer
		if err := RenderVerify(&buf, res, FormatHuman); err != nil {
			t.Fatalf("RenderVerify failed: %v", err)
		}
		out := buf.String()
		if !strings.Contains(out, "ok") || !strings.Contains(out, "FAIL") || !strings.Contains(out, "verification failed") {
			t.Errorf("human output incomplete:\n%s", out)
		}
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := RenderVerify(&buf, res, FormatJSON); err != nil {
			t.Fatalf("RenderVerify failed: %v", err)
		}
		var decoded VerifyResult
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("json output does not parse: %v", err)
		}
		if decoded.Package != "app" || len(decoded.Steps) != 2 {
			t.Errorf("decoded = %+v", decoded)
		}
	})

	t.Run("github", func(t *testing.T) {
		var buf bytes.Buffer
		if err := RenderVerify(&buf, res, FormatGitHub); err != nil {
			t.Fatalf("RenderVerify failed: %v", err)
		}
		out := buf.String()
		if !strings.Contains(out, "::notice title=app@0.1.0::resolve") {
			t.Errorf("missing notice annotation:\n%s", out)
		}
		if !strings.Contains(out, "::error title=app@0.1.0::build") {
			t.Errorf("missing error annotation:\n%s", out)
		}
	})
}

func TestParseVerifyFormat(t *testing.T) {
	for _, s := range []string{"", "human", "json", "github"} {
		if _, err := ParseVerifyFormat(s); err != nil {
			t.Errorf("ParseVerifyFormat(%q) failed: %v", s, err)
		}
	}
	if _, err := ParseVerifyFormat("yaml"); err == nil {
		t.Error("expected an error for an unknown format")
	}
}

func TestDoctorWithFakeToolchain(t *testing.T) {
	ctx := newTestContext(t)
	report := Doctor(ctx)

	byName := map[string]Check{}
	for _, c := range report.Checks {
		byName[c.Name] = c
	}
	if c := byName["compiler"]; !c.Passed || !strings.Contains(c.Message, "gcc") {
		t.Errorf("compiler check = %+v", c)
	}
	if c := byName["git"]; !c.Passed {
		t.Errorf("git check = %+v", c)
	}
	if c := byName["cache directory"]; !c.Passed {
		t.Errorf("cache directory check = %+v", c)
	}
	if !report.Healthy() {
		t.Errorf("expected healthy report, got %+v", report.Checks)
	}

	var buf bytes.Buffer
	RenderDoctor(&buf, report)
	if !strings.Contains(buf.String(), "environment looks healthy") {
		t.Errorf("render output:\n%s", buf.String())
	}
}

func TestDoctorReportsMissingCompiler(t *testing.T) {
	ctx := newTestContext(t)
	ctx.CC = "/nonexistent/compiler"
	ctx.CXX = ctx.CC

	report := Doctor(ctx)
	if report.Healthy() {
		t.Error("report must be unhealthy with a missing compiler")
	}
	var buf bytes.Buffer
	RenderDoctor(&buf, report)
	if !strings.Contains(buf.String(), "FAIL") {
		t.Errorf("render output lacks FAIL marker:\n%s", buf.String())
	}
}
