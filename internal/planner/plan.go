// Package planner turns a resolved, surface-annotated dependency graph
// into an ordered BuildPlan of compile, archive, link, and external
// steps.
package planner

import (
	"harbour/internal/manifest"
	"harbour/internal/surface"
)

// Step is one unit of work in a BuildPlan.
type Step interface {
	// StepID is the stable identifier the fingerprint store keys on.
	StepID() string
	// Ref names the target this step builds.
	Ref() surface.TargetRef
}

// Compile produces one object file from one source file.
type Compile struct {
	ID      string
	Source  string
	Object  string
	DepFile string

	Language manifest.Language
	Std      string

	IncludeDirs []string
	Defines     []manifest.Define
	Flags       []string
	Abi         manifest.AbiToggles

	Target surface.TargetRef
}

func (s *Compile) StepID() string         { return s.ID }
func (s *Compile) Ref() surface.TargetRef { return s.Target }

// Archive bundles a static-lib target's objects into an archive.
type Archive struct {
	ID      string
	Objects []string
	Output  string

	Target surface.TargetRef
}

func (s *Archive) StepID() string         { return s.ID }
func (s *Archive) Ref() surface.TargetRef { return s.Target }

// Link produces an executable or shared library from objects, the
// dependency closure's archives, and the resolved link surface.
type Link struct {
	ID       string
	Objects  []string
	Archives []string

	Libs       []manifest.LibRef
	Groups     []manifest.LinkGroup
	Frameworks []string
	LdFlags    []string

	Output   string
	Kind     manifest.TargetKind
	Language manifest.Language
	Abi      manifest.AbiToggles

	Target surface.TargetRef
}

func (s *Link) StepID() string         { return s.ID }
func (s *Link) Ref() surface.TargetRef { return s.Target }

// External runs a CMake or custom recipe in place of native steps; its
// declared outputs are hashed after the fact to feed downstream
// fingerprints.
type External struct {
	ID      string
	Recipe  manifest.Recipe
	Workdir string
	Outputs []string

	Target surface.TargetRef
}

func (s *External) StepID() string         { return s.ID }
func (s *External) Ref() surface.TargetRef { return s.Target }

// Plan is the immutable, ordered step sequence the executor runs.
// Steps appear in dependency order: a step never precedes a step it
// depends on.
type Plan struct {
	Steps []Step
}

// Compiles returns the plan's compile steps in order.
func (p *Plan) Compiles() []*Compile {
	var out []*Compile
	for _, s := range p.Steps {
		if c, ok := s.(*Compile); ok {
			out = append(out, c)
		}
	}
	return out
}

// Externals returns the plan's external-recipe steps in order.
func (p *Plan) Externals() []*External {
	var out []*External
	for _, s := range p.Steps {
		if e, ok := s.(*External); ok {
			out = append(out, e)
		}
	}
	return out
}

// LinkPhase returns the archive and link steps in order.
func (p *Plan) LinkPhase() []Step {
	var out []Step
	for _, s := range p.Steps {
		switch s.(type) {
		case *Archive, *Link:
			out = append(out, s)
		}
	}
	return out
}
