package abi

import (
	"sort"
	"strconv"

	"harbour/internal/manifest"
	"harbour/internal/pkgid"
	"harbour/internal/resolver"
)

// TargetConstraints are the C++-relevant settings one target requests,
// collected per node of the resolve graph.
type TargetConstraints struct {
	Package     pkgid.PackageId
	Target      string
	CppStd      string
	Exceptions  *bool
	RTTI        *bool
	CppRuntime  string
	MSVCRuntime string
}

// ValidationResult carries the graph-wide effective settings once
// validation has passed.
type ValidationResult struct {
	EffectiveCppStd string
	Exceptions      bool
	RTTI            bool
	CppRuntime      string
	MSVCRuntime     string
}

// Validate runs the cross-graph C++ constraint check: the effective
// standard is the maximum requested anywhere (CLI override and workspace
// default included), with an explicit CLI override acting as a ceiling;
// exceptions, RTTI, and runtime selections must be uniform across the
// reachable graph.
func Validate(constraints []TargetConstraints, cliStd, workspaceStd string) (*ValidationResult, error) {
	effective := maxStd(workspaceStd, cliStd)
	for _, c := range constraints {
		effective = maxStd(effective, c.CppStd)
	}
	if cliStd != "" {
		for _, c := range constraints {
			if stdRank(c.CppStd) > stdRank(cliStd) {
				return nil, &resolver.CppStdConflictError{
					Target:    c.Package.Name + ":" + c.Target,
					Required:  c.CppStd,
					Effective: cliStd,
				}
			}
		}
		effective = cliStd
	}

	res := &ValidationResult{EffectiveCppStd: effective, Exceptions: true, RTTI: true}

	var exceptionsBy, rttiBy, runtimeBy, msvcBy *TargetConstraints
	for i := range constraints {
		c := &constraints[i]
		if c.Exceptions != nil {
			if exceptionsBy == nil {
				exceptionsBy = c
				res.Exceptions = *c.Exceptions
			} else if *exceptionsBy.Exceptions != *c.Exceptions {
				return nil, mismatch("exceptions", exceptionsBy, c)
			}
		}
		if c.RTTI != nil {
			if rttiBy == nil {
				rttiBy = c
				res.RTTI = *c.RTTI
			} else if *rttiBy.RTTI != *c.RTTI {
				return nil, mismatch("rtti", rttiBy, c)
			}
		}
		if c.CppRuntime != "" {
			if runtimeBy == nil {
				runtimeBy = c
				res.CppRuntime = c.CppRuntime
			} else if runtimeBy.CppRuntime != c.CppRuntime {
				return nil, mismatch("cpp_stdlib", runtimeBy, c)
			}
		}
		if c.MSVCRuntime != "" {
			if msvcBy == nil {
				msvcBy = c
				res.MSVCRuntime = c.MSVCRuntime
			} else if msvcBy.MSVCRuntime != c.MSVCRuntime {
				return nil, mismatch("msvc_runtime", msvcBy, c)
			}
		}
	}
	return res, nil
}

func mismatch(field string, a, b *TargetConstraints) error {
	return &resolver.AbiMismatchError{Field: field, Packages: []pkgid.PackageId{a.Package, b.Package}}
}

// CollectConstraints walks every target of every resolved manifest,
// gathering its C++ settings. Order is deterministic: packages by
// PackageId, targets by name.
func CollectConstraints(manifests map[pkgid.PackageId]manifest.Manifest) []TargetConstraints {
	ids := make([]pkgid.PackageId, 0, len(manifests))
	for id := range manifests {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })

	var out []TargetConstraints
	for _, id := range ids {
		m := manifests[id]
		names := make([]string, 0, len(m.Targets))
		for name := range m.Targets {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			t := m.Targets[name]
			c := TargetConstraints{
				Package:     id,
				Target:      name,
				CppStd:      t.CppStd,
				Exceptions:  t.Surface.Abi.Exceptions,
				RTTI:        t.Surface.Abi.RTTI,
				CppRuntime:  t.Surface.Abi.CppStdlib,
				MSVCRuntime: t.Surface.Abi.MSVCRuntime,
			}
			if c.CppStd == "" && m.Build != nil {
				c.CppStd = m.Build.CppStd
			}
			out = append(out, c)
		}
	}
	return out
}

// stdRank orders C++ standards chronologically. Two-digit years wrap:
// 98 and 03 predate 11.
func stdRank(std string) int {
	if std == "" {
		return 0
	}
	n, err := strconv.Atoi(std)
	if err != nil {
		return 0
	}
	if n >= 90 {
		return 1900 + n
	}
	return 2000 + n
}

func maxStd(a, b string) string {
	if stdRank(b) > stdRank(a) {
		return b
	}
	return a
}
