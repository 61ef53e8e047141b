package resolver

import (
	"fmt"
	"strings"

	"harbour/internal/pkgid"
)

// RequirementPath names the chain of dependency edges that introduced a
// requirement, for conflict diagnostics — e.g. ["app", "b", "a ^2"].
type RequirementPath []string

func (p RequirementPath) String() string {
	return strings.Join(p, " -> ")
}

// VersionConflictError reports that no version of Package satisfies every
// requirement reaching it, naming each requirement's origin path.
type VersionConflictError struct {
	Package      string
	Requirements []string
	Paths        []RequirementPath
}

func (e *VersionConflictError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "resolver: version conflict on %q:", e.Package)
	for i, req := range e.Requirements {
		path := "?"
		if i < len(e.Paths) {
			path = e.Paths[i].String()
		}
		fmt.Fprintf(&b, "\n  %s (via %s)", req, path)
	}
	return b.String()
}

// NotFoundError reports that no source offers any version of Package.
type NotFoundError struct {
	Package string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("resolver: package %q not found in any source", e.Package)
}

// SourceUnavailableError wraps a source-level failure reaching a
// package's origin.
type SourceUnavailableError struct {
	SourceKey string
	Cause     error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("resolver: source %q unavailable: %v", e.SourceKey, e.Cause)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Cause }

// AbiMismatchError reports incompatible AbiToggles across the reachable
// graph (surface-resolver-detected, re-exported here since it is also a
// resolution-phase failure per spec.md §7's grouping).
type AbiMismatchError struct {
	Field    string
	Packages []pkgid.PackageId
}

func (e *AbiMismatchError) Error() string {
	ids := make([]string, len(e.Packages))
	for i, p := range e.Packages {
		ids[i] = p.String()
	}
	return fmt.Sprintf("resolver: ABI mismatch on %s across %v", e.Field, ids)
}

// CppStdConflictError reports a target requiring a C++ standard higher
// than the effective one.
type CppStdConflictError struct {
	Target    string
	Required  string
	Effective string
}

func (e *CppStdConflictError) Error() string {
	return fmt.Sprintf("resolver: target %q requires C++%s, effective standard is C++%s", e.Target, e.Required, e.Effective)
}

// LockfileStaleError reports that a lockfile no longer matches its
// manifest or its sources.
type LockfileStaleError struct {
	Why string
}

func (e *LockfileStaleError) Error() string {
	return fmt.Sprintf("resolver: lockfile stale: %s", e.Why)
}
