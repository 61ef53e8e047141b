// Package source implements Harbour's Source contract: path, git, and
// registry dependency sources, and the SourceCache that owns them.
package source

import (
	"fmt"

	"harbour/internal/manifest"
	"harbour/internal/pkgid"
)

// Handle identifies one candidate version a Source has offered, opaque to
// callers outside the source that produced it.
type Handle struct {
	Name    string
	Version string
	Source  pkgid.SourceId
}

// Summary is the minimal package metadata a Source reports for a
// candidate before it is fully loaded.
type Summary struct {
	Name         string
	Version      string
	Dependencies map[string]manifest.Dependency
}

// Source is the contract every dependency-origin kind implements.
type Source interface {
	// Query returns all versions matching requirement that this source
	// can provide, highest version first. Fails with NotFound only if the
	// source cannot be reached; an empty, nil-error result means
	// reachable-but-no-match.
	Query(name, requirement string) ([]Handle, error)

	// LoadPackage materializes the manifest and files locally. May
	// perform network I/O. Must be idempotent.
	LoadPackage(h Handle) (Summary, error)

	// EnsureReady forces local materialization without returning the
	// manifest, enabling prefetch.
	EnsureReady(h Handle) error

	// PackagePath returns the root directory for a materialized package.
	PackagePath(h Handle) (string, error)

	// IsCached reports whether h is already materialized locally.
	IsCached(h Handle) bool
}

// NotFoundError indicates a source could not be reached at all, as
// distinct from being reachable with zero matching versions.
type NotFoundError struct {
	Package string
	Cause   error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("source: package %q not found: %v", e.Package, e.Cause)
}

func (e *NotFoundError) Unwrap() error { return e.Cause }
