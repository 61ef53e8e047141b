// Package abi computes ABI identities for resolve-graph nodes and
// validates C++ build constraints across the reachable graph before
// planning.
package abi

import (
	"sort"

	"harbour/internal/fingerprint"
	"harbour/internal/manifest"
)

// Identity is the ordered tuple of binary-compatibility-affecting
// parameters of one build artifact. Two nodes with equal identities
// produce interchangeable binaries; differing identities require
// distinct object outputs.
type Identity struct {
	Triple          string              `json:"triple"`
	CompilerFamily  string              `json:"compiler_family"`
	CompilerVersion string              `json:"compiler_version"` // major.minor
	TargetKind      manifest.TargetKind `json:"target_kind"`
	PIC             bool                `json:"pic"`
	Visibility      string              `json:"visibility"`
	PublicDefines   []string            `json:"public_defines"` // sorted
	CppRuntime      string              `json:"cpp_runtime"`
	Exceptions      bool                `json:"exceptions"`
	RTTI            bool                `json:"rtti"`
	MSVCRuntime     string              `json:"msvc_runtime"`
}

// NewIdentity assembles an Identity from a target's kind, its joined ABI
// toggles, and its public defines. Unset toggles take the platform
// defaults (exceptions and RTTI on, PIC off). Header-only targets get an
// identity too: a consumer's ABI is affected by a header-only
// dependency's public defines and toggles.
func NewIdentity(triple, family, majorMinor string, kind manifest.TargetKind, abi manifest.AbiToggles, publicDefines []manifest.Define) Identity {
	defines := make([]string, len(publicDefines))
	for i, d := range publicDefines {
		defines[i] = d.ToFlag()
	}
	sort.Strings(defines)

	id := Identity{
		Triple:          triple,
		CompilerFamily:  family,
		CompilerVersion: majorMinor,
		TargetKind:      kind,
		Visibility:      abi.Visibility,
		PublicDefines:   defines,
		CppRuntime:      abi.CppStdlib,
		Exceptions:      true,
		RTTI:            true,
		MSVCRuntime:     abi.MSVCRuntime,
	}
	if abi.PIC != nil {
		id.PIC = *abi.PIC
	}
	if abi.Exceptions != nil {
		id.Exceptions = *abi.Exceptions
	}
	if abi.RTTI != nil {
		id.RTTI = *abi.RTTI
	}
	return id
}

// Fingerprint hashes the identity tuple into an AbiFingerprint.
func (id Identity) Fingerprint() (string, error) {
	return fingerprint.CanonicalHash(id)
}
