// Package regfmt defines the on-disk registry storage format shared by
// internal/source's RegistrySource (reader) and internal/registryops
// (writer): a per-registry package index plus one PackageSpecs shim file
// per published version — Harbour's analogue of spec.md's "shim files".
package regfmt

import "time"

// Index is a registry's top-level registry.json: its identity and the
// set of packages it carries, each with its UUID for stable identity
// across renames.
type Index struct {
	Name        string                 `json:"name"`
	GitURL      string                 `json:"giturl"`
	Packages    map[string]PackageInfo `json:"packages,omitempty"`
	LastUpdated time.Time              `json:"last_updated,omitempty"`
}

// PackageInfo is a registry's per-package record.
type PackageInfo struct {
	UUID string `json:"uuid"`
}

// Specs is the per-version shim a registry stores at
// <Letter>/<pkg>/<version>/specs.toml: it redirects to the package's
// actual git source and carries integrity metadata.
type Specs struct {
	Name    string `toml:"name" json:"name"`
	Version string `toml:"version" json:"version"`
	UUID    string `toml:"uuid" json:"uuid"`
	GitURL  string `toml:"giturl" json:"giturl"`
	SHA1    string `toml:"sha1" json:"sha1"`
	// Checksum is a "sha256:"-prefixed hash of the published Harbour.toml
	// bytes, independent of git's own object hashing; the rest of the
	// package tree is not covered.
	Checksum string `toml:"checksum,omitempty" json:"checksum,omitempty"`
}
