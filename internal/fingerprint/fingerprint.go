package fingerprint

import (
	"os"

	"harbour/internal/manifest"
)

// toolchainInputs is the canonical input tuple of the toolchain-level
// fingerprint. A change here invalidates every step in the build
// directory.
type toolchainInputs struct {
	Family      string   `json:"family"`
	FullVersion string   `json:"full_version"`
	Triple      string   `json:"triple"`
	Profile     string   `json:"profile"`
	OptLevel    string   `json:"opt_level"`
	DebugInfo   bool     `json:"debug_info"`
	Sanitizers  []string `json:"sanitizers"`
}

// Toolchain computes the toolchain-level fingerprint over compiler
// family, full version string, target triple, and profile settings.
func Toolchain(family, fullVersion, triple string, profile manifest.Profile) (string, error) {
	return CanonicalHash(toolchainInputs{
		Family:      family,
		FullVersion: fullVersion,
		Triple:      triple,
		Profile:     profile.Name,
		OptLevel:    profile.OptLevel,
		DebugInfo:   profile.DebugInfo,
		Sanitizers:  profile.Sanitizers,
	})
}

// compileInputs is the canonical input tuple of a per-source compile
// fingerprint.
type compileInputs struct {
	SourceHash  string            `json:"source_hash"`
	Flags       []string          `json:"flags"`
	IncludeDirs []string          `json:"include_dirs"`
	Defines     []string          `json:"defines"`
	Std         string            `json:"std"`
	Language    manifest.Language `json:"language"`
	Abi         abiInputs         `json:"abi"`
	Toolchain   string            `json:"toolchain"`
	HeaderHash  string            `json:"header_hash"`
}

type abiInputs struct {
	PIC         *bool  `json:"pic"`
	Visibility  string `json:"visibility"`
	MSVCRuntime string `json:"msvc_runtime"`
	CppStdlib   string `json:"cpp_stdlib"`
	Exceptions  *bool  `json:"exceptions"`
	RTTI        *bool  `json:"rtti"`
}

// CompileParams gathers what a caller knows statically about one compile
// step; Compile adds the source-content and transitive-header hashes.
type CompileParams struct {
	Source      string
	DepFile     string
	Flags       []string
	IncludeDirs []string
	Defines     []manifest.Define
	Std         string
	Language    manifest.Language
	Abi         manifest.AbiToggles
	Toolchain   string // toolchain-level fingerprint
}

// Compile computes a compile step's fingerprint: source content hash,
// flags, include dirs, defines, standard, ABI toggles, the toolchain
// fingerprint, and the transitive header hash derived from the step's
// dependency file. A missing dependency file yields an empty header hash;
// on a first build the step is dirty because no fingerprint has been
// persisted for it yet.
func Compile(p CompileParams) (string, error) {
	srcHash, err := HashFile(p.Source)
	if err != nil {
		return "", err
	}

	headerHash := ""
	if p.DepFile != "" {
		if data, err := os.ReadFile(p.DepFile); err == nil {
			headers := ParseDepFile(data)
			headerHash, err = hashHeaders(headers)
			if err != nil {
				return "", err
			}
		}
	}

	defines := make([]string, len(p.Defines))
	for i, d := range p.Defines {
		defines[i] = d.ToFlag()
	}

	return CanonicalHash(compileInputs{
		SourceHash:  srcHash,
		Flags:       p.Flags,
		IncludeDirs: p.IncludeDirs,
		Defines:     defines,
		Std:         p.Std,
		Language:    p.Language,
		Abi: abiInputs{
			PIC:         p.Abi.PIC,
			Visibility:  p.Abi.Visibility,
			MSVCRuntime: p.Abi.MSVCRuntime,
			CppStdlib:   p.Abi.CppStdlib,
			Exceptions:  p.Abi.Exceptions,
			RTTI:        p.Abi.RTTI,
		},
		Toolchain:  p.Toolchain,
		HeaderHash: headerHash,
	})
}

// hashHeaders folds the content hashes of every header the dependency
// file names into one digest. A header that no longer exists contributes
// its path only, which still changes the digest and dirties the step.
func hashHeaders(headers []string) (string, error) {
	entries := make([]string, 0, len(headers))
	for _, h := range headers {
		fileHash, err := HashFile(h)
		if err != nil {
			entries = append(entries, h)
			continue
		}
		entries = append(entries, h+"="+fileHash)
	}
	return CanonicalHash(entries)
}

// linkInputs is the canonical input tuple of a per-target link (or
// archive) fingerprint.
type linkInputs struct {
	ObjectFingerprints []string `json:"object_fingerprints"`
	LibFingerprints    []string `json:"lib_fingerprints"`
	Flags              []string `json:"flags"`
	Toolchain          string   `json:"toolchain"`
}

// Link computes a link step's fingerprint from its input objects'
// fingerprints (in order), the linked libraries with their archive
// fingerprints (in order), the link flags, and the toolchain
// fingerprint. Archive steps use the same shape with empty libs.
func Link(objectFingerprints, libFingerprints, flags []string, toolchainFP string) (string, error) {
	return CanonicalHash(linkInputs{
		ObjectFingerprints: objectFingerprints,
		LibFingerprints:    libFingerprints,
		Flags:              flags,
		Toolchain:          toolchainFP,
	})
}
