package abi

import (
	"errors"
	"testing"

	"harbour/internal/manifest"
	"harbour/internal/pkgid"
	"harbour/internal/resolver"
)

func id(name string) pkgid.PackageId {
	return pkgid.PackageId{Name: name, Version: "1.0.0", Source: pkgid.SourceId{Kind: pkgid.Path, Path: "/src/" + name}}
}

func TestIdentityFingerprintStable(t *testing.T) {
	identity := NewIdentity("x86_64-linux-gnu", "gcc", "13.2", manifest.StaticLib,
		manifest.AbiToggles{Visibility: "hidden"},
		[]manifest.Define{{Name: "B"}, {Name: "A"}})

	first, err := identity.Fingerprint()
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	// Defines arrive in a different order; the identity sorts them.
	other := NewIdentity("x86_64-linux-gnu", "gcc", "13.2", manifest.StaticLib,
		manifest.AbiToggles{Visibility: "hidden"},
		[]manifest.Define{{Name: "A"}, {Name: "B"}})
	second, err := other.Fingerprint()
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	if first != second {
		t.Error("define order must not affect the ABI fingerprint")
	}
}

func TestIdentityFingerprintDistinguishesRuntime(t *testing.T) {
	static := NewIdentity("x86_64-pc-windows", "msvc", "19.38", manifest.StaticLib,
		manifest.AbiToggles{MSVCRuntime: "static"}, nil)
	dynamic := NewIdentity("x86_64-pc-windows", "msvc", "19.38", manifest.StaticLib,
		manifest.AbiToggles{MSVCRuntime: "dynamic"}, nil)

	a, err := static.Fingerprint()
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	b, err := dynamic.Fingerprint()
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	if a == b {
		t.Error("runtime selection must affect the ABI fingerprint")
	}
}

func boolPtr(b bool) *bool { return &b }

func TestValidateEffectiveStd(t *testing.T) {
	constraints := []TargetConstraints{
		{Package: id("a"), Target: "a", CppStd: "14"},
		{Package: id("b"), Target: "b", CppStd: "17"},
	}
	res, err := Validate(constraints, "", "11")
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if res.EffectiveCppStd != "17" {
		t.Errorf("effective std = %q, want 17", res.EffectiveCppStd)
	}
}

func TestValidateCliOverrideTooLow(t *testing.T) {
	constraints := []TargetConstraints{
		{Package: id("a"), Target: "a", CppStd: "20"},
	}
	_, err := Validate(constraints, "14", "")
	var conflict *resolver.CppStdConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected CppStdConflictError, got %v", err)
	}
	if conflict.Required != "20" || conflict.Effective != "14" {
		t.Errorf("conflict = %+v", conflict)
	}
}

func TestValidateUniformityMismatch(t *testing.T) {
	constraints := []TargetConstraints{
		{Package: id("a"), Target: "a", Exceptions: boolPtr(true)},
		{Package: id("b"), Target: "b", Exceptions: boolPtr(false)},
	}
	_, err := Validate(constraints, "", "")
	var mismatchErr *resolver.AbiMismatchError
	if !errors.As(err, &mismatchErr) {
		t.Fatalf("expected AbiMismatchError, got %v", err)
	}
	if mismatchErr.Field != "exceptions" {
		t.Errorf("field = %q, want exceptions", mismatchErr.Field)
	}
	if len(mismatchErr.Packages) != 2 {
		t.Errorf("mismatch should name both packages, got %v", mismatchErr.Packages)
	}
}

func TestStdRankOldStandardsPredateNew(t *testing.T) {
	if stdRank("98") >= stdRank("11") {
		t.Error("C++98 must rank below C++11")
	}
	if stdRank("03") >= stdRank("11") {
		t.Error("C++03 must rank below C++11")
	}
	if stdRank("23") <= stdRank("20") {
		t.Error("C++23 must rank above C++20")
	}
}
