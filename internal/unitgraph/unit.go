// Package unitgraph lowers a resolved package graph into the DAG of
// build units, one node per (package, target, profile, mode, kind)
// tuple, with edges for lib->dep, bin->lib, test->bin,
// build-script-compile, build-script-run, doc, and doctest semantics.
package unitgraph

import (
	"fmt"

	"github.com/duffield-forge/forge/internal/ids"
	"github.com/duffield-forge/forge/internal/manifest"
	"github.com/duffield-forge/forge/internal/profile"
)

// Kind distinguishes a unit compiled for the host toolchain (proc
// macros, plugins, build scripts) from one compiled for the requested
// target triple, the cross-compilation distinction draws.
type Kind int

const (
	KindTarget Kind = iota
	KindHost
)

func (k Kind) String() string {
	if k == KindHost {
		return "host"
	}
	return "target"
}

// CompileMode enumerates the mode component of a Unit's key.
type CompileMode int

const (
	ModeBuild CompileMode = iota
	ModeCheck
	ModeTest
	ModeBench
	ModeDoc
	ModeDoctest
	ModeRunCustomBuild
)

func (m CompileMode) String() string {
	switch m {
	case ModeCheck:
		return "check"
	case ModeTest:
		return "test"
	case ModeBench:
		return "bench"
	case ModeDoc:
		return "doc"
	case ModeDoctest:
		return "doctest"
	case ModeRunCustomBuild:
		return "run-custom-build"
	default:
		return "build"
	}
}

// Unit is a single compile-or-run step. Equality
// uses all five key fields — package, target, profile-comparable,
// mode, and kind — plus the two sub-discriminators (CheckTest,
// DocDeps) that the spec folds into the Check and Doc mode variants.
type Unit struct {
	Package   ids.PackageId
	Target    manifest.Target
	Profile   profile.Profile
	Mode      CompileMode
	Kind      Kind
	CheckTest bool // meaningful only when Mode == ModeCheck
	DocDeps   bool // meaningful only when Mode == ModeDoc
}

// Key returns the string that stands in for the (pkg, target,
// profile-comparable, mode, kind) tuple step 6 uses for
// deduplication. The informational profile name is excluded via
// Profile.Comparable().
func (u Unit) Key() string {
	return fmt.Sprintf("%s|%s|%d|%+v|%s|%d|%v|%v",
		u.Package, u.Target.Name, u.Target.Kind, u.Profile.Comparable(), u.Mode, u.Kind, u.CheckTest, u.DocDeps)
}

func (u Unit) String() string {
	return fmt.Sprintf("%s %s:%s[%s/%s]", u.Package, u.Mode, u.Target.Name, u.Target.Kind, u.Kind)
}

// MetadataHash derives the 16-hex-digit file-stem hash: a digest of
// (package-id, target.name, target.kind, profile-comparable, kind).
func (u Unit) MetadataHash() string {
	return fnv64Hex(fmt.Sprintf("%s|%s|%d|%+v|%s", u.Package, u.Target.Name, u.Target.Kind, u.Profile.Comparable(), u.Kind))
}
