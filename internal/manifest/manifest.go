// Package manifest holds the data-only types that describe a package
// as already parsed from its manifest file. The core never reads a
// manifest file itself; callers (the out-of-core front end) construct
// these values and hand them in.
package manifest

import (
	"fmt"

	"github.com/duffield-forge/forge/internal/cfgexpr"
	"github.com/duffield-forge/forge/internal/ids"
)

// DependencyKind classifies how a dependency participates in the build.
type DependencyKind int

const (
	KindNormal DependencyKind = iota
	KindBuild
	KindDev
)

func (k DependencyKind) String() string {
	switch k {
	case KindBuild:
		return "build"
	case KindDev:
		return "dev"
	default:
		return "normal"
	}
}

// Platform restricts a dependency to a target: either an explicit
// triple or a cfg(...) expression, never both.
type Platform struct {
	Triple string
	Cfg    *cfgexpr.Expr
}

// Matches evaluates the platform restriction against a set of cfg
// atoms for the current target (and, if Triple is set, the resolved
// triple string itself, compared literally, per "bare
// target-triple" acceptance rule).
func (p *Platform) Matches(triple string, atoms cfgexpr.AtomSet) bool {
	if p == nil {
		return true
	}
	if p.Triple != "" {
		return p.Triple == triple
	}
	return p.Cfg.Matches(atoms)
}

// Dependency is one edge out of a package as declared in its manifest,
// prior to resolution.
type Dependency struct {
	Name              string
	Req               string // semver requirement string, e.g. "^1.2"
	Kind              DependencyKind
	Optional          bool
	DefaultFeatures   bool
	Features          []string
	Platform          *Platform
	RegistryOverride  string
	Public            bool
	ExplicitNameInTOM string // name before any [dependencies].package rename, "" if unrenamed
}

// FeatureValue is one element of a feature's activation list.
type FeatureValue struct {
	// exactly one of the three is non-empty/valid
	Feature      string // "Feature(name)"
	Crate        string // "Crate(dep-name)"
	CrateFeature struct {
		Dep     string
		Feature string
	}
}

func NewFeatureValue(raw string) (FeatureValue, error) {
	switch {
	case raw == "":
		return FeatureValue{}, fmt.Errorf("manifest: empty feature value")
	case len(raw) > 4 && raw[:4] == "dep:":
		return FeatureValue{Crate: raw[4:]}, nil
	default:
		for i := 0; i < len(raw); i++ {
			if raw[i] == '/' {
				return FeatureValue{CrateFeature: struct {
					Dep     string
					Feature string
				}{Dep: raw[:i], Feature: raw[i+1:]}}, nil
			}
		}
		return FeatureValue{Feature: raw}, nil
	}
}

// Summary is a package's advertised metadata as a registry or other
// source would report it: everything needed to decide candidacy during
// resolution, nothing about how to build it.
type Summary struct {
	PackageId ids.PackageId
	DependsOn []Dependency
	Features  map[string][]FeatureValue
	Links     string // "" if this package declares no native library
	Checksum  string // "" if the source does not provide one
	Yanked    bool
}

// TargetKind enumerates the kinds of build target a manifest can
// declare.
type TargetKind int

const (
	TargetLib TargetKind = iota
	TargetBin
	TargetTest
	TargetBench
	TargetExample
	TargetCustomBuild
)

func (k TargetKind) String() string {
	switch k {
	case TargetLib:
		return "lib"
	case TargetBin:
		return "bin"
	case TargetTest:
		return "test"
	case TargetBench:
		return "bench"
	case TargetExample:
		return "example"
	case TargetCustomBuild:
		return "custom-build"
	default:
		return "unknown"
	}
}

// CrateType enumerates the output artifact kinds a lib target can
// request, mirroring cargo's crate-type list closely enough to drive
// the layout and job-queue decisions that key off it (staticlib vs.
// dylib vs. proc-macro affect both the file stem and whether the unit
// must run on the host toolchain).
type CrateType int

const (
	CrateLib CrateType = iota
	CrateRlib
	CrateDylib
	CrateCdylib
	CrateStaticlib
	CrateProcMacro
	CrateBin
)

// Target is one buildable artifact declared by a manifest.
type Target struct {
	Name             string
	Kind             TargetKind
	SourcePath       string
	CrateTypes       []CrateType
	Doc              bool
	Harness          bool
	RequiredFeatures []string
	ForHost          bool // true for proc-macro/plugin targets: always built with the host toolchain
}

// IsProcMacroOrPlugin reports whether this target must be compiled for
// the host even during a cross build.
func (t Target) IsProcMacroOrPlugin() bool {
	if t.ForHost {
		return true
	}
	for _, ct := range t.CrateTypes {
		if ct == CrateProcMacro {
			return true
		}
	}
	return false
}

// ProfileOverrideSpec selects which packages a [profile.X.overrides.*]
// table applies to; "*" (IsWildcard) matches any non-workspace-member.
type ProfileOverrideSpec struct {
	Pattern    string
	IsWildcard bool
}

func (s ProfileOverrideSpec) Matches(pkg ids.PackageId, isWorkspaceMember bool) bool {
	if s.IsWildcard {
		return !isWorkspaceMember
	}
	return s.Pattern == pkg.Name()
}

// ProfileTOML is the raw, not-yet-merged profile table as read from a
// manifest's [profile.<name>] section, including nested build-override
// and per-package overrides. Field pointers distinguish "unset" from
// "set to the zero value" so the profile engine's precedence merge
// can tell the two apart.
type ProfileTOML struct {
	OptLevel         *string
	Debuginfo        *int
	DebugAssertions  *bool
	OverflowChecks   *bool
	Rpath            *bool
	Incremental      *bool
	LTO              *LTOValue
	CodegenUnits     *int
	Panic            *string
	BuildOverride    *ProfileTOML
	Overrides        map[ProfileOverrideSpec]*ProfileTOML
}

// LTOValue models the profile's lto field, which is either a bool or a
// named LTO strategy ("thin", "fat", "off").
type LTOValue struct {
	IsNamed bool
	Named   string
	Bool    bool
}

// Manifest is a Summary plus everything else local to the package that
// the unit-graph builder and profile engine need.
type Manifest struct {
	Summary           Summary
	Targets           []Target
	Profiles          map[string]ProfileTOML
	IsWorkspaceMember bool
	Replacements      map[string]ids.PackageId // dependency name -> replacement package
}

func (m *Manifest) TargetsOfKind(kind TargetKind) []Target {
	var out []Target
	for _, t := range m.Targets {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}

func (m *Manifest) LibTarget() (Target, bool) {
	for _, t := range m.Targets {
		if t.Kind == TargetLib {
			return t, true
		}
	}
	return Target{}, false
}
