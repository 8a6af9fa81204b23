// Package profile implements the profile engine: given a
// package, its workspace-membership status, the named profile in play,
// and the compile mode, resolve the concrete compiler settings through
// a four-level precedence hierarchy.
package profile

import (
	"fmt"

	"github.com/duffield-forge/forge/internal/ids"
	"github.com/duffield-forge/forge/internal/manifest"
)

// LTO mirrors manifest.LTOValue but is always fully resolved (never
// nil) once a Profile has been merged.
type LTO struct {
	Named string // "" if Bool is authoritative
	Bool  bool
}

// Profile is the fully merged, concrete compiler configuration for one
// unit.
type Profile struct {
	Name            string // informational only; excluded from Comparable
	OptLevel        string
	Debuginfo       *int
	DebugAssertions bool
	OverflowChecks  bool
	Rpath           bool
	Incremental     bool
	LTO             LTO
	CodegenUnits    int
	Panic           string // "", "unwind", or "abort"; "" after test/bench-dependency clearing
}

// Comparable is the subset of Profile that participates in Unit
// equality.
type Comparable struct {
	OptLevel        string
	Debuginfo       int
	HasDebuginfo    bool
	DebugAssertions bool
	OverflowChecks  bool
	Rpath           bool
	Incremental     bool
	LTONamed        string
	LTOBool         bool
	CodegenUnits    int
	Panic           string
}

func (p Profile) Comparable() Comparable {
	c := Comparable{
		OptLevel:        p.OptLevel,
		DebugAssertions: p.DebugAssertions,
		OverflowChecks:  p.OverflowChecks,
		Rpath:           p.Rpath,
		Incremental:     p.Incremental,
		LTONamed:        p.LTO.Named,
		LTOBool:         p.LTO.Bool,
		CodegenUnits:    p.CodegenUnits,
		Panic:           p.Panic,
	}
	if p.Debuginfo != nil {
		c.HasDebuginfo = true
		c.Debuginfo = *p.Debuginfo
	}
	return c
}

// hardcodedDefaults returns level-1 defaults for each of
// the six named profiles the core recognizes.
func hardcodedDefaults(name string) Profile {
	dbg0 := 0
	dbg2 := 2
	switch name {
	case "release":
		return Profile{Name: name, OptLevel: "3", Debuginfo: &dbg0, CodegenUnits: 16, Panic: "unwind"}
	case "test", "bench":
		return Profile{Name: name, OptLevel: "0", Debuginfo: &dbg2, DebugAssertions: true, OverflowChecks: true, CodegenUnits: 256, Incremental: true, Panic: "unwind"}
	case "doc":
		return Profile{Name: name, OptLevel: "0", CodegenUnits: 256, Panic: "unwind"}
	case "custom-build":
		return Profile{Name: name, OptLevel: "0", CodegenUnits: 256, Panic: "unwind"}
	default: // "dev" and any unrecognized name fall back to dev's defaults
		return Profile{Name: "dev", OptLevel: "0", Debuginfo: &dbg2, DebugAssertions: true, OverflowChecks: true, CodegenUnits: 256, Incremental: true, Panic: "unwind"}
	}
}

func applyTOML(p Profile, t *manifest.ProfileTOML) Profile {
	if t == nil {
		return p
	}
	if t.OptLevel != nil {
		p.OptLevel = *t.OptLevel
	}
	if t.Debuginfo != nil {
		v := *t.Debuginfo
		p.Debuginfo = &v
	}
	if t.DebugAssertions != nil {
		p.DebugAssertions = *t.DebugAssertions
	}
	if t.OverflowChecks != nil {
		p.OverflowChecks = *t.OverflowChecks
	}
	if t.Rpath != nil {
		p.Rpath = *t.Rpath
	}
	if t.Incremental != nil {
		p.Incremental = *t.Incremental
	}
	if t.LTO != nil {
		p.LTO = LTO{Named: t.LTO.Named, Bool: t.LTO.Bool}
		if !t.LTO.IsNamed {
			p.LTO.Named = ""
		}
	}
	if t.CodegenUnits != nil {
		p.CodegenUnits = *t.CodegenUnits
	}
	if t.Panic != nil {
		p.Panic = *t.Panic
	}
	return p
}

// Request is the (package-id, is-workspace-member, profile-for,
// compile-mode, release?) tuple the profile engine resolves against.
type Request struct {
	Package           ids.PackageId
	IsWorkspaceMember bool
	ProfileName       string // "dev", "release", "test", "bench", "doc", "custom-build"
	IsRunCustomBuild  bool
	IsTestOrBenchDep  bool // this unit is reached only via a test/bench dependency edge
	IsBuildDependency bool // this unit is a build script itself, or one of its transitive deps; enables build-override
	TriggeringProfile *Profile // the profile of the unit that scheduled this RunCustomBuild unit, if any
}

// Engine merges the four precedence levels of §4.4: hardcoded
// defaults, the workspace-root [profile.X] table, [profile.X.build-override],
// and [profile.X.overrides.<spec>].
type Engine struct {
	WorkspaceRoot map[string]manifest.ProfileTOML
}

func NewEngine(workspaceProfiles map[string]manifest.ProfileTOML) *Engine {
	return &Engine{WorkspaceRoot: workspaceProfiles}
}

// Resolve computes the merged Profile for req.
func (e *Engine) Resolve(req Request) (Profile, error) {
	p := hardcodedDefaults(req.ProfileName)

	root := e.WorkspaceRoot[req.ProfileName]
	p = applyTOML(p, &root)

	if req.IsRunCustomBuild {
		// only debuginfo and opt-level propagate from the
		// triggering profile; everything else resets to dedupe
		// equivalent build-script executions.
		p = hardcodedDefaults("custom-build")
		if root.BuildOverride != nil {
			p = applyTOML(p, root.BuildOverride)
		}
		if req.TriggeringProfile != nil {
			p.Debuginfo = req.TriggeringProfile.Debuginfo
			p.OptLevel = req.TriggeringProfile.OptLevel
		}
		return p, nil
	}

	if req.IsBuildDependency && root.BuildOverride != nil {
		// level 3: build-override also covers a build script's own
		// compiled binary and its transitive deps, not just the unit
		// that runs it (which took the IsRunCustomBuild branch above).
		p = applyTOML(p, root.BuildOverride)
	}

	var matched *manifest.ProfileOverrideSpec
	for spec, override := range root.Overrides {
		if !spec.Matches(req.Package, req.IsWorkspaceMember) {
			continue
		}
		if matched != nil {
			return Profile{}, fmt.Errorf("profile: package %s matched by conflicting overrides %q and %q", req.Package, matched.Pattern, spec.Pattern)
		}
		specCopy := spec
		matched = &specCopy
		p = applyTOML(p, override)
	}

	if req.IsTestOrBenchDep {
		// invariant: profile selection for test/bench
		// dependencies clears the panic setting.
		p.Panic = ""
	}

	return p, nil
}
