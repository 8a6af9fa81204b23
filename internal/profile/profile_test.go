package profile

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/duffield-forge/forge/internal/ids"
	"github.com/duffield-forge/forge/internal/manifest"
)

func testPackage(name string) ids.PackageId {
	srcs := ids.NewInterner()
	pkgs := ids.NewPackageIdInterner(srcs)
	return pkgs.MustIntern(name, "1.0.0", srcs.Registry("https://example.io", ""))
}

func TestDevDefaults(t *testing.T) {
	e := NewEngine(nil)
	p, err := e.Resolve(Request{Package: testPackage("foo"), IsWorkspaceMember: true, ProfileName: "dev"})
	require.NoError(t, err)
	require.Equal(t, "0", p.OptLevel)
	require.True(t, p.DebugAssertions)
	require.True(t, p.Incremental)
}

func TestReleaseDefaults(t *testing.T) {
	e := NewEngine(nil)
	p, err := e.Resolve(Request{Package: testPackage("foo"), IsWorkspaceMember: true, ProfileName: "release"})
	require.NoError(t, err)
	require.Equal(t, "3", p.OptLevel)
	require.False(t, p.DebugAssertions)
}

func TestWorkspaceOverrideBeatsDefault(t *testing.T) {
	opt := "2"
	e := NewEngine(map[string]manifest.ProfileTOML{
		"dev": {OptLevel: &opt},
	})
	p, err := e.Resolve(Request{Package: testPackage("foo"), IsWorkspaceMember: true, ProfileName: "dev"})
	require.NoError(t, err)
	require.Equal(t, "2", p.OptLevel)
}

func TestPerPackageOverrideBeatsWorkspace(t *testing.T) {
	workspaceOpt := "2"
	pkgOpt := "1"
	pkg := testPackage("bar")
	e := NewEngine(map[string]manifest.ProfileTOML{
		"dev": {
			OptLevel: &workspaceOpt,
			Overrides: map[manifest.ProfileOverrideSpec]*manifest.ProfileTOML{
				{Pattern: "bar"}: {OptLevel: &pkgOpt},
			},
		},
	})
	p, err := e.Resolve(Request{Package: pkg, IsWorkspaceMember: false, ProfileName: "dev"})
	require.NoError(t, err)
	require.Equal(t, "1", p.OptLevel)
}

func TestWildcardOverrideMatchesOnlyNonWorkspaceMembers(t *testing.T) {
	opt := "z"
	e := NewEngine(map[string]manifest.ProfileTOML{
		"dev": {
			Overrides: map[manifest.ProfileOverrideSpec]*manifest.ProfileTOML{
				{IsWildcard: true}: {OptLevel: &opt},
			},
		},
	})
	dep, err := e.Resolve(Request{Package: testPackage("dep"), IsWorkspaceMember: false, ProfileName: "dev"})
	require.NoError(t, err)
	require.Equal(t, "z", dep.OptLevel)

	member, err := e.Resolve(Request{Package: testPackage("member"), IsWorkspaceMember: true, ProfileName: "dev"})
	require.NoError(t, err)
	require.Equal(t, "0", member.OptLevel)
}

func TestConflictingOverridesIsAnError(t *testing.T) {
	opt := "1"
	e := NewEngine(map[string]manifest.ProfileTOML{
		"dev": {
			Overrides: map[manifest.ProfileOverrideSpec]*manifest.ProfileTOML{
				{Pattern: "bar"}:     {OptLevel: &opt},
				{IsWildcard: true}:   {OptLevel: &opt},
			},
		},
	})
	_, err := e.Resolve(Request{Package: testPackage("bar"), IsWorkspaceMember: false, ProfileName: "dev"})
	require.Error(t, err)
}

func TestTestDependencyClearsPanic(t *testing.T) {
	e := NewEngine(nil)
	p, err := e.Resolve(Request{Package: testPackage("foo"), ProfileName: "dev", IsTestOrBenchDep: true})
	require.NoError(t, err)
	require.Empty(t, p.Panic)
}

func TestRunCustomBuildOnlyPropagatesDebuginfoAndOptLevel(t *testing.T) {
	dbg := 1
	triggering := Profile{OptLevel: "3", Debuginfo: &dbg, DebugAssertions: true, CodegenUnits: 1}
	e := NewEngine(nil)
	p, err := e.Resolve(Request{
		Package:           testPackage("foo"),
		ProfileName:       "dev",
		IsRunCustomBuild:  true,
		TriggeringProfile: &triggering,
	})
	require.NoError(t, err)
	require.Equal(t, "3", p.OptLevel)
	require.Equal(t, 1, *p.Debuginfo)
	// everything else reset to the custom-build hardcoded default, not
	// copied from the triggering profile
	require.False(t, p.DebugAssertions)
	require.Equal(t, 256, p.CodegenUnits)
}

func TestBuildOverrideAppliesToBuildScriptTransitiveDeps(t *testing.T) {
	opt := "0"
	overrideOpt := "3"
	e := NewEngine(map[string]manifest.ProfileTOML{
		"dev": {
			OptLevel:      &opt,
			BuildOverride: &manifest.ProfileTOML{OptLevel: &overrideOpt},
		},
	})

	// the build script's own compiled binary, and any of its transitive
	// deps, pick up build-override even though neither is the unit that
	// actually runs the build script (that one takes the
	// IsRunCustomBuild branch instead).
	p, err := e.Resolve(Request{Package: testPackage("build-script-bin"), ProfileName: "dev", IsBuildDependency: true})
	require.NoError(t, err)
	require.Equal(t, "3", p.OptLevel)

	// a normal dependency of the package under build, reached by any
	// other edge, is unaffected.
	normal, err := e.Resolve(Request{Package: testPackage("normal-dep"), ProfileName: "dev"})
	require.NoError(t, err)
	require.Equal(t, "0", normal.OptLevel)
}

func TestComparableExcludesName(t *testing.T) {
	a := Profile{Name: "dev", OptLevel: "0"}
	b := Profile{Name: "release-but-configured-like-dev", OptLevel: "0"}
	require.Equal(t, a.Comparable(), b.Comparable())
}
