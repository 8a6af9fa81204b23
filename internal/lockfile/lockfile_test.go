package lockfile

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/duffield-forge/forge/internal/ids"
	"github.com/duffield-forge/forge/internal/resolver"
)

func TestParseEncodeRoundTrip(t *testing.T) {
	input := []byte(`[[package]]
name = "bar"
version = "1.0.0"

[[package]]
name = "foo"
version = "2.0.0"
source = "registry+https://example.io"
dependencies = ["bar 1.0.0"]

[metadata]
"checksum foo 2.0.0 (registry+https://example.io)" = "abc123"
`)

	f, err := Parse(input)
	require.NoError(t, err)
	require.Len(t, f.Packages, 2)
	require.Equal(t, "bar", f.Packages[0].Name)
	require.Equal(t, "foo", f.Packages[1].Name)
	require.Equal(t, "abc123", f.Metadata["checksum foo 2.0.0 (registry+https://example.io)"])

	out, err := Encode(f)
	require.NoError(t, err)

	reparsed, err := Parse(out)
	require.NoError(t, err)
	require.Equal(t, f.Packages, reparsed.Packages)
	require.Equal(t, f.Metadata, reparsed.Metadata)
}

func TestParsePreservesCRLFOnRewrite(t *testing.T) {
	input := []byte("[[package]]\r\nname = \"bar\"\r\nversion = \"1.0.0\"\r\n")

	f, err := Parse(input)
	require.NoError(t, err)

	out, err := Encode(f)
	require.NoError(t, err)
	require.Contains(t, string(out), "\r\n")
	require.NotContains(t, string(out), "bar\nversion")
}

func TestPackagesSortedByNameThenVersion(t *testing.T) {
	input := []byte(`[[package]]
name = "foo"
version = "2.0.0"

[[package]]
name = "foo"
version = "1.0.0"

[[package]]
name = "bar"
version = "1.0.0"
`)
	f, err := Parse(input)
	require.NoError(t, err)
	require.Equal(t, []string{"bar", "foo", "foo"}, []string{f.Packages[0].Name, f.Packages[1].Name, f.Packages[2].Name})
	require.Equal(t, "1.0.0", f.Packages[1].Version)
	require.Equal(t, "2.0.0", f.Packages[2].Version)
}

func TestDependencyRefPartsRoundTripsFromPackageId(t *testing.T) {
	interner := ids.NewInterner()
	pkgs := ids.NewPackageIdInterner(interner)
	src := interner.Registry("https://example.io", "")
	id := pkgs.MustIntern("foo", "2.0.0", src)

	ref := FromPackageId(id)
	name, version, source := DependencyRefParts(ref)
	require.Equal(t, "foo", name)
	require.Equal(t, "2.0.0", version)
	require.Equal(t, src.String(), source)
}

func TestDependencyRefPartsOmitsSourceForPathPackages(t *testing.T) {
	interner := ids.NewInterner()
	pkgs := ids.NewPackageIdInterner(interner)
	src := interner.Path("/home/user/project/bar")
	id := pkgs.MustIntern("bar", "1.0.0", src)

	ref := FromPackageId(id)
	require.Equal(t, "bar 1.0.0", ref)
}

func TestFromResolveBuildsSortedPackagesWithDependencyRefs(t *testing.T) {
	interner := ids.NewInterner()
	pkgs := ids.NewPackageIdInterner(interner)
	regSrc := interner.Registry("https://example.io", "")
	pathSrc := interner.Path("/home/user/project")

	root := pkgs.MustIntern("app", "0.1.0", pathSrc)
	dep := pkgs.MustIntern("foo", "2.0.0", regSrc)

	res := &resolver.Resolve{
		Edges: []resolver.Edge{
			{From: root, To: dep},
		},
		Checksums: map[string]string{
			dep.String(): "deadbeef",
		},
	}

	f := FromResolve(res, map[string]string{"k": "v"})
	require.Len(t, f.Packages, 2)

	var appPkg, fooPkg Package
	for _, p := range f.Packages {
		switch p.Name {
		case "app":
			appPkg = p
		case "foo":
			fooPkg = p
		}
	}

	require.Equal(t, "", appPkg.Source)
	require.Equal(t, []string{FromPackageId(dep)}, appPkg.Dependencies)

	require.Equal(t, regSrc.String(), fooPkg.Source)
	require.Equal(t, "deadbeef", fooPkg.Checksum)
	require.Equal(t, map[string]string{"k": "v"}, f.Metadata)
}

func TestToLockedMapReinternsPinnedPackages(t *testing.T) {
	interner := ids.NewInterner()
	pkgs := ids.NewPackageIdInterner(interner)

	f := &File{
		Packages: []Package{
			{Name: "bar", Version: "1.0.0"},
			{Name: "foo", Version: "2.0.0", Source: "registry+https://example.io"},
		},
	}

	locked, err := ToLockedMap(f, interner, pkgs)
	require.NoError(t, err)
	require.Len(t, locked, 2)

	require.True(t, locked["bar"].Source().IsPath())
	require.Equal(t, "1.0.0", locked["bar"].Version().String())

	require.Equal(t, ids.KindRegistry, locked["foo"].Source().Kind())
	require.Equal(t, "https://example.io", locked["foo"].Source().URL())
}

func TestToLockedMapRejectsMalformedVersion(t *testing.T) {
	interner := ids.NewInterner()
	pkgs := ids.NewPackageIdInterner(interner)

	f := &File{Packages: []Package{{Name: "bar", Version: "not-a-version"}}}

	_, err := ToLockedMap(f, interner, pkgs)
	require.Error(t, err)
}
