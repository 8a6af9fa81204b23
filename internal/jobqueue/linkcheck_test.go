package jobqueue

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/duffield-forge/forge/internal/ids"
	"github.com/duffield-forge/forge/internal/manifest"
	"github.com/duffield-forge/forge/internal/profile"
	"github.com/duffield-forge/forge/internal/unitgraph"
)

type fakeManifests struct {
	links map[string]string // package name -> links name
}

func (f fakeManifests) Manifest(pkg ids.PackageId) (manifest.Manifest, error) {
	return manifest.Manifest{Summary: manifest.Summary{PackageId: pkg, Links: f.links[pkg.Name()]}}, nil
}

func linkUnit(pkgs *ids.PackageIdInterner, src ids.SourceId, name string) unitgraph.Unit {
	pkg := pkgs.MustIntern(name, "1.0.0", src)
	return unitgraph.Unit{Package: pkg, Target: manifest.Target{Name: name, Kind: manifest.TargetLib}, Profile: profile.Profile{Name: "dev"}, Mode: unitgraph.ModeBuild, Kind: unitgraph.KindTarget}
}

func TestValidateLinkNamesAllowsDistinctNames(t *testing.T) {
	interner := ids.NewInterner()
	pkgs := ids.NewPackageIdInterner(interner)
	src := interner.Path("/workspace")

	a := linkUnit(pkgs, src, "a")
	b := linkUnit(pkgs, src, "b")

	graph := &unitgraph.Graph{
		Units: []unitgraph.Unit{a, b},
		Edges: map[string][]unitgraph.Unit{},
	}

	manifests := fakeManifests{links: map[string]string{"a": "foo", "b": "bar"}}
	require.NoError(t, ValidateLinkNames(graph, manifests))
}

func TestValidateLinkNamesRejectsDuplicateLinksName(t *testing.T) {
	interner := ids.NewInterner()
	pkgs := ids.NewPackageIdInterner(interner)
	src := interner.Path("/workspace")

	a := linkUnit(pkgs, src, "a")
	b := linkUnit(pkgs, src, "b")

	graph := &unitgraph.Graph{
		Units: []unitgraph.Unit{a, b},
		Edges: map[string][]unitgraph.Unit{},
	}

	manifests := fakeManifests{links: map[string]string{"a": "shared", "b": "shared"}}
	err := ValidateLinkNames(graph, manifests)
	require.Error(t, err)

	var conflictErr *LinkNameConflictError
	require.ErrorAs(t, err, &conflictErr)
	require.Equal(t, "shared", conflictErr.LinksName)
}
