package source

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/duffield-forge/forge/internal/ids"
	"github.com/duffield-forge/forge/internal/manifest"
)

// PathSource implements Source for a single local-path package.
// Manifest parsing is external; PathSource is constructed with an
// already-decoded manifest.Manifest and merely exposes it through the
// Source surface so the resolver and unit-graph builder need not
// special-case path deps.
type PathSource struct {
	SourceID ids.SourceId
	Dir      string
	Man      manifest.Manifest
}

func NewPathSource(id ids.SourceId, dir string, man manifest.Manifest) *PathSource {
	return &PathSource{SourceID: id, Dir: dir, Man: man}
}

// Update is a no-op: a path source's contents change only when the
// caller re-parses the manifest and reconstructs the PathSource.
func (p *PathSource) Update() error { return nil }

func (p *PathSource) Query(dep manifest.Dependency) ([]manifest.Summary, error) {
	if dep.Name != p.Man.Summary.PackageId.Name() {
		return nil, nil
	}
	c, err := semver.NewConstraint(dep.Req)
	if err != nil {
		return nil, fmt.Errorf("source: bad version requirement %q: %w", dep.Req, err)
	}
	if !c.Check(p.Man.Summary.PackageId.Version()) {
		return nil, nil
	}
	return []manifest.Summary{p.Man.Summary}, nil
}

func (p *PathSource) Download(pkg ids.PackageId) (Package, error) {
	if !pkg.Equal(p.Man.Summary.PackageId) {
		return Package{}, fmt.Errorf("source: path source at %s does not contain %s", p.Dir, pkg)
	}
	return Package{Manifest: p.Man, RootDir: p.Dir}, nil
}

// Fingerprint for a path source is the directory path itself combined
// with version: path sources have no checksum, and the fingerprint
// engine instead falls back to per-file mtimes/content hashes for the
// actual sensitivity; this value only needs to change
// when the package identity changes.
func (p *PathSource) Fingerprint(pkg ids.PackageId) (string, error) {
	return fmt.Sprintf("path:%s@%s", p.Dir, pkg.Version()), nil
}
