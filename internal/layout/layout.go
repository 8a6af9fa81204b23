// Package layout computes the on-disk target-directory paths and
// output filenames: per-triple, per-profile subdirectories, and the
// metadata-hashed file stem every unit's artifacts are named with.
package layout

import (
	"path/filepath"

	"github.com/duffield-forge/forge/internal/manifest"
	"github.com/duffield-forge/forge/internal/unitgraph"
)

// Layout resolves paths under one target directory root.
type Layout struct {
	Root string // the CARGO_TARGET_DIR-equivalent root
}

func New(root string) *Layout {
	return &Layout{Root: root}
}

// profileDirName is "debug" for every non-release profile and
// "release" for the release profile; this is an output-path concern
// distinct from the profile's own Name field.
func profileDirName(release bool) string {
	if release {
		return "release"
	}
	return "debug"
}

// DestDir returns the root of one (triple, release) build's outputs.
// Host-compiled artifacts always use the host triple's layout, even in
// a cross build.
func (l *Layout) DestDir(triple string, isHostArtifact, release bool) string {
	if isHostArtifact || triple == "" {
		return filepath.Join(l.Root, profileDirName(release))
	}
	return filepath.Join(l.Root, triple, profileDirName(release))
}

func (l *Layout) DepsDir(triple string, isHostArtifact, release bool) string {
	return filepath.Join(l.DestDir(triple, isHostArtifact, release), "deps")
}

func (l *Layout) BuildDir(triple string, isHostArtifact, release bool) string {
	return filepath.Join(l.DestDir(triple, isHostArtifact, release), "build")
}

func (l *Layout) ExamplesDir(triple string, isHostArtifact, release bool) string {
	return filepath.Join(l.DestDir(triple, isHostArtifact, release), "examples")
}

func (l *Layout) IncrementalDir(triple string, isHostArtifact, release bool) string {
	return filepath.Join(l.DestDir(triple, isHostArtifact, release), "incremental")
}

// FileStem computes a unit's output filename stem:
// lib<crate>-<hash>.<ext> for libraries, <bin>-<hash> for binaries.
// isRootUninterestingBin lets the root package's sole binary omit the
// hash suffix so its final path is predictable.
func FileStem(u unitgraph.Unit, ext string, isRootUninterestingBin bool) string {
	hash := u.MetadataHash()
	switch u.Target.Kind {
	case manifest.TargetLib:
		stem := "lib" + u.Target.Name + "-" + hash
		if ext != "" {
			stem += "." + ext
		}
		return stem
	default:
		if isRootUninterestingBin {
			return u.Target.Name
		}
		return u.Target.Name + "-" + hash
	}
}
