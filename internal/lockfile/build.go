package lockfile

import (
	"sort"

	"github.com/Masterminds/semver/v3"

	"github.com/duffield-forge/forge/internal/ids"
	"github.com/duffield-forge/forge/internal/resolver"
)

// FromResolve converts a resolver.Resolve into a lockfile File,
// preserving any existing Metadata table verbatim.
func FromResolve(res *resolver.Resolve, metadata map[string]string) *File {
	deps := make(map[string][]string) // from PackageId.String() -> dependency refs
	byID := make(map[string]ids.PackageId)

	for _, e := range res.Edges {
		byID[e.From.String()] = e.From
		byID[e.To.String()] = e.To
		deps[e.From.String()] = append(deps[e.From.String()], FromPackageId(e.To))
	}

	keys := make([]string, 0, len(byID))
	for k := range byID {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	packages := make([]Package, 0, len(keys))
	for _, k := range keys {
		id := byID[k]
		pkg := Package{
			Name:         id.Name(),
			Version:      id.Version().String(),
			Checksum:     res.Checksums[k],
			Dependencies: deps[k],
		}
		if !id.Source().IsPath() {
			pkg.Source = id.Source().String()
		}
		packages = append(packages, pkg)
	}

	return &File{Packages: packages, Metadata: metadata}
}

// ToLockedMap builds the resolver.Options.Locked input from a parsed
// lockfile: name -> the exact PackageId it pinned, reinterned through
// interner so pointer identity matches whatever the resolver run uses.
func ToLockedMap(f *File, interner *ids.Interner, pkgs *ids.PackageIdInterner) (map[string]ids.PackageId, error) {
	out := make(map[string]ids.PackageId, len(f.Packages))
	for _, p := range f.Packages {
		var src ids.SourceId
		if p.Source == "" {
			src = interner.Path(p.Name)
		} else {
			var err error
			src, err = ids.ParseSourceString(interner, p.Source)
			if err != nil {
				return nil, err
			}
		}
		version, err := semver.NewVersion(p.Version)
		if err != nil {
			return nil, err
		}
		id, err := pkgs.Intern(p.Name, version, src)
		if err != nil {
			return nil, err
		}
		out[p.Name] = id
	}
	return out, nil
}
