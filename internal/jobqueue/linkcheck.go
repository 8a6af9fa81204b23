package jobqueue

import (
	"fmt"
	"sort"

	"github.com/duffield-forge/forge/internal/ids"
	"github.com/duffield-forge/forge/internal/manifest"
	"github.com/duffield-forge/forge/internal/unitgraph"
)

// LinkNameConflictError reports that two reachable packages both declare
// the same native-library `links` name.
type LinkNameConflictError struct {
	LinksName string
	PathA     []string
	PathB     []string
}

func (e *LinkNameConflictError) Error() string {
	return fmt.Sprintf("native library name %q is declared by more than one package:\n  %s\n  %s",
		e.LinksName, pathString(e.PathA), pathString(e.PathB))
}

func pathString(path []string) string {
	out := ""
	for i, p := range path {
		if i > 0 {
			out += " -> "
		}
		out += p
	}
	return out
}

// PackageManifests supplies each unit's owning package manifest, the same
// capability surface the unit-graph builder depends on.
type PackageManifests interface {
	Manifest(pkg ids.PackageId) (manifest.Manifest, error)
}

// ValidateLinkNames implements pre-execution check: for every
// reachable unit whose package declares `links = "X"`, no other reachable
// unit's package may also declare it. It runs before any unit is scheduled.
func ValidateLinkNames(graph *unitgraph.Graph, packages PackageManifests) error {
	owners := make(map[string]ids.PackageId) // links name -> owning package

	byKey := make(map[string]unitgraph.Unit, len(graph.Units))
	for _, u := range graph.Units {
		byKey[u.Key()] = u
	}

	seenPackage := make(map[string]bool)
	var keys []string
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		u := byKey[k]
		pkgKey := u.Package.String()
		if seenPackage[pkgKey] {
			continue
		}
		seenPackage[pkgKey] = true

		man, err := packages.Manifest(u.Package)
		if err != nil {
			return err
		}
		if man.Summary.Links == "" {
			continue
		}

		if existing, ok := owners[man.Summary.Links]; ok && !existing.Equal(u.Package) {
			pathA := findPath(graph, existing)
			pathB := findPath(graph, u.Package)
			return &LinkNameConflictError{LinksName: man.Summary.Links, PathA: pathA, PathB: pathB}
		}
		owners[man.Summary.Links] = u.Package
	}

	return nil
}

// findPath does a breadth-first search from every unit with no incoming
// edge (a root of the graph) down to the first unit belonging to target,
// returning a root-to-target chain of package names for the diagnostic.
func findPath(graph *unitgraph.Graph, target ids.PackageId) []string {
	type frame struct {
		key  string
		path []string
	}

	byKey := indexByKey(graph)

	hasParent := make(map[string]bool, len(byKey))
	for _, children := range graph.Edges {
		for _, c := range children {
			hasParent[c.Key()] = true
		}
	}

	var roots []string
	for k := range byKey {
		if !hasParent[k] {
			roots = append(roots, k)
		}
	}
	sort.Strings(roots)

	visited := make(map[string]bool)
	var queue []frame
	for _, k := range roots {
		queue = append(queue, frame{key: k, path: []string{byKey[k].Package.Name()}})
	}

	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]
		if visited[f.key] {
			continue
		}
		visited[f.key] = true

		u := byKey[f.key]
		if u.Package.Equal(target) {
			return f.path
		}

		children := append([]unitgraph.Unit{}, graph.Edges[f.key]...)
		sort.Slice(children, func(i, j int) bool { return children[i].Key() < children[j].Key() })
		for _, c := range children {
			if visited[c.Key()] {
				continue
			}
			queue = append(queue, frame{key: c.Key(), path: append(append([]string{}, f.path...), c.Package.Name())})
		}
	}

	return []string{target.Name()}
}

func indexByKey(graph *unitgraph.Graph) map[string]unitgraph.Unit {
	out := make(map[string]unitgraph.Unit, len(graph.Units))
	for _, u := range graph.Units {
		out[u.Key()] = u
	}
	return out
}
