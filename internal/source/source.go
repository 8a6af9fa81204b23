// Package source implements the registry/source abstraction: a uniform
// capability over local path, git, remote registry, local registry,
// and directory package sources. Actual network transport (HTTP
// fetch, git clone) is a pluggable collaborator injected by the
// caller; this package owns everything the core is responsible for
// around that boundary: index parsing, checksum verification, git ref
// resolution, and archive validation.
package source

import (
	"github.com/duffield-forge/forge/internal/ids"
	"github.com/duffield-forge/forge/internal/manifest"
)

// Package is a materialized package's on-disk files, as returned by
// Source.Download.
type Package struct {
	Manifest manifest.Manifest
	RootDir  string
}

// Source is the capability every source kind exposes to the resolver
// and unit-graph builder. Implementations dispatch on
// ids.SourceKind internally; callers depend only on this interface, so
// either tagged-variant dispatch or a vtable works.
type Source interface {
	// Update refreshes local state: fetch for git/registry, reclone if
	// the local mirror is missing.
	Update() error

	// Query returns every candidate Summary matching dep's name and
	// version requirement, ignoring features (feature activation is
	// the resolver's job, not the source's).
	Query(dep manifest.Dependency) ([]manifest.Summary, error)

	// Download materializes a package's on-disk files.
	Download(pkg ids.PackageId) (Package, error)

	// Fingerprint returns a stable string for pkg, consumed by the
	// fingerprint engine as one input to a unit's stamp.
	Fingerprint(pkg ids.PackageId) (string, error)
}

// Transport is the actual byte-moving collaborator a Source delegates
// to: registry transport and archive I/O are never built into the
// core itself, which only consumes an abstract source capability.
// Production wiring supplies an HTTP- or git-backed Transport; tests
// supply an in-memory fake.
type Transport interface {
	// FetchBytes retrieves the raw bytes at a transport-specific
	// locator (an index file path, a .crate URL, a git object).
	FetchBytes(locator string) ([]byte, error)
}
