package ids

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// packageIdData is the immutable payload behind an interned *PackageId.
type packageIdData struct {
	name    string
	version *semver.Version
	source  SourceId
}

// PackageId is a pointer-comparable, interned (name, version, source)
// triple. PackageId is a value type: copy it freely, compare it with ==
// only through Equal (the embedded SourceId may not be pointer-identical
// across interners in tests).
type PackageId struct {
	data *packageIdData
}

func (p PackageId) Name() string          { return p.data.name }
func (p PackageId) Version() *semver.Version { return p.data.version }
func (p PackageId) Source() SourceId      { return p.data.source }

// IsZero reports whether p is the zero value (no PackageId interned),
// used by callers that track an "optional" PackageId, such as a
// replacement's original package, without an extra pointer or bool.
func (p PackageId) IsZero() bool { return p.data == nil }

func (p PackageId) Equal(other PackageId) bool {
	if p.data == other.data {
		return true
	}
	if p.data == nil || other.data == nil {
		return false
	}
	return p.data.name == other.data.name &&
		p.data.version.Equal(other.data.version) &&
		p.data.source.Equal(other.data.source)
}

func (p PackageId) String() string {
	if p.data == nil {
		return "<invalid package>"
	}
	return fmt.Sprintf("%s v%s (%s)", p.data.name, p.data.version, p.data.source)
}

// Less provides the total order deterministic output requires: name,
// then version (newest last, so ascending sort puts the oldest
// first), then source URL as a final tiebreak.
func (p PackageId) Less(other PackageId) bool {
	if p.data.name != other.data.name {
		return p.data.name < other.data.name
	}
	if cmp := p.data.version.Compare(other.data.version); cmp != 0 {
		return cmp < 0
	}
	return p.data.source.URL() < other.data.source.URL()
}

// PackageIdInterner interns PackageIds in an append-only map keyed by
// name, version and source. Unlike Interner it takes no lock, so Intern
// is not safe for concurrent use.
type PackageIdInterner struct {
	sources *Interner
	table   map[string]*packageIdData
}

func NewPackageIdInterner(sources *Interner) *PackageIdInterner {
	return &PackageIdInterner{sources: sources, table: make(map[string]*packageIdData)}
}

func (in *PackageIdInterner) Intern(name string, version *semver.Version, source SourceId) (PackageId, error) {
	if version == nil {
		return PackageId{}, fmt.Errorf("ids: package %q interned with nil version", name)
	}
	key := fmt.Sprintf("%s|%s|%s", name, version.String(), source)
	if d, ok := in.table[key]; ok {
		return PackageId{data: d}, nil
	}
	d := &packageIdData{name: name, version: version, source: source}
	in.table[key] = d
	return PackageId{data: d}, nil
}

// MustIntern panics on a malformed version; reserved for tests and
// hardcoded fixture construction where the version is a compile-time
// literal.
func (in *PackageIdInterner) MustIntern(name, version string, source SourceId) PackageId {
	v, err := semver.NewVersion(version)
	if err != nil {
		panic(fmt.Sprintf("ids: bad version %q for %q: %v", version, name, err))
	}
	p, err := in.Intern(name, v, source)
	if err != nil {
		panic(err)
	}
	return p
}
