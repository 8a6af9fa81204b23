package resolver

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/duffield-forge/forge/internal/ids"
)

type fakeActive struct {
	active map[string]bool
}

func (f fakeActive) IsActiveString(key string) bool { return f.active[key] }

func testPkg(t *testing.T, pkgs *ids.PackageIdInterner, interner *ids.Interner, name, version string) ids.PackageId {
	t.Helper()
	return pkgs.MustIntern(name, version, interner.Path("/pkgs/"+name))
}

func TestConflictCacheFindsExactlyRecordedSet(t *testing.T) {
	interner := ids.NewInterner()
	pkgs := ids.NewPackageIdInterner(interner)
	a := testPkg(t, pkgs, interner, "a", "1.0.0")
	b := testPkg(t, pkgs, interner, "b", "1.0.0")

	cache := NewConflictCache()
	cache.Insert("frustrated", []ids.PackageId{a, b}, map[string]ConflictReason{
		a.String(): ReasonLinks,
		b.String(): ReasonLinks,
	})

	found := cache.FindConflicting("frustrated", fakeActive{active: map[string]bool{
		a.String(): true,
		b.String(): true,
	}})
	require.NotNil(t, found)
	require.Equal(t, ReasonLinks, found[a.String()])
}

func TestConflictCacheDoesNotMatchPartialActivation(t *testing.T) {
	interner := ids.NewInterner()
	pkgs := ids.NewPackageIdInterner(interner)
	a := testPkg(t, pkgs, interner, "a", "1.0.0")
	b := testPkg(t, pkgs, interner, "b", "1.0.0")

	cache := NewConflictCache()
	cache.Insert("frustrated", []ids.PackageId{a, b}, map[string]ConflictReason{
		a.String(): ReasonLinks,
		b.String(): ReasonLinks,
	})

	// only a is active; the recorded conflict needs both a and b, so it
	// must not prune a branch where b hasn't been activated yet.
	found := cache.FindConflicting("frustrated", fakeActive{active: map[string]bool{
		a.String(): true,
	}})
	require.Nil(t, found)
}

func TestConflictCacheIsKeyedPerDependency(t *testing.T) {
	interner := ids.NewInterner()
	pkgs := ids.NewPackageIdInterner(interner)
	a := testPkg(t, pkgs, interner, "a", "1.0.0")

	cache := NewConflictCache()
	cache.Insert("x", []ids.PackageId{a}, map[string]ConflictReason{a.String(): ReasonSemver})

	// the same active set is irrelevant to an unrelated dependency name.
	found := cache.FindConflicting("y", fakeActive{active: map[string]bool{a.String(): true}})
	require.Nil(t, found)
}

func TestConflictCacheInsertionIsMonotonic(t *testing.T) {
	interner := ids.NewInterner()
	pkgs := ids.NewPackageIdInterner(interner)
	a := testPkg(t, pkgs, interner, "a", "1.0.0")
	b := testPkg(t, pkgs, interner, "b", "1.0.0")
	c := testPkg(t, pkgs, interner, "c", "1.0.0")

	cache := NewConflictCache()
	cache.Insert("frustrated", []ids.PackageId{a}, map[string]ConflictReason{a.String(): ReasonSemver})
	// inserting a superset after a previously recorded subset leaf must
	// not erase the existing, more general proof of impossibility.
	cache.Insert("frustrated", []ids.PackageId{a, b, c}, map[string]ConflictReason{
		a.String(): ReasonSemver,
		b.String(): ReasonSemver,
		c.String(): ReasonSemver,
	})

	found := cache.FindConflicting("frustrated", fakeActive{active: map[string]bool{
		a.String(): true,
		b.String(): true,
		c.String(): true,
	}})
	require.NotNil(t, found)
}

// TestConflictCachePrunesWithoutWalkingInactiveBranches is scenario S6's
// unit-level counterpart: a trie with many recorded conflict sets, most of
// them irrelevant to the currently active packages, must resolve a lookup
// by descending only through branches "active" reports as active rather
// than visiting every recorded set. A naive re-derivation of each
// conflict (no cache) would cost one resolver backtrack per recorded set.
// This checks that the lookup finds the one matching set among n and
// finds nothing for an unrelated active set; it does not count the
// nodes visited.
func TestConflictCachePrunesWithoutWalkingInactiveBranches(t *testing.T) {
	interner := ids.NewInterner()
	pkgs := ids.NewPackageIdInterner(interner)

	const n = 50
	cache := NewConflictCache()
	var targetA, targetB ids.PackageId
	for i := 0; i < n; i++ {
		a := testPkg(t, pkgs, interner, fmt.Sprintf("a%d", i), "1.0.0")
		b := testPkg(t, pkgs, interner, fmt.Sprintf("b%d", i), "1.0.0")
		cache.Insert("frustrated", []ids.PackageId{a, b}, map[string]ConflictReason{
			a.String(): ReasonLinks,
			b.String(): ReasonLinks,
		})
		if i == n/2 {
			targetA, targetB = a, b
		}
	}

	found := cache.FindConflicting("frustrated", fakeActive{active: map[string]bool{
		targetA.String(): true,
		targetB.String(): true,
	}})
	require.NotNil(t, found)
	require.Equal(t, ReasonLinks, found[targetA.String()])

	// an active set matching none of the n recorded conflicts finds nothing.
	unrelated := testPkg(t, pkgs, interner, "unrelated", "1.0.0")
	none := cache.FindConflicting("frustrated", fakeActive{active: map[string]bool{unrelated.String(): true}})
	require.Nil(t, none)
}
