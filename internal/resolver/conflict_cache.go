// Package resolver implements the backtracking constraint solver that
// selects one concrete version per (package name, source) such that
// version requirements, platform filters, feature activations, and
// `links` uniqueness are all satisfied.
package resolver

import (
	"github.com/duffield-forge/forge/internal/ids"
)

// ConflictReason classifies why a particular activation set was
// rejected: semver, missing-feature, links, platform, or yanked.
type ConflictReason int

const (
	ReasonSemver ConflictReason = iota
	ReasonMissingFeature
	ReasonLinks
	ReasonPlatform
	ReasonYanked
)

// conflictNode is either a leaf holding the conflict reasons for one
// recorded impossible set, or an internal node keyed by one of that
// set's PackageIds: a trie over conflict sets that lets lookup skip
// straight past packages that are not currently active.
type conflictNode struct {
	leaf map[string]ConflictReason // PackageId.String() -> reason; non-nil only on a leaf
	next map[string]*conflictNode  // PackageId.String() -> child; non-nil only on an internal node
}

// ConflictCache is the trie of recorded conflicts; insertion is
// monotonic (entries are never removed) and lookup is independent of
// how resolution reached the current activation state.
type ConflictCache struct {
	// one trie root per frustrating dependency name, since a conflict
	// set is only relevant when that dependency is the one currently
	// being expanded.
	roots map[string]*conflictNode
}

func NewConflictCache() *ConflictCache {
	return &ConflictCache{roots: make(map[string]*conflictNode)}
}

// Insert records that the given set of PackageIds, taken together,
// makes depName unsatisfiable, with reasons explaining each
// contributing package's role.
func (c *ConflictCache) Insert(depName string, set []ids.PackageId, reasons map[string]ConflictReason) {
	root, ok := c.roots[depName]
	if !ok {
		root = &conflictNode{next: make(map[string]*conflictNode)}
		c.roots[depName] = root
	}
	insertInto(root, set, reasons)
}

func insertInto(node *conflictNode, remaining []ids.PackageId, reasons map[string]ConflictReason) {
	if len(remaining) == 0 {
		node.leaf = reasons
		node.next = nil
		return
	}
	if node.leaf != nil {
		// a subset (a prefix of this set) was already recorded as a leaf
		// here; the superset being inserted is equally damning, so leave
		// it as-is.
		return
	}
	key := remaining[0].String()
	child, ok := node.next[key]
	if !ok {
		child = &conflictNode{next: make(map[string]*conflictNode)}
		node.next[key] = child
	}
	insertInto(child, remaining[1:], reasons)
}

// ActiveChecker reports whether a PackageId (identified by its string
// form, so the cache has no dependency on which interner produced a
// given run's PackageIds) is currently active in the resolver's
// in-progress Context, used to prune the trie walk.
type ActiveChecker interface {
	IsActiveString(key string) bool
}

// FindConflicting walks the trie under depName's root, descending only
// through PackageIds active reports as active, and returns the first
// reachable leaf — a proven-impossible activation set — if any. A
// non-nil result means the caller must backtrack without even trying
// to expand depName further.
func (c *ConflictCache) FindConflicting(depName string, active ActiveChecker) map[string]ConflictReason {
	root, ok := c.roots[depName]
	if !ok {
		return nil
	}
	return findConflicting(root, active)
}

func findConflicting(node *conflictNode, active ActiveChecker) map[string]ConflictReason {
	if node.leaf != nil {
		return node.leaf
	}
	for key, child := range node.next {
		if !active.IsActiveString(key) {
			continue
		}
		if found := findConflicting(child, active); found != nil {
			return found
		}
	}
	return nil
}
