package resolver

import (
	"github.com/duffield-forge/forge/internal/ids"
	"github.com/duffield-forge/forge/internal/manifest"
)

// edgeCons is a cons-list of resolved dependency edges. Cloning a
// Context on every backtracking branch must be O(1); a cons-list
// clone is just copying the head pointer.
type edgeCons struct {
	from, to ids.PackageId
	viaDeps  []manifest.Dependency
	prev     *edgeCons
}

// replaceCons is the same persistent-list shape for the [patch]-style
// replacement record calls out alongside the edge list.
type replaceCons struct {
	original    ids.PackageId
	replacement ids.PackageId
	prev        *replaceCons
}

// Context is the resolver's in-progress search state. It is cloned by value on every branch; the two list fields
// are persistent so that clone stays O(1) even though activations and
// the links map are copied (those two are typically small compared to
// the total search tree, and cargo's own resolver makes the same
// trade-off).
type Context struct {
	// activations: (name, source) -> ordered list of Summaries accepted
	// so far. Keyed by a string because ids.SourceId isn't a valid map
	// key type across interners in tests; production code always draws
	// from one interner so the string form is stable within a run.
	activations map[string][]manifest.Summary

	// activatedFeatures: PackageId.String() -> set of activated feature names.
	activatedFeatures map[string]map[string]bool

	// links: native-library name -> the PackageId that claims it.
	links map[string]ids.PackageId

	edges   *edgeCons
	replace *replaceCons
}

func NewContext() *Context {
	return &Context{
		activations:       make(map[string][]manifest.Summary),
		activatedFeatures: make(map[string]map[string]bool),
		links:             make(map[string]ids.PackageId),
	}
}

// Clone returns a new Context sharing the persistent list tails but
// with its own copies of the (small, frequently mutated) maps, so a
// backtrack can simply discard the clone without undoing mutations on
// the parent.
func (c *Context) Clone() *Context {
	activations := make(map[string][]manifest.Summary, len(c.activations))
	for k, v := range c.activations {
		cp := make([]manifest.Summary, len(v))
		copy(cp, v)
		activations[k] = cp
	}
	features := make(map[string]map[string]bool, len(c.activatedFeatures))
	for k, v := range c.activatedFeatures {
		cp := make(map[string]bool, len(v))
		for f := range v {
			cp[f] = true
		}
		features[k] = cp
	}
	links := make(map[string]ids.PackageId, len(c.links))
	for k, v := range c.links {
		links[k] = v
	}
	return &Context{
		activations:       activations,
		activatedFeatures: features,
		links:             links,
		edges:             c.edges,
		replace:           c.replace,
	}
}

func activationKey(name string, src ids.SourceId) string {
	return name + "@" + src.String()
}

// IsActiveString implements ActiveChecker for the conflict cache.
func (c *Context) IsActiveString(key string) bool {
	for _, list := range c.activations {
		for _, s := range list {
			if s.PackageId.String() == key {
				return true
			}
		}
	}
	return false
}

// AlreadyActivated reports whether the exact summary (same PackageId)
// is already in the activation set for its (name, source) — step 4's
// "if the same exact Summary is already activated, succeed without
// re-expansion".
func (c *Context) AlreadyActivated(s manifest.Summary) bool {
	key := activationKey(s.PackageId.Name(), s.PackageId.Source())
	for _, existing := range c.activations[key] {
		if existing.PackageId.Equal(s.PackageId) {
			return true
		}
	}
	return false
}

// Activate records s as activated and returns a conflict if doing so
// violates the links-uniqueness invariant.
func (c *Context) Activate(s manifest.Summary) *LinksConflict {
	key := activationKey(s.PackageId.Name(), s.PackageId.Source())
	c.activations[key] = append(c.activations[key], s)

	if s.Links != "" {
		if existing, ok := c.links[s.Links]; ok && !existing.Equal(s.PackageId) {
			return &LinksConflict{Links: s.Links, First: existing, Second: s.PackageId}
		}
		c.links[s.Links] = s.PackageId
	}
	return nil
}

// LinksConflict is returned when two distinct PackageIds claim the
// same `links` name.
type LinksConflict struct {
	Links         string
	First, Second ids.PackageId
}

func (e *LinksConflict) Error() string {
	return "resolver: both " + e.First.String() + " and " + e.Second.String() + " declare links = \"" + e.Links + "\""
}

// ActivateFeature records name as activated for pkg's feature set and
// reports whether this is a new activation (so callers only re-walk a
// feature's forwarding graph once).
func (c *Context) ActivateFeature(pkg ids.PackageId, name string) (isNew bool) {
	key := pkg.String()
	set, ok := c.activatedFeatures[key]
	if !ok {
		set = make(map[string]bool)
		c.activatedFeatures[key] = set
	}
	if set[name] {
		return false
	}
	set[name] = true
	return true
}

func (c *Context) ActivatedFeatures(pkg ids.PackageId) []string {
	set := c.activatedFeatures[pkg.String()]
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	return out
}

// RecordEdge appends a resolved dependency edge to the persistent edge
// list.
func (c *Context) RecordEdge(from, to ids.PackageId, via []manifest.Dependency) {
	c.edges = &edgeCons{from: from, to: to, viaDeps: via, prev: c.edges}
}

// RecordReplacement appends a patch/replace record.
func (c *Context) RecordReplacement(original, replacement ids.PackageId) {
	c.replace = &replaceCons{original: original, replacement: replacement, prev: c.replace}
}

// Edges flattens the persistent edge list into a slice, oldest first.
func (c *Context) Edges() []Edge {
	var rev []Edge
	for e := c.edges; e != nil; e = e.prev {
		rev = append(rev, Edge{From: e.from, To: e.to, Via: e.viaDeps})
	}
	out := make([]Edge, len(rev))
	for i, e := range rev {
		out[len(rev)-1-i] = e
	}
	return out
}

// Edge is one resolved dependency edge in the output Resolve graph.
type Edge struct {
	From, To ids.PackageId
	Via      []manifest.Dependency
}

func (c *Context) Replacements() map[ids.PackageId]ids.PackageId {
	out := make(map[ids.PackageId]ids.PackageId)
	for r := c.replace; r != nil; r = r.prev {
		if _, already := out[r.original]; !already {
			out[r.original] = r.replacement
		}
	}
	return out
}
