package resolver

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/duffield-forge/forge/internal/cfgexpr"
	"github.com/duffield-forge/forge/internal/forgeerr"
	"github.com/duffield-forge/forge/internal/ids"
	"github.com/duffield-forge/forge/internal/manifest"
	"github.com/duffield-forge/forge/internal/source"
)

// Mode controls how aggressively resolution is allowed to deviate from
// an input lockfile.
type Mode int

const (
	ModeNormal Mode = iota
	ModeLocked
	ModeFrozen // Run applies the same lockfile check as ModeLocked; source I/O is not restricted
)

// Root is one user-selected package to resolve, together with the
// feature-activation Method calls for.
type Root struct {
	Summary manifest.Summary
	Method  Method
}

// Options configures one resolution run.
type Options struct {
	Mode Mode
	// Locked is the set of PackageIds pinned by an input lockfile,
	// keyed by name, preferred over any other candidate of the same
	// name per tie-break (a).
	Locked map[string]ids.PackageId
	// LockedPrecise additionally pins a package by its exact
	// (possibly-yanked) PackageId; only such explicitly pinned yanked
	// versions are eligible at all.
	LockedPrecise map[string]bool
	// Replacements implements the §3/SUPPLEMENTED [patch]-style
	// mechanism: a dependency name matching a key here is resolved
	// straight to the exact PackageId given, drawn from whatever
	// source that PackageId belongs to, instead of from its normal
	// source. Typically populated from the root manifest's own
	// Manifest.Replacements.
	Replacements map[string]ids.PackageId
	// Triple and Atoms describe the compilation target used to filter
	// platform-restricted dependencies.
	Triple string
	Atoms  cfgexpr.AtomSet
	Log    *logrus.Entry
}

// Sources resolves an as-yet-unpinned dependency to the Source
// capability that should answer candidate queries for it. A caller
// wires in registry overrides and path/git sources behind this one
// seam.
type Sources interface {
	ForDependency(dep manifest.Dependency) (source.Source, error)

	// ForSource answers the Source capability that owns id, used to
	// query a [patch]-style replacement's own source once
	// Options.Replacements names which exact PackageId a dependency is
	// pinned to.
	ForSource(id ids.SourceId) (source.Source, error)
}

// Warning is a structured, non-fatal diagnostic "Outputs"
// calls for: missing features, lockfile mismatches, yanked entries.
type Warning struct {
	Message string
}

// Resolve is the resolver's output: the pinned dependency graph, the
// activated feature set per package, checksums, and the patch/replace
// map.
type Resolve struct {
	Edges             []Edge
	ActivatedFeatures map[string][]string // PackageId.String() -> sorted feature names
	Checksums         map[string]string   // PackageId.String() -> checksum
	Replacements      map[ids.PackageId]ids.PackageId
}

// Resolver runs the backtracking algorithm of §4.3: frontier expansion,
// feature resolution, links-conflict detection, and conflict-cache-guided
// backtracking.
type Resolver struct {
	sources Sources
	cache   *ConflictCache
	log     *logrus.Entry

	activationAttempts int
}

func New(sources Sources, log *logrus.Entry) *Resolver {
	return &Resolver{sources: sources, cache: NewConflictCache(), log: log}
}

// ActivationAttempts returns how many candidate activations this
// resolver instance has performed, the metric scenario S6
// bounds via the conflict cache.
func (r *Resolver) ActivationAttempts() int { return r.activationAttempts }

type pendingDep struct {
	parent        ids.PackageId
	hasParent     bool
	dep           manifest.Dependency
	extraFeatures []string
	useDefault    bool
	// depth from the root, used only for diagnostics
	path []ids.PackageId
}

// Run resolves roots against opts, returning the pinned graph plus any
// warnings.
func (r *Resolver) Run(roots []Root, opts Options) (*Resolve, []Warning, error) {
	ctx := NewContext()
	var warnings []Warning

	var work []pendingDep
	for _, root := range roots {
		if conflict := ctx.Activate(root.Summary); conflict != nil {
			return nil, nil, forgeerr.Wrap(forgeerr.KindResolution, "activating root "+root.Summary.PackageId.String(), conflict)
		}
		plan, err := resolveFeatures(root.Summary, root.Method)
		if err != nil {
			return nil, nil, forgeerr.Wrap(forgeerr.KindResolution, "resolving features for "+root.Summary.PackageId.String(), err)
		}
		for _, name := range plan.sortedOwnFeatures() {
			ctx.ActivateFeature(root.Summary.PackageId, name)
		}
		if err := verifyRequestedFeaturesExist(root.Summary, root.Method, nil); err != nil {
			return nil, nil, forgeerr.Wrap(forgeerr.KindResolution, "verifying requested features for "+root.Summary.PackageId.String(), err)
		}
		for _, dep := range root.Summary.DependsOn {
			if !r.includeDependency(dep, plan, root.Method, opts, true) {
				continue
			}
			work = append(work, pendingDep{
				parent: root.Summary.PackageId, hasParent: true, dep: dep,
				extraFeatures: plan.forwardedFeaturesFor(dep),
				useDefault:    dep.DefaultFeatures,
			})
		}
	}

	if err := r.resolveWorklist(ctx, work, opts, &warnings); err != nil {
		return nil, nil, forgeerr.Wrap(forgeerr.KindResolution, "resolving dependency graph", err)
	}

	return r.materialize(ctx), dedupeWarnings(warnings), nil
}

func (p featurePlan) sortedOwnFeatures() []string {
	out := make([]string, 0, len(p.ownFeatures))
	for f := range p.ownFeatures {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// includeDependency applies step 4's inclusion filter: the
// platform predicate must match, the dependency must not be a disabled
// optional, and it must be transitive (normal/build) or the parent
// context allows dev-dependencies.
func (r *Resolver) includeDependency(dep manifest.Dependency, plan featurePlan, method Method, opts Options, isRoot bool) bool {
	if !dep.Platform.Matches(opts.Triple, opts.Atoms) {
		return false
	}
	if !plan.dependencyEnabled(dep) {
		return false
	}
	if dep.Kind == manifest.KindDev && !isRoot && !method.IncludesDevDeps {
		return false
	}
	return true
}

// resolveWorklist expands pending dependencies in deterministic order,
// always choosing the frontier item with the fewest remaining
// candidates first. On
// failure it backtracks and consults/populates the conflict cache
// (step 7).
func (r *Resolver) resolveWorklist(ctx *Context, work []pendingDep, opts Options, warnings *[]Warning) error {
	if len(work) == 0 {
		return nil
	}

	type frame struct {
		pd               pendingDep
		candidates       []manifest.Summary
		replacedOriginal ids.PackageId // zero unless opts.Replacements applied to this dep
	}

	frames := make([]frame, 0, len(work))
	for _, pd := range work {
		candidates, replaced, w, err := r.candidatesFor(pd, opts)
		if err != nil {
			return err
		}
		*warnings = append(*warnings, w...)
		if conflict := r.cache.FindConflicting(pd.dep.Name, ctx); conflict != nil {
			return fmt.Errorf("resolver: no version of %q satisfies constraints; previously proven impossible by conflict cache", pd.dep.Name)
		}
		frames = append(frames, frame{pd: pd, candidates: candidates, replacedOriginal: replaced})
	}

	sort.SliceStable(frames, func(i, j int) bool { return len(frames[i].candidates) < len(frames[j].candidates) })

	chosen := frames[0]
	rest := make([]pendingDep, 0, len(frames)-1)
	for _, f := range frames[1:] {
		rest = append(rest, f.pd)
	}

	if len(chosen.candidates) == 0 {
		return &NoMatchingVersionError{Dependency: chosen.pd.dep, Path: chosen.pd.path}
	}

	var lastErr error
	for _, candidate := range chosen.candidates {
		r.activationAttempts++
		branch := ctx.Clone()

		if branch.AlreadyActivated(candidate) {
			branch.RecordEdge(parentOf(chosen.pd), candidate.PackageId, []manifest.Dependency{chosen.pd.dep})
			if !chosen.replacedOriginal.IsZero() {
				branch.RecordReplacement(chosen.replacedOriginal, candidate.PackageId)
			}
			if err := r.resolveWorklist(branch, rest, opts, warnings); err == nil {
				*ctx = *branch
				return nil
			} else {
				lastErr = err
				continue
			}
		}

		if conflict := branch.Activate(candidate); conflict != nil {
			lastErr = conflict
			r.recordConflict(chosen.pd.dep.Name, []ids.PackageId{conflict.First, conflict.Second}, map[string]ConflictReason{
				conflict.First.String():  ReasonLinks,
				conflict.Second.String(): ReasonLinks,
			})
			continue
		}
		branch.RecordEdge(parentOf(chosen.pd), candidate.PackageId, []manifest.Dependency{chosen.pd.dep})
		if !chosen.replacedOriginal.IsZero() {
			branch.RecordReplacement(chosen.replacedOriginal, candidate.PackageId)
		}

		method := Method{Features: chosen.pd.extraFeatures, UsesDefault: chosen.pd.useDefault}
		plan, err := resolveFeatures(candidate, method)
		if err != nil {
			lastErr = err
			continue
		}
		if err := verifyRequestedFeaturesExist(candidate, method, chosen.pd.path); err != nil {
			lastErr = err
			continue
		}
		for _, name := range plan.sortedOwnFeatures() {
			branch.ActivateFeature(candidate.PackageId, name)
		}

		childWork := make([]pendingDep, 0, len(candidate.DependsOn))
		for _, dep := range candidate.DependsOn {
			if !r.includeDependency(dep, plan, method, opts, false) {
				continue
			}
			childWork = append(childWork, pendingDep{
				parent: candidate.PackageId, hasParent: true, dep: dep,
				extraFeatures: plan.forwardedFeaturesFor(dep),
				useDefault:    dep.DefaultFeatures,
				path:          append(append([]ids.PackageId{}, chosen.pd.path...), candidate.PackageId),
			})
		}

		if err := r.resolveWorklist(branch, append(childWork, rest...), opts, warnings); err != nil {
			lastErr = err
			continue
		}

		*ctx = *branch
		return nil
	}

	if lastErr == nil {
		lastErr = &NoMatchingVersionError{Dependency: chosen.pd.dep, Path: chosen.pd.path}
	}
	r.recordConflict(chosen.pd.dep.Name, activePackageIds(ctx), map[string]ConflictReason{})
	return lastErr
}

func parentOf(pd pendingDep) ids.PackageId {
	return pd.parent
}

func activePackageIds(ctx *Context) []ids.PackageId {
	var out []ids.PackageId
	for _, list := range ctx.activations {
		for _, s := range list {
			out = append(out, s.PackageId)
		}
	}
	return out
}

func (r *Resolver) recordConflict(depName string, set []ids.PackageId, reasons map[string]ConflictReason) {
	if len(reasons) == 0 {
		reasons = make(map[string]ConflictReason, len(set))
		for _, p := range set {
			reasons[p.String()] = ReasonSemver
		}
	}
	r.cache.Insert(depName, set, reasons)
}

// candidatesFor queries pd's source for matching summaries and orders
// them per tie-break rules: (a) previously locked version
// first, (b) higher semver, (c) lexicographic source ordering. Yanked
// versions are excluded unless explicitly pinned. When opts.Replacements
// pins this dependency's name to an exact PackageId (the §3/SUPPLEMENTED
// [patch]-style mechanism), the normal candidate set is still computed
// (a replacement requires the original requirement be satisfiable) but
// the winning candidate is swapped for the replacement, and the original
// winner is returned alongside so the caller can record the substitution.
func (r *Resolver) candidatesFor(pd pendingDep, opts Options) ([]manifest.Summary, ids.PackageId, []Warning, error) {
	src, err := r.resolveSourceFor(pd.dep, opts)
	if err != nil {
		return nil, ids.PackageId{}, nil, err
	}
	all, err := src.Query(pd.dep)
	if err != nil {
		return nil, ids.PackageId{}, nil, err
	}

	var warnings []Warning
	filtered := all[:0:0]
	for _, s := range all {
		if s.Yanked {
			pinned := opts.LockedPrecise != nil && opts.LockedPrecise[s.PackageId.String()]
			if !pinned {
				continue
			}
			warnings = append(warnings, Warning{Message: fmt.Sprintf("using yanked version %s (explicitly pinned)", s.PackageId)})
		}
		filtered = append(filtered, s)
	}

	locked, hasLocked := opts.Locked[pd.dep.Name]
	if opts.Mode != ModeNormal && !hasLocked {
		return nil, ids.PackageId{}, nil, fmt.Errorf("resolver: --locked/--frozen requires %q to already be in the lockfile", pd.dep.Name)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if hasLocked {
			li, lj := filtered[i].PackageId.Equal(locked), filtered[j].PackageId.Equal(locked)
			if li != lj {
				return li
			}
		}
		if cmp := filtered[i].PackageId.Version().Compare(filtered[j].PackageId.Version()); cmp != 0 {
			return cmp > 0 // newest first
		}
		return filtered[i].PackageId.Source().URL() < filtered[j].PackageId.Source().URL()
	})

	if replacement, ok := opts.Replacements[pd.dep.Name]; ok {
		if len(filtered) == 0 {
			return nil, ids.PackageId{}, nil, &NoMatchingVersionError{Dependency: pd.dep, Path: pd.path}
		}
		replaced, err := r.applyReplacement(pd.dep, replacement)
		if err != nil {
			return nil, ids.PackageId{}, nil, err
		}
		return []manifest.Summary{replaced}, filtered[0].PackageId, warnings, nil
	}

	return filtered, ids.PackageId{}, warnings, nil
}

func (r *Resolver) resolveSourceFor(dep manifest.Dependency, opts Options) (source.Source, error) {
	return r.sources.ForDependency(dep)
}

// applyReplacement resolves the exact Summary a [patch]-style
// replacement PackageId refers to, by querying the replacement's own
// source for dep's name and picking the matching candidate.
func (r *Resolver) applyReplacement(dep manifest.Dependency, replacement ids.PackageId) (manifest.Summary, error) {
	replSrc, err := r.sources.ForSource(replacement.Source())
	if err != nil {
		return manifest.Summary{}, err
	}
	candidates, err := replSrc.Query(dep)
	if err != nil {
		return manifest.Summary{}, err
	}
	for _, s := range candidates {
		if s.PackageId.Equal(replacement) {
			return s, nil
		}
	}
	return manifest.Summary{}, fmt.Errorf("resolver: replacement source %s has no package matching %s", replacement.Source(), replacement)
}

func (r *Resolver) materialize(ctx *Context) *Resolve {
	features := make(map[string][]string)
	for _, list := range ctx.activations {
		for _, s := range list {
			key := s.PackageId.String()
			fs := ctx.ActivatedFeatures(s.PackageId)
			sort.Strings(fs)
			features[key] = fs
		}
	}
	checksums := make(map[string]string)
	for _, list := range ctx.activations {
		for _, s := range list {
			if s.Checksum != "" {
				checksums[s.PackageId.String()] = s.Checksum
			}
		}
	}
	return &Resolve{
		Edges:             ctx.Edges(),
		ActivatedFeatures: features,
		Checksums:         checksums,
		Replacements:      ctx.Replacements(),
	}
}

func dedupeWarnings(in []Warning) []Warning {
	seen := make(map[string]bool, len(in))
	out := make([]Warning, 0, len(in))
	for _, w := range in {
		if seen[w.Message] {
			continue
		}
		seen[w.Message] = true
		out = append(out, w)
	}
	return out
}

// NoMatchingVersionError is "no version matches" resolution
// error.
type NoMatchingVersionError struct {
	Dependency manifest.Dependency
	Path       []ids.PackageId
}

func (e *NoMatchingVersionError) Error() string {
	msg := fmt.Sprintf("resolver: no version of %q matches requirement %q", e.Dependency.Name, e.Dependency.Req)
	for _, p := range e.Path {
		msg += fmt.Sprintf("\n  required by %s", p)
	}
	return msg
}
