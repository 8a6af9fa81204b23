package unitgraph

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/duffield-forge/forge/internal/cfgexpr"
	"github.com/duffield-forge/forge/internal/ids"
	"github.com/duffield-forge/forge/internal/manifest"
	"github.com/duffield-forge/forge/internal/profile"
	"github.com/duffield-forge/forge/internal/resolver"
)

// Config is the BuildConfig input lists: the requested
// target triple, host triple, release flag, and job count.
type Config struct {
	HostTriple   string
	TargetTriple string // "" means host == target
	Release      bool
	Jobs         int
}

func (c Config) triple(kind Kind) string {
	if kind == KindHost || c.TargetTriple == "" {
		return c.HostTriple
	}
	return c.TargetTriple
}

func (c Config) profileName(mode CompileMode) string {
	switch mode {
	case ModeTest:
		return "test"
	case ModeBench:
		return "bench"
	case ModeDoc, ModeDoctest:
		return "doc"
	case ModeRunCustomBuild:
		return "custom-build"
	default:
		if c.Release {
			return "release"
		}
		return "dev"
	}
}

// PackageProvider supplies each resolved package's Manifest, the one
// piece of information the Resolve graph itself does not carry.
type PackageProvider interface {
	Manifest(pkg ids.PackageId) (manifest.Manifest, error)
}

// Root is one command-line-selected target to build, the entry point
// step 2 starts traversal from.
type Root struct {
	Package   ids.PackageId
	Target    manifest.Target
	Mode      CompileMode
	Kind      Kind
	CheckTest bool
	DocDeps   bool
}

// Graph is the builder's output: every unit reached from the roots,
// plus its dependency edges.
type Graph struct {
	Units []Unit
	Edges map[string][]Unit // unit key -> its direct dependency units
}

// Builder runs the §4.5 algorithm: recursive compute_deps from the
// selected roots, memoized per unit, followed by the second
// connect_run_custom_build_deps pass.
type Builder struct {
	Resolve  *resolver.Resolve
	Packages PackageProvider
	Profiles *profile.Engine
	Config   Config
	Atoms    map[Kind]cfgexpr.AtomSet
	Log      *logrus.Entry

	byKey     map[string]Unit
	children  map[string][]string
	depsByPkg map[string][]resolver.Edge
}

func New(resolve *resolver.Resolve, packages PackageProvider, profiles *profile.Engine, cfg Config, atoms map[Kind]cfgexpr.AtomSet, log *logrus.Entry) *Builder {
	depsByPkg := make(map[string][]resolver.Edge)
	for _, e := range resolve.Edges {
		depsByPkg[e.From.String()] = append(depsByPkg[e.From.String()], e)
	}
	return &Builder{
		Resolve: resolve, Packages: packages, Profiles: profiles, Config: cfg, Atoms: atoms, Log: log,
		byKey: make(map[string]Unit), children: make(map[string][]string), depsByPkg: depsByPkg,
	}
}

// Build runs compute_deps from every root, memoizing by Unit.Key, then
// the second connect_run_custom_build_deps pass, then forces
// for-host Check units to Build.
func (b *Builder) Build(roots []Root) (*Graph, error) {
	for _, r := range roots {
		u, err := b.unitForVariant(r.Package, r.Target, r.Mode, r.Kind, false, false, r.CheckTest, r.DocDeps)
		if err != nil {
			return nil, err
		}
		if err := b.computeDeps(u, false); err != nil {
			return nil, err
		}
	}

	b.connectRunCustomBuildDeps()

	return b.materialize(), nil
}

// unitFor constructs (and forces Check->Build for host targets per
// step 5) a Unit, resolving its profile via the engine.
func (b *Builder) unitFor(pkg ids.PackageId, target manifest.Target, mode CompileMode, kind Kind, isTestOrBenchDep, isBuildDependency bool) (Unit, error) {
	return b.unitForVariant(pkg, target, mode, kind, isTestOrBenchDep, isBuildDependency, false, false)
}

func (b *Builder) unitForVariant(pkg ids.PackageId, target manifest.Target, mode CompileMode, kind Kind, isTestOrBenchDep, isBuildDependency, checkTest, docDeps bool) (Unit, error) {
	if mode == ModeCheck && target.IsProcMacroOrPlugin() {
		mode = ModeBuild
	}

	man, err := b.Packages.Manifest(pkg)
	if err != nil {
		return Unit{}, err
	}

	req := profile.Request{
		Package:           pkg,
		IsWorkspaceMember: man.IsWorkspaceMember,
		ProfileName:       b.Config.profileName(mode),
		IsRunCustomBuild:  mode == ModeRunCustomBuild,
		IsTestOrBenchDep:  isTestOrBenchDep,
		IsBuildDependency: isBuildDependency,
	}
	prof, err := b.Profiles.Resolve(req)
	if err != nil {
		return Unit{}, err
	}

	u := Unit{Package: pkg, Target: target, Profile: prof, Mode: mode, Kind: kind, CheckTest: checkTest, DocDeps: docDeps}
	if existing, ok := b.byKey[u.Key()]; ok {
		return existing, nil
	}
	b.byKey[u.Key()] = u
	return u, nil
}

// computeDeps implements step 3, memoized on the unit key
// so repeated reachability through diamond dependencies is O(1).
// isBuildDependency carries forward whether u itself sits inside a
// build script's own compile subtree, so every unit reached from here
// picks up [profile.X.build-override] the same way u did.
func (b *Builder) computeDeps(u Unit, isBuildDependency bool) error {
	key := u.Key()
	if _, done := b.children[key]; done {
		return nil
	}
	b.children[key] = nil // mark in-progress to guard against accidental recursion

	man, err := b.Packages.Manifest(u.Package)
	if err != nil {
		return err
	}

	var childKeys []string
	addChild := func(c Unit, childIsBuildDependency bool) error {
		if err := b.computeDeps(c, childIsBuildDependency); err != nil {
			return err
		}
		childKeys = append(childKeys, c.Key())
		return nil
	}

	switch {
	case u.Mode == ModeRunCustomBuild:
		buildTarget, ok := findTarget(man, manifest.TargetCustomBuild)
		if !ok {
			break
		}
		// the build script's own compiled binary, and everything it
		// recurses into below, is a build dependency regardless of
		// whether u itself was reached through one.
		compiled, err := b.unitFor(u.Package, buildTarget, ModeBuild, KindHost, false, true)
		if err != nil {
			return err
		}
		if err := addChild(compiled, true); err != nil {
			return err
		}

	case u.Mode == ModeDoc:
		for _, edge := range b.depsByPkg[u.Package.String()] {
			if !normalDependency(edge) || !b.platformMatches(edge, u.Kind) {
				continue
			}
			depMan, err := b.Packages.Manifest(edge.To)
			if err != nil {
				return err
			}
			lib, ok := depMan.LibTarget()
			if !ok {
				continue
			}
			libUnit, err := b.unitFor(edge.To, lib, ModeBuild, u.Kind, false, isBuildDependency)
			if err != nil {
				return err
			}
			if err := addChild(libUnit, isBuildDependency); err != nil {
				return err
			}
			if u.DocDeps {
				docUnit, err := b.unitForVariant(edge.To, lib, ModeDoc, u.Kind, false, isBuildDependency, false, true)
				if err != nil {
					return err
				}
				if err := addChild(docUnit, isBuildDependency); err != nil {
					return err
				}
			}
		}
		if bs, ok := findTarget(man, manifest.TargetCustomBuild); ok {
			rcb, err := b.unitFor(u.Package, bs, ModeRunCustomBuild, KindHost, false, false)
			if err != nil {
				return err
			}
			if err := addChild(rcb, false); err != nil {
				return err
			}
		}
		if u.Target.Kind == manifest.TargetBin {
			if lib, ok := man.LibTarget(); ok {
				libUnit, err := b.unitFor(u.Package, lib, ModeBuild, u.Kind, false, isBuildDependency)
				if err != nil {
					return err
				}
				if err := addChild(libUnit, isBuildDependency); err != nil {
					return err
				}
			}
		}

	default:
		isTestMode := u.Mode == ModeTest || u.Mode == ModeBench
		for _, edge := range b.depsByPkg[u.Package.String()] {
			if !b.platformMatches(edge, u.Kind) {
				continue
			}
			if !dependencyTransitiveOrTestContext(edge, u.Target, isTestMode) {
				continue
			}
			depMan, err := b.Packages.Manifest(edge.To)
			if err != nil {
				return err
			}
			lib, ok := depMan.LibTarget()
			if !ok {
				continue
			}
			childMode := ModeBuild
			childKind := u.Kind
			if lib.IsProcMacroOrPlugin() {
				childKind = KindHost
			}
			if u.Mode == ModeCheck && !lib.IsProcMacroOrPlugin() {
				childMode = ModeCheck
			}
			childUnit, err := b.unitFor(edge.To, lib, childMode, childKind, isTestMode, isBuildDependency)
			if err != nil {
				return err
			}
			if err := addChild(childUnit, isBuildDependency); err != nil {
				return err
			}
		}

		if bs, ok := findTarget(man, manifest.TargetCustomBuild); ok {
			rcb, err := b.unitFor(u.Package, bs, ModeRunCustomBuild, KindHost, isTestMode, false)
			if err != nil {
				return err
			}
			if err := addChild(rcb, false); err != nil {
				return err
			}
		}

		if u.Target.Kind == manifest.TargetBin || u.Target.Kind == manifest.TargetTest ||
			u.Target.Kind == manifest.TargetBench || u.Target.Kind == manifest.TargetExample {
			if lib, ok := man.LibTarget(); ok {
				libMode := ModeBuild
				if u.Mode == ModeCheck && !lib.IsProcMacroOrPlugin() {
					libMode = ModeCheck
				}
				libUnit, err := b.unitFor(u.Package, lib, libMode, u.Kind, isTestMode, isBuildDependency)
				if err != nil {
					return err
				}
				if err := addChild(libUnit, isBuildDependency); err != nil {
					return err
				}
			}
		}

		if isTestMode && (u.Target.Kind == manifest.TargetTest || u.Target.Kind == manifest.TargetBench) {
			activated := b.Resolve.ActivatedFeatures[u.Package.String()]
			for _, bin := range man.TargetsOfKind(manifest.TargetBin) {
				if !allFeaturesActivated(bin.RequiredFeatures, activated) {
					continue
				}
				binUnit, err := b.unitFor(u.Package, bin, ModeBuild, u.Kind, isTestMode, isBuildDependency)
				if err != nil {
					return err
				}
				if err := addChild(binUnit, isBuildDependency); err != nil {
					return err
				}
			}
		}
	}

	b.children[key] = childKeys
	return nil
}

func findTarget(man manifest.Manifest, kind manifest.TargetKind) (manifest.Target, bool) {
	for _, t := range man.Targets {
		if t.Kind == kind {
			return t, true
		}
	}
	return manifest.Target{}, false
}

func normalDependency(e resolver.Edge) bool {
	for _, d := range e.Via {
		if d.Kind == manifest.KindNormal {
			return true
		}
	}
	return false
}

// dependencyTransitiveOrTestContext implements step 3's
// dependency filter: "is-transitive or parent is test/example/bench/
// test-mode".
func dependencyTransitiveOrTestContext(e resolver.Edge, parentTarget manifest.Target, isTestMode bool) bool {
	isTestContext := isTestMode ||
		parentTarget.Kind == manifest.TargetTest ||
		parentTarget.Kind == manifest.TargetExample ||
		parentTarget.Kind == manifest.TargetBench
	for _, d := range e.Via {
		if d.Kind == manifest.KindNormal || d.Kind == manifest.KindBuild {
			return true
		}
		if d.Kind == manifest.KindDev && isTestContext {
			return true
		}
	}
	return false
}

func (b *Builder) platformMatches(e resolver.Edge, kind Kind) bool {
	atoms := b.Atoms[kind]
	triple := b.Config.triple(kind)
	for _, d := range e.Via {
		if d.Platform.Matches(triple, atoms) {
			return true
		}
	}
	return len(e.Via) == 0
}

func allFeaturesActivated(required, activated []string) bool {
	set := make(map[string]bool, len(activated))
	for _, f := range activated {
		set[f] = true
	}
	for _, f := range required {
		if !set[f] {
			return false
		}
	}
	return true
}

// connectRunCustomBuildDeps is step 4's second pass: every
// RunCustomBuild unit gets an edge to the RunCustomBuild units of its
// parents' other linkable, links-declaring dependencies, so native
// libraries link before their consumers build.
func (b *Builder) connectRunCustomBuildDeps() {
	parentsOf := make(map[string][]string) // child key -> parent keys
	for parentKey, childKeys := range b.children {
		for _, ck := range childKeys {
			parentsOf[ck] = append(parentsOf[ck], parentKey)
		}
	}

	linksOwner := make(map[string]string) // links name -> RunCustomBuild unit key
	for key, u := range b.byKey {
		if u.Mode != ModeRunCustomBuild {
			continue
		}
		man, err := b.Packages.Manifest(u.Package)
		if err != nil || man.Summary.Links == "" {
			continue
		}
		linksOwner[man.Summary.Links] = key
	}

	for key, u := range b.byKey {
		if u.Mode != ModeRunCustomBuild {
			continue
		}
		for _, parentKey := range parentsOf[key] {
			for _, siblingKey := range b.children[parentKey] {
				if siblingKey == key {
					continue
				}
				sibling, ok := b.byKey[siblingKey]
				if !ok || sibling.Package.Equal(u.Package) {
					continue
				}
				man, err := b.Packages.Manifest(sibling.Package)
				if err != nil || man.Summary.Links == "" {
					continue
				}
				if rcbKey, ok := linksOwner[man.Summary.Links]; ok && rcbKey != key {
					b.children[key] = appendUnique(b.children[key], rcbKey)
				}
			}
		}
	}
}

func appendUnique(list []string, key string) []string {
	for _, k := range list {
		if k == key {
			return list
		}
	}
	return append(list, key)
}

// materialize flattens the memoized unit/edge maps into a
// deterministically ordered Graph.
func (b *Builder) materialize() *Graph {
	keys := make([]string, 0, len(b.byKey))
	for k := range b.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	units := make([]Unit, 0, len(keys))
	edges := make(map[string][]Unit, len(keys))
	for _, k := range keys {
		u := b.byKey[k]
		units = append(units, u)
		childKeys := append([]string{}, b.children[k]...)
		sort.Strings(childKeys)
		for _, ck := range childKeys {
			edges[k] = append(edges[k], b.byKey[ck])
		}
	}

	return &Graph{Units: units, Edges: edges}
}
