// Package app wires the core subsystems (resolver, profile engine,
// unit-graph builder, fingerprint engine, job queue, layout) into one
// build invocation: NewApp sets up the logger and interning tables from
// an AppConfig; Build constructs the subsystems and drives a single
// build to completion.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/mgutz/str"
	"github.com/sirupsen/logrus"

	"github.com/duffield-forge/forge/internal/cfgexpr"
	"github.com/duffield-forge/forge/internal/forgeerr"
	"github.com/duffield-forge/forge/internal/fingerprint"
	"github.com/duffield-forge/forge/internal/ids"
	"github.com/duffield-forge/forge/internal/jobqueue"
	"github.com/duffield-forge/forge/internal/layout"
	"github.com/duffield-forge/forge/internal/lockfile"
	"github.com/duffield-forge/forge/internal/manifest"
	"github.com/duffield-forge/forge/internal/profile"
	"github.com/duffield-forge/forge/internal/resolver"
	"github.com/duffield-forge/forge/internal/source"
	"github.com/duffield-forge/forge/internal/unitgraph"

	"github.com/duffield-forge/forge/pkg/config"
	"github.com/duffield-forge/forge/pkg/log"
)

// App bundles one invocation's worth of core state. closers collects
// anything NewApp opens that Close must release.
type App struct {
	closers []io.Closer

	Config *config.AppConfig
	Log    *logrus.Entry

	sourceInterner  *ids.Interner
	packageInterner *ids.PackageIdInterner
}

// NewApp bootstraps the shared state for one invocation: the logger and
// the process-wide interning tables.
func NewApp(cfg *config.AppConfig) (*App, error) {
	sourceInterner := ids.NewInterner()
	a := &App{
		Config:          cfg,
		Log:             log.NewLogger(cfg),
		sourceInterner:  sourceInterner,
		packageInterner: ids.NewPackageIdInterner(sourceInterner),
	}
	return a, nil
}

// Close releases any resources NewApp opened.
func (a *App) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// RootPackage describes the single local-path package cmd/forge's demo
// builds; a real front end would instead hand in every member of a
// workspace after parsing their manifests, which is out of core scope.
type RootPackage struct {
	Name       string
	Version    string
	Dir        string
	Manifest   manifest.Manifest
	TargetName string // which Target to build; "" picks the lib if present, else the first bin
}

// BuildResult summarizes one Build invocation for the CLI layer.
type BuildResult struct {
	Resolve  *resolver.Resolve
	Graph    *unitgraph.Graph
	Warnings []resolver.Warning
	Fresh    int
	Rebuilt  int
}

// fixedPackageProvider answers unitgraph.PackageProvider from a single
// in-memory manifest set, standing in for the real registry-backed
// provider a front end would supply.
type fixedPackageProvider struct {
	byPkg map[string]manifest.Manifest
}

func (p fixedPackageProvider) Manifest(pkg ids.PackageId) (manifest.Manifest, error) {
	m, ok := p.byPkg[pkg.String()]
	if !ok {
		return manifest.Manifest{}, forgeerr.New(forgeerr.KindInternal, "no manifest known for "+pkg.String())
	}
	return m, nil
}

// Build runs the full pipeline end to end: resolve the root's
// dependency graph, lower it into units, fingerprint each unit, and
// execute whatever is dirty through the job queue. This is the thin
// demo cmd/forge exists to drive; a real front end would supply many
// roots across a workspace instead of exactly one.
func (a *App) Build(ctx context.Context, root RootPackage, jobs int, release bool, ccCommand string) (*BuildResult, error) {
	sourceID := a.sourceInterner.Path(root.Dir)
	version, err := semver.NewVersion(root.Version)
	if err != nil {
		return nil, forgeerr.Wrap(forgeerr.KindManifest, "parsing root package version", err)
	}
	pkgID, err := a.packageInterner.Intern(root.Name, version, sourceID)
	if err != nil {
		return nil, forgeerr.Wrap(forgeerr.KindManifest, "interning root package", err)
	}
	root.Manifest.Summary.PackageId = pkgID

	pathSrc := source.NewPathSource(sourceID, root.Dir, root.Manifest)
	sources := fixedSources{fallback: pathSrc}

	res := resolver.New(sources, a.Log)
	resolveResult, warnings, err := res.Run(
		[]resolver.Root{{Summary: root.Manifest.Summary, Method: resolver.Method{UsesDefault: true}}},
		resolver.Options{
			Mode:         resolver.ModeNormal,
			Triple:       hostTriple(),
			Atoms:        defaultAtoms(),
			Log:          a.Log,
			Replacements: root.Manifest.Replacements,
		},
	)
	if err != nil {
		return nil, err
	}

	lockOut := lockfile.FromResolve(resolveResult, map[string]string{"version": "1"})
	lockBytes, err := lockfile.Encode(lockOut)
	if err != nil {
		return nil, forgeerr.Wrap(forgeerr.KindInternal, "encoding lockfile", err)
	}
	if err := os.MkdirAll(root.Dir, 0o755); err == nil {
		_ = os.WriteFile(filepath.Join(root.Dir, "forge.lock"), lockBytes, 0o644)
	}

	profiles := profile.NewEngine(root.Manifest.Profiles)
	packages := fixedPackageProvider{byPkg: map[string]manifest.Manifest{pkgID.String(): root.Manifest}}

	buildTarget, ok := pickTarget(root.Manifest, root.TargetName)
	if !ok {
		return nil, forgeerr.New(forgeerr.KindManifest, "root package has no buildable target")
	}

	builder := unitgraph.New(resolveResult, packages, profiles, unitgraph.Config{
		HostTriple: hostTriple(),
		Release:    release,
		Jobs:       jobs,
	}, map[unitgraph.Kind]cfgexpr.AtomSet{
		unitgraph.KindHost:   defaultAtoms(),
		unitgraph.KindTarget: defaultAtoms(),
	}, a.Log)

	graph, err := builder.Build([]unitgraph.Root{{Package: pkgID, Target: buildTarget, Mode: unitgraph.ModeBuild, Kind: unitgraph.KindTarget}})
	if err != nil {
		return nil, forgeerr.Wrap(forgeerr.KindInternal, "building unit graph", err)
	}

	if err := jobqueue.ValidateLinkNames(graph, packages); err != nil {
		return nil, forgeerr.Wrap(forgeerr.KindResolution, "validating links", err)
	}

	lay := layout.New(filepath.Join(root.Dir, targetDirName(a.Config)))
	tracker := layout.NewOutputTracker()
	fpStore := fingerprint.NewStore(filepath.Join(lay.Root, ".fingerprint"))

	var executor jobqueue.Executor
	var demo *demoExecutor
	if ccCommand == "" {
		demo = &demoExecutor{graph: graph, store: fpStore, tracker: tracker, layout: lay, log: a.Log}
		executor = demo
	} else {
		argv := str.ToArgv(ccCommand)
		planner := templatePlanner{program: argv[0], args: argv[1:], dir: root.Dir}
		renderer := jobqueue.NewRenderer(os.Stdout, a.Log)
		executor = jobqueue.NewProcessExecutor(planner, renderer, tracker, a.Log)
	}

	jobserver := jobqueue.NewJobserver(jobsOrDefault(jobs))
	queue := jobqueue.New(graph, jobserver, executor, a.Log)

	if err := queue.Run(ctx); err != nil {
		return nil, err
	}

	result := &BuildResult{Resolve: resolveResult, Graph: graph, Warnings: warnings}
	if demo != nil {
		result.Fresh, result.Rebuilt = demo.fresh, demo.rebuilt
	}
	return result, nil
}

// templatePlanner turns a fixed command template (split into argv with
// mgutz/str) into the Invocation every unit runs,
// standing in for the real per-unit rustc/cc argv a front end would
// compute from the unit's target, profile, and activated features.
type templatePlanner struct {
	program string
	args    []string
	dir     string
}

func (p templatePlanner) Plan(u unitgraph.Unit) (jobqueue.Invocation, error) {
	return jobqueue.Invocation{Program: p.program, Args: p.args, Dir: p.dir}, nil
}

// demoExecutor is the concrete jobqueue.Executor the demo wires in: it
// checks the fingerprint store before claiming a unit needs a (faked)
// rebuild, standing in for the real ProcessExecutor a front end would
// configure with an actual compiler InvocationPlanner.
type demoExecutor struct {
	graph   *unitgraph.Graph
	store   *fingerprint.Store
	tracker *layout.OutputTracker
	layout  *layout.Layout
	log     *logrus.Entry
	fresh   int
	rebuilt int
}

func (e *demoExecutor) Execute(ctx context.Context, u unitgraph.Unit) error {
	stamp := fingerprint.Compute(fingerprint.Input{
		ToolIdentity:      "forge-demo/0",
		CommandLine:       []string{u.Target.Name, u.Mode.String()},
		ProfileComparable: fmt.Sprintf("%+v", u.Profile.Comparable()),
		Triple:            hostTriple(),
	})
	decision := e.store.Check(u.Key(), stamp)
	if decision.Fresh {
		e.fresh++
		return nil
	}
	e.rebuilt++
	e.log.WithField("unit", u.String()).Debug("rebuilding unit")
	return e.store.Commit(u.Key(), stamp)
}

// fixedSources answers resolver.Sources with a single fallback Source
// for every dependency name, appropriate only for the single-package
// demo; a real front end would resolve each dependency's name and
// registry override to a distinct Source per dependency.
type fixedSources struct {
	fallback source.Source
}

func (f fixedSources) ForDependency(dep manifest.Dependency) (source.Source, error) {
	return f.fallback, nil
}

// ForSource answers the same fallback regardless of id: the demo wires
// in exactly one path Source, so any [patch] replacement the root
// manifest names is assumed to live in it too.
func (f fixedSources) ForSource(id ids.SourceId) (source.Source, error) {
	return f.fallback, nil
}

func pickTarget(m manifest.Manifest, name string) (manifest.Target, bool) {
	if name != "" {
		for _, t := range m.Targets {
			if t.Name == name {
				return t, true
			}
		}
		return manifest.Target{}, false
	}
	if lib, ok := m.LibTarget(); ok {
		return lib, true
	}
	bins := m.TargetsOfKind(manifest.TargetBin)
	if len(bins) > 0 {
		return bins[0], true
	}
	return manifest.Target{}, false
}

func hostTriple() string {
	return fmt.Sprintf("%s-unknown-%s", runtime.GOARCH, runtime.GOOS)
}

func defaultAtoms() cfgexpr.AtomSet {
	atoms := cfgexpr.AtomSet{cfgexpr.Name(strings.ToLower(runtime.GOOS))}
	if runtime.GOOS != "windows" {
		atoms = append(atoms, cfgexpr.Name("unix"))
	}
	return atoms
}

func targetDirName(cfg *config.AppConfig) string {
	if cfg != nil && cfg.UserConfig != nil && cfg.UserConfig.Build.TargetDir != "" {
		return cfg.UserConfig.Build.TargetDir
	}
	return "target"
}

func jobsOrDefault(jobs int) int {
	if jobs > 0 {
		return jobs
	}
	return runtime.NumCPU()
}

// KnownError maps an error to a short, human-facing message when forge
// recognizes its cause, so callers can skip printing a full stack
// trace for expected failure modes.
func (a *App) KnownError(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	if forgeerr.Is(err, forgeerr.KindSource) {
		return "a package source could not be reached or verified: " + err.Error(), true
	}
	return "", false
}
