package jobqueue

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/duffield-forge/forge/internal/ids"
	"github.com/duffield-forge/forge/internal/manifest"
	"github.com/duffield-forge/forge/internal/profile"
	"github.com/duffield-forge/forge/internal/unitgraph"
)

func testUnit(t *testing.T, pkgs *ids.PackageIdInterner, src ids.SourceId, name string) unitgraph.Unit {
	t.Helper()
	pkg := pkgs.MustIntern(name, "1.0.0", src)
	target := manifest.Target{Name: name, Kind: manifest.TargetLib}
	return unitgraph.Unit{Package: pkg, Target: target, Profile: profile.Profile{Name: "dev"}, Mode: unitgraph.ModeBuild, Kind: unitgraph.KindTarget}
}

// recordingExecutor records the order units actually ran in, and optionally
// fails a named unit.
type recordingExecutor struct {
	mu      sync.Mutex
	ran     []string
	failOn  map[string]bool
}

func (e *recordingExecutor) Execute(ctx context.Context, u unitgraph.Unit) error {
	e.mu.Lock()
	e.ran = append(e.ran, u.Package.Name())
	fail := e.failOn[u.Package.Name()]
	e.mu.Unlock()

	if fail {
		return fmt.Errorf("simulated failure for %s", u.Package.Name())
	}
	return nil
}

func newTestLog() *logrus.Entry {
	l := logrus.New()
	l.Out = io.Discard
	return logrus.NewEntry(l)
}

func TestQueueRunsDependencyBeforeDependent(t *testing.T) {
	interner := ids.NewInterner()
	pkgs := ids.NewPackageIdInterner(interner)
	src := interner.Path("/workspace")

	dep := testUnit(t, pkgs, src, "dep")
	top := testUnit(t, pkgs, src, "top")

	graph := &unitgraph.Graph{
		Units: []unitgraph.Unit{dep, top},
		Edges: map[string][]unitgraph.Unit{
			top.Key(): {dep},
		},
	}

	executor := &recordingExecutor{failOn: map[string]bool{}}
	q := New(graph, NewJobserver(2), executor, newTestLog())

	require.NoError(t, q.Run(context.Background()))
	require.Equal(t, []string{"dep", "top"}, executor.ran)
}

func TestQueueStopsSchedulingAfterFirstFailure(t *testing.T) {
	interner := ids.NewInterner()
	pkgs := ids.NewPackageIdInterner(interner)
	src := interner.Path("/workspace")

	a := testUnit(t, pkgs, src, "a")
	b := testUnit(t, pkgs, src, "b")

	graph := &unitgraph.Graph{
		Units: []unitgraph.Unit{a, b},
		Edges: map[string][]unitgraph.Unit{},
	}

	executor := &recordingExecutor{failOn: map[string]bool{"a": true}}
	q := New(graph, NewJobserver(2), executor, newTestLog())

	err := q.Run(context.Background())
	require.Error(t, err)
}

func TestQueueRunsEveryIndependentUnit(t *testing.T) {
	interner := ids.NewInterner()
	pkgs := ids.NewPackageIdInterner(interner)
	src := interner.Path("/workspace")

	a := testUnit(t, pkgs, src, "a")
	b := testUnit(t, pkgs, src, "b")

	graph := &unitgraph.Graph{
		Units: []unitgraph.Unit{b, a},
		Edges: map[string][]unitgraph.Unit{},
	}

	executor := &recordingExecutor{failOn: map[string]bool{}}
	q := New(graph, NewJobserver(1), executor, newTestLog())

	require.NoError(t, q.Run(context.Background()))
	require.ElementsMatch(t, []string{"a", "b"}, executor.ran)
}
