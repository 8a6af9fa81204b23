package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/duffield-forge/forge/internal/forgeerr"
	"github.com/duffield-forge/forge/internal/manifest"
	"github.com/duffield-forge/forge/pkg/config"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	t.Setenv("FORGE_HOME", t.TempDir())
	cfg, err := config.NewAppConfig("forge", "v0.0.0-test", "deadbeef", "2026-07-29", "test", false, t.TempDir())
	require.NoError(t, err)

	a, err := NewApp(cfg)
	require.NoError(t, err)
	return a
}

func demoRoot(dir string) RootPackage {
	return RootPackage{
		Name:    "demo",
		Version: "0.1.0",
		Dir:     dir,
		Manifest: manifest.Manifest{
			Targets:           []manifest.Target{{Name: "demo", Kind: manifest.TargetBin}},
			IsWorkspaceMember: true,
		},
	}
}

func TestBuildRunsSinglePackageThroughTheDemoExecutor(t *testing.T) {
	a := newTestApp(t)

	result, err := a.Build(context.Background(), demoRoot(t.TempDir()), 1, false, "")
	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotNil(t, result.Graph)
	require.NotEmpty(t, result.Graph.Units)
}

func TestBuildRebuildsOnceThenReportsFreshOnTheSecondRun(t *testing.T) {
	a := newTestApp(t)
	dir := t.TempDir()

	first, err := a.Build(context.Background(), demoRoot(dir), 1, false, "")
	require.NoError(t, err)
	require.Equal(t, 0, first.Fresh)
	require.Equal(t, 1, first.Rebuilt)

	second, err := a.Build(context.Background(), demoRoot(dir), 1, false, "")
	require.NoError(t, err)
	require.Equal(t, 1, second.Fresh)
	require.Equal(t, 0, second.Rebuilt)
}

func TestBuildRejectsARootPackageWithNoBuildableTarget(t *testing.T) {
	a := newTestApp(t)

	root := demoRoot(t.TempDir())
	root.Manifest.Targets = nil

	_, err := a.Build(context.Background(), root, 1, false, "")
	require.Error(t, err)
}

func TestKnownErrorRecognizesASourceError(t *testing.T) {
	a := newTestApp(t)

	msg, known := a.KnownError(forgeerr.New(forgeerr.KindSource, "registry unreachable"))
	require.True(t, known)
	require.Contains(t, msg, "a package source could not be reached or verified")
}

func TestKnownErrorIgnoresUnclassifiedErrors(t *testing.T) {
	a := newTestApp(t)

	_, known := a.KnownError(forgeerr.New(forgeerr.KindInternal, "unexpected"))
	require.False(t, known)

	_, known = a.KnownError(nil)
	require.False(t, known)
}

func TestCloseReleasesNoResourcesWhenNoneWereOpened(t *testing.T) {
	a := newTestApp(t)
	require.NoError(t, a.Close())
}
