package fingerprint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/duffield-forge/forge/internal/ids"
)

func baseInput() Input {
	return Input{
		ToolIdentity:      "rustc 1.80.0",
		CommandLine:       []string{"--crate-name", "foo"},
		ProfileComparable: "dev",
		ActivatedFeatures: []string{"default"},
		Triple:            "x86_64-unknown-linux-gnu",
		SourceFiles:       []SourceFile{{Path: "src/lib.rs", MtimeUnixNs: 100, MtimeOK: true}},
	}
}

func TestComputeIsOrderInsensitive(t *testing.T) {
	a := baseInput()
	b := baseInput()
	b.CommandLine = []string{"foo", "--crate-name"}
	b.CommandLine[0], b.CommandLine[1] = a.CommandLine[1], a.CommandLine[0]

	require.Equal(t, Compute(a), Compute(b))
}

func TestComputeChangesOnMtimeChange(t *testing.T) {
	a := baseInput()
	b := baseInput()
	b.SourceFiles[0].MtimeUnixNs = 200

	require.NotEqual(t, Compute(a), Compute(b))
}

func TestComputeChangesOnRustflags(t *testing.T) {
	a := baseInput()
	b := baseInput()
	b.RustFlags = []string{"-Dwarnings"}

	require.NotEqual(t, Compute(a), Compute(b))
}

func TestComputeChangesOnFeatureSet(t *testing.T) {
	a := baseInput()
	b := baseInput()
	b.ActivatedFeatures = []string{"default", "extra"}

	require.NotEqual(t, Compute(a), Compute(b))
}

func TestComputeChangesOnTriple(t *testing.T) {
	a := baseInput()
	b := baseInput()
	b.Triple = "aarch64-apple-darwin"

	require.NotEqual(t, Compute(a), Compute(b))
}

func TestStoreMissingStampIsDirty(t *testing.T) {
	store := NewStore(t.TempDir())
	decision := store.Check("unit-a", Compute(baseInput()))
	require.False(t, decision.Fresh)
}

func TestStoreFreshAfterCommit(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	stamp := Compute(baseInput())

	require.NoError(t, store.Commit("unit-a", stamp))
	decision := store.Check("unit-a", stamp)
	require.True(t, decision.Fresh)

	decision = store.Check("unit-a", Compute(Input{ToolIdentity: "different"}))
	require.False(t, decision.Fresh)
}

func TestStoreCorruptStampTreatedAsDirtyNotError(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, shortID("unit-a")+".stamp"), []byte("garbage"), 0o644))

	decision := store.Check("unit-a", Compute(baseInput()))
	require.False(t, decision.Fresh)
}

func TestIncrementalEligibleRequiresPathSourceAndProfileFlag(t *testing.T) {
	interner := ids.NewInterner()
	pathSrc := interner.Path("/home/user/project")
	regSrc := interner.Registry("https://example.io", "")

	require.True(t, IncrementalEligible(true, pathSrc, nil))
	require.False(t, IncrementalEligible(true, regSrc, nil))
	require.False(t, IncrementalEligible(false, pathSrc, nil))

	off := false
	require.False(t, IncrementalEligible(true, pathSrc, &off))
	on := true
	require.False(t, IncrementalEligible(false, regSrc, &on))
}
