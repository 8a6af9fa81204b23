package ids

import "testing"

import "github.com/stretchr/testify/require"

func TestSourceIdInterningIsPointerStable(t *testing.T) {
	in := NewInterner()

	a := in.Registry("https://crates.example.io/index", "")
	b := in.Registry("https://crates.example.io/index/", "")

	require.True(t, a.Equal(b))
	require.Same(t, a.data, b.data)
}

func TestSourceIdEqualityIgnoresPreciseAndRegistryName(t *testing.T) {
	in := NewInterner()

	a := in.Git("https://example.com/foo.git", GitRef{Branch: "main"}, "")
	b := in.WithPrecise(a, "deadbeef")

	require.True(t, a.Equal(b))
	require.Equal(t, "deadbeef", b.Precise())
	require.Empty(t, a.Precise())

	c := in.Registry("https://example.com/reg", "")
	d := in.Registry("https://example.com/reg", "alt")
	require.True(t, c.Equal(d))
}

func TestSourceIdDistinctGitRefsAreDistinct(t *testing.T) {
	in := NewInterner()

	a := in.Git("https://example.com/foo", GitRef{Branch: "main"}, "")
	b := in.Git("https://example.com/foo", GitRef{Tag: "v1.0.0"}, "")

	require.False(t, a.Equal(b))
}

func TestPackageIdOrdering(t *testing.T) {
	srcs := NewInterner()
	pkgs := NewPackageIdInterner(srcs)
	reg := srcs.Registry("https://example.io", "")

	a := pkgs.MustIntern("bar", "1.0.0", reg)
	b := pkgs.MustIntern("bar", "1.2.0", reg)
	c := pkgs.MustIntern("foo", "0.1.0", reg)

	require.True(t, a.Less(b))
	require.True(t, b.Less(c))
	require.False(t, c.Less(a))
}

func TestPackageIdInterningDeduplicates(t *testing.T) {
	srcs := NewInterner()
	pkgs := NewPackageIdInterner(srcs)
	reg := srcs.Registry("https://example.io", "")

	a := pkgs.MustIntern("bar", "1.0.0", reg)
	b := pkgs.MustIntern("bar", "1.0.0", reg)

	require.True(t, a.Equal(b))
}
