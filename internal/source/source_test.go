package source

import (
	"net/http"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/duffield-forge/forge/internal/ids"
	"github.com/duffield-forge/forge/internal/manifest"
)

func TestIndexPathSharding(t *testing.T) {
	require.Equal(t, "1/a", IndexPath("a"))
	require.Equal(t, "2/ab", IndexPath("ab"))
	require.Equal(t, "3/a/abc", IndexPath("abc"))
	require.Equal(t, "ab/cd/abcd", IndexPath("abcd"))
	require.Equal(t, "se/rd/serde", IndexPath("serde"))
}

func TestUncanonicalizedNamesStartsWithInputAndBounded(t *testing.T) {
	require.Equal(t, []string{"test"}, UncanonicalizedNames("test"))

	got := UncanonicalizedNames("te-_st")
	require.Equal(t, []string{"te-_st", "te__st", "te--st", "te_-st"}, got)
}

func TestParseIndexFileSkipsUnrecognizedLines(t *testing.T) {
	data := []byte(`{"name":"foo","vers":"1.0.0","cksum":"abc"}
not json at all
{"name":"foo","vers":"1.1.0","cksum":"def","yanked":true}
{"totally":"different schema, missing name/vers"}
`)
	recs := ParseIndexFile(data, logrus.NewEntry(logrus.New()))
	require.Len(t, recs, 2)
	require.Equal(t, "1.0.0", recs[0].Vers)
	require.True(t, recs[1].Yanked)
}

type fakeIndex struct{ files map[string][]byte }

func (f fakeIndex) ReadIndexFile(path string) ([]byte, error) {
	if b, ok := f.files[path]; ok {
		return b, nil
	}
	return nil, errNotFound{path}
}

type errNotFound struct{ path string }

func (e errNotFound) Error() string { return "not found: " + e.path }

func TestRegistrySourceQuery(t *testing.T) {
	idx := fakeIndex{files: map[string][]byte{
		IndexPath("foo"): []byte(`{"name":"foo","vers":"1.0.0","cksum":"aaa","deps":[{"name":"bar","req":"^1.0","kind":"normal"}]}
{"name":"foo","vers":"2.0.0","cksum":"bbb"}
`),
	}}
	srcID := ids.Default().Registry("https://example.io", "")
	rs := NewRegistrySource(srcID, idx, nil, logrus.NewEntry(logrus.New()))

	summaries, err := rs.Query(manifest.Dependency{Name: "foo", Req: "^1.0"})
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, "foo", summaries[0].PackageId.Name())
	require.Equal(t, "1.0.0", summaries[0].PackageId.Version().String())
	require.Len(t, summaries[0].DependsOn, 1)
	require.Equal(t, "bar", summaries[0].DependsOn[0].Name)
}

func TestVerifyChecksumDetectsMismatch(t *testing.T) {
	err := VerifyChecksum(strings.NewReader("hello"), "deadbeef")
	require.Error(t, err)
	var mismatch *ErrChecksumMismatch
	require.ErrorAs(t, err, &mismatch)
}

func TestVerifyChecksumAcceptsMatch(t *testing.T) {
	// sha256("hello") = 2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824
	err := VerifyChecksum(strings.NewReader("hello"), "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824")
	require.NoError(t, err)
}

func TestValidateArchiveLayoutRejectsForbiddenChars(t *testing.T) {
	err := ValidateArchiveLayout("foo-1.0.0", []string{
		"foo-1.0.0/Cargo.toml",
		"foo-1.0.0/Cargo.toml.orig",
		"foo-1.0.0/src/bad|name.rs",
	})
	require.Error(t, err)
}

func TestValidateArchiveLayoutRequiresMandatoryEntries(t *testing.T) {
	err := ValidateArchiveLayout("foo-1.0.0", []string{"foo-1.0.0/src/lib.rs"})
	require.Error(t, err)

	err = ValidateArchiveLayout("foo-1.0.0", []string{"foo-1.0.0/Cargo.toml", "foo-1.0.0/Cargo.toml.orig"})
	require.NoError(t, err)
}

type fakeGitRunner struct {
	calls [][]string
	out   map[string]string
}

func (f *fakeGitRunner) Run(name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	key := strings.Join(args, " ")
	for k, v := range f.out {
		if strings.Contains(key, k) {
			return []byte(v), nil
		}
	}
	return []byte(""), nil
}

func TestGitResolverFallsBackToMirrorFetch(t *testing.T) {
	runner := &fakeGitRunner{out: map[string]string{"rev-parse": "deadbeefcafe\n"}}
	gr := NewGitResolver(logrus.NewEntry(logrus.New()), nil, runner, func(url string) string { return "/tmp/mirror" })

	res, err := gr.Resolve("", "https://example.com/foo.git", ids.GitRef{Branch: "main"}, "")
	require.NoError(t, err)
	require.Equal(t, "deadbeefcafe", res.Precise)
	require.False(t, res.FetchSkipped)
}

var _ HTTPDoer = (*http.Client)(nil)
