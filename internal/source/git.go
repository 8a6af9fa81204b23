package source

import (
	"fmt"
	"net/http"
	"os/exec"

	"github.com/go-errors/errors"
	"github.com/sirupsen/logrus"

	"github.com/duffield-forge/forge/internal/ids"
)

// HTTPDoer is the minimal surface GitResolver needs from an HTTP
// client, so tests can substitute a fake without standing up a server.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// CommandRunner abstracts process execution: a thin seam over
// exec.Command so tests can substitute a fake without forking a real
// git binary.
type CommandRunner interface {
	Run(name string, args ...string) ([]byte, error)
}

// execCommandRunner is the production CommandRunner, shelling out with
// exec.Command the same way OSCommand.NewCmd does.
type execCommandRunner struct{}

func (execCommandRunner) Run(name string, args ...string) ([]byte, error) {
	cmd := exec.Command(name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, errors.Wrap(fmt.Errorf("%s %v: %w (%s)", name, args, err, out), 0)
	}
	return out, nil
}

// GitResolver pins a git SourceId's GitRef to a concrete revision. It
// tries the hosting provider's conditional "sha of ref" endpoint first
// (If-None-Match against a previously observed oid); on a 304 it skips
// the fetch entirely. Otherwise it fetches refspec
// "refs/heads/*:refs/heads/*" into a bare mirror directory and reads
// the ref out of that mirror.
type GitResolver struct {
	Log       *logrus.Entry
	HTTP      HTTPDoer
	Git       CommandRunner
	MirrorDir func(url string) string
}

func NewGitResolver(log *logrus.Entry, http HTTPDoer, git CommandRunner, mirrorDir func(string) string) *GitResolver {
	if git == nil {
		git = execCommandRunner{}
	}
	return &GitResolver{Log: log, HTTP: http, Git: git, MirrorDir: mirrorDir}
}

// ShaEndpoint builds the provider "sha of ref" URL. Kept as a
// overridable function field's worth of logic isolated for testing;
// production wiring targets the GitHub-compatible
// "/commits/<ref>" content-negotiated endpoint.
func ShaEndpoint(repoAPIBase, ref string) string {
	return fmt.Sprintf("%s/commits/%s", repoAPIBase, ref)
}

// ResolveResult is the outcome of pinning a GitRef.
type ResolveResult struct {
	Precise string
	// FetchSkipped is true when the conditional GET returned 304 and no
	// fetch into the bare mirror was necessary.
	FetchSkipped bool
}

// Resolve pins ref against repoURL. priorOid, if non-empty, is the last
// known revision, used as the If-None-Match value for the fast path.
func (g *GitResolver) Resolve(repoAPIBase, repoURL string, ref ids.GitRef, priorOid string) (ResolveResult, error) {
	if g.HTTP != nil && repoAPIBase != "" {
		refStr := refQueryValue(ref)
		req, err := http.NewRequest(http.MethodGet, ShaEndpoint(repoAPIBase, refStr), nil)
		if err == nil {
			if priorOid != "" {
				req.Header.Set("If-None-Match", fmt.Sprintf("%q", priorOid))
			}
			resp, err := g.HTTP.Do(req)
			if err == nil {
				defer resp.Body.Close()
				if resp.StatusCode == http.StatusNotModified && priorOid != "" {
					if g.Log != nil {
						g.Log.WithField("ref", refStr).Debug("git ref unchanged, skipping fetch")
					}
					return ResolveResult{Precise: priorOid, FetchSkipped: true}, nil
				}
				if resp.StatusCode == http.StatusOK {
					oid, parseErr := parseShaResponse(resp)
					if parseErr == nil && oid != "" {
						return ResolveResult{Precise: oid}, nil
					}
				}
			}
		}
	}

	return g.fetchAndResolveFromMirror(repoURL, ref)
}

func refQueryValue(ref ids.GitRef) string {
	switch {
	case ref.Branch != "":
		return ref.Branch
	case ref.Tag != "":
		return ref.Tag
	case ref.Rev != "":
		return ref.Rev
	default:
		return "HEAD"
	}
}

func (g *GitResolver) fetchAndResolveFromMirror(repoURL string, ref ids.GitRef) (ResolveResult, error) {
	mirror := g.MirrorDir(repoURL)

	if _, err := g.Git.Run("git", "init", "--bare", mirror); err != nil {
		return ResolveResult{}, errors.Wrap(err, 0)
	}
	if _, err := g.Git.Run("git", "-C", mirror, "fetch", "--force", repoURL, "refs/heads/*:refs/heads/*"); err != nil {
		return ResolveResult{}, errors.Wrap(err, 0)
	}

	revspec := refQueryValue(ref)
	if ref.Tag != "" {
		revspec = "refs/tags/" + ref.Tag
	} else if ref.Branch != "" {
		revspec = "refs/heads/" + ref.Branch
	}

	out, err := g.Git.Run("git", "-C", mirror, "rev-parse", revspec)
	if err != nil {
		return ResolveResult{}, errors.Wrap(err, 0)
	}
	oid := trimNewline(out)
	if oid == "" {
		return ResolveResult{}, fmt.Errorf("source: could not resolve git ref %s in %s", revspec, repoURL)
	}
	return ResolveResult{Precise: oid}, nil
}

func trimNewline(b []byte) string {
	n := len(b)
	for n > 0 && (b[n-1] == '\n' || b[n-1] == '\r') {
		n--
	}
	return string(b[:n])
}
