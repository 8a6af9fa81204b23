// Package ids implements the identity types at the bottom of the data
// model: PackageId and SourceId, plus the process-wide interning tables
// that let hot resolver paths compare identities by pointer.
package ids

import (
	"fmt"
	"strings"
	"sync"
)

// SourceKind distinguishes where a package's contents come from.
type SourceKind int

const (
	KindPath SourceKind = iota
	KindRegistry
	KindLocalRegistry
	KindDirectory
	KindGit
)

func (k SourceKind) String() string {
	switch k {
	case KindPath:
		return "path"
	case KindRegistry:
		return "registry"
	case KindLocalRegistry:
		return "local-registry"
	case KindDirectory:
		return "directory"
	case KindGit:
		return "git"
	default:
		return "unknown"
	}
}

// GitRef selects a revision within a git source: at most one of its
// fields is set.
type GitRef struct {
	Branch string
	Tag    string
	Rev    string
}

func (r GitRef) String() string {
	switch {
	case r.Branch != "":
		return "branch=" + r.Branch
	case r.Tag != "":
		return "tag=" + r.Tag
	case r.Rev != "":
		return "rev=" + r.Rev
	default:
		return "HEAD"
	}
}

// sourceIdData is the immutable payload behind an interned *SourceId.
// Two SourceIds are semantically equal when their canonicalized URL,
// kind, and git ref match; the registry name override and the git
// precise revision are excluded from equality so that a more-precise
// pin of the same logical source still interns to the same identity.
type sourceIdData struct {
	canonicalURL string
	kind         SourceKind
	gitRef       GitRef
	registryName string
	precise      string
}

// SourceId is a pointer-comparable, interned identity for a package
// source. The zero value is not valid; construct with New*.
type SourceId struct {
	data *sourceIdData
}

func (s SourceId) Kind() SourceKind   { return s.data.kind }
func (s SourceId) URL() string        { return s.data.canonicalURL }
func (s SourceId) GitRef() GitRef     { return s.data.gitRef }
func (s SourceId) RegistryName() string {
	return s.data.registryName
}
func (s SourceId) Precise() string { return s.data.precise }

// Equal compares two SourceIds for semantic equality. Because both are
// drawn from the same interning table this reduces to pointer equality,
// but the explicit comparison also supports SourceIds a caller built by
// hand (e.g. round-tripped from a lockfile) without re-interning first.
func (s SourceId) Equal(other SourceId) bool {
	if s.data == other.data {
		return true
	}
	if s.data == nil || other.data == nil {
		return false
	}
	return s.data.kind == other.data.kind &&
		s.data.canonicalURL == other.data.canonicalURL &&
		s.data.gitRef == other.data.gitRef
}

func (s SourceId) String() string {
	if s.data == nil {
		return "<invalid source>"
	}
	switch s.data.kind {
	case KindGit:
		return fmt.Sprintf("git+%s#%s", s.data.canonicalURL, s.data.gitRef)
	case KindRegistry:
		if s.data.registryName != "" {
			return fmt.Sprintf("registry+%s (%s)", s.data.canonicalURL, s.data.registryName)
		}
		return "registry+" + s.data.canonicalURL
	default:
		return s.data.kind.String() + "+" + s.data.canonicalURL
	}
}

// IsPath reports whether this source resolves to a local filesystem
// path rather than anything fetched, which matters to the fingerprint
// engine's incremental-compilation eligibility check.
func (s SourceId) IsPath() bool { return s.data.kind == KindPath }

// canonicalize normalizes a source URL the same way cargo's SourceId
// does: strip a trailing slash and a trailing ".git" on git remotes,
// lowercase the scheme+host.
func canonicalize(rawURL string, kind SourceKind) string {
	u := strings.TrimRight(rawURL, "/")
	if kind == KindGit {
		u = strings.TrimSuffix(u, ".git")
	}
	if idx := strings.Index(u, "://"); idx >= 0 {
		scheme := strings.ToLower(u[:idx])
		rest := u[idx+3:]
		if slash := strings.Index(rest, "/"); slash >= 0 {
			rest = strings.ToLower(rest[:slash]) + rest[slash:]
		} else {
			rest = strings.ToLower(rest)
		}
		u = scheme + "://" + rest
	}
	return u
}

// Interner is a process-wide, append-only table of SourceIds keyed by
// canonical form. Append-only means a lookup takes only the shared read
// lock; the write lock is held only while a new key is inserted.
type Interner struct {
	mu    sync.RWMutex
	bySig map[string]*sourceIdData
}

// NewInterner constructs an empty interning table. Production code uses
// the package-level Default(); tests construct their own to avoid
// cross-test pollution of a shared global.
func NewInterner() *Interner {
	return &Interner{bySig: make(map[string]*sourceIdData)}
}

func (in *Interner) sig(kind SourceKind, canon string, ref GitRef) string {
	return fmt.Sprintf("%d|%s|%s", kind, canon, ref)
}

func (in *Interner) intern(kind SourceKind, rawURL string, ref GitRef, registryName, precise string) SourceId {
	canon := canonicalize(rawURL, kind)
	key := in.sig(kind, canon, ref)

	in.mu.RLock()
	existing, ok := in.bySig[key]
	in.mu.RUnlock()
	if ok {
		return SourceId{data: existing}
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if existing, ok := in.bySig[key]; ok {
		return SourceId{data: existing}
	}
	d := &sourceIdData{
		canonicalURL: canon,
		kind:         kind,
		gitRef:       ref,
		registryName: registryName,
		precise:      precise,
	}
	in.bySig[key] = d
	return SourceId{data: d}
}

func (in *Interner) Path(url string) SourceId { return in.intern(KindPath, url, GitRef{}, "", "") }

func (in *Interner) Directory(url string) SourceId {
	return in.intern(KindDirectory, url, GitRef{}, "", "")
}

func (in *Interner) LocalRegistry(url string) SourceId {
	return in.intern(KindLocalRegistry, url, GitRef{}, "", "")
}

func (in *Interner) Registry(url string, name string) SourceId {
	return in.intern(KindRegistry, url, GitRef{}, name, "")
}

func (in *Interner) Git(url string, ref GitRef, precise string) SourceId {
	return in.intern(KindGit, url, ref, "", precise)
}

// WithPrecise returns a SourceId identical to s but carrying a precise
// revision. Because precise is excluded from the interning key this
// returns a *new*, non-interned sourceIdData that still Equal()s s.
func (in *Interner) WithPrecise(s SourceId, precise string) SourceId {
	d := *s.data
	d.precise = precise
	return SourceId{data: &d}
}

var defaultInterner = NewInterner()

// Default returns the process-wide interning table used by production
// wiring (pkg/app and cmd/forge). Tests should build their own via
// NewInterner to stay isolated.
func Default() *Interner { return defaultInterner }
