// Package fingerprint implements the freshness oracle: a persisted
// digest over everything that could change a unit's output, so a
// rebuild can skip units whose stamp still matches.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/duffield-forge/forge/internal/ids"
)

// SourceFile is one input file contributing to a unit's fingerprint.
// Mtime is authoritative; FallbackHash is consulted only as the fallback
// for when mtime is ambiguous (e.g. not supported by the filesystem,
// or reset by a VCS checkout).
type SourceFile struct {
	Path         string
	MtimeUnixNs  int64
	MtimeOK      bool
	FallbackHash string // content hash, populated by the caller only when MtimeOK is false
}

// RerunTrigger is one `cargo:rerun-if-changed`/`cargo:rerun-if-env-changed`
// directive a build script emitted on a prior run.
type RerunTrigger struct {
	Path        string // set for rerun-if-changed
	MtimeUnixNs int64
	EnvVar      string // set for rerun-if-env-changed
	EnvValue    string
}

// Input is everything "Stamp" bullet list hashes for one
// unit.
type Input struct {
	ToolIdentity      string // compiler/tool identity and version string
	CommandLine       []string
	ProfileComparable string // rendered via profile.Comparable's %+v form
	ActivatedFeatures []string
	Triple            string
	Linker            string
	ArProgram         string
	SourceFiles       []SourceFile
	DependencyStamps  []string // each dependency unit's own computed stamp
	RustFlags         []string
	RustdocFlags      []string
	RerunTriggers     []RerunTrigger
}

// Stamp is the computed digest, serialized deterministically so two
// runs over byte-identical inputs produce byte-identical stamps.
type Stamp string

// Compute hashes in everything lists. Ordering within each
// slice is normalized before hashing so unrelated reordering upstream
// (e.g. map iteration) never causes a false-dirty result.
func Compute(in Input) Stamp {
	h := sha256.New()

	fmt.Fprintf(h, "tool=%s\n", in.ToolIdentity)

	cmd := append([]string{}, in.CommandLine...)
	sort.Strings(cmd)
	fmt.Fprintf(h, "cmd=%s\n", strings.Join(cmd, "\x1f"))

	fmt.Fprintf(h, "profile=%s\n", in.ProfileComparable)

	features := append([]string{}, in.ActivatedFeatures...)
	sort.Strings(features)
	fmt.Fprintf(h, "features=%s\n", strings.Join(features, ","))

	fmt.Fprintf(h, "triple=%s\nlinker=%s\nar=%s\n", in.Triple, in.Linker, in.ArProgram)

	files := append([]SourceFile{}, in.SourceFiles...)
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	for _, f := range files {
		if f.MtimeOK {
			fmt.Fprintf(h, "file=%s mtime=%d\n", f.Path, f.MtimeUnixNs)
		} else {
			fmt.Fprintf(h, "file=%s content=%s\n", f.Path, f.FallbackHash)
		}
	}

	deps := append([]string{}, in.DependencyStamps...)
	sort.Strings(deps)
	for _, d := range deps {
		fmt.Fprintf(h, "dep=%s\n", d)
	}

	rustflags := append([]string{}, in.RustFlags...)
	sort.Strings(rustflags)
	fmt.Fprintf(h, "rustflags=%s\n", strings.Join(rustflags, "\x1f"))

	rustdocflags := append([]string{}, in.RustdocFlags...)
	sort.Strings(rustdocflags)
	fmt.Fprintf(h, "rustdocflags=%s\n", strings.Join(rustdocflags, "\x1f"))

	triggers := append([]RerunTrigger{}, in.RerunTriggers...)
	sort.Slice(triggers, func(i, j int) bool {
		return triggerKey(triggers[i]) < triggerKey(triggers[j])
	})
	for _, rt := range triggers {
		if rt.Path != "" {
			fmt.Fprintf(h, "rerun-path=%s mtime=%d\n", rt.Path, rt.MtimeUnixNs)
		} else {
			fmt.Fprintf(h, "rerun-env=%s value=%s\n", rt.EnvVar, rt.EnvValue)
		}
	}

	return Stamp(hex.EncodeToString(h.Sum(nil)))
}

func triggerKey(rt RerunTrigger) string {
	if rt.Path != "" {
		return "p:" + rt.Path
	}
	return "e:" + rt.EnvVar
}

// Store persists and loads stamp files, one per unit, keyed by the
// caller-supplied unit identifier (typically a unitgraph.Unit.Key()).
type Store struct {
	Dir string // directory holding one stamp file per unit (e.g. target/.fingerprint)
}

func NewStore(dir string) *Store { return &Store{Dir: dir} }

func (s *Store) path(unitKey string) string {
	return s.Dir + "/" + shortID(unitKey) + ".stamp"
}

// shortID derives a filesystem-safe identifier from an arbitrary unit
// key without colliding on the characters Unit.Key() may contain.
func shortID(unitKey string) string {
	sum := sha256.Sum256([]byte(unitKey))
	return hex.EncodeToString(sum[:8])
}

// Decision reports whether a unit is fresh and,
// if dirty, why — for diagnostics and for scenario S6's reproducibility
// checks.
type Decision struct {
	Fresh  bool
	Reason string
}

// Check compares newStamp against the persisted stamp file for
// unitKey. A missing or corrupt (unreadable) stamp file is treated as
// dirty, never as an error.
func (s *Store) Check(unitKey string, newStamp Stamp) Decision {
	existing, err := os.ReadFile(s.path(unitKey))
	if err != nil {
		return Decision{Fresh: false, Reason: "no prior stamp"}
	}
	if Stamp(existing) != newStamp {
		return Decision{Fresh: false, Reason: "stamp mismatch"}
	}
	return Decision{Fresh: true}
}

// Commit persists newStamp as unitKey's stamp file, called after a
// successful (re)build of that unit.
func (s *Store) Commit(unitKey string, newStamp Stamp) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.path(unitKey), []byte(newStamp), 0o644)
}

// IncrementalEligible implements the incremental gate: the source must
// be a local path, and then an environment override, when set, takes
// precedence over the profile incremental flag. envOverride is a *bool
// because CARGO_INCREMENTAL being unset must not be conflated with it
// being explicitly "0".
func IncrementalEligible(profileIncremental bool, source ids.SourceId, envOverride *bool) bool {
	if !source.IsPath() {
		return false
	}
	if envOverride != nil {
		return *envOverride
	}
	return profileIncremental
}
