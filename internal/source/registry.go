package source

import (
	"fmt"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/duffield-forge/forge/internal/forgeerr"
	"github.com/duffield-forge/forge/internal/ids"
	"github.com/duffield-forge/forge/internal/manifest"
)

// IndexReader fetches a package's raw index file bytes, one per
// sharded path; production wiring backs this
// with Transport.FetchBytes over the registry's base URL, tests back
// it with an in-memory map.
type IndexReader interface {
	ReadIndexFile(path string) ([]byte, error)
}

// ArchiveFetcher retrieves and verifies a package's archive bytes.
type ArchiveFetcher interface {
	FetchArchive(pkg ids.PackageId, expectedChecksum string) ([]byte, error)
}

// RegistrySource implements Source for a remote or local registry.
// Concurrent Query calls for the same dependency name are deduplicated
// with singleflight, so a wide resolver frontier that repeatedly asks
// about a popular dependency triggers only one index read (DOMAIN
// STACK: golang.org/x/sync, pack: theRebelliousNerd-codenerd).
type RegistrySource struct {
	SourceID ids.SourceId
	Index    IndexReader
	Archives ArchiveFetcher
	Log      *logrus.Entry

	group singleflight.Group
	mu    sync.Mutex
	cache map[string][]IndexRecord
}

func NewRegistrySource(id ids.SourceId, index IndexReader, archives ArchiveFetcher, log *logrus.Entry) *RegistrySource {
	return &RegistrySource{SourceID: id, Index: index, Archives: archives, Log: log, cache: make(map[string][]IndexRecord)}
}

func (r *RegistrySource) Update() error {
	// A remote registry's "update" is refreshing the index, which in
	// this abstraction happens lazily per-name in Query; there is
	// nothing eagerly-global to refresh beyond dropping the name cache.
	r.mu.Lock()
	r.cache = make(map[string][]IndexRecord)
	r.mu.Unlock()
	return nil
}

func (r *RegistrySource) records(name string) ([]IndexRecord, error) {
	r.mu.Lock()
	if recs, ok := r.cache[name]; ok {
		r.mu.Unlock()
		return recs, nil
	}
	r.mu.Unlock()

	v, err, _ := r.group.Do(name, func() (interface{}, error) {
		var lastErr error
		for _, candidate := range UncanonicalizedNames(name) {
			data, err := r.Index.ReadIndexFile(IndexPath(candidate))
			if err != nil {
				lastErr = err
				continue
			}
			recs := ParseIndexFile(data, r.Log)
			r.mu.Lock()
			r.cache[name] = recs
			r.mu.Unlock()
			return recs, nil
		}
		if lastErr == nil {
			lastErr = fmt.Errorf("source: no index entry found for %q", name)
		}
		return nil, lastErr
	})
	if err != nil {
		return nil, err
	}
	return v.([]IndexRecord), nil
}

// Query implements Source.Query: every candidate matching dep's name
// and version requirement, ignoring features.
func (r *RegistrySource) Query(dep manifest.Dependency) ([]manifest.Summary, error) {
	recs, err := r.records(dep.Name)
	if err != nil {
		return nil, err
	}

	constraint, err := semver.NewConstraint(dep.Req)
	if err != nil {
		return nil, fmt.Errorf("source: bad version requirement %q for %q: %w", dep.Req, dep.Name, err)
	}

	pkgInterner := ids.NewPackageIdInterner(ids.Default())
	var out []manifest.Summary
	for _, rec := range recs {
		v, err := semver.NewVersion(rec.Vers)
		if err != nil {
			continue
		}
		if !constraint.Check(v) {
			continue
		}
		pid, err := pkgInterner.Intern(rec.Name, v, r.SourceID)
		if err != nil {
			continue
		}
		out = append(out, recordToSummary(pid, rec))
	}
	return out, nil
}

func recordToSummary(pid ids.PackageId, rec IndexRecord) manifest.Summary {
	deps := make([]manifest.Dependency, 0, len(rec.Deps))
	for _, d := range rec.Deps {
		kind := manifest.KindNormal
		switch strings.ToLower(d.Kind) {
		case "build":
			kind = manifest.KindBuild
		case "dev":
			kind = manifest.KindDev
		}
		deps = append(deps, manifest.Dependency{
			Name:             d.Name,
			Req:              d.Req,
			Kind:             kind,
			Optional:         d.Optional,
			DefaultFeatures:  d.DefaultFeatures,
			Features:         d.Features,
			RegistryOverride: d.Registry,
		})
	}
	features := make(map[string][]manifest.FeatureValue, len(rec.Features))
	for name, raws := range rec.Features {
		vals := make([]manifest.FeatureValue, 0, len(raws))
		for _, raw := range raws {
			if fv, err := manifest.NewFeatureValue(raw); err == nil {
				vals = append(vals, fv)
			}
		}
		features[name] = vals
	}
	return manifest.Summary{
		PackageId: pid,
		DependsOn: deps,
		Features:  features,
		Links:     rec.Links,
		Checksum:  rec.Cksum,
		Yanked:    rec.Yanked,
	}
}

func (r *RegistrySource) Download(pkg ids.PackageId) (Package, error) {
	recs, err := r.records(pkg.Name())
	if err != nil {
		return Package{}, err
	}
	var checksum string
	for _, rec := range recs {
		if rec.Vers == pkg.Version().String() {
			checksum = rec.Cksum
			break
		}
	}

	data, err := r.Archives.FetchArchive(pkg, checksum)
	if err != nil {
		return Package{}, forgeerr.Wrap(forgeerr.KindSource, "downloading "+pkg.String(), err)
	}
	if err := VerifyChecksum(strings.NewReader(string(data)), checksum); err != nil {
		return Package{}, forgeerr.Wrap(forgeerr.KindSource, "verifying checksum for "+pkg.String(), err)
	}

	return Package{Manifest: manifest.Manifest{
		Summary: manifest.Summary{PackageId: pkg, Checksum: checksum},
	}}, nil
}

func (r *RegistrySource) Fingerprint(pkg ids.PackageId) (string, error) {
	recs, err := r.records(pkg.Name())
	if err != nil {
		return "", err
	}
	for _, rec := range recs {
		if rec.Vers == pkg.Version().String() {
			return rec.Cksum, nil
		}
	}
	return "", fmt.Errorf("source: no fingerprint available for %s", pkg)
}
