package resolver

import (
	"fmt"
	"strings"

	"github.com/duffield-forge/forge/internal/ids"
	"github.com/duffield-forge/forge/internal/manifest"
)

// Method describes which features a root should activate and whether
// dev-dependencies are in play, matching "per-root
// Method (which requested features to activate, and whether
// dev-dependencies are included)".
type Method struct {
	Features        []string
	AllFeatures     bool
	UsesDefault     bool
	IncludesDevDeps bool
}

// featurePlan is the outcome of walking one package's requested
// feature set transitively: which of its own features are on, which
// optional dependencies that turns on, and which features get forwarded
// to named dependencies.
type featurePlan struct {
	ownFeatures     map[string]bool
	enabledOptional map[string]bool
	forwarded       map[string][]string // dep name -> feature names to forward
}

// resolveFeatures classifies every FeatureValue reachable from
// method's requested set. A feature name
// containing '/' is always treated as a cross-crate forward, and a
// feature that (transitively) requires itself is rejected as a cycle.
func resolveFeatures(s manifest.Summary, method Method) (featurePlan, error) {
	plan := featurePlan{
		ownFeatures:     make(map[string]bool),
		enabledOptional: make(map[string]bool),
		forwarded:       make(map[string][]string),
	}

	requested := make([]string, 0, len(method.Features)+1)
	if method.UsesDefault {
		if _, hasDefault := s.Features["default"]; hasDefault {
			requested = append(requested, "default")
		}
	}
	requested = append(requested, method.Features...)

	inProgress := make(map[string]bool)
	var walk func(name string) error
	walk = func(name string) error {
		if plan.ownFeatures[name] {
			return nil
		}
		if inProgress[name] {
			return fmt.Errorf("resolver: feature %q of %s depends on itself", name, s.PackageId)
		}

		if idx := strings.IndexByte(name, '/'); idx >= 0 {
			dep, depFeature := name[:idx], name[idx+1:]
			plan.forwarded[dep] = append(plan.forwarded[dep], depFeature)
			return nil
		}

		values, isOwnFeature := s.Features[name]
		if !isOwnFeature {
			// not declared as a [features] entry: treat it as directly
			// enabling an optional dependency of the same name, the
			// "implicit feature" compatibility behavior.
			plan.enabledOptional[name] = true
			return nil
		}

		inProgress[name] = true
		plan.ownFeatures[name] = true
		for _, fv := range values {
			switch {
			case fv.Feature != "":
				if err := walk(fv.Feature); err != nil {
					return err
				}
			case fv.Crate != "":
				plan.enabledOptional[fv.Crate] = true
			case fv.CrateFeature.Dep != "":
				plan.forwarded[fv.CrateFeature.Dep] = append(plan.forwarded[fv.CrateFeature.Dep], fv.CrateFeature.Feature)
			}
		}
		delete(inProgress, name)
		return nil
	}

	if method.AllFeatures {
		for name := range s.Features {
			if err := walk(name); err != nil {
				return featurePlan{}, err
			}
		}
	} else {
		for _, name := range requested {
			if err := walk(name); err != nil {
				return featurePlan{}, err
			}
		}
	}

	return plan, nil
}

// dependencyEnabled reports whether dep should be included given the
// feature plan computed for its parent, step 4's filter:
// "not a disabled optional".
func (p featurePlan) dependencyEnabled(dep manifest.Dependency) bool {
	if !dep.Optional {
		return true
	}
	return p.enabledOptional[dep.Name]
}

// forwardedFeaturesFor returns the feature names forwarded to dep by
// name, plus any features the dependency declaration itself requests.
func (p featurePlan) forwardedFeaturesFor(dep manifest.Dependency) []string {
	out := append([]string{}, dep.Features...)
	out = append(out, p.forwarded[dep.Name]...)
	return out
}

// verifyRequestedFeaturesExist checks that every feature named in
// method.Features is either a declared [features] entry or an optional
// dependency name, surfacing "feature requested that does
// not exist" resolution error with a path-to-root explanation.
func verifyRequestedFeaturesExist(s manifest.Summary, method Method, path []ids.PackageId) error {
	for _, name := range method.Features {
		base := name
		if idx := strings.IndexByte(name, '/'); idx >= 0 {
			continue // cross-crate forward, validated against the target package instead
		}
		if _, ok := s.Features[base]; ok {
			continue
		}
		isOptionalDep := false
		for _, d := range s.DependsOn {
			if d.Optional && d.Name == base {
				isOptionalDep = true
				break
			}
		}
		if isOptionalDep {
			continue
		}
		return &FeatureNotFoundError{Package: s.PackageId, Feature: base, Path: path}
	}
	return nil
}

// FeatureNotFoundError is a resolution error carrying the
// path from the root that requested the missing feature.
type FeatureNotFoundError struct {
	Package ids.PackageId
	Feature string
	Path    []ids.PackageId
}

func (e *FeatureNotFoundError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "resolver: package %s has no feature %q", e.Package, e.Feature)
	for _, p := range e.Path {
		fmt.Fprintf(&b, "\n  required by %s", p)
	}
	return b.String()
}
