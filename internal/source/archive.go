package source

import (
	"fmt"
	"path"
	"strings"
)

// mandatoryEntries are the archive members every crate archive must
// carry.
var mandatoryEntries = []string{"Cargo.toml", "Cargo.toml.orig"}

// forbiddenFilenameChars are rejected in any archive entry path:
// `\ < > : " | ? *`. The forward slash is special-cased elsewhere
// since it is the path separator; everything else here is checked per
// path segment.
const forbiddenFilenameChars = `\<>:"|?*`

// ValidateArchiveLayout checks a materialized package directory's file
// list against a crate archive's invariants: exactly one top-level
// directory named "<name>-<version>", the two mandatory entries
// present, and no forbidden characters in any filename. Building
// archives is out of the core's scope (packaging is an explicit
// Non-goal); this only validates what download() produced.
func ValidateArchiveLayout(expectedTopDir string, entries []string) error {
	haveMandatory := make(map[string]bool, len(mandatoryEntries))

	for _, e := range entries {
		if !strings.HasPrefix(e, expectedTopDir+"/") && e != expectedTopDir {
			return fmt.Errorf("source: archive entry %q is outside top-level directory %q", e, expectedTopDir)
		}
		rel := strings.TrimPrefix(e, expectedTopDir+"/")
		if rel == "" {
			continue
		}
		for _, seg := range strings.Split(rel, "/") {
			if err := validateSegment(seg); err != nil {
				return err
			}
		}
		if rel == "Cargo.toml" || rel == "Cargo.toml.orig" {
			haveMandatory[rel] = true
		}
	}

	for _, m := range mandatoryEntries {
		if !haveMandatory[m] {
			return fmt.Errorf("source: archive missing mandatory entry %q", m)
		}
	}
	return nil
}

func validateSegment(seg string) error {
	if seg == "" {
		return fmt.Errorf("source: archive entry has an empty path segment")
	}
	if strings.ContainsAny(seg, forbiddenFilenameChars) {
		return fmt.Errorf("source: archive entry %q contains a forbidden character", seg)
	}
	return nil
}

// ExpectedTopDir computes "<name>-<version>" the same way a packaging
// step names the archive's sole top-level directory.
func ExpectedTopDir(name, version string) string {
	return path.Join(name + "-" + version)
}
