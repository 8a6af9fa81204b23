// Package lockfile serializes and parses the pinned dependency graph:
// a sorted list of [[package]] entries plus a verbatim-preserved
// [metadata] section.
package lockfile

import (
	"bytes"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/duffield-forge/forge/internal/ids"
)

// Package is one [[package]] entry.
type Package struct {
	Name         string   `toml:"name"`
	Version      string   `toml:"version"`
	Source       string   `toml:"source,omitempty"`
	Checksum     string   `toml:"checksum,omitempty"`
	Dependencies []string `toml:"dependencies,omitempty"` // "name version source"
}

// File is the full lockfile contents.
type File struct {
	Packages []Package         `toml:"package"`
	Metadata map[string]string `toml:"metadata,omitempty"`

	// lineEnding is not serialized; it records what the source file
	// used so a rewrite preserves it.
	lineEnding string
}

// Parse reads a lockfile's TOML body, preserving the [metadata] table
// verbatim and remembering the input's line-ending style.
func Parse(data []byte) (*File, error) {
	f := &File{lineEnding: detectLineEnding(data)}
	if err := toml.Unmarshal(normalizeToLF(data), f); err != nil {
		return nil, err
	}
	sort.Slice(f.Packages, func(i, j int) bool {
		if f.Packages[i].Name != f.Packages[j].Name {
			return f.Packages[i].Name < f.Packages[j].Name
		}
		return f.Packages[i].Version < f.Packages[j].Version
	})
	return f, nil
}

// Encode renders f back to TOML, preserving the original line ending.
func Encode(f *File) ([]byte, error) {
	sort.Slice(f.Packages, func(i, j int) bool {
		if f.Packages[i].Name != f.Packages[j].Name {
			return f.Packages[i].Name < f.Packages[j].Name
		}
		return f.Packages[i].Version < f.Packages[j].Version
	})
	for i := range f.Packages {
		sort.Strings(f.Packages[i].Dependencies)
	}

	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(f); err != nil {
		return nil, err
	}

	out := buf.Bytes()
	if f.lineEnding == "\r\n" {
		out = bytes.ReplaceAll(out, []byte("\n"), []byte("\r\n"))
	}
	return out, nil
}

func detectLineEnding(data []byte) string {
	if bytes.Contains(data, []byte("\r\n")) {
		return "\r\n"
	}
	return "\n"
}

func normalizeToLF(data []byte) []byte {
	return bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
}

// FromPackageId renders pkg into the lockfile's "name version source"
// dependency-reference shorthand.
func FromPackageId(pkg ids.PackageId) string {
	if pkg.Source().IsPath() {
		return pkg.Name() + " " + pkg.Version().String()
	}
	return pkg.Name() + " " + pkg.Version().String() + " " + pkg.Source().String()
}

// DependencyRefParts splits a "name version [source]" reference back
// into its components.
func DependencyRefParts(ref string) (name, version, source string) {
	parts := strings.SplitN(ref, " ", 3)
	switch len(parts) {
	case 3:
		return parts[0], parts[1], parts[2]
	case 2:
		return parts[0], parts[1], ""
	default:
		return ref, "", ""
	}
}
