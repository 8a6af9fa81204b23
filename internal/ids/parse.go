package ids

import (
	"fmt"
	"strings"
)

// ParseSourceString reinterns the SourceId that produced s via
// SourceId.String(), the form the lockfile stores a package's source
// in. It is the inverse of String(), not a general source-spec parser.
func ParseSourceString(in *Interner, s string) (SourceId, error) {
	kind, rest, ok := strings.Cut(s, "+")
	if !ok {
		return SourceId{}, fmt.Errorf("ids: malformed source string %q", s)
	}

	switch kind {
	case "git":
		url, ref, ok := strings.Cut(rest, "#")
		if !ok {
			return SourceId{}, fmt.Errorf("ids: git source string %q missing ref", s)
		}
		return in.Git(url, parseGitRef(ref), ""), nil
	case "registry":
		if idx := strings.Index(rest, " ("); idx >= 0 && strings.HasSuffix(rest, ")") {
			return in.Registry(rest[:idx], rest[idx+2:len(rest)-1]), nil
		}
		return in.Registry(rest, ""), nil
	case "local-registry":
		return in.LocalRegistry(rest), nil
	case "directory":
		return in.Directory(rest), nil
	case "path":
		return in.Path(rest), nil
	default:
		return SourceId{}, fmt.Errorf("ids: unrecognized source kind %q in %q", kind, s)
	}
}

func parseGitRef(s string) GitRef {
	name, value, ok := strings.Cut(s, "=")
	if !ok {
		return GitRef{}
	}
	switch name {
	case "branch":
		return GitRef{Branch: value}
	case "tag":
		return GitRef{Tag: value}
	case "rev":
		return GitRef{Rev: value}
	default:
		return GitRef{}
	}
}
