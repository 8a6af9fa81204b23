// Build-script output propagation: a RunCustomBuild unit's captured
// stdout lines starting "cargo:" carry directives that feed back into
// the fingerprint and environment of the unit that consumed its
// output, closing the loop between the job queue (owns build-script
// stdout) and the fingerprint engine (owns rerun-if-* sensitivity).
package unitgraph

import (
	"bufio"
	"sort"
	"strings"

	"github.com/duffield-forge/forge/internal/fingerprint"
)

// BuildScriptOutput is the parsed form of one RunCustomBuild unit's
// captured stdout.
type BuildScriptOutput struct {
	// RustcEnv is `cargo:rustc-env=VAR=VALUE`: extra env vars set on
	// every invocation that compiles the consuming unit.
	RustcEnv map[string]string
	// RustcCfg is `cargo:rustc-cfg=NAME` or `cargo:rustc-cfg=NAME="VALUE"`:
	// extra cfg atoms internal/cfgexpr evaluates target predicates
	// against for the consuming unit.
	RustcCfg []string
	// RustcLinkLib is `cargo:rustc-link-lib=[KIND=]NAME`: native
	// libraries to link.
	RustcLinkLib []string
	// RustcLinkSearch is `cargo:rustc-link-search=[KIND=]PATH`.
	RustcLinkSearch []string
	// RerunIfChanged/RerunIfEnvChanged feed fingerprint.RerunTrigger.
	RerunIfChanged    []string
	RerunIfEnvChanged []string
	// Warnings are `cargo:warning=MESSAGE`, surfaced to the diagnostic
	// renderer but never affecting the fingerprint.
	Warnings []string
}

// ParseBuildScriptOutput scans raw captured stdout for "cargo:" directive
// lines. Lines that do not start with the "cargo:" prefix are ordinary
// build-script chatter and are ignored, matching cargo's own behavior of
// only treating that exact prefix as a directive.
func ParseBuildScriptOutput(stdout string) BuildScriptOutput {
	out := BuildScriptOutput{RustcEnv: map[string]string{}}

	scanner := bufio.NewScanner(strings.NewReader(stdout))
	for scanner.Scan() {
		line := scanner.Text()
		rest, ok := strings.CutPrefix(line, "cargo:")
		if !ok {
			continue
		}
		key, value, ok := strings.Cut(rest, "=")
		if !ok {
			continue
		}
		switch key {
		case "rustc-env":
			if k, v, ok := strings.Cut(value, "="); ok {
				out.RustcEnv[k] = v
			}
		case "rustc-cfg":
			out.RustcCfg = append(out.RustcCfg, value)
		case "rustc-link-lib":
			out.RustcLinkLib = append(out.RustcLinkLib, value)
		case "rustc-link-search":
			out.RustcLinkSearch = append(out.RustcLinkSearch, value)
		case "rerun-if-changed":
			out.RerunIfChanged = append(out.RerunIfChanged, value)
		case "rerun-if-env-changed":
			out.RerunIfEnvChanged = append(out.RerunIfEnvChanged, value)
		case "warning":
			out.Warnings = append(out.Warnings, value)
		}
	}
	return out
}

// RerunTriggers converts the parsed rerun-if-* directives into the
// fingerprint package's input shape. statMtime resolves a changed-path
// to a stamp-comparable mtime (the caller owns filesystem access, per
// the core's scope boundary); envValue looks up an env-changed var's
// current value.
func (o BuildScriptOutput) RerunTriggers(statMtime func(path string) (int64, bool), envValue func(name string) string) []fingerprint.RerunTrigger {
	triggers := make([]fingerprint.RerunTrigger, 0, len(o.RerunIfChanged)+len(o.RerunIfEnvChanged))
	for _, p := range o.RerunIfChanged {
		mtime, ok := statMtime(p)
		if !ok {
			mtime = 0
		}
		triggers = append(triggers, fingerprint.RerunTrigger{Path: p, MtimeUnixNs: mtime})
	}
	for _, v := range o.RerunIfEnvChanged {
		triggers = append(triggers, fingerprint.RerunTrigger{EnvVar: v, EnvValue: envValue(v)})
	}
	return triggers
}

// EnvPairs renders RustcEnv as "VAR=VALUE" strings suitable for
// appending to an exec.Cmd.Env, in sorted order for determinism.
func (o BuildScriptOutput) EnvPairs() []string {
	keys := make([]string, 0, len(o.RustcEnv))
	for k := range o.RustcEnv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+o.RustcEnv[k])
	}
	return pairs
}
