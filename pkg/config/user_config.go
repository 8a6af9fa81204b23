// Package config handles all the user-configurable options for a forge
// invocation. Fields here are in PascalCase but in your actual config.yml
// they'll be in camelCase. `forge --config` prints the default config.
// Because of the way user config is merged with the
// defaults, setting a table key to an explicit zero value (empty string, 0,
// false) is indistinguishable from not setting it at all.
package config

import "time"

// UserConfig holds all of the user-configurable options that apply across
// every invocation in this FORGE_HOME, as opposed to the per-invocation
// flags a front end passes into a single Resolve/Build call.
type UserConfig struct {
	// Build controls defaults for the unit-graph builder and job queue
	// when a front end does not override them explicitly.
	Build BuildConfig `yaml:"build,omitempty"`

	// Net controls retry behaviour for source downloads.
	Net NetConfig `yaml:"net,omitempty"`

	// Registries maps a registry name to its index location, mirroring
	// a `[registries.<name>]` table.
	Registries map[string]RegistryConfig `yaml:"registries,omitempty"`

	// Runners maps a target triple to the command used to execute its
	// binaries (`CARGO_TARGET_<TRIPLE>_RUNNER`), e.g. for cross builds
	// under an emulator.
	Runners map[string]string `yaml:"runners,omitempty"`
}

// BuildConfig is the `[build]` table.
type BuildConfig struct {
	// Jobs is the default job-token count handed to the jobserver when
	// a front end does not pass --jobs explicitly. 0 means "use the
	// number of logical CPUs".
	Jobs int `yaml:"jobs,omitempty"`

	// Profile is the default profile name ("dev" or "release") used
	// when a front end does not select one.
	Profile string `yaml:"profile,omitempty"`

	// TargetDir overrides where build outputs are written, equivalent
	// to CARGO_TARGET_DIR. Empty means "<workspace root>/target".
	TargetDir string `yaml:"targetDir,omitempty"`

	// Incremental is an optional override of the profile incremental
	// flag; nil means "defer to each profile's own setting". It has the
	// shape of fingerprint.IncrementalEligible's envOverride parameter,
	// but no code in this module passes it there.
	Incremental *bool `yaml:"incremental,omitempty"`

	// RustFlags are appended to every compile invocation's command
	// line, equivalent to RUSTFLAGS.
	RustFlags []string `yaml:"rustflags,omitempty"`
}

// NetConfig is the `[net]` table.
type NetConfig struct {
	// RetryCount is read from the `retry` key. No package in this module
	// reads it: source errors are not retried and surface on first
	// failure.
	RetryCount int `yaml:"retry,omitempty"`

	// RetryBaseDelay is the initial backoff between retries.
	RetryBaseDelay time.Duration `yaml:"retryBaseDelay,omitempty"`
}

// RegistryConfig is one `[registries.<name>]` table entry.
type RegistryConfig struct {
	Index string `yaml:"index,omitempty"`
	Token string `yaml:"token,omitempty"`
}

// GetDefaultConfig returns the default UserConfig. Note (to contributors,
// not users): do not default a boolean to true, because false is the
// boolean zero value and will be indistinguishable from "unset" when
// merging over a partial user file.
func GetDefaultConfig() UserConfig {
	return UserConfig{
		Build: BuildConfig{
			Jobs:    0,
			Profile: "dev",
		},
		Net: NetConfig{
			RetryCount:     3,
			RetryBaseDelay: 500 * time.Millisecond,
		},
		Registries: map[string]RegistryConfig{},
		Runners:    map[string]string{},
	}
}
