package config

import (
	"os"
	"path/filepath"

	"github.com/OpenPeeDeeP/xdg"
	"github.com/imdario/mergo"
	yaml "github.com/jesseduffield/yaml"
)

// AppConfig contains the base configuration fields required for one forge
// invocation: build metadata plus the merged user configuration.
type AppConfig struct {
	Debug        bool        `long:"debug" env:"DEBUG" default:"false"`
	Version      string      `long:"version" env:"VERSION" default:"unversioned"`
	Commit       string      `long:"commit" env:"COMMIT"`
	BuildDate    string      `long:"build-date" env:"BUILD_DATE"`
	Name         string      `long:"name" env:"NAME" default:"forge"`
	BuildSource  string      `long:"build-source" env:"BUILD_SOURCE" default:""`
	UserConfig   *UserConfig
	ConfigDir    string
	WorkspaceDir string
}

// NewAppConfig makes a new app config, loading FORGE_HOME's user config.yml
// (if any) and merging it over the built-in defaults.
func NewAppConfig(name, version, commit, date string, buildSource string, debuggingFlag bool, workspaceDir string) (*AppConfig, error) {
	configDir, err := findOrCreateConfigDir(name)
	if err != nil {
		return nil, err
	}

	userConfig, err := loadUserConfigWithDefaults(configDir)
	if err != nil {
		return nil, err
	}

	appConfig := &AppConfig{
		Name:         name,
		Version:      version,
		Commit:       commit,
		BuildDate:    date,
		Debug:        debuggingFlag || os.Getenv("DEBUG") == "TRUE",
		BuildSource:  buildSource,
		UserConfig:   userConfig,
		ConfigDir:    configDir,
		WorkspaceDir: workspaceDir,
	}

	applyEnvOverrides(appConfig)

	return appConfig, nil
}

// applyEnvOverrides implements consumed-environment-variables
// list for the subset config.yml also covers: FORGE_HOME is handled by
// configDirForVendor, so only the build-tuning variables remain here.
func applyEnvOverrides(c *AppConfig) {
	if dir := os.Getenv("FORGE_TARGET_DIR"); dir != "" {
		c.UserConfig.Build.TargetDir = dir
	}
	if flags := os.Getenv("FORGE_BUILD_FLAGS"); flags != "" {
		c.UserConfig.Build.RustFlags = append(c.UserConfig.Build.RustFlags, splitFlags(flags)...)
	}
	if v := os.Getenv("FORGE_INCREMENTAL"); v != "" {
		on := v != "0" && v != "false"
		c.UserConfig.Build.Incremental = &on
	}
}

func splitFlags(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ' ' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func configDirForVendor(vendor string, projectName string) string {
	if envConfigDir := os.Getenv("FORGE_HOME"); envConfigDir != "" {
		return envConfigDir
	}
	configDirs := xdg.New(vendor, projectName)
	return configDirs.ConfigHome()
}

func configDir(projectName string) string {
	return configDirForVendor("", projectName)
}

func findOrCreateConfigDir(projectName string) (string, error) {
	folder := configDir(projectName)

	err := os.MkdirAll(folder, 0o755)
	if err != nil {
		return "", err
	}

	return folder, nil
}

func loadUserConfigWithDefaults(configDir string) (*UserConfig, error) {
	defaults := GetDefaultConfig()
	return loadUserConfig(configDir, &defaults)
}

// loadUserConfig reads config.yml from configDir (creating an empty one on
// first run) and merges it over base: fields the user left unset keep base's
// value, anything explicitly set in the file wins.
func loadUserConfig(configDir string, base *UserConfig) (*UserConfig, error) {
	fileName := filepath.Join(configDir, "config.yml")

	if _, err := os.Stat(fileName); err != nil {
		if os.IsNotExist(err) {
			file, err := os.Create(fileName)
			if err != nil {
				return nil, err
			}
			file.Close()
		} else {
			return nil, err
		}
	}

	content, err := os.ReadFile(fileName)
	if err != nil {
		return nil, err
	}

	loaded := UserConfig{}
	if err := yaml.Unmarshal(content, &loaded); err != nil {
		return nil, err
	}

	if err := mergo.Merge(&loaded, *base); err != nil {
		return nil, err
	}

	return &loaded, nil
}

// WriteToUserConfig allows you to set a value on the user config to be
// saved. Note that if you set a zero-value, it may be ignored on the next
// load because of the omitempty-driven merge above.
func (c *AppConfig) WriteToUserConfig(updateConfig func(*UserConfig) error) error {
	userConfig, err := loadUserConfig(c.ConfigDir, &UserConfig{})
	if err != nil {
		return err
	}

	if err := updateConfig(userConfig); err != nil {
		return err
	}

	file, err := os.OpenFile(c.ConfigFilename(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o666)
	if err != nil {
		return err
	}
	defer file.Close()

	return yaml.NewEncoder(file).Encode(userConfig)
}

// ConfigFilename returns the filename of the current config file.
func (c *AppConfig) ConfigFilename() string {
	return filepath.Join(c.ConfigDir, "config.yml")
}
